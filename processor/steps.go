package processor

import (
	"context"
	"sort"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/metrics"
	"github.com/mastercactapus/gpnp/planner"
)

// TopLightsActuator names the actuator lighting the down looking camera
// during fiducial checks.
const TopLightsActuator = "DownCamLights"

func (p *Processor) safeZ(ctx context.Context) error {
	for _, h := range p.m.Heads {
		err := h.MoveToSafeZ(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) discardAll(ctx context.Context) error {
	for _, n := range p.m.Nozzles() {
		if n.Part() == nil {
			continue
		}
		err := n.Discard(ctx)
		if err != nil {
			return errors.Wrapf(err, "discard %s", n.Name())
		}
	}
	return nil
}

func (p *Processor) doPreFlight(ctx context.Context) error {
	p.start = p.opt.Now()
	p.stats = Stats{}
	p.saveJobAndConfig(true)

	p.jobPlacements = nil
	p.planned = nil
	p.fidsChecked = make(map[*job.BoardLocation]bool)

	p.textStatus("Checking job for setup errors.")
	for _, bl := range p.job.EnabledBoards() {
		if dups := bl.Board.DuplicateIDs(); len(dups) > 0 {
			return errors.Newf("This board contains at least one duplicate ID entry: %s", dups[0])
		}

		for _, pl := range bl.Board.Placements {
			if pl.Type != job.TypePlacement || !pl.Enabled {
				continue
			}
			if bl.IsPlaced(pl.ID) {
				continue
			}
			if pl.Side != bl.Side {
				continue
			}

			part, err := p.parts.Get(pl.PartID)
			if err != nil {
				return errors.Newf("Part not found for board %s, placement %s.", bl.Name(), pl.ID)
			}
			if part.Height <= 0 {
				return errors.Newf("Part height for %s must be greater than 0.", part.ID)
			}
			if !p.anyNozzleTip(part) {
				return errors.Newf("No compatible nozzle tip on any head for part %s.", part.ID)
			}
			if p.findFeeder(part) == nil {
				return errors.Newf("No compatible, enabled feeder found for part %s.", part.ID)
			}

			p.jobPlacements = append(p.jobPlacements, job.NewJobPlacement(bl, pl, part))
		}
	}
	logger.Logger.Infow("job checked", logger.FieldRunID, p.runID, logger.FieldCount, len(p.jobPlacements))

	p.textStatus("Preparing machine.")
	err := p.safeZ(ctx)
	if err != nil {
		return err
	}
	err = p.discardAll(ctx)
	if err != nil {
		return err
	}

	p.m.FireHook("Job.Starting", p.hookVars())
	return nil
}

func (p *Processor) anyNozzleTip(part *job.Part) bool {
	for _, n := range p.m.Nozzles() {
		if n.CompatibleNozzleTip(part) != nil {
			return true
		}
	}
	return false
}

func (p *Processor) doTipCalibration(ctx context.Context) error {
	p.textStatus("Performing nozzle tip calibration.")
	for _, n := range p.m.Nozzles() {
		t := n.NozzleTip()
		if t == nil || t.Calibration.IsCalibrated() {
			continue
		}
		err := t.Calibrate(ctx, n)
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *Processor) setTopLight(ctx context.Context, on bool) error {
	a := p.m.FindActuator(TopLightsActuator)
	if a == nil || p.topLight == on {
		return nil
	}
	err := a.Actuate(ctx, on)
	if err != nil {
		return err
	}
	p.topLight = on
	return nil
}

func (p *Processor) locateBoard(ctx context.Context, bl *job.BoardLocation, checkFiducialsOnly bool) error {
	if p.opt.Locator == nil {
		return errors.Newf("Board %s requires a fiducial check but no fiducial locator is configured.", bl.Name())
	}
	tr, err := p.opt.Locator.LocateBoard(ctx, bl, checkFiducialsOnly)
	if err != nil {
		return errors.Wrapf(err, "fiducial check %s", bl.Name())
	}
	if tr != nil {
		bl.Transform = tr
	}
	logger.Logger.Debugw("fiducial check", logger.FieldRunID, p.runID, logger.FieldBoard, bl.Name())
	return nil
}

func (p *Processor) doFiducialCheck(ctx context.Context) error {
	p.textStatus("Performing fiducial checks.")
	err := p.setTopLight(ctx, true)
	if err != nil {
		return err
	}

	if p.job.Panel != nil && p.job.Panel.CheckFiducials && len(p.job.Boards) > 0 {
		err = p.locateBoard(ctx, p.job.Boards[0], true)
		if err != nil {
			return err
		}
	}

	for _, bl := range p.job.EnabledBoards() {
		if !bl.CheckFiducials || p.fidsChecked[bl] {
			continue
		}
		err = p.locateBoard(ctx, bl, false)
		if err != nil {
			return err
		}
		p.fidsChecked[bl] = true
	}

	return p.setTopLight(ctx, false)
}

func (p *Processor) individualFiducialCheck(ctx context.Context, bl *job.BoardLocation) error {
	p.textStatus("Performing individual fiducial check.")
	err := p.setTopLight(ctx, true)
	if err != nil {
		return err
	}
	err = p.locateBoard(ctx, bl, false)
	if err != nil {
		return err
	}
	return p.setTopLight(ctx, false)
}

func (p *Processor) sortedPending() []*job.JobPlacement {
	res := p.pending()
	if p.cfg.JobOrder == JobOrderPart {
		sort.SliceStable(res, func(i, j int) bool { return res[i].PartID() < res[j].PartID() })
		return res
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Part.Height < res[j].Part.Height })
	return res
}

func (p *Processor) doPlan(ctx context.Context) error {
	p.planned = nil
	p.placeOrdered = false

	p.textStatus("Planning placements.")
	err := p.setTopLight(ctx, false)
	if err != nil {
		return err
	}

	pending := p.sortedPending()
	if len(pending) == 0 {
		return nil
	}

	nozzles := p.m.Nozzles()
	start := time.Now()
	res := p.opt.Planner.Plan(nozzles, pending, planner.Options{DisableTipChanging: p.cfg.DisableTipChanging})
	logger.Logger.Debugw("planner complete", logger.FieldRunID, p.runID, "elapsed", time.Since(start))

	for i, n := range nozzles {
		if i >= len(res) || res[i] == nil {
			continue
		}
		res[i].Status = job.StatusProcessing
		p.planned = append(p.planned, &plannedPlacement{nozzle: n, jp: res[i]})
	}
	if len(p.planned) == 0 {
		return errors.New("Planner failed to plan any placements. Please contact support.")
	}

	logger.Logger.Debugw("planned placements", logger.FieldRunID, p.runID, "planned", p.planned)
	p.stats.Cycles++
	metrics.Cycles.Inc()
	return nil
}

func (p *Processor) doChangeNozzleTip(ctx context.Context) error {
	p.textStatus("Checking nozzle tips.")
	for _, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		n, part := pp.nozzle, pp.jp.Part

		if n.NozzleTip().CanHandle(part) {
			pp.stepComplete = true
			continue
		}

		tip := n.CompatibleNozzleTip(part)
		if tip == nil {
			return errors.Newf("No compatible nozzle tip on nozzle %s for part %s.", n.Name(), part.ID)
		}
		p.textStatus("Change NozzleTip on Nozzle %s to %s.", n.Name(), tip)
		logger.Logger.Debugw("changing nozzle tip",
			logger.FieldRunID, p.runID,
			logger.FieldNozzle, n.Name(),
			"from", n.NozzleTip().String(),
			logger.FieldNozzleTip, tip.String(),
		)

		err := n.UnloadNozzleTip(ctx)
		if err != nil {
			return err
		}
		err = n.LoadNozzleTip(ctx, tip)
		if err != nil {
			return err
		}
		if !tip.Calibration.IsCalibrated() {
			err = tip.Calibrate(ctx, n)
			if err != nil {
				return err
			}
		}

		pp.stepComplete = true
		p.stats.NozzleTipChanges++
		metrics.NozzleTipChanges.Inc()
	}

	p.clearStepComplete()
	return nil
}

func (p *Processor) doFeedAndPick(ctx context.Context) error {
	for _, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		err := p.feedAndPick(ctx, pp)
		if err != nil {
			return err
		}
		pp.stepComplete = true
	}

	p.clearStepComplete()
	return nil
}

func (p *Processor) disableFeeder(f machine.Feeder) {
	f.SetEnabled(false)
	metrics.FeederDisabled.WithLabelValues(f.ID()).Inc()
	logger.Logger.Warnw("feeder disabled", logger.FieldRunID, p.runID, logger.FieldFeeder, f.Name())
}

// autoSkip flags the current placement for an automatic skip, disabling
// its feeder when configured to.
func (p *Processor) autoSkip(f machine.Feeder) {
	p.makeSkip = true
	if p.cfg.AutoDisableFeeder && !p.cfg.DisableAutomatics {
		p.disableFeeder(f)
	}
}

func (p *Processor) partOnCheck(ctx context.Context, pp *plannedPlacement, atCamera *bool) error {
	n, part := pp.nozzle, pp.jp.Part
	if !*atCamera && p.m.BottomCamera != nil {
		err := n.MoveToAtSafeZ(ctx, p.m.BottomCamera.Location, p.speed(part))
		if err != nil {
			return err
		}
		*atCamera = true
	}

	p.textStatus("Checking part on over the camera: %s for %s.", part.ID, pp.jp.Placement.ID)
	on, err := n.IsPartOn(ctx)
	if err != nil {
		return err
	}
	if !on {
		return errors.Newf("Part %s not detected on nozzle %s after %d retries.", part.ID, n.Name(), pp.feeder.PickRetryCount())
	}
	return nil
}

func (p *Processor) doAlign(ctx context.Context) error {
	var atCamera bool
	for _, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		n, jp, part := pp.nozzle, pp.jp, pp.jp.Part
		if pp.feeder == nil {
			// feed was ignored
			pp.feeder = p.findFeeder(part)
			if pp.feeder == nil {
				return errors.Newf("No compatible, enabled feeder found for part %s.", part.ID)
			}
		}
		f := pp.feeder

		for picks := f.PickRetryCount(); ; picks-- {
			err := p.partOnCheck(ctx, pp, &atCamera)
			if err == nil {
				break
			}
			if picks <= 0 {
				if f.AutoSkipPick() {
					p.autoSkip(f)
				}
				return err
			}

			logger.Logger.Infow("part not on nozzle, picking again", logger.FieldRunID, p.runID, logger.FieldNozzle, n.Name(), logger.FieldError, err)
			atCamera = false
			p.textStatus("Discarding %s from %s.", part.ID, n.Name())
			err = n.Discard(ctx)
			if err != nil {
				return err
			}
			p.textStatus("Picking again %s from %s for %s.", part.ID, f.Name(), jp.Placement.ID)
			err = p.feedAndPick(ctx, pp)
			if err != nil {
				return err
			}
		}

		if p.opt.Aligner == nil {
			pp.offset = nil
			pp.stepComplete = true
			continue
		}

		p.textStatus("Aligning %s for %s.", part.ID, jp.Placement.ID)
		alignCount := f.AlignRetryCount()
		for i := 0; i <= alignCount; i++ {
			if alignCount == 0 {
				pp.disableAlignment = false
			}

			if !pp.disableAlignment {
				off, err := p.opt.Aligner.FindOffsets(ctx, part, jp.BoardLocation, jp.Placement.Location, n)
				if err == nil {
					pp.offset = off
					logger.Logger.Debugw("aligned", logger.FieldRunID, p.runID, logger.FieldPart, part.ID, logger.FieldNozzle, n.Name(), "offset", off)
					break
				}
				logger.Logger.Infow("alignment failed", logger.FieldRunID, p.runID, logger.FieldPart, part.ID, "attempt", i+1, logger.FieldError, err)
			}

			if i < alignCount {
				p.textStatus("Discarding %s from %s.", part.ID, n.Name())
				err := n.Discard(ctx)
				if err != nil {
					return err
				}

				// an operator retry after a failed repick must pick before aligning
				pp.disableAlignment = true
				p.textStatus("Picking again %s from %s for %s.", part.ID, f.Name(), jp.Placement.ID)
				err = p.feedAndPick(ctx, pp)
				if err != nil {
					return err
				}
				pp.disableAlignment = false
				continue
			}

			if alignCount != 0 {
				if f.AutoSkipAlign() {
					p.autoSkip(f)
				}
				return errors.Newf("Bottom vision (%s): No result found. <Try again> to Pick and Align again.", part.ID)
			}
			return errors.Newf("Bottom vision (%s): No result found. <Try again> to Align again.", part.ID)
		}

		pp.stepComplete = true
	}

	p.clearStepComplete()
	return nil
}

// alignedLocation moves the placement location l so that the part, not
// the nozzle, lands on it.
func alignedLocation(l coord.Location, off machine.PartAlignmentOffset) coord.Location {
	if off.PreRotated {
		return l.SubWithRotation(off.Location)
	}

	o := off.Location
	rot := l.Rotation - o.Rotation
	res := coord.Location{}.RotateXYCenterPoint(o, rot).WithRotation(rot)
	return res.Add(l).Sub(o)
}

func (p *Processor) doPlace(ctx context.Context) error {
	// last picked, first placed
	if !p.placeOrdered {
		for i, j := 0, len(p.planned)-1; i < j; i, j = i+1, j-1 {
			p.planned[i], p.planned[j] = p.planned[j], p.planned[i]
		}
		p.placeOrdered = true
	}

	for _, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		n, jp, part, bl := pp.nozzle, pp.jp, pp.jp.Part, pp.jp.BoardLocation

		if jp.Placement.CheckFiducials && bl.Enabled {
			err := p.individualFiducialCheck(ctx, bl)
			if err != nil {
				return err
			}
		}

		l := bl.PlacementLocation(jp.Placement)
		if pp.offset != nil {
			l = alignedLocation(l, *pp.offset)
		}
		l.Z += part.Height

		err := n.MoveToAtSafeZ(ctx, l, p.speed(part))
		if err != nil {
			return err
		}
		p.textStatus("Placing %s for %s.", part.ID, jp.Placement.ID)
		err = n.Place(ctx)
		if err != nil {
			return err
		}
		err = n.MoveToSafeZ(ctx)
		if err != nil {
			return err
		}

		jp.Status = job.StatusComplete
		bl.SetPlaced(jp.Placement.ID, true)
		p.stats.PartsPlaced++
		metrics.PartsPlaced.Inc()
		pp.stepComplete = true
		logger.Logger.Debugw("placed",
			logger.FieldRunID, p.runID,
			logger.FieldPart, part.ID,
			logger.FieldPlacement, jp.String(),
			logger.FieldNozzle, n.Name(),
		)

		p.saveJobAndConfig(false)
	}

	p.clearStepComplete()
	return nil
}

func (p *Processor) doCleanup(ctx context.Context) error {
	p.textStatus("Cleaning up.")
	err := p.safeZ(ctx)
	if err != nil {
		return err
	}
	err = p.discardAll(ctx)
	if err != nil {
		return err
	}
	err = p.safeZ(ctx)
	if err != nil {
		return err
	}

	if p.cfg.ParkWhenComplete {
		p.textStatus("Park nozzle.")
		for _, h := range p.m.Heads {
			err = h.Park(ctx)
			if err != nil {
				return err
			}
		}
	}

	dt := p.opt.Now().Sub(p.start)
	var pph float64
	if dt > 0 {
		pph = float64(p.stats.PartsPlaced) / dt.Hours()
	}
	logger.Logger.Infow("job finished",
		logger.FieldRunID, p.runID,
		"placed", p.stats.PartsPlaced,
		"seconds", dt.Seconds(),
		"pph", pph,
		"skipped", p.stats.PartsSkipped,
		"cycles", p.stats.Cycles,
		"nozzleTipChanges", p.stats.NozzleTipChanges,
	)

	p.m.FireHook("Job.Finished", p.hookVars())
	p.textStatus("Job finished: Placed %d parts in %.1f sec (%.1f CPH). Skipped %d parts.",
		p.stats.PartsPlaced, dt.Seconds(), pph, p.stats.PartsSkipped)

	err = p.setTopLight(ctx, true)
	if err != nil {
		return err
	}

	p.saveJobAndConfig(true)
	return nil
}

func (p *Processor) doSkip(ctx context.Context) error {
	for i, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		n := pp.nozzle
		p.textStatus("Discarding skipped part from nozzle: %s.", n.Name())
		err := n.Discard(ctx)
		if err != nil {
			// the placement stays planned so the step can be retried
			p.makeSkip = false
			return errors.Wrapf(err, "skip %s", pp.jp)
		}
		p.planned = append(p.planned[:i], p.planned[i+1:]...)

		if p.makeSkip {
			vars := p.hookVars()
			vars["part"] = pp.jp.PartID()
			vars["nozzle"] = n.ID()
			vars["placement"] = pp.jp.String()
			if pp.feeder != nil {
				vars["feeder"] = pp.feeder.ID()
			}
			p.m.FireHook("Job.SkipAlarm", vars)
		}

		p.stats.PartsSkipped++
		metrics.PartsSkipped.Inc()
		pp.jp.Status = job.StatusSkipped
		p.makeSkip = false
		logger.Logger.Infow("skipped", logger.FieldRunID, p.runID, logger.FieldPlacement, pp.jp.String())
		return nil
	}
	return nil
}

func (p *Processor) doIgnoreContinue(ctx context.Context) error {
	for _, pp := range p.planned {
		if pp.stepComplete {
			continue
		}
		pp.stepComplete = true
		logger.Logger.Infow("ignored error and continued", logger.FieldRunID, p.runID, logger.FieldPlacement, pp.jp.String())
		return nil
	}
	return nil
}

func (p *Processor) saveJobAndConfig(ignoreTimer bool) {
	if p.cfg.AutoSaveJob && p.opt.JobSaver != nil && p.job != nil && p.job.File() != "" {
		err := p.opt.JobSaver.SaveJob(p.job)
		if err != nil {
			logger.Logger.Warnw("auto save job failed", logger.FieldRunID, p.runID, logger.FieldFile, p.job.File(), logger.FieldError, err)
		}
	}

	now := p.opt.Now()
	if !p.cfg.AutoSaveConfiguration || p.opt.ConfigSaver == nil {
		return
	}
	if !ignoreTimer && !now.After(p.lastConfigSave.Add(p.cfg.ConfigSaveFrequency)) {
		return
	}
	err := p.opt.ConfigSaver.SaveConfig()
	if err != nil {
		logger.Logger.Warnw("auto save configuration failed", logger.FieldRunID, p.runID, logger.FieldError, err)
	}
	p.lastConfigSave = now
}
