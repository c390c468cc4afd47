package processor

import (
	"context"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
)

// speed is the motion speed factor for moves carrying part.
func (p *Processor) speed(part *job.Part) float64 {
	return p.m.SpeedFactor() * part.MotionSpeed()
}

// findFeeder returns the first enabled feeder holding part.
func (p *Processor) findFeeder(part *job.Part) machine.Feeder {
	for _, f := range p.m.Feeders {
		if f.Enabled() && f.PartID() == part.ID {
			return f
		}
	}
	return nil
}

// retry calls fn up to attempts times, returning the last error.
func retry(attempts int, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		logger.Logger.Debugw("attempt failed", "attempt", i+1, "attempts", attempts, logger.FieldError, err)
	}
	return err
}

// feedAndPick feeds the part of pp and picks it with its nozzle. Feeders
// that fail to feed are disabled and the next feeder holding the part is
// tried.
func (p *Processor) feedAndPick(ctx context.Context, pp *plannedPlacement) error {
	n, jp, part := pp.nozzle, pp.jp, pp.jp.Part

	var lastErr error
	var lastFeeder machine.Feeder
	for {
		f := p.findFeeder(part)
		if f == nil {
			if lastErr != nil {
				return errors.Wrapf(lastErr, "Unable to feed %s. Feeder %s", part.ID, lastFeeder.Name())
			}
			if p.cfg.AutoSkipDisabledFeeders {
				p.makeSkip = true
			}
			return errors.WithHint(
				errors.Newf("Unable to feed %s. No enabled feeder found.", part.ID),
				"enable a feeder for the part, or skip the placement",
			)
		}
		pp.feeder = f

		p.textStatus("Feed %s on %s.", f.Name(), part.ID)
		err := retry(1+f.RetryCount(), func() error { return f.Feed(ctx, n) })
		if err != nil {
			if f.AutoSkipPick() {
				p.makeSkip = true
			}
			p.disableFeeder(f)
			lastErr, lastFeeder = err, f
			continue
		}

		p.textStatus("Pick %s from %s for %s.", part.ID, f.Name(), jp.Placement.ID)
		err = retry(1+f.PickRetryCount(), func() error {
			loc, err := f.PickLocation()
			if err != nil {
				return err
			}
			err = n.MoveToAtSafeZ(ctx, loc.WithZ(0), p.m.SpeedFactor())
			if err != nil {
				return err
			}
			err = n.PrePickTest(ctx)
			if err != nil {
				return err
			}
			err = n.MoveToAtSafeZ(ctx, loc, p.m.SpeedFactor())
			if err != nil {
				return err
			}
			err = n.Pick(ctx, part)
			if err != nil {
				return err
			}
			err = n.MoveToSafeZ(ctx)
			if err != nil {
				return err
			}
			return f.PostPick(ctx, n)
		})
		if err != nil {
			if f.AutoSkipPick() {
				p.autoSkip(f)
			}
			return err
		}

		// an earlier feeder's auto skip does not carry over to a successful pick
		p.makeSkip = false
		logger.Logger.Debugw("picked",
			logger.FieldRunID, p.runID,
			logger.FieldPart, part.ID,
			logger.FieldFeeder, f.Name(),
			logger.FieldNozzle, n.Name(),
		)
		return nil
	}
}
