package machine

import (
	"context"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
)

var (
	ErrNoNozzleTip = errors.New("no nozzle tip loaded")
	ErrNoPart      = errors.New("no part")
)

// Tuning holds the empirically tuned constants of the vacuum protocol.
type Tuning struct {
	// PollInterval is the delay between vacuum readings while waiting
	// for a threshold.
	PollInterval   time.Duration
	PickPollCount  int
	PlacePollCount int

	// ReadOffset is added to the reading taken right after raising a
	// picked part, biasing it toward a failed pick.
	ReadOffset float64

	// PrePickTolerance is the band around the part-off level that a
	// nozzle must be within before picking.
	PrePickTolerance float64

	// ZThreshold is the Z below which a pneumatic nozzle is lowered.
	ZThreshold float64
}

var DefaultTuning = Tuning{
	PollInterval:     10 * time.Millisecond,
	PickPollCount:    10,
	PlacePollCount:   25,
	ReadOffset:       -5,
	PrePickTolerance: 50,
	ZThreshold:       -2,
}

// Nozzle is a single vacuum pick/place effector on a Head.
type Nozzle struct {
	id   string
	name string
	head *Head

	// VacuumSense reads the vacuum level.
	VacuumSense *Actuator

	// Vacuum switches the pump. Nozzles without one switch VacuumSense.
	Vacuum *Actuator

	// Down raises (false) or lowers (true) a pneumatic nozzle.
	Down *Actuator

	// InvertVacuumLogic is set for sensors where a held part reads lower
	// than an empty nozzle.
	InvertVacuumLogic bool

	// LimitRotation keeps commanded rotation within +/-180 degrees.
	LimitRotation bool

	// ChangerEnabled enables automatic nozzle tip changes.
	ChangerEnabled bool

	PickDwell  time.Duration
	PlaceDwell time.Duration

	Tuning Tuning

	tips []*NozzleTip
	tip  *NozzleTip
	part *job.Part
}

var _ HeadMountable = &Nozzle{}

func NewNozzle(id, name string) *Nozzle {
	return &Nozzle{
		id:            id,
		name:          name,
		LimitRotation: true,
		Tuning:        DefaultTuning,
	}
}

func (n *Nozzle) ID() string   { return n.id }
func (n *Nozzle) Name() string { return n.name }
func (n *Nozzle) Head() *Head  { return n.head }

// Part returns the part held by the nozzle, or nil.
func (n *Nozzle) Part() *job.Part { return n.part }

// NozzleTip returns the loaded tip, or nil.
func (n *Nozzle) NozzleTip() *NozzleTip { return n.tip }

// NozzleTips returns the tips this nozzle can load.
func (n *Nozzle) NozzleTips() []*NozzleTip { return n.tips }

// AttachNozzleTip makes t available to the nozzle.
func (n *Nozzle) AttachNozzleTip(t *NozzleTip) {
	n.tips = append(n.tips, t)
}

// SetNozzleTip records t as loaded without any motion, for restoring
// saved state.
func (n *Nozzle) SetNozzleTip(t *NozzleTip) { n.tip = t }

// CompatibleNozzleTip returns the first attached tip that can handle part.
func (n *Nozzle) CompatibleNozzleTip(part *job.Part) *NozzleTip {
	for _, t := range n.tips {
		if t.CanHandle(part) {
			return t
		}
	}
	return nil
}

func (n *Nozzle) machine() *Machine { return n.head.machine }
func (n *Nozzle) driver() Driver    { return n.head.machine.Driver }

// calibrationTip is the tip whose runout applies: the loaded tip, or the
// stand-in for a bare nozzle.
func (n *Nozzle) calibrationTip() *NozzleTip {
	if n.tip != nil {
		return n.tip
	}
	for _, t := range n.tips {
		if t.Standin {
			return t
		}
	}
	return nil
}

func (n *Nozzle) runoutOffset(rotation float64) (coord.Location, bool) {
	t := n.calibrationTip()
	if t == nil {
		return coord.Location{}, false
	}
	return t.Calibration.offset(rotation)
}

// Location returns the current location of the tip, including runout.
func (n *Nozzle) Location() coord.Location {
	l := n.driver().Location(n)
	if off, ok := n.runoutOffset(l.Rotation); ok {
		l = l.Add(off)
	}
	return l
}

// MoveTo moves the tip to l. Unset axes keep their current value.
func (n *Nozzle) MoveTo(ctx context.Context, l coord.Location, speed float64) error {
	l = l.DerivedFrom(n.Location())
	if n.LimitRotation {
		l.Rotation = coord.LimitRotation(l.Rotation)
	}
	if off, ok := n.runoutOffset(l.Rotation); ok {
		l = l.Sub(off)
	}

	cur := n.driver().Location(n)
	if l.Equal(cur) {
		return nil
	}
	logger.Logger.Debugw("move", logger.FieldNozzle, n.name, "location", l, "speed", speed)

	if n.Down != nil {
		th := n.Tuning.ZThreshold
		if l.Z < th && cur.Z >= th {
			err := n.Down.Actuate(ctx, true)
			if err != nil {
				return err
			}
		}
		if l.Z >= th && cur.Z < th {
			err := n.Down.Actuate(ctx, false)
			if err != nil {
				return err
			}
		}
	}

	err := n.driver().MoveTo(ctx, n, l, speedFactor(speed))
	if err != nil {
		return errors.Wrapf(err, "move %s", n.name)
	}
	n.head.fireActivity()
	return nil
}

// MoveToSafeZ raises the nozzle to the head's safe Z.
func (n *Nozzle) MoveToSafeZ(ctx context.Context) error {
	l := coord.Location{X: coord.Unset, Y: coord.Unset, Z: n.head.SafeZ, Rotation: coord.Unset}
	return n.MoveTo(ctx, l, n.machine().SpeedFactor())
}

// MoveToAtSafeZ raises to safe Z, travels over l, then descends to l.
func (n *Nozzle) MoveToAtSafeZ(ctx context.Context, l coord.Location, speed float64) error {
	err := n.MoveToSafeZ(ctx)
	if err != nil {
		return err
	}
	travel := l
	travel.Z = coord.Unset
	err = n.MoveTo(ctx, travel, speed)
	if err != nil {
		return err
	}
	return n.MoveTo(ctx, l, speed)
}

func (n *Nozzle) readVacuum(ctx context.Context) (float64, error) {
	return n.VacuumSense.ReadFloat(ctx)
}

func (n *Nozzle) partOn(level float64) bool {
	if n.InvertVacuumLogic {
		return level <= n.tip.VacuumLevelPartOn
	}
	return level >= n.tip.VacuumLevelPartOn
}

func (n *Nozzle) partOff(level float64) bool {
	if n.InvertVacuumLogic {
		return level >= n.tip.VacuumLevelPartOff
	}
	return level <= n.tip.VacuumLevelPartOff
}

// Pick picks part at the current location and verifies it by vacuum.
func (n *Nozzle) Pick(ctx context.Context, part *job.Part) error {
	if part == nil {
		return errors.Wrapf(ErrNoPart, "can't pick on %s", n.name)
	}
	if n.tip == nil {
		return errors.Wrapf(ErrNoNozzleTip, "can't pick on %s", n.name)
	}
	n.part = part
	err := n.driver().Pick(ctx, n)
	if err != nil {
		return errors.Wrapf(err, "pick %s", n.name)
	}
	n.head.fireActivity()

	if n.VacuumSense == nil {
		return nil
	}

	m := n.machine()
	for i := 0; i < n.Tuning.PickPollCount; i++ {
		level, err := n.readVacuum(ctx)
		if err != nil {
			return err
		}
		if n.partOn(level) {
			break
		}
		m.sleep(n.Tuning.PollInterval)
	}

	if n.Down != nil {
		err = n.Down.Actuate(ctx, false)
		if err != nil {
			return err
		}
	}

	level, err := n.readVacuum(ctx)
	if err != nil {
		return err
	}
	level += n.Tuning.ReadOffset
	if !n.partOn(level) {
		if n.InvertVacuumLogic {
			return errors.Newf("Pick failure: Vacuum level %f is higher than expected value of %f for part on. Part may have failed to pick or feeder is empty.",
				level, n.tip.VacuumLevelPartOn)
		}
		return errors.Newf("Pick failure: Vacuum level %f (incl. %v offset) is lower than expected value of %f for part on. Part may have failed to pick or feeder is empty.",
			level, n.Tuning.ReadOffset, n.tip.VacuumLevelPartOn)
	}

	if n.InvertVacuumLogic {
		return nil
	}

	m.sleep(n.PickDwell + n.tip.PickDwell)
	level2, err := n.readVacuum(ctx)
	if err != nil {
		return err
	}
	if level2 < level {
		return errors.Newf("Pick failure: Vacuum level %f is lower than vacuum level %f measured after raising. Part may have been lost.",
			level2, level)
	}
	return nil
}

// Place releases the held part at the current location.
func (n *Nozzle) Place(ctx context.Context) error {
	if n.tip == nil {
		return errors.Wrapf(ErrNoNozzleTip, "can't place on %s", n.name)
	}
	err := n.driver().Place(ctx, n)
	if err != nil {
		return errors.Wrapf(err, "place %s", n.name)
	}
	n.part = nil
	n.head.fireActivity()

	if n.VacuumSense == nil {
		return nil
	}

	m := n.machine()
	for i := 0; i < n.Tuning.PlacePollCount; i++ {
		level, err := n.readVacuum(ctx)
		if err != nil {
			return err
		}
		if n.partOff(level) {
			break
		}
		m.sleep(n.Tuning.PollInterval)
	}

	if n.Down != nil {
		err = n.Down.Actuate(ctx, false)
		if err != nil {
			return err
		}
	}
	m.sleep(n.PlaceDwell + n.tip.PlaceDwell)

	// pump back on so PrePickTest can see a part that stuck to the tip
	return n.pump().Actuate(ctx, true)
}

func (n *Nozzle) pump() *Actuator {
	if n.Vacuum != nil {
		return n.Vacuum
	}
	return n.VacuumSense
}

// PrePickTest fails if the nozzle still appears to hold a part.
func (n *Nozzle) PrePickTest(ctx context.Context) error {
	if n.VacuumSense == nil {
		return nil
	}
	if n.tip == nil {
		return errors.Wrapf(ErrNoNozzleTip, "pre-pick test on %s", n.name)
	}
	level, err := n.readVacuum(ctx)
	if err != nil {
		return err
	}
	off, tol := n.tip.VacuumLevelPartOff, n.Tuning.PrePickTolerance
	if n.InvertVacuumLogic {
		if level < off-tol {
			return errors.Newf("Prepick test failure: Vacuum level %f is lower than expected value of %f for part off. Part may be stuck to nozzle.",
				level, off)
		}
		return nil
	}
	if level > off+tol {
		return errors.Newf("Prepick test failure: Vacuum level %f is higher than expected value of %f (+%v) for part off. Part may be stuck to nozzle.",
			level, off, tol)
	}
	return nil
}

// IsPartOn reports whether the vacuum level shows a part on the nozzle.
// Nozzles without a vacuum sensor always report true.
func (n *Nozzle) IsPartOn(ctx context.Context) (bool, error) {
	if n.VacuumSense == nil {
		return true, nil
	}
	if n.tip == nil {
		return false, errors.Wrapf(ErrNoNozzleTip, "part-on test on %s", n.name)
	}
	level, err := n.readVacuum(ctx)
	if err != nil {
		return false, err
	}
	return n.partOn(level), nil
}

// DiscardPart forgets the held part. The caller is responsible for any
// motion needed to drop it.
func (n *Nozzle) DiscardPart() {
	if n.part == nil {
		return
	}
	n.part = nil
	n.head.fireActivity()
}

// Discard drops the held part at the machine's discard location.
func (n *Nozzle) Discard(ctx context.Context) error {
	m := n.machine()
	if m.DiscardLocation == nil || n.tip == nil {
		n.DiscardPart()
		return nil
	}
	logger.Logger.Debugw("discard", logger.FieldNozzle, n.name)
	err := n.MoveToAtSafeZ(ctx, *m.DiscardLocation, m.SpeedFactor())
	if err != nil {
		return err
	}
	err = n.Place(ctx)
	if err != nil {
		return err
	}
	return n.MoveToSafeZ(ctx)
}

func (n *Nozzle) hookVars() map[string]interface{} {
	return map[string]interface{}{
		"head":   n.head.ID,
		"nozzle": n.id,
	}
}

// LoadNozzleTip swaps in t, running the tip changer when enabled.
func (n *Nozzle) LoadNozzleTip(ctx context.Context, t *NozzleTip) error {
	if n.tip == t {
		return nil
	}
	m := n.machine()
	speed := m.SpeedFactor()

	err := n.UnloadNozzleTip(ctx)
	if err != nil {
		return err
	}

	logger.Logger.Debugw("load nozzle tip", logger.FieldNozzle, n.name, logger.FieldNozzleTip, t.String())
	if n.ChangerEnabled {
		err = n.MoveToAtSafeZ(ctx, t.ChangerStart, speed)
		if err != nil {
			return err
		}
		err = n.MoveTo(ctx, t.ChangerMid, speedFactor(t.ChangerStartToMid)*speed)
		if err != nil {
			return err
		}
		err = n.MoveTo(ctx, t.ChangerMid2, speedFactor(t.ChangerMidToMid2)*speed)
		if err != nil {
			return err
		}
	}
	if !t.Standin {
		err = n.MoveTo(ctx, t.ChangerEnd, speedFactor(t.ChangerMid2ToEnd)*speed)
		if err != nil {
			return err
		}
		err = n.MoveToSafeZ(ctx)
		if err != nil {
			return err
		}
	}

	m.FireHook("NozzleTip.Loaded", n.hookVars())

	n.tip = t
	switch t.Calibration.Policy {
	case CalibrateOnChange:
		err = t.Calibrate(ctx, n)
		if err != nil {
			return err
		}
	case CalibrateOnChangeInJob:
		// the job calibrates it before use
		t.Calibration.Reset()
	}
	n.head.fireActivity()
	return nil
}

// UnloadNozzleTip returns the loaded tip to the changer.
//
// Without an automatic changer the tip is still marked unloaded, and an
// error asks the operator to swap it by hand.
func (n *Nozzle) UnloadNozzleTip(ctx context.Context) error {
	t := n.tip
	if t == nil {
		return nil
	}
	m := n.machine()
	speed := m.SpeedFactor()

	logger.Logger.Debugw("unload nozzle tip", logger.FieldNozzle, n.name, logger.FieldNozzleTip, t.String())
	if !t.Standin {
		err := n.MoveToAtSafeZ(ctx, t.ChangerEnd, speed)
		if err != nil {
			return err
		}
	}
	err := n.MoveTo(ctx, t.ChangerMid2, speedFactor(t.ChangerMid2ToEnd)*speed)
	if err != nil {
		return err
	}
	if n.ChangerEnabled && !t.Standin {
		err = n.MoveTo(ctx, t.ChangerMid, speedFactor(t.ChangerMidToMid2)*speed)
		if err != nil {
			return err
		}
		err = n.MoveTo(ctx, t.ChangerStart, speedFactor(t.ChangerStartToMid)*speed)
		if err != nil {
			return err
		}
		err = n.MoveToSafeZ(ctx)
		if err != nil {
			return err
		}
	}

	m.FireHook("NozzleTip.Unloaded", n.hookVars())

	n.tip = nil
	n.head.fireActivity()

	if !n.ChangerEnabled {
		return errors.WithHint(errors.New("Manual NozzleTip change required!"),
			"swap the nozzle tip by hand, then retry")
	}

	if st := n.calibrationTip(); st != nil && st.Calibration.Policy == CalibrateOnChange {
		return st.Calibrate(ctx, n)
	}
	return nil
}

// Home refreshes the calibration of every tip calibrated on home: the
// loaded tip is recalibrated, the others are reset.
func (n *Nozzle) Home(ctx context.Context) error {
	for _, t := range n.tips {
		if !t.Calibration.Enabled || t.Calibration.Policy != CalibrateOnHome {
			continue
		}
		if t == n.tip {
			err := t.Calibrate(ctx, n)
			if err != nil {
				return err
			}
			continue
		}
		t.Calibration.Reset()
	}
	return nil
}
