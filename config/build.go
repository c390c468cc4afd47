package config

import (
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/feeder"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/sim"
	"github.com/mastercactapus/gpnp/script"
)

// Setup is a machine built from a Config.
type Setup struct {
	Machine *machine.Machine
	Parts   job.PartLibrary
	State   *StateFile
}

// Build creates the machine described by c on top of d and restores any
// saved state.
func (c *Config) Build(d machine.Driver) (*Setup, error) {
	m := machine.NewMachine(d)
	if c.Machine.Speed > 0 {
		m.Speed = c.Machine.Speed
	}
	m.DiscardLocation = c.Machine.DiscardLocation
	if c.Machine.BottomCamera != nil {
		m.BottomCamera = &machine.Camera{Name: "Bottom", Location: *c.Machine.BottomCamera}
	}
	if c.Scripts != "" {
		m.Hooks = script.NewRunner(c.Scripts)
	}
	if c.Driver.Type == DriverSim {
		m.Calibrator = &sim.Calibrator{}
	}

	tips := make(map[string]*machine.NozzleTip, len(c.Machine.NozzleTips))
	for _, tc := range c.Machine.NozzleTips {
		tips[tc.ID] = tc.build()
	}

	for _, hc := range c.Machine.Heads {
		h := &machine.Head{ID: hc.ID, Name: hc.Name, SafeZ: hc.SafeZ, ParkLocation: hc.Park}
		if h.Name == "" {
			h.Name = h.ID
		}
		m.AddHead(h)
		for _, nc := range hc.Nozzles {
			n, err := nc.build(m, tips)
			if err != nil {
				return nil, err
			}
			h.AddNozzle(n)
		}
	}

	parts := job.NewPartLibrary(c.Parts)
	for _, fc := range c.Machine.Feeders {
		if fc.Part != "" {
			_, err := parts.Get(fc.Part)
			if err != nil {
				return nil, errors.Wrapf(err, "feeder %s", fc.ID)
			}
		}
		m.AddFeeder(fc.build())
	}

	st := NewStateFile(c.StatePath(), m)
	err := st.Restore()
	if err != nil {
		return nil, err
	}

	logger.Logger.Infow("machine configured",
		"heads", len(m.Heads),
		"nozzles", len(m.Nozzles()),
		"feeders", len(m.Feeders),
		"parts", len(parts),
	)
	return &Setup{Machine: m, Parts: parts, State: st}, nil
}

func (tc NozzleTip) build() *machine.NozzleTip {
	t := &machine.NozzleTip{
		ID:                 tc.ID,
		Name:               tc.Name,
		Packages:           tc.Packages,
		Parts:              tc.Parts,
		VacuumLevelPartOn:  tc.VacuumLevelPartOn,
		VacuumLevelPartOff: tc.VacuumLevelPartOff,
		PickDwell:          tc.PickDwell,
		PlaceDwell:         tc.PlaceDwell,
		ChangerStart:       tc.Changer.Start,
		ChangerMid:         tc.Changer.Mid,
		ChangerMid2:        tc.Changer.Mid2,
		ChangerEnd:         tc.Changer.End,
		ChangerStartToMid:  tc.Changer.StartToMid,
		ChangerMidToMid2:   tc.Changer.MidToMid2,
		ChangerMid2ToEnd:   tc.Changer.Mid2ToEnd,
		Standin:            tc.Standin,
	}
	if t.Name == "" {
		t.Name = t.ID
	}
	t.Calibration.Enabled = tc.Calibration.Enabled
	t.Calibration.Policy = tc.Calibration.Policy
	if t.Calibration.Policy == "" {
		t.Calibration.Policy = machine.CalibrateManual
	}
	return t
}

func (nc Nozzle) build(m *machine.Machine, tips map[string]*machine.NozzleTip) (*machine.Nozzle, error) {
	name := nc.Name
	if name == "" {
		name = nc.ID
	}
	n := machine.NewNozzle(nc.ID, name)
	if nc.VacuumSense != "" {
		n.VacuumSense = m.Actuator(nc.VacuumSense)
	}
	if nc.Vacuum != "" {
		n.Vacuum = m.Actuator(nc.Vacuum)
	}
	if nc.Down != "" {
		n.Down = m.Actuator(nc.Down)
	}
	n.InvertVacuumLogic = nc.InvertVacuumLogic
	if nc.LimitRotation != nil {
		n.LimitRotation = *nc.LimitRotation
	}
	n.ChangerEnabled = nc.ChangerEnabled
	n.PickDwell = nc.PickDwell
	n.PlaceDwell = nc.PlaceDwell
	n.Tuning = nc.Tuning.merge(machine.DefaultTuning)

	for _, id := range nc.NozzleTips {
		t, ok := tips[id]
		if !ok {
			return nil, errors.Newf("nozzle %s: unknown nozzle tip %s", nc.ID, id)
		}
		n.AttachNozzleTip(t)
	}
	if nc.NozzleTip != "" {
		t, ok := tips[nc.NozzleTip]
		if !ok {
			return nil, errors.Newf("nozzle %s: unknown nozzle tip %s", nc.ID, nc.NozzleTip)
		}
		n.SetNozzleTip(t)
	}
	return n, nil
}

func (t Tuning) merge(def machine.Tuning) machine.Tuning {
	if t.PollInterval > 0 {
		def.PollInterval = t.PollInterval
	}
	if t.PickPollCount > 0 {
		def.PickPollCount = t.PickPollCount
	}
	if t.PlacePollCount > 0 {
		def.PlacePollCount = t.PlacePollCount
	}
	if t.ReadOffset != nil {
		def.ReadOffset = *t.ReadOffset
	}
	if t.PrePickTolerance > 0 {
		def.PrePickTolerance = t.PrePickTolerance
	}
	if t.ZThreshold != nil {
		def.ZThreshold = *t.ZThreshold
	}
	return def
}

func (fc Feeder) build() machine.Feeder {
	cfg := feeder.Config{
		ID:              fc.ID,
		Name:            fc.Name,
		PartID:          fc.Part,
		Enabled:         fc.Enabled == nil || *fc.Enabled,
		RetryCount:      feeder.DefaultRetryCount,
		PickRetryCount:  fc.PickRetryCount,
		AlignRetryCount: fc.AlignRetryCount,
		AutoSkipPick:    fc.AutoSkipPick,
		AutoSkipAlign:   fc.AutoSkipAlign,
	}
	if fc.RetryCount != nil {
		cfg.RetryCount = *fc.RetryCount
	}

	if fc.Type == FeederTray {
		return feeder.NewTray(cfg, fc.Location, fc.Offset, fc.Cols, fc.Rows)
	}
	return feeder.NewStatic(cfg, fc.Location)
}
