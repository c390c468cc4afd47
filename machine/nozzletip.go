package machine

import (
	"context"
	"math"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/logger"
)

// CalibrationPolicy decides when a nozzle tip is recalibrated.
type CalibrationPolicy string

const (
	CalibrateManual        CalibrationPolicy = "Manual"
	CalibrateOnHome        CalibrationPolicy = "OnHome"
	CalibrateOnChange      CalibrationPolicy = "OnChange"
	CalibrateOnChangeInJob CalibrationPolicy = "OnChangeInJob"
)

// RunoutCompensation models tip eccentricity as a circle: at rotation r
// the tip sits at Center + Radius*(cos(r+Phase), sin(r+Phase)).
type RunoutCompensation struct {
	CenterX float64 `yaml:"centerX"`
	CenterY float64 `yaml:"centerY"`
	Radius  float64 `yaml:"radius"`
	Phase   float64 `yaml:"phase"`
}

// Offset returns the XY offset at the given rotation.
func (rc RunoutCompensation) Offset(rotation float64) coord.Location {
	rad := (rotation + rc.Phase) * math.Pi / 180
	sin, cos := math.Sincos(rad)
	return coord.Location{
		X: rc.CenterX + rc.Radius*cos,
		Y: rc.CenterY + rc.Radius*sin,
	}
}

// Calibration is the runout calibration state of a nozzle tip.
type Calibration struct {
	Enabled bool
	Policy  CalibrationPolicy
	Runout  RunoutCompensation

	calibrated bool
}

// IsCalibrated is true for tips without calibration enabled.
func (c *Calibration) IsCalibrated() bool {
	return !c.Enabled || c.calibrated
}

func (c *Calibration) Reset() {
	c.calibrated = false
	c.Runout = RunoutCompensation{}
}

// Set stores a measured runout.
func (c *Calibration) Set(rc RunoutCompensation) {
	c.Runout = rc
	c.calibrated = true
}

func (c *Calibration) offset(rotation float64) (coord.Location, bool) {
	if !c.Enabled || !c.calibrated {
		return coord.Location{}, false
	}
	return c.Runout.Offset(rotation), true
}

// NozzleTip is an interchangeable nozzle end.
type NozzleTip struct {
	ID   string
	Name string

	// Packages and Parts list what the tip can handle.
	Packages []string
	Parts    []string

	VacuumLevelPartOn  float64
	VacuumLevelPartOff float64

	PickDwell  time.Duration
	PlaceDwell time.Duration

	ChangerStart      coord.Location
	ChangerMid        coord.Location
	ChangerMid2       coord.Location
	ChangerEnd        coord.Location
	ChangerStartToMid float64
	ChangerMidToMid2  float64
	ChangerMid2ToEnd  float64

	// Standin marks the pseudo tip that represents a bare nozzle.
	Standin bool

	Calibration Calibration
}

// CanHandle reports whether the tip can pick part.
func (t *NozzleTip) CanHandle(part *job.Part) bool {
	if t == nil || part == nil || t.Standin {
		return false
	}
	for _, id := range t.Parts {
		if id == part.ID {
			return true
		}
	}
	for _, id := range t.Packages {
		if id == part.PackageID {
			return true
		}
	}
	return false
}

func (t *NozzleTip) String() string {
	if t == nil {
		return "<none>"
	}
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

// Calibrate measures the runout of t while mounted on n.
func (t *NozzleTip) Calibrate(ctx context.Context, n *Nozzle) error {
	if !t.Calibration.Enabled {
		return nil
	}
	m := n.head.machine
	if m.Calibrator == nil {
		return errors.Newf("no calibrator configured to calibrate nozzle tip %s", t)
	}
	logger.Logger.Debugw("calibrating nozzle tip", logger.FieldNozzle, n.Name(), logger.FieldNozzleTip, t.String())
	rc, err := m.Calibrator.Calibrate(ctx, n, t)
	if err != nil {
		return errors.Wrapf(err, "calibrate nozzle tip %s", t)
	}
	t.Calibration.Set(rc)
	return nil
}

func speedFactor(v float64) float64 {
	if v <= 0 || v > 1 {
		return 1
	}
	return v
}
