// Package sim provides an in-memory machine driver.
package sim

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/machine"
)

// Driver simulates motion and vacuum sensing. Vacuum actuators read
// PartOnLevel while their nozzle holds a part and PartOffLevel otherwise.
type Driver struct {
	PartOnLevel  float64
	PartOffLevel float64

	// MissPick, when set, decides whether a pick leaves the nozzle empty.
	MissPick func(n *machine.Nozzle) bool

	// DropPart, when set, decides whether a nozzle holding a part loses
	// it while moving.
	DropPart func(n *machine.Nozzle) bool

	// ReadFunc, when set, overrides actuator reads.
	ReadFunc func(a *machine.Actuator) (string, error)

	mx        sync.Mutex
	calls     []string
	locations map[string]coord.Location
	actuators map[string]bool
	holding   map[string]bool
}

var _ machine.Driver = &Driver{}

func NewDriver() *Driver {
	return &Driver{
		PartOnLevel:  100,
		PartOffLevel: 10,
		locations:    make(map[string]coord.Location),
		actuators:    make(map[string]bool),
		holding:      make(map[string]bool),
	}
}

func (d *Driver) record(format string, args ...interface{}) {
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// Calls returns a log of every driver call.
func (d *Driver) Calls() []string {
	d.mx.Lock()
	defer d.mx.Unlock()
	res := make([]string, len(d.calls))
	copy(res, d.calls)
	return res
}

// ResetCalls clears the call log.
func (d *Driver) ResetCalls() {
	d.mx.Lock()
	d.calls = nil
	d.mx.Unlock()
}

// ActuatorState returns the last value an actuator was set to.
func (d *Driver) ActuatorState(name string) bool {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.actuators[name]
}

// SetLocation places hm without recording a move.
func (d *Driver) SetLocation(hm machine.HeadMountable, l coord.Location) {
	d.mx.Lock()
	d.locations[hm.ID()] = l
	d.mx.Unlock()
}

func (d *Driver) Home(ctx context.Context) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("Home")
	for id := range d.locations {
		d.locations[id] = coord.Location{}
	}
	return nil
}

func (d *Driver) MoveTo(ctx context.Context, hm machine.HeadMountable, l coord.Location, speed float64) error {
	var drop bool
	n, ok := hm.(*machine.Nozzle)
	if ok && d.DropPart != nil && d.isHolding(n) {
		drop = d.DropPart(n)
	}

	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("MoveTo %s X%g Y%g Z%g R%g", hm.ID(), l.X, l.Y, l.Z, l.Rotation)
	d.locations[hm.ID()] = l
	if drop {
		d.holding[vacuumName(n)] = false
	}
	return nil
}

func (d *Driver) isHolding(n *machine.Nozzle) bool {
	name := vacuumName(n)
	if name == "" {
		return false
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.holding[name]
}

func (d *Driver) Location(hm machine.HeadMountable) coord.Location {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.locations[hm.ID()]
}

func vacuumName(n *machine.Nozzle) string {
	if n.VacuumSense == nil {
		return ""
	}
	return n.VacuumSense.Name()
}

func (d *Driver) Pick(ctx context.Context, n *machine.Nozzle) error {
	miss := d.MissPick != nil && d.MissPick(n)

	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("Pick %s", n.ID())
	if name := vacuumName(n); name != "" {
		d.holding[name] = !miss
	}
	return nil
}

func (d *Driver) Place(ctx context.Context, n *machine.Nozzle) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("Place %s", n.ID())
	if name := vacuumName(n); name != "" {
		d.holding[name] = false
	}
	return nil
}

func (d *Driver) Actuate(ctx context.Context, a *machine.Actuator, on bool) error {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("Actuate %s %t", a.Name(), on)
	d.actuators[a.Name()] = on
	return nil
}

func (d *Driver) ActuatorRead(ctx context.Context, a *machine.Actuator) (string, error) {
	if d.ReadFunc != nil {
		d.mx.Lock()
		d.record("Read %s", a.Name())
		d.mx.Unlock()
		return d.ReadFunc(a)
	}

	d.mx.Lock()
	defer d.mx.Unlock()
	d.record("Read %s", a.Name())
	level := d.PartOffLevel
	if d.holding[a.Name()] {
		level = d.PartOnLevel
	}
	return strconv.FormatFloat(level, 'f', -1, 64), nil
}

// Calibrator reports a fixed runout for every tip.
type Calibrator struct {
	Runout machine.RunoutCompensation
	Err    error
	Count  int
}

func (c *Calibrator) Calibrate(ctx context.Context, n *machine.Nozzle, t *machine.NozzleTip) (machine.RunoutCompensation, error) {
	c.Count++
	return c.Runout, c.Err
}
