// Package machine models a pick-and-place machine: heads, nozzles, nozzle
// tips, actuators and feeders, driven through a Driver.
package machine

import (
	"context"
	"sync"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
)

// Machine is the root of the machine model.
type Machine struct {
	Driver Driver

	Heads   []*Head
	Feeders []Feeder

	// BottomCamera is the up looking camera used for part alignment.
	BottomCamera *Camera

	// DiscardLocation is where unwanted parts are dropped. Without one,
	// discarded parts are only forgotten.
	DiscardLocation *coord.Location

	// Speed scales every move. Zero means full speed.
	Speed float64

	Hooks      Hooks
	Calibrator NozzleTipCalibrator

	// Sleep is used for dwell and polling delays.
	Sleep func(time.Duration)

	actuators map[string]*Actuator

	mx        sync.Mutex
	listeners []func(*Head)
}

func NewMachine(d Driver) *Machine {
	return &Machine{
		Driver:    d,
		Speed:     1,
		Sleep:     time.Sleep,
		actuators: make(map[string]*Actuator),
	}
}

// AddHead attaches h to m.
func (m *Machine) AddHead(h *Head) {
	h.machine = m
	m.Heads = append(m.Heads, h)
}

func (m *Machine) AddFeeder(f Feeder) {
	m.Feeders = append(m.Feeders, f)
}

// Actuator returns the named actuator, creating it on first use.
func (m *Machine) Actuator(name string) *Actuator {
	if name == "" {
		return nil
	}
	a := m.actuators[name]
	if a == nil {
		a = NewActuator(name, m.Driver)
		m.actuators[name] = a
	}
	return a
}

// FindActuator returns the named actuator or nil if it was never created.
func (m *Machine) FindActuator(name string) *Actuator {
	return m.actuators[name]
}

// Nozzles returns every nozzle of every head, in head order.
func (m *Machine) Nozzles() []*Nozzle {
	var res []*Nozzle
	for _, h := range m.Heads {
		res = append(res, h.Nozzles...)
	}
	return res
}

// Feeder returns the feeder with the given ID.
func (m *Machine) Feeder(id string) Feeder {
	for _, f := range m.Feeders {
		if f.ID() == id {
			return f
		}
	}
	return nil
}

// SpeedFactor is Speed limited to (0,1].
func (m *Machine) SpeedFactor() float64 {
	if m.Speed <= 0 || m.Speed > 1 {
		return 1
	}
	return m.Speed
}

func (m *Machine) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if m.Sleep == nil {
		time.Sleep(d)
		return
	}
	m.Sleep(d)
}

// Home homes the driver, then lets every nozzle refresh its calibration.
func (m *Machine) Home(ctx context.Context) error {
	err := m.Driver.Home(ctx)
	if err != nil {
		return errors.Wrap(err, "home")
	}
	for _, n := range m.Nozzles() {
		err = n.Home(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// OnHeadActivity registers fn to be called after a head moves or changes
// what it holds.
func (m *Machine) OnHeadActivity(fn func(*Head)) {
	m.mx.Lock()
	m.listeners = append(m.listeners, fn)
	m.mx.Unlock()
}

func (m *Machine) fireHeadActivity(h *Head) {
	m.mx.Lock()
	l := m.listeners
	m.mx.Unlock()
	for _, fn := range l {
		fn(h)
	}
}

// FireHook runs the named hook. Failures are logged and never returned.
func (m *Machine) FireHook(event string, vars map[string]interface{}) {
	if m.Hooks == nil {
		return
	}
	err := m.Hooks.On(event, vars)
	if err != nil {
		logger.Logger.Warnw("hook failed", logger.FieldEvent, event, logger.FieldError, err)
	}
}
