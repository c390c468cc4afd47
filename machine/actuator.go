package machine

import (
	"context"
	"strconv"
	"strings"

	"github.com/mastercactapus/gpnp/errors"
)

// Actuator is a named binary output and/or sensor input.
type Actuator struct {
	name   string
	driver Driver
}

func NewActuator(name string, d Driver) *Actuator {
	return &Actuator{name: name, driver: d}
}

func (a *Actuator) Name() string { return a.name }

func (a *Actuator) Actuate(ctx context.Context, on bool) error {
	return errors.Wrapf(a.driver.Actuate(ctx, a, on), "actuate %s", a.name)
}

func (a *Actuator) Read(ctx context.Context) (string, error) {
	s, err := a.driver.ActuatorRead(ctx, a)
	if err != nil {
		return "", errors.Wrapf(err, "read %s", a.name)
	}
	return s, nil
}

// ReadFloat reads a numeric sensor value.
func (a *Actuator) ReadFloat(ctx context.Context) (float64, error) {
	s, err := a.Read(ctx)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, errors.Wrapf(err, "read %s", a.name)
	}
	return v, nil
}
