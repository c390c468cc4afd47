package config

import (
	"context"
	"time"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/grbl"
	"github.com/mastercactapus/gpnp/machine/sim"
	"github.com/mastercactapus/gpnp/spjs"
	"github.com/tarm/serial"
)

// StatusInterval is how often a serial grbl is asked for its status.
const StatusInterval = 500 * time.Millisecond

// OpenDriver connects to the machine controller. The returned func
// releases the connection.
func (c *Config) OpenDriver(ctx context.Context) (machine.Driver, func() error, error) {
	switch c.Driver.Type {
	case DriverSim:
		d := sim.NewDriver()
		d.PartOnLevel = c.Driver.PartOnLevel
		d.PartOffLevel = c.Driver.PartOffLevel
		return d, func() error { return nil }, nil
	case DriverGrbl:
	default:
		return nil, nil, errors.Newf("unknown driver type %q", c.Driver.Type)
	}

	var ctrl grbl.Controller
	if c.Driver.SPJS != "" {
		logger.Logger.Infow("connecting to SPJS", logger.FieldAddress, c.Driver.SPJS, logger.FieldPort, c.Driver.Port)
		ctrl = grbl.NewSPJSConn(spjs.NewClient(c.Driver.SPJS), c.Driver.Port, c.Driver.Baud)
	} else {
		logger.Logger.Infow("opening serial port", logger.FieldPort, c.Driver.Port, "baud", c.Driver.Baud)
		port, err := serial.OpenPort(&serial.Config{Name: c.Driver.Port, Baud: c.Driver.Baud})
		if err != nil {
			return nil, nil, errors.WithHintf(
				errors.Wrapf(err, "open serial port %s", c.Driver.Port),
				"check driver.port and driver.baud in %s", c.configName(),
			)
		}
		conn := grbl.NewConn(port)
		go conn.PollStatus(ctx, StatusInterval)
		ctrl = conn
	}

	d, err := grbl.NewDriver(ctrl, c.Driver.Grbl)
	if err != nil {
		ctrl.Close()
		return nil, nil, errors.Wrap(err, "grbl driver")
	}
	return d, ctrl.Close, nil
}

func (c *Config) configName() string {
	if c.file == "" {
		return "the configuration"
	}
	return c.file
}
