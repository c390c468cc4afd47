// Package grbl drives a pick-and-place machine built on a grbl motion
// controller, connected directly over serial or through SPJS.
package grbl

import (
	"context"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/gcode"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
)

// A Controller runs g-code on grbl.
type Controller interface {
	// Send streams the lines of r and returns once all of them ran,
	// along with the response lines that were not acknowledgements or
	// status reports.
	Send(ctx context.Context, r io.Reader) ([]string, error)

	// Status returns the last status report.
	Status() Status

	Close() error
}

// NozzleConfig maps a nozzle onto grbl axes and commands.
type NozzleConfig struct {
	// Z and A are the axis letters for height and rotation. An empty
	// A means the nozzle can't rotate.
	Z string `mapstructure:"z" yaml:"z"`
	A string `mapstructure:"a" yaml:"a"`

	// Offset is the nozzle position relative to the head.
	Offset coord.Location `mapstructure:"offset" yaml:"offset"`

	// Pick and Place are g-code run to switch the nozzle valve.
	Pick  string `mapstructure:"pick" yaml:"pick"`
	Place string `mapstructure:"place" yaml:"place"`
}

// ActuatorConfig holds the g-code controlling an actuator.
type ActuatorConfig struct {
	On  string `mapstructure:"on" yaml:"on"`
	Off string `mapstructure:"off" yaml:"off"`

	// Read is sent to read the actuator. The first response line
	// matching ReadRegex is the value: its first group if it has one,
	// otherwise the whole match.
	Read      string `mapstructure:"read" yaml:"read"`
	ReadRegex string `mapstructure:"readRegex" yaml:"readRegex"`
}

// Config holds the grbl driver settings.
type Config struct {
	// FeedRate is the move feed rate in mm/min at full speed.
	FeedRate float64 `mapstructure:"feedRate" yaml:"feedRate"`

	// Home is sent to home the machine. It defaults to $H.
	Home string `mapstructure:"home" yaml:"home"`

	// Init runs after homing, like G21 G90.
	Init string `mapstructure:"init" yaml:"init"`

	Nozzles   map[string]NozzleConfig   `mapstructure:"nozzles" yaml:"nozzles"`
	Actuators map[string]ActuatorConfig `mapstructure:"actuators" yaml:"actuators"`
}

// Driver implements machine.Driver with g-code.
type Driver struct {
	c   Controller
	cfg Config

	rx map[string]*regexp.Regexp

	mx        sync.Mutex
	locations map[string]coord.Location
}

var _ machine.Driver = &Driver{}

// NewDriver validates cfg and returns a Driver sending to c.
func NewDriver(c Controller, cfg Config) (*Driver, error) {
	if cfg.Home == "" {
		cfg.Home = "$H"
	}
	if cfg.Init == "" {
		cfg.Init = "G21 G90"
	}
	if cfg.FeedRate <= 0 {
		return nil, errors.New("grbl feedRate must be positive")
	}

	d := &Driver{
		c:         c,
		cfg:       cfg,
		rx:        make(map[string]*regexp.Regexp),
		locations: make(map[string]coord.Location),
	}
	for id, n := range cfg.Nozzles {
		if n.Z == "" {
			return nil, errors.Newf("nozzle %s: missing Z axis", id)
		}
		err := validate(n.Pick, n.Place)
		if err != nil {
			return nil, errors.Wrapf(err, "nozzle %s", id)
		}
	}
	for name, a := range cfg.Actuators {
		err := validate(a.On, a.Off, a.Read)
		if err != nil {
			return nil, errors.Wrapf(err, "actuator %s", name)
		}
		if a.Read == "" {
			continue
		}
		if a.ReadRegex == "" {
			return nil, errors.Newf("actuator %s: read needs a readRegex", name)
		}
		d.rx[name], err = regexp.Compile(a.ReadRegex)
		if err != nil {
			return nil, errors.Wrapf(err, "actuator %s: readRegex", name)
		}
	}
	return d, nil
}

// validate checks that each non-empty command parses as g-code.
func validate(cmds ...string) error {
	for _, cmd := range cmds {
		_, err := gcode.Parse(cmd)
		if err != nil {
			return errors.Wrapf(err, "command %q", cmd)
		}
	}
	return nil
}

func (d *Driver) send(ctx context.Context, cmds ...string) ([]string, error) {
	text := strings.Join(cmds, "\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	logger.Logger.Debugw("grbl send", "gcode", text)
	return d.c.Send(ctx, strings.NewReader(text+"\n"))
}

func (d *Driver) sendBlocks(ctx context.Context, blocks ...gcode.Block) error {
	logger.Logger.Debugw("grbl send", "blocks", blocks)
	_, err := d.c.Send(ctx, gcode.NewBuffer(&gcode.BlocksReader{Blocks: blocks}))
	return err
}

func (d *Driver) Home(ctx context.Context) error {
	_, err := d.send(ctx, d.cfg.Home, d.cfg.Init)
	if err != nil {
		return err
	}

	d.mx.Lock()
	for id := range d.cfg.Nozzles {
		d.locations[id] = coord.Location{}
	}
	d.mx.Unlock()
	return nil
}

func (d *Driver) nozzle(hm machine.HeadMountable) (NozzleConfig, error) {
	n, ok := d.cfg.Nozzles[hm.ID()]
	if !ok {
		return n, errors.Newf("no grbl axes configured for %s", hm.ID())
	}
	return n, nil
}

// MoveTo sends a G0 for the axes that changed. Every axis is sent for
// the first move of hm.
func (d *Driver) MoveTo(ctx context.Context, hm machine.HeadMountable, l coord.Location, speed float64) error {
	n, err := d.nozzle(hm)
	if err != nil {
		return err
	}

	d.mx.Lock()
	cur, known := d.locations[hm.ID()]
	d.mx.Unlock()

	b := gcode.Block{{W: 'G', Arg: 0}}
	if !known || l.X != cur.X {
		b = append(b, gcode.Word{W: 'X', Arg: l.X - n.Offset.X})
	}
	if !known || l.Y != cur.Y {
		b = append(b, gcode.Word{W: 'Y', Arg: l.Y - n.Offset.Y})
	}
	if !known || l.Z != cur.Z {
		b = append(b, gcode.Word{W: n.Z[0], Arg: l.Z - n.Offset.Z})
	}
	if n.A != "" && (!known || l.Rotation != cur.Rotation) {
		b = append(b, gcode.Word{W: n.A[0], Arg: l.Rotation})
	}
	if len(b) == 1 {
		return nil
	}
	b = append(b, gcode.Word{W: 'F', Arg: d.cfg.FeedRate * speed})
	err = b.Validate()
	if err != nil {
		return err
	}

	err = d.sendBlocks(ctx, b)
	if err != nil {
		return err
	}

	d.mx.Lock()
	d.locations[hm.ID()] = l
	d.mx.Unlock()
	return nil
}

func (d *Driver) Location(hm machine.HeadMountable) coord.Location {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.locations[hm.ID()]
}

func (d *Driver) Pick(ctx context.Context, n *machine.Nozzle) error {
	cfg, err := d.nozzle(n)
	if err != nil {
		return err
	}
	_, err = d.send(ctx, cfg.Pick)
	return err
}

func (d *Driver) Place(ctx context.Context, n *machine.Nozzle) error {
	cfg, err := d.nozzle(n)
	if err != nil {
		return err
	}
	_, err = d.send(ctx, cfg.Place)
	return err
}

func (d *Driver) actuator(a *machine.Actuator) (ActuatorConfig, error) {
	cfg, ok := d.cfg.Actuators[a.Name()]
	if !ok {
		return cfg, errors.Newf("no grbl commands configured for actuator %s", a.Name())
	}
	return cfg, nil
}

func (d *Driver) Actuate(ctx context.Context, a *machine.Actuator, on bool) error {
	cfg, err := d.actuator(a)
	if err != nil {
		return err
	}
	cmd := cfg.Off
	if on {
		cmd = cfg.On
	}
	_, err = d.send(ctx, cmd)
	return err
}

func (d *Driver) ActuatorRead(ctx context.Context, a *machine.Actuator) (string, error) {
	cfg, err := d.actuator(a)
	if err != nil {
		return "", err
	}
	rx := d.rx[a.Name()]
	if rx == nil {
		return "", errors.Newf("actuator %s can't be read", a.Name())
	}

	resp, err := d.send(ctx, cfg.Read)
	if err != nil {
		return "", err
	}
	for _, line := range resp {
		m := rx.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		if len(m) > 1 {
			return m[1], nil
		}
		return m[0], nil
	}
	return "", errors.Newf("actuator %s: no response matched %s", a.Name(), rx)
}
