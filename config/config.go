// Package config loads the gpnp configuration and builds the machine it
// describes.
package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/grbl"
	"github.com/mastercactapus/gpnp/processor"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, like GPNP_SERVER_ADDR.
const EnvPrefix = "GPNP"

// Driver types.
const (
	DriverSim  = "sim"
	DriverGrbl = "grbl"
)

// Feeder types.
const (
	FeederStatic = "static"
	FeederTray   = "tray"
)

type Config struct {
	// DataDir holds jobs and the saved machine state.
	DataDir string `mapstructure:"dataDir"`

	// Scripts is the directory with Events/ hook scripts.
	Scripts string `mapstructure:"scripts"`

	// StateFile defaults to state.yaml in DataDir.
	StateFile string `mapstructure:"stateFile"`

	Server    Server           `mapstructure:"server"`
	Driver    Driver           `mapstructure:"driver"`
	Machine   Machine          `mapstructure:"machine"`
	Parts     []*job.Part      `mapstructure:"parts"`
	Processor processor.Config `mapstructure:"processor"`

	file string
}

type Server struct {
	Addr string `mapstructure:"addr"`
}

type Driver struct {
	Type string `mapstructure:"type"`

	// Port is the serial device, or the port name on the SPJS server.
	Port string `mapstructure:"port"`
	Baud int    `mapstructure:"baud"`

	// SPJS is the websocket URL of a Serial Port JSON Server. When set,
	// Port is opened through it.
	SPJS string `mapstructure:"spjs"`

	Grbl grbl.Config `mapstructure:"grbl"`

	PartOnLevel  float64 `mapstructure:"partOnLevel"`
	PartOffLevel float64 `mapstructure:"partOffLevel"`
}

type Machine struct {
	Speed float64 `mapstructure:"speed"`

	DiscardLocation *coord.Location `mapstructure:"discardLocation"`
	BottomCamera    *coord.Location `mapstructure:"bottomCamera"`

	Heads      []Head      `mapstructure:"heads"`
	NozzleTips []NozzleTip `mapstructure:"nozzleTips"`
	Feeders    []Feeder    `mapstructure:"feeders"`
}

type Head struct {
	ID    string         `mapstructure:"id"`
	Name  string         `mapstructure:"name"`
	SafeZ float64        `mapstructure:"safeZ"`
	Park  coord.Location `mapstructure:"park"`

	Nozzles []Nozzle `mapstructure:"nozzles"`
}

type Nozzle struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`

	// VacuumSense, Vacuum and Down name actuators. Vacuum drives the
	// pump and defaults to VacuumSense.
	VacuumSense string `mapstructure:"vacuumSense"`
	Vacuum      string `mapstructure:"vacuum"`
	Down        string `mapstructure:"down"`

	InvertVacuumLogic bool  `mapstructure:"invertVacuumLogic"`
	LimitRotation     *bool `mapstructure:"limitRotation"`
	ChangerEnabled    bool  `mapstructure:"changerEnabled"`

	PickDwell  time.Duration `mapstructure:"pickDwell"`
	PlaceDwell time.Duration `mapstructure:"placeDwell"`

	// NozzleTips lists the tips the nozzle can load, NozzleTip the one
	// loaded at startup.
	NozzleTips []string `mapstructure:"nozzleTips"`
	NozzleTip  string   `mapstructure:"nozzleTip"`

	Tuning Tuning `mapstructure:"tuning"`
}

// Tuning overrides machine.DefaultTuning for one nozzle. Fields left zero
// or unset keep their defaults.
type Tuning struct {
	PollInterval     time.Duration `mapstructure:"pollInterval"`
	PickPollCount    int           `mapstructure:"pickPollCount"`
	PlacePollCount   int           `mapstructure:"placePollCount"`
	ReadOffset       *float64      `mapstructure:"readOffset"`
	PrePickTolerance float64       `mapstructure:"prePickTolerance"`
	ZThreshold       *float64      `mapstructure:"zThreshold"`
}

type NozzleTip struct {
	ID       string   `mapstructure:"id"`
	Name     string   `mapstructure:"name"`
	Packages []string `mapstructure:"packages"`
	Parts    []string `mapstructure:"parts"`

	VacuumLevelPartOn  float64 `mapstructure:"vacuumLevelPartOn"`
	VacuumLevelPartOff float64 `mapstructure:"vacuumLevelPartOff"`

	PickDwell  time.Duration `mapstructure:"pickDwell"`
	PlaceDwell time.Duration `mapstructure:"placeDwell"`

	Changer Changer `mapstructure:"changer"`
	Standin bool    `mapstructure:"standin"`

	Calibration Calibration `mapstructure:"calibration"`
}

type Changer struct {
	Start coord.Location `mapstructure:"start"`
	Mid   coord.Location `mapstructure:"mid"`
	Mid2  coord.Location `mapstructure:"mid2"`
	End   coord.Location `mapstructure:"end"`

	StartToMid float64 `mapstructure:"startToMid"`
	MidToMid2  float64 `mapstructure:"midToMid2"`
	Mid2ToEnd  float64 `mapstructure:"mid2ToEnd"`
}

type Calibration struct {
	Enabled bool                      `mapstructure:"enabled"`
	Policy  machine.CalibrationPolicy `mapstructure:"policy"`
}

type Feeder struct {
	Type    string `mapstructure:"type"`
	ID      string `mapstructure:"id"`
	Name    string `mapstructure:"name"`
	Part    string `mapstructure:"part"`
	Enabled *bool  `mapstructure:"enabled"`

	// RetryCount defaults to feeder.DefaultRetryCount.
	RetryCount      *int `mapstructure:"retryCount"`
	PickRetryCount  int  `mapstructure:"pickRetryCount"`
	AlignRetryCount int  `mapstructure:"alignRetryCount"`

	AutoSkipPick  bool `mapstructure:"autoSkipPick"`
	AutoSkipAlign bool `mapstructure:"autoSkipAlign"`

	// Location is the pick location of a static feeder, or the first
	// pocket of a tray.
	Location coord.Location `mapstructure:"location"`

	// Offset, Cols and Rows lay out tray pockets.
	Offset coord.Location `mapstructure:"offset"`
	Cols   int            `mapstructure:"cols"`
	Rows   int            `mapstructure:"rows"`
}

// SetDefaults registers every default value on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("dataDir", "./data")
	v.SetDefault("scripts", "")
	v.SetDefault("stateFile", "")

	v.SetDefault("server.addr", ":9091")

	v.SetDefault("driver.type", DriverSim)
	v.SetDefault("driver.port", "/dev/ttyUSB0")
	v.SetDefault("driver.baud", 115200)
	v.SetDefault("driver.spjs", "")
	v.SetDefault("driver.partOnLevel", 100)
	v.SetDefault("driver.partOffLevel", 10)
	v.SetDefault("driver.grbl.feedRate", 6000)

	v.SetDefault("machine.speed", 1)

	def := processor.DefaultConfig()
	v.SetDefault("processor.parkWhenComplete", def.ParkWhenComplete)
	v.SetDefault("processor.autoSaveJob", def.AutoSaveJob)
	v.SetDefault("processor.autoSaveConfiguration", def.AutoSaveConfiguration)
	v.SetDefault("processor.configSaveFrequency", def.ConfigSaveFrequency)
	v.SetDefault("processor.jobOrder", string(def.JobOrder))
	v.SetDefault("processor.planner", def.Planner)
	v.SetDefault("processor.disableAutomatics", def.DisableAutomatics)
	v.SetDefault("processor.autoSkipDisabledFeeders", def.AutoSkipDisabledFeeders)
	v.SetDefault("processor.autoDisableFeeder", def.AutoDisableFeeder)
	v.SetDefault("processor.disableTipChanging", def.DisableTipChanging)
}

// NewViper returns a viper instance with defaults and GPNP_ environment
// overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads the configuration from path. Without a path, gpnp.yaml is
// looked up in the working directory and ~/.gpnp, and defaults are used
// when it doesn't exist.
func Load(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("gpnp")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.gpnp")
	}

	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && (path != "" || !errors.As(err, &notFound)) {
		return nil, errors.Wrap(err, "read config")
	}

	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	err := v.Unmarshal(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	cfg.file = v.ConfigFileUsed()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// File is the configuration file that was read, if any.
func (c *Config) File() string { return c.file }

// StatePath is where machine state is saved.
func (c *Config) StatePath() string {
	if c.StateFile != "" {
		return c.StateFile
	}
	return filepath.Join(c.DataDir, "state.yaml")
}

func (c *Config) Validate() error {
	switch c.Driver.Type {
	case DriverSim, DriverGrbl:
	default:
		return errors.Newf("unknown driver type %q", c.Driver.Type)
	}

	err := c.Processor.Validate()
	if err != nil {
		return errors.Wrap(err, "processor")
	}

	ids := make(map[string]bool)
	unique := func(kind, id string) error {
		if id == "" {
			return errors.Newf("%s without an id", kind)
		}
		if ids[kind+":"+id] {
			return errors.Newf("duplicate %s id %s", kind, id)
		}
		ids[kind+":"+id] = true
		return nil
	}

	for _, p := range c.Parts {
		err = unique("part", p.ID)
		if err != nil {
			return err
		}
	}
	for _, t := range c.Machine.NozzleTips {
		err = unique("nozzle tip", t.ID)
		if err != nil {
			return err
		}
	}
	for _, h := range c.Machine.Heads {
		err = unique("head", h.ID)
		if err != nil {
			return err
		}
		for _, n := range h.Nozzles {
			err = unique("nozzle", n.ID)
			if err != nil {
				return err
			}
			for _, id := range n.NozzleTips {
				if !ids["nozzle tip:"+id] {
					return errors.Newf("nozzle %s: unknown nozzle tip %s", n.ID, id)
				}
			}
		}
	}
	for _, f := range c.Machine.Feeders {
		err = unique("feeder", f.ID)
		if err != nil {
			return err
		}
		switch f.Type {
		case FeederStatic, "":
		case FeederTray:
			if f.Cols <= 0 || f.Rows <= 0 {
				return errors.Newf("feeder %s: tray needs cols and rows", f.ID)
			}
		default:
			return errors.Newf("feeder %s: unknown type %q", f.ID, f.Type)
		}
	}
	return nil
}
