package processor

import (
	"time"

	"github.com/mastercactapus/gpnp/errors"
)

// JobOrder decides the order pending placements are handed to the
// planner.
type JobOrder string

const (
	JobOrderPart       JobOrder = "Part"
	JobOrderPartHeight JobOrder = "PartHeight"
)

// Config holds the job processor settings.
type Config struct {
	ParkWhenComplete bool `mapstructure:"parkWhenComplete" yaml:"parkWhenComplete"`

	AutoSaveJob           bool          `mapstructure:"autoSaveJob" yaml:"autoSaveJob"`
	AutoSaveConfiguration bool          `mapstructure:"autoSaveConfiguration" yaml:"autoSaveConfiguration"`
	ConfigSaveFrequency   time.Duration `mapstructure:"configSaveFrequency" yaml:"configSaveFrequency"`

	JobOrder JobOrder `mapstructure:"jobOrder" yaml:"jobOrder"`
	Planner  string   `mapstructure:"planner" yaml:"planner"`

	// DisableAutomatics turns off every automatic skip and feeder disable.
	DisableAutomatics bool `mapstructure:"disableAutomatics" yaml:"disableAutomatics"`

	// AutoSkipDisabledFeeders skips placements whose feeders are all
	// disabled instead of stopping.
	AutoSkipDisabledFeeders bool `mapstructure:"autoSkipDisabledFeeders" yaml:"autoSkipDisabledFeeders"`

	// AutoDisableFeeder disables a feeder whose pick or alignment failed
	// with auto skip enabled.
	AutoDisableFeeder bool `mapstructure:"autoDisableFeeder" yaml:"autoDisableFeeder"`

	DisableTipChanging bool `mapstructure:"disableTipChanging" yaml:"disableTipChanging"`
}

func DefaultConfig() Config {
	return Config{
		AutoSaveJob:           true,
		AutoSaveConfiguration: true,
		ConfigSaveFrequency:   10 * time.Minute,
		JobOrder:              JobOrderPartHeight,
		Planner:               "Simple",
	}
}

func (c Config) Validate() error {
	switch c.JobOrder {
	case JobOrderPart, JobOrderPartHeight:
	default:
		return errors.Newf("invalid job order %q", c.JobOrder)
	}
	if c.ConfigSaveFrequency < 0 {
		return errors.New("configSaveFrequency must not be negative")
	}
	return nil
}
