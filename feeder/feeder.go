// Package feeder provides the feeders a job can pick parts from.
package feeder

import (
	"context"
	"sync"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/machine"
)

// DefaultRetryCount is how many times a failed feed is retried.
const DefaultRetryCount = 3

var ErrEmpty = errors.New("feeder empty")

// Config holds the settings every feeder shares.
type Config struct {
	ID      string
	Name    string
	PartID  string
	Enabled bool

	RetryCount      int
	PickRetryCount  int
	AlignRetryCount int

	AutoSkipPick  bool
	AutoSkipAlign bool
}

// Base implements the parts of machine.Feeder that only depend on Config.
type Base struct {
	cfg Config

	mx      sync.Mutex
	enabled bool
}

func NewBase(cfg Config) *Base {
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return &Base{cfg: cfg, enabled: cfg.Enabled}
}

func (b *Base) ID() string     { return b.cfg.ID }
func (b *Base) Name() string   { return b.cfg.Name }
func (b *Base) PartID() string { return b.cfg.PartID }

func (b *Base) Enabled() bool {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.enabled
}

func (b *Base) SetEnabled(v bool) {
	b.mx.Lock()
	b.enabled = v
	b.mx.Unlock()
}

func (b *Base) RetryCount() int      { return b.cfg.RetryCount }
func (b *Base) PickRetryCount() int  { return b.cfg.PickRetryCount }
func (b *Base) AlignRetryCount() int { return b.cfg.AlignRetryCount }
func (b *Base) AutoSkipPick() bool   { return b.cfg.AutoSkipPick }
func (b *Base) AutoSkipAlign() bool  { return b.cfg.AutoSkipAlign }

// PostPick does nothing by default.
func (b *Base) PostPick(ctx context.Context, n *machine.Nozzle) error { return nil }
