package config

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/mastercactapus/gpnp/logger"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/processor"
	"gopkg.in/yaml.v3"
)

// State is the part of the machine that changes while running jobs.
type State struct {
	Feeders    map[string]FeederState    `yaml:"feeders,omitempty"`
	NozzleTips map[string]NozzleTipState `yaml:"nozzleTips,omitempty"`

	// Nozzles maps nozzle IDs to the loaded nozzle tip ID.
	Nozzles map[string]string `yaml:"nozzles,omitempty"`
}

type FeederState struct {
	Enabled   bool `yaml:"enabled"`
	FeedCount int  `yaml:"feedCount,omitempty"`
}

type NozzleTipState struct {
	Calibrated bool                       `yaml:"calibrated"`
	Runout     machine.RunoutCompensation `yaml:"runout,omitempty"`
}

type feedCounter interface {
	FeedCount() int
	SetFeedCount(int)
}

// StateFile saves and restores machine State as YAML.
type StateFile struct {
	Path string

	m  *machine.Machine
	mx sync.Mutex
}

var _ processor.ConfigSaver = &StateFile{}

// NewStateFile returns a StateFile for m stored at path.
func NewStateFile(path string, m *machine.Machine) *StateFile {
	return &StateFile{Path: path, m: m}
}

func (s *StateFile) tips() []*machine.NozzleTip {
	seen := make(map[*machine.NozzleTip]bool)
	var tips []*machine.NozzleTip
	for _, n := range s.m.Nozzles() {
		for _, t := range n.NozzleTips() {
			if seen[t] {
				continue
			}
			seen[t] = true
			tips = append(tips, t)
		}
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i].ID < tips[j].ID })
	return tips
}

// Snapshot captures the current state of the machine.
func (s *StateFile) Snapshot() State {
	st := State{
		Feeders:    make(map[string]FeederState),
		NozzleTips: make(map[string]NozzleTipState),
		Nozzles:    make(map[string]string),
	}
	for _, f := range s.m.Feeders {
		fs := FeederState{Enabled: f.Enabled()}
		if fc, ok := f.(feedCounter); ok {
			fs.FeedCount = fc.FeedCount()
		}
		st.Feeders[f.ID()] = fs
	}
	for _, t := range s.tips() {
		if !t.Calibration.Enabled {
			continue
		}
		st.NozzleTips[t.ID] = NozzleTipState{
			Calibrated: t.Calibration.IsCalibrated(),
			Runout:     t.Calibration.Runout,
		}
	}
	for _, n := range s.m.Nozzles() {
		if t := n.NozzleTip(); t != nil {
			st.Nozzles[n.ID()] = t.ID
		}
	}
	return st
}

// SaveConfig writes the current state to Path.
func (s *StateFile) SaveConfig() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return errors.Wrap(err, "marshal state")
	}
	err = os.MkdirAll(filepath.Dir(s.Path), 0755)
	if err != nil {
		return errors.Wrap(err, "create state directory")
	}
	tmp := s.Path + ".tmp"
	err = os.WriteFile(tmp, data, 0644)
	if err != nil {
		return errors.Wrapf(err, "write state %s", s.Path)
	}
	err = os.Rename(tmp, s.Path)
	if err != nil {
		return errors.Wrapf(err, "write state %s", s.Path)
	}
	return nil
}

// Restore applies the state saved at Path. A missing file is not an
// error.
func (s *StateFile) Restore() error {
	s.mx.Lock()
	defer s.mx.Unlock()

	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read state %s", s.Path)
	}
	var st State
	err = yaml.Unmarshal(data, &st)
	if err != nil {
		return errors.Wrapf(err, "parse state %s", s.Path)
	}
	s.apply(st)
	return nil
}

func (s *StateFile) apply(st State) {
	log := logger.Named("state")
	for _, f := range s.m.Feeders {
		fs, ok := st.Feeders[f.ID()]
		if !ok {
			continue
		}
		f.SetEnabled(fs.Enabled)
		if fc, ok := f.(feedCounter); ok {
			fc.SetFeedCount(fs.FeedCount)
		}
	}

	tips := make(map[string]*machine.NozzleTip)
	for _, t := range s.tips() {
		tips[t.ID] = t
		ts, ok := st.NozzleTips[t.ID]
		if ok && ts.Calibrated && t.Calibration.Enabled {
			t.Calibration.Set(ts.Runout)
		}
	}

	for _, n := range s.m.Nozzles() {
		id, ok := st.Nozzles[n.ID()]
		if !ok {
			continue
		}
		t, ok := tips[id]
		if !ok {
			log.Warnw("saved nozzle tip is not available", logger.FieldNozzle, n.ID(), logger.FieldNozzleTip, id)
			continue
		}
		n.SetNozzleTip(t)
	}
}
