package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mastercactapus/gpnp/coord"
	"github.com/mastercactapus/gpnp/feeder"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testYAML = `
dataDir: %DIR%
driver:
  type: sim
machine:
  speed: 0.5
  discardLocation: {x: 0, y: 100, z: -1}
  nozzleTips:
    - id: NT1
      packages: ["0603"]
      vacuumLevelPartOn: 50
      vacuumLevelPartOff: 20
      calibration:
        enabled: true
        policy: OnHome
  heads:
    - id: H1
      safeZ: 0
      park: {x: 5, y: 5}
      nozzles:
        - id: N1
          vacuumSense: VAC1
          vacuum: PUMP1
          pickDwell: 20ms
          nozzleTips: [NT1]
          nozzleTip: NT1
          tuning:
            pickPollCount: 4
            readOffset: 0
  feeders:
    - id: F1
      part: R1
      location: {x: 10, y: 10, z: -5}
    - id: T1
      type: tray
      part: R1
      enabled: false
      retryCount: 0
      location: {x: 50, y: 50, z: -5}
      offset: {x: 4, y: 4}
      cols: 2
      rows: 2
parts:
  - id: R1
    package: "0603"
    height: 0.5
processor:
  jobOrder: PartHeight
  configSaveFrequency: 1m
`

func writeConfig(t *testing.T, data string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "gpnp.yaml")
	data = strings.ReplaceAll(data, "%DIR%", dir)
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return dir, path
}

func TestLoad(t *testing.T) {
	t.Setenv("GPNP_SERVER_ADDR", ":8080")
	dir, path := writeConfig(t, testYAML)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File())
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, filepath.Join(dir, "state.yaml"), cfg.StatePath())
	assert.Equal(t, DriverSim, cfg.Driver.Type)
	assert.Equal(t, 115200, cfg.Driver.Baud)

	assert.Equal(t, processor.JobOrderPartHeight, cfg.Processor.JobOrder)
	assert.Equal(t, time.Minute, cfg.Processor.ConfigSaveFrequency)
	assert.True(t, cfg.Processor.AutoSaveJob)

	require.Len(t, cfg.Machine.Heads, 1)
	n := cfg.Machine.Heads[0].Nozzles[0]
	assert.Equal(t, 20*time.Millisecond, n.PickDwell)
	assert.Equal(t, 4, n.Tuning.PickPollCount)
	require.NotNil(t, n.Tuning.ReadOffset)
	assert.Nil(t, n.Tuning.ZThreshold)
	assert.Equal(t, machine.CalibrateOnHome, cfg.Machine.NozzleTips[0].Calibration.Policy)
	assert.Equal(t, &coord.Location{Y: 100, Z: -1}, cfg.Machine.DiscardLocation)

	require.Len(t, cfg.Parts, 1)
	assert.Equal(t, 0.5, cfg.Parts[0].Height)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	cases := map[string]string{
		"driver":  "driver: {type: marlin}\n",
		"order":   "processor: {jobOrder: Random}\n",
		"dupPart": "parts: [{id: R1}, {id: R1}]\n",
		"tip":     "machine: {heads: [{id: H1, nozzles: [{id: N1, nozzleTips: [NT9]}]}]}\n",
		"tray":    "machine: {feeders: [{id: T1, type: tray}]}\n",
		"feeder":  "machine: {feeders: [{id: F1, type: strip}]}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, path := writeConfig(t, data)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestBuild(t *testing.T) {
	_, path := writeConfig(t, testYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	d, closeFn, err := cfg.OpenDriver(context.Background())
	require.NoError(t, err)
	defer closeFn()

	s, err := cfg.Build(d)
	require.NoError(t, err)
	m := s.Machine

	assert.Equal(t, 0.5, m.Speed)
	assert.NotNil(t, m.Calibrator)
	require.Len(t, m.Nozzles(), 1)
	n := m.Nozzles()[0]
	assert.Equal(t, "N1", n.Name())
	assert.Equal(t, "NT1", n.NozzleTip().ID)
	assert.Same(t, m.FindActuator("VAC1"), n.VacuumSense)
	assert.Equal(t, 4, n.Tuning.PickPollCount)
	assert.Equal(t, machine.DefaultTuning.PlacePollCount, n.Tuning.PlacePollCount)
	assert.Equal(t, 0.0, n.Tuning.ReadOffset)
	assert.Equal(t, machine.DefaultTuning.ZThreshold, n.Tuning.ZThreshold)
	assert.Same(t, m.FindActuator("PUMP1"), n.Vacuum)

	require.Len(t, m.Feeders, 2)
	f1 := m.Feeder("F1")
	assert.True(t, f1.Enabled())
	assert.Equal(t, feeder.DefaultRetryCount, f1.RetryCount())
	t1 := m.Feeder("T1")
	assert.IsType(t, &feeder.Tray{}, t1)
	assert.False(t, t1.Enabled())
	assert.Equal(t, 0, t1.RetryCount())

	_, err = s.Parts.Get("R1")
	assert.NoError(t, err)
}

func TestBuild_UnknownFeederPart(t *testing.T) {
	_, path := writeConfig(t, "machine: {feeders: [{id: F1, part: R9}]}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	d, _, err := cfg.OpenDriver(context.Background())
	require.NoError(t, err)

	_, err = cfg.Build(d)
	assert.Error(t, err)
}
