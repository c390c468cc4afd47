package main

import (
	"context"
	"testing"

	"github.com/mastercactapus/gpnp/job"
	"github.com/mastercactapus/gpnp/machine"
	"github.com/mastercactapus/gpnp/machine/sim"
	"github.com/mastercactapus/gpnp/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseJob(t *testing.T, data string) *job.Job {
	t.Helper()
	j, err := job.Parse([]byte(data))
	require.NoError(t, err)
	return j
}

func TestRunJob(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, runJob(ctx, a.p, parseJob(t, testJob), false))
	assert.Equal(t, 1, a.p.Stats().PartsPlaced)
	assert.Equal(t, processor.StateUninitialized, a.p.State())
}

func TestRunJob_PreFlightError(t *testing.T) {
	a := newTestApp(t)
	j := parseJob(t, testJob)
	j.Boards[0].Board.Placements[0].PartID = "R9"

	err := runJob(context.Background(), a.p, j, true)
	require.Error(t, err)
	assert.Equal(t, processor.StateUninitialized, a.p.State())
}

func TestRunJob_AutoSkip(t *testing.T) {
	a := newTestApp(t)
	a.Machine().Driver.(*sim.Driver).MissPick = func(*machine.Nozzle) bool { return true }

	err := runJob(context.Background(), a.p, parseJob(t, testJob), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 Parts skipped")
	assert.Equal(t, 1, a.p.Stats().PartsSkipped)
	assert.Equal(t, processor.StateUninitialized, a.p.State())
}
