package fsm

import (
	"context"
	"testing"

	"github.com/mastercactapus/gpnp/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	idle    State = "idle"
	running State = "running"
	done    State = "done"

	start  Message = "start"
	finish Message = "finish"
	reset  Message = "reset"
)

func TestMachine_Send(t *testing.T) {
	ctx := context.Background()
	var ran []string
	m := New(idle)
	m.Add(idle, start, Transition{To: running, Action: func(context.Context) error { ran = append(ran, "start"); return nil }})
	m.Add(running, finish, Transition{To: done, Follow: reset})
	m.Add(done, reset, Transition{To: idle, Action: func(context.Context) error { ran = append(ran, "reset"); return nil }})

	var path []State
	m.OnTransition(func(from, to State, msg Message) { path = append(path, to) })

	assert.True(t, m.Can(start))
	assert.False(t, m.Can(finish))

	require.NoError(t, m.Send(ctx, start))
	assert.Equal(t, running, m.State())

	require.NoError(t, m.Send(ctx, finish))
	assert.Equal(t, idle, m.State())

	assert.Equal(t, []string{"start", "reset"}, ran)
	assert.Equal(t, []State{running, done, idle}, path)
}

func TestMachine_Send_Invalid(t *testing.T) {
	ctx := context.Background()
	m := New(idle)
	err := m.Send(ctx, finish)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Contains(t, err.Error(), "finish in state idle")
}

func TestMachine_Send_ActionError(t *testing.T) {
	ctx := context.Background()
	fail := errors.New("boom")
	m := New(idle)
	m.Add(idle, start, Transition{To: running, Action: func(context.Context) error { return fail }})

	assert.Equal(t, fail, m.Send(ctx, start))
	assert.Equal(t, idle, m.State())
}

func TestMachine_Send_FollowError(t *testing.T) {
	ctx := context.Background()
	fail := errors.New("boom")
	m := New(idle)
	m.Add(idle, start, Transition{To: running, Follow: finish})
	m.Add(running, finish, Transition{To: done, Action: func(context.Context) error { return fail }})

	assert.Equal(t, fail, m.Send(ctx, start))
	assert.Equal(t, running, m.State())

	m.Reset(idle)
	assert.Equal(t, idle, m.State())
}
