// Package fsm is a small table driven finite state machine.
//
// Transitions are declared as data: for a (state, message) pair the
// machine runs an optional action, moves to the next state and then keeps
// dispatching the optional follow-up message until none is left.
package fsm

import (
	"context"
	"sync"

	"github.com/mastercactapus/gpnp/errors"
)

type State string
type Message string

// ErrInvalidTransition is returned when a message has no transition from
// the current state.
var ErrInvalidTransition = errors.New("invalid transition")

// Action runs before a transition completes. If it fails the state does
// not change.
type Action func(ctx context.Context) error

type Transition struct {
	To     State
	Action Action

	// Follow, if set, is sent as soon as the transition completes.
	Follow Message
}

type key struct {
	s State
	m Message
}

// Machine holds the current state and the transition table.
type Machine struct {
	state State
	table map[key]Transition

	mx        sync.Mutex
	listeners []func(from, to State, msg Message)
}

func New(initial State) *Machine {
	return &Machine{
		state: initial,
		table: make(map[key]Transition),
	}
}

// Add declares the transition taken when msg is received in state from.
func (m *Machine) Add(from State, msg Message, t Transition) {
	m.table[key{from, msg}] = t
}

func (m *Machine) State() State { return m.state }

// Can reports whether msg is accepted in the current state.
func (m *Machine) Can(msg Message) bool {
	_, ok := m.table[key{m.state, msg}]
	return ok
}

// OnTransition registers fn to be called after every completed transition.
func (m *Machine) OnTransition(fn func(from, to State, msg Message)) {
	m.mx.Lock()
	m.listeners = append(m.listeners, fn)
	m.mx.Unlock()
}

func (m *Machine) fire(from, to State, msg Message) {
	m.mx.Lock()
	l := m.listeners
	m.mx.Unlock()
	for _, fn := range l {
		fn(from, to, msg)
	}
}

// Send dispatches msg and any follow-up messages it causes. It stops at
// the first failing action, leaving the machine in the state that action
// was leaving.
func (m *Machine) Send(ctx context.Context, msg Message) error {
	for msg != "" {
		t, ok := m.table[key{m.state, msg}]
		if !ok {
			return errors.Wrapf(ErrInvalidTransition, "%s in state %s", msg, m.state)
		}
		if t.Action != nil {
			err := t.Action(ctx)
			if err != nil {
				return err
			}
		}

		from := m.state
		m.state = t.To
		m.fire(from, t.To, msg)

		msg = t.Follow
	}
	return nil
}

// Reset forces the machine into s without running any action.
func (m *Machine) Reset(s State) {
	m.state = s
}
