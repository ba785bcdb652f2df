// Package session models the per-connection lifecycle. The machine is an
// explicit value owned by one connection worker; other components reach the
// connection through the registry by id, never through shared mutable state.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/mindcare/realtime/pkg/model"
)

type State int

const (
	Connecting State = iota
	Authenticating
	Active
	Closing
	Closed
	Rejected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticating:
		return "authenticating"
	case Active:
		return "active"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var transitions = map[State][]State{
	Connecting:     {Authenticating},
	Authenticating: {Active, Rejected},
	Active:         {Closing},
	Closing:        {Closed},
}

// Machine guards lifecycle transitions. Invalid transitions are programming
// errors surfaced as returned errors, never silent state corruption.
type Machine struct {
	mu     sync.Mutex
	state  State
	reason model.CloseReason
}

func NewMachine() *Machine {
	return &Machine{state: Connecting}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) to(next State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("session: illegal transition %s -> %s", m.state, next)
}

func (m *Machine) BeginAuth() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to(Authenticating)
}

func (m *Machine) Activate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to(Active)
}

// Reject is reachable only from Authenticating; the transport is closed
// before any room interaction occurred.
func (m *Machine) Reject() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to(Rejected)
}

// BeginClose moves Active -> Closing exactly once and records the reason.
// It reports whether this call won the transition, so release of room
// subscriptions happens exactly once.
func (m *Machine) BeginClose(reason model.CloseReason) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.to(Closing) != nil {
		return false
	}
	m.reason = reason
	return true
}

func (m *Machine) Finish() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.to(Closed)
}

func (m *Machine) CloseReason() model.CloseReason {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reason
}

// Beats tracks heartbeat liveness: a connection must show life within each
// interval, and two consecutive missed intervals are fatal.
type Beats struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	missed   int
}

func NewBeats(interval time.Duration, now time.Time) *Beats {
	return &Beats{interval: interval, last: now}
}

func (b *Beats) Interval() time.Duration { return b.interval }

// Observe records a heartbeat frame (or transport pong).
func (b *Beats) Observe(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = now
	b.missed = 0
}

// Tick is called once per interval; it reports whether the connection has
// missed two consecutive intervals and must be closed.
func (b *Beats) Tick(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Sub(b.last) < b.interval {
		b.missed = 0
		return false
	}
	b.missed++
	return b.missed >= 2
}

func (b *Beats) Deadline(now time.Time) time.Time {
	return now.Add(2 * b.interval)
}
