// Package statemachine tracks the lifecycle of constructed commands with
// statekit.
package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// State is a command lifecycle state.
type State string

// Command lifecycle states.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// IsTerminal reports whether no further transition leaves s.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// Transition is one recorded state change.
type Transition struct {
	From State
	To   State
	At   time.Time
}

// Context carries command state through the machine.
type Context struct {
	CommandID string
	Tool      string
	ExitCode  int
	Err       error
	Started   time.Time
	Finished  time.Time
	History   []Transition
}

// NewContext creates a machine context for one command.
func NewContext(commandID, tool string) *Context {
	return &Context{CommandID: commandID, Tool: tool}
}

// Duration returns how long the command ran, zero until it finished.
func (c *Context) Duration() time.Duration {
	if c.Started.IsZero() || c.Finished.IsZero() {
		return 0
	}
	return c.Finished.Sub(c.Started)
}

const (
	statePending   = statekit.StateID(StatePending)
	stateRunning   = statekit.StateID(StateRunning)
	stateSucceeded = statekit.StateID(StateSucceeded)
	stateFailed    = statekit.StateID(StateFailed)
)

// Event types understood by the command machine.
const (
	EventStart   statekit.EventType = "START"
	EventSucceed statekit.EventType = "SUCCEED"
	EventFail    statekit.EventType = "FAIL"
)

// NewCommandMachine creates the command lifecycle statechart:
// pending → running → succeeded | failed, and pending → failed for commands
// that could not be started.
func NewCommandMachine() (*statekit.MachineConfig[*Context], error) {
	return statekit.NewMachine[*Context]("command").
		WithInitial(statePending).
		WithContext(&Context{}).
		WithAction("markStarted", markStarted).
		WithAction("markFinished", markFinished).
		WithAction("recordTransition", recordTransition).
		WithGuard("exitedCleanly", guardExitedCleanly).
		State(statePending).
			On(EventStart).Target(stateRunning).Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateRunning).
			OnEntry("markStarted").
			On(EventSucceed).Target(stateSucceeded).Guard("exitedCleanly").Do("recordTransition").
			On(EventFail).Target(stateFailed).Do("recordTransition").
			Done().
		State(stateSucceeded).
			Final().
			OnEntry("markFinished").
			Done().
		State(stateFailed).
			Final().
			OnEntry("markFinished").
			Done().
		Build()
}

// EventFor returns the event that moves a command to the target state.
func EventFor(to State) statekit.EventType {
	switch to {
	case StateRunning:
		return EventStart
	case StateSucceeded:
		return EventSucceed
	case StateFailed:
		return EventFail
	default:
		return statekit.EventType(to)
	}
}

// allowed lists the transitions the machine accepts.
var allowed = map[State][]State{
	StatePending: {StateRunning, StateFailed},
	StateRunning: {StateSucceeded, StateFailed},
}

// CanTransition reports whether the machine moves from one state to another.
func CanTransition(from, to State) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}
