package statemachine

import (
	"errors"
	"fmt"

	"github.com/felixgeelhaar/statekit"
)

// ErrInvalidTransition indicates the machine refused a transition.
var ErrInvalidTransition = errors.New("invalid command transition")

// Lifecycle wraps the statekit interpreter for one command.
type Lifecycle struct {
	interp *statekit.Interpreter[*Context]
	ctx    *Context
}

// NewLifecycle creates and starts the lifecycle of a command in the pending
// state.
func NewLifecycle(commandID, tool string) (*Lifecycle, error) {
	machine, err := NewCommandMachine()
	if err != nil {
		return nil, fmt.Errorf("build command machine: %w", err)
	}

	ctx := NewContext(commandID, tool)
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **Context) {
		*c = ctx
	})
	interp.Start()

	return &Lifecycle{interp: interp, ctx: ctx}, nil
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.interp.State().Value)
}

// Done reports whether the command reached a final state.
func (l *Lifecycle) Done() bool {
	return l.interp.Done()
}

// Matches reports whether the lifecycle is in state s.
func (l *Lifecycle) Matches(s State) bool {
	return l.interp.Matches(statekit.StateID(s))
}

// Context returns the machine context.
func (l *Lifecycle) Context() *Context {
	return l.ctx
}

// Start moves a pending command to running.
func (l *Lifecycle) Start() error {
	return l.transition(StateRunning, 0, nil)
}

// Finish records the outcome of a command. A zero exit code without error
// succeeds; anything else fails. A pending command can only fail.
func (l *Lifecycle) Finish(exitCode int, err error) error {
	to := StateFailed
	if exitCode == 0 && err == nil && l.State() == StateRunning {
		to = StateSucceeded
	}
	return l.transition(to, exitCode, err)
}

func (l *Lifecycle) transition(to State, exitCode int, cause error) error {
	from := l.State()
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, from, to)
	}

	l.interp.Send(statekit.Event{
		Type: EventFor(to),
		Payload: TransitionPayload{
			From:     from,
			To:       to,
			ExitCode: exitCode,
			Err:      cause,
		},
	})

	if got := l.State(); got != to {
		return fmt.Errorf("%w: %s to %s rejected, still %s", ErrInvalidTransition, from, to, got)
	}
	return nil
}
