package statemachine

import (
	"time"

	"github.com/felixgeelhaar/statekit"
)

// TransitionPayload carries the outcome with a transition event.
type TransitionPayload struct {
	From     State
	To       State
	ExitCode int
	Err      error
}

// In statekit, actions receive a pointer to the context. Since our context is
// *Context, actions receive **Context.

func markStarted(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Started = time.Now()
}

func markFinished(ctx **Context, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).Finished = time.Now()
}

// recordTransition appends the transition to the history and stores the
// outcome carried by the event.
func recordTransition(ctx **Context, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return
	}
	c.History = append(c.History, Transition{From: payload.From, To: payload.To, At: time.Now()})
	if payload.To.IsTerminal() {
		c.ExitCode = payload.ExitCode
		c.Err = payload.Err
	}
}
