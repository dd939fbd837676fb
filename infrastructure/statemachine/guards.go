package statemachine

import (
	"github.com/felixgeelhaar/statekit"
)

// guardExitedCleanly allows success only for a zero exit code without error.
// Guards receive the context by value, which for *Context is the pointer.
func guardExitedCleanly(_ *Context, event statekit.Event) bool {
	payload, ok := event.Payload.(TransitionPayload)
	if !ok {
		return false
	}
	return payload.ExitCode == 0 && payload.Err == nil
}
