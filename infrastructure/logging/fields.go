package logging

import (
	"time"

	"github.com/felixgeelhaar/bolt/v3"
)

// Field is a function that applies structured data to a log event.
type Field func(*bolt.Event) *bolt.Event

// ToolName adds the resolved tool name.
func ToolName(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("tool", name)
	}
}

// Binary adds the path the binary was invoked as.
func Binary(path string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("binary", path)
	}
}

// ExitCode adds a tool or process exit code.
func ExitCode(code int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int("exit_code", code)
	}
}

// CommandID adds the id of a constructed command.
func CommandID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("command_id", id)
	}
}

// CommandKind adds whether a command ran in-process or was spawned.
func CommandKind(kind string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("kind", kind)
	}
}

// SessionID adds the id of the current session.
func SessionID(id string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("session_id", id)
	}
}

// Lane adds the name of the lane a task ran on.
func Lane(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("lane", name)
	}
}

// Duration adds a duration field in milliseconds.
func Duration(d time.Duration) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int64("duration_ms", d.Milliseconds())
	}
}

// Count adds an integer field with a custom key.
func Count(key string, n int) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Int(key, n)
	}
}

// ErrorField adds an error field.
func ErrorField(err error) Field {
	return func(e *bolt.Event) *bolt.Event {
		if err == nil {
			return e
		}
		return e.Err(err)
	}
}

// Component adds a component field for categorization.
func Component(name string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("component", name)
	}
}

// Operation adds an operation field.
func Operation(op string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str("operation", op)
	}
}

// Str adds a string field with custom key.
func Str(key, value string) Field {
	return func(e *bolt.Event) *bolt.Event {
		return e.Str(key, value)
	}
}
