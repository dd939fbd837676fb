package driver

import "errors"

// NotCallable is returned by ToolContext.CallToolMain when the context has no
// entry function. It mirrors the "could not execute" result of a process
// spawn and must never be used as a real exit status by an embedded tool.
const NotCallable = -1

// Domain errors for tool registration and resolution.
var (
	// ErrEmptyName indicates a registry entry was created with an empty name.
	ErrEmptyName = errors.New("tool name cannot be empty")

	// ErrNoMain indicates a registry entry was created without an entry function.
	ErrNoMain = errors.New("tool has no entry function")

	// ErrToolNotFound indicates no registered tool matched the requested name.
	ErrToolNotFound = errors.New("tool not found")

	// ErrNoRegistry indicates a context was asked to resolve a tool without a registry.
	ErrNoRegistry = errors.New("no tool registry configured")
)
