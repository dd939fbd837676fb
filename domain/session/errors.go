package session

import "errors"

// Errors raised when the session stack discipline is violated. They are
// delivered through panic: misuse is a programming error, not a runtime
// condition callers are expected to handle.
var (
	// ErrNoSession indicates the current session was requested on a lane
	// (or context) where none is installed.
	ErrNoSession = errors.New("no session installed")

	// ErrScopeOrder indicates a scope was released while a scope installed
	// after it was still active.
	ErrScopeOrder = errors.New("session scope released out of order")

	// ErrSessionClosed indicates an allocator was requested from a closed session.
	ErrSessionClosed = errors.New("session is closed")
)
