package job

import "errors"

// Domain errors for command construction.
var (
	// ErrInvalidEnvironment indicates an environment entry is not KEY=VALUE.
	ErrInvalidEnvironment = errors.New("invalid environment entry")

	// ErrEmptyTool indicates a request without a target tool or executable.
	ErrEmptyTool = errors.New("no tool or executable given")

	// ErrNilCompilation indicates Build was called without a job list.
	ErrNilCompilation = errors.New("nil compilation")
)
