package executor

import "errors"

var (
	// ErrNotCallable indicates an in-process command whose target reported
	// that it cannot be called in-process.
	ErrNotCallable = errors.New("tool is not callable in-process")

	// ErrStart indicates a spawned command whose executable could not be
	// started.
	ErrStart = errors.New("cannot start command")

	// ErrNilCommand indicates Run was called without a command.
	ErrNilCommand = errors.New("nil command")
)

// ExitCodeNotFound is the exit code reported when an executable cannot be
// started, matching what shells report.
const ExitCodeNotFound = 127
