package pool

import "errors"

// ErrPoolClosed indicates a task was submitted after Close.
var ErrPoolClosed = errors.New("pool is closed")
