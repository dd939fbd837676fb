package pool

import "sync"

var (
	defaultMu      sync.Mutex
	defaultPool    *Pool
	defaultWorkers int
)

// SetDefaultWorkers sets the size of the shared pool. It only has an effect
// before the first call to Default.
func SetDefaultWorkers(n int) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultWorkers = n
	}
}

// Default returns the process-wide pool shared by every tool run in the
// process, creating it on first use.
func Default() *Pool {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPool == nil {
		defaultPool = New(WithWorkers(defaultWorkers))
	}
	return defaultPool
}
