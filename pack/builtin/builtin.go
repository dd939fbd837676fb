// Package builtin assembles the tools compiled into the multicall binary.
package builtin

import (
	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/infrastructure/executor"
	"github.com/felixgeelhaar/multicall/infrastructure/pool"
	"github.com/felixgeelhaar/multicall/pack/cc"
	"github.com/felixgeelhaar/multicall/pack/ld"
	"github.com/felixgeelhaar/multicall/pack/printenv"
)

// Config configures the built-in tools.
type Config struct {
	// InProcess permits tools to run other tools in-process.
	InProcess bool

	// GenDiagnostics isolates every constructed command in its own process.
	GenDiagnostics bool

	// Runner executes constructed commands. Nil creates a default runner.
	Runner *executor.Runner

	// Pool runs parallel tool work. Nil uses the process-wide pool.
	Pool *pool.Pool
}

// Entries returns the built-in tools in registration order.
func Entries(config Config) []driver.Entry {
	return []driver.Entry{
		cc.Entry(
			cc.WithInProcess(config.InProcess),
			cc.WithGenDiagnostics(config.GenDiagnostics),
			cc.WithRunner(config.Runner),
		),
		ld.Entry(ld.WithPool(config.Pool)),
		printenv.Entry(),
	}
}
