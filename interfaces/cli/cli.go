// Package cli is the process entry point of the multicall binary. It loads
// the configuration, sets up logging and tracing, assembles the registry of
// embedded tools and hands the command line to the dispatcher.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/multicall"
	"github.com/felixgeelhaar/multicall/application"
	"github.com/felixgeelhaar/multicall/domain/config"
	"github.com/felixgeelhaar/multicall/domain/driver"
	infraconfig "github.com/felixgeelhaar/multicall/infrastructure/config"
	"github.com/felixgeelhaar/multicall/infrastructure/executor"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
	"github.com/felixgeelhaar/multicall/infrastructure/observability"
	"github.com/felixgeelhaar/multicall/infrastructure/pool"
	"github.com/felixgeelhaar/multicall/infrastructure/wasmtool"
	"github.com/felixgeelhaar/multicall/pack/builtin"
)

// shutdownTimeout bounds the final span flush.
const shutdownTimeout = 5 * time.Second

// Main runs the binary with the process streams and returns the exit status.
func Main(args []string) int {
	return Run(context.Background(), args, os.Stdin, os.Stdout, os.Stderr)
}

// Run dispatches args, whose first element is the invocation name, and
// returns the exit status.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := infraconfig.NewLoader().LoadFromEnv()
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
		return 1
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: stderr,
	})

	provider, err := observability.New(tracingOptions(cfg, stderr)...)
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
		return 1
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer scancel()
		if err := provider.Shutdown(sctx); err != nil {
			logging.Warn().Add(logging.ErrorField(err)).Msg("trace shutdown failed")
		}
	}()

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
		return 1
	}
	tracer := observability.NewTracer(provider.TracerProvider())

	pool.SetDefaultWorkers(cfg.Workers)

	runner := executor.New(executor.DefaultConfig(),
		executor.WithTracer(tracer),
		executor.WithMetrics(metrics),
	)
	defer func() { _ = runner.Close() }()

	entries := builtin.Entries(builtin.Config{
		InProcess:      cfg.InProcessEnabled(),
		GenDiagnostics: cfg.GenDiagnostics,
		Runner:         runner,
	})

	if len(cfg.WasmTools) > 0 {
		host, err := wasmtool.New(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
			return 1
		}
		defer func() { _ = host.Close(context.Background()) }()

		wasmEntries, err := host.Entries(ctx, cfg.WasmTools)
		if err != nil {
			fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
			return 1
		}
		entries = append(entries, wasmEntries...)
	}

	reg, err := driver.NewRegistry(entries...)
	if err != nil {
		fmt.Fprintf(stderr, "%s: error: %v\n", driver.DefaultDriverName, err)
		return 1
	}

	argv0 := ""
	if len(args) > 0 {
		argv0 = args[0]
	}
	root := driver.NewRootContext(argv0, reg,
		driver.WithDriverName(cfg.Name),
		driver.WithStdio(stdin, stdout, stderr),
		driver.WithCleanup(false),
	)

	d := application.NewDispatcher(
		application.WithTracer(tracer),
		application.WithMetrics(metrics),
	)
	return d.Run(ctx, args, root)
}

func tracingOptions(cfg *config.DriverConfig, stderr io.Writer) []observability.Option {
	opts := []observability.Option{
		observability.WithServiceVersion(multicall.Version),
	}
	if cfg.Name != "" {
		opts = append(opts, observability.WithServiceName(cfg.Name))
	}

	switch cfg.Tracing.Exporter {
	case "stdout":
		opts = append(opts, observability.WithStdoutTracing(stderr))
	case "otlp":
		opts = append(opts, observability.WithOTLP(cfg.Tracing.Endpoint))
		if cfg.Tracing.Insecure {
			opts = append(opts, observability.WithTracingInsecure())
		}
	}
	if cfg.Tracing.SampleRate != nil {
		opts = append(opts, observability.WithSampleRate(*cfg.Tracing.SampleRate))
	}
	return opts
}
