// Package application provides the dispatcher that selects and runs the
// embedded tool named by the command line.
package application

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/domain/session"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
	"github.com/felixgeelhaar/multicall/infrastructure/observability"
)

// Dispatcher resolves argv against the root context and runs the matching
// tool in-process.
type Dispatcher struct {
	tracer  *observability.Tracer
	metrics *observability.Metrics
	help    io.Writer
}

// DispatcherConfig contains configuration for the dispatcher.
type DispatcherConfig struct {
	// Tracer creates the dispatch span. Nil uses the global provider.
	Tracer *observability.Tracer

	// Metrics counts dispatches. Nil disables counting.
	Metrics *observability.Metrics

	// Help receives the usage text. Nil writes to the root context's stdout.
	Help io.Writer
}

// NewDispatcher creates a dispatcher with the given options.
func NewDispatcher(opts ...Option) *Dispatcher {
	var config DispatcherConfig
	for _, opt := range opts {
		opt(&config)
	}

	d := &Dispatcher{
		tracer:  config.Tracer,
		metrics: config.Metrics,
		help:    config.Help,
	}
	if d.tracer == nil {
		d.tracer = observability.NewTracer(nil)
	}
	return d
}

// Run dispatches args, the full command line including argv[0], and returns
// the exit status of the process.
//
// The tool is chosen from argv[0] or, for "multicall <tool> ...", from the
// second argument. When no tool matches, or the match has no entry function,
// the usage text is printed and Run returns 0 for "--help" or "-h" and 1
// otherwise.
func (d *Dispatcher) Run(ctx context.Context, args []string, root *driver.ToolContext) int {
	argv0 := ""
	if len(args) > 0 {
		argv0 = args[0]
	}

	if _, ok := session.LaneFrom(ctx); !ok {
		ctx = session.WithLane(ctx, session.NewLane("main"))
	}

	ctx, span := d.tracer.StartDispatch(ctx, argv0)
	start := time.Now()

	outcome := observability.OutcomeNotFound
	tool := ""
	if tc, ok := root.NewContext(args); ok {
		tool = tc.VerbatimToolName

		logging.Debug().
			Add(logging.ToolName(tool)).
			Add(logging.Binary(tc.BinaryPath)).
			Add(logging.Str("program", tc.ProgramName())).
			Msg("dispatching tool")

		code := tc.CallToolMain(ctx, tc.ToolArgs(args))
		if code != driver.NotCallable {
			outcome = observability.OutcomeOK
			if code != 0 {
				outcome = observability.OutcomeToolFailed
			}
			d.finish(ctx, span, tool, outcome, code, start,
				observability.AttrTool.String(tool),
				observability.AttrNeedsShift.Bool(tc.NeedsPrependArg),
			)
			return code
		}
		outcome = observability.OutcomeNotCallable
	}

	w := d.help
	if w == nil {
		w = root.Stdout
	}
	d.PrintHelp(w, root)

	code := 1
	if len(args) > 1 && isHelpFlag(args[1]) {
		code = 0
		outcome = observability.OutcomeHelp
	}
	d.finish(ctx, span, tool, outcome, code, start)
	return code
}

func (d *Dispatcher) finish(ctx context.Context, span trace.Span, tool, outcome string, code int, start time.Time, attrs ...attribute.KeyValue) {
	d.metrics.RecordDispatch(ctx, tool, outcome)
	observability.Finish(span, code, nil, append(attrs, observability.AttrOutcome.String(outcome))...)

	ev := logging.Debug()
	if outcome == observability.OutcomeNotFound || outcome == observability.OutcomeNotCallable {
		ev = logging.Info()
	}
	ev.Add(logging.ToolName(tool)).
		Add(logging.ExitCode(code)).
		Add(logging.Str("outcome", outcome)).
		Add(logging.Duration(time.Since(start))).
		Msg("dispatch finished")
}

func isHelpFlag(arg string) bool {
	return arg == "--help" || arg == "-h"
}

// PrintHelp writes the usage text listing the tools of root's registry in
// registration order, each followed by its description when it has one.
func (d *Dispatcher) PrintHelp(w io.Writer, root *driver.ToolContext) {
	name := root.DriverName()

	fmt.Fprintf(w, "OVERVIEW: %s toolchain driver\n\n", name)
	fmt.Fprintf(w, "USAGE: %s [subcommand] [options]\n\n", name)
	fmt.Fprint(w, "SUBCOMMANDS:\n\n")
	for _, e := range root.Registry().Entries() {
		if e.Description != "" {
			fmt.Fprintf(w, "  %s - %s\n", e.Name, e.Description)
			continue
		}
		fmt.Fprintf(w, "  %s\n", e.Name)
	}
	fmt.Fprintf(w, "\n  Type \"%s <subcommand> --help\" to get more help on a specific subcommand\n\n", name)
	fmt.Fprint(w, "OPTIONS:\n\n  --help - Display this message\n")
}
