// Package executor runs the commands built by driver tools, calling embedded
// tools directly or spawning processes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"

	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/domain/job"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
	"github.com/felixgeelhaar/multicall/infrastructure/observability"
	"github.com/felixgeelhaar/multicall/infrastructure/statemachine"
)

// Result is the outcome of one command.
type Result struct {
	CommandID string
	Kind      job.Kind
	ExitCode  int
	State     statemachine.State
	Duration  time.Duration
}

// defaultMaxQueue is the number of commands that may wait for a slot.
const defaultMaxQueue = 1024

// Config configures the runner.
type Config struct {
	// MaxConcurrent is the number of commands that run at once. Commands
	// run from inside a running command share its slot.
	MaxConcurrent int

	// MaxQueue is the number of commands that wait for a free slot. A
	// command arriving at a full queue fails with ferrors.ErrBulkheadFull.
	MaxQueue int

	// QueueTimeout bounds the wait for a slot. Zero waits until the
	// command's context is done.
	QueueTimeout time.Duration

	// Timeout bounds spawned commands. Zero means no limit. In-process
	// commands always run to completion.
	Timeout time.Duration
}

// DefaultConfig returns a configuration with one slot per CPU, a deep wait
// queue and no timeouts.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: runtime.NumCPU(),
		MaxQueue:      defaultMaxQueue,
	}
}

// Runner executes commands.
type Runner struct {
	bulkhead bulkhead.Bulkhead[Result]
	timeout  time.Duration
	tracer   *observability.Tracer
	metrics  *observability.Metrics
}

// Option configures a runner.
type Option func(*Runner)

// WithTracer sets the tracer for command spans.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Runner) {
		r.tracer = t
	}
}

// WithMetrics sets the instruments commands are counted with.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// New creates a runner.
func New(config Config, opts ...Option) *Runner {
	maxConcurrent := config.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultConfig().MaxConcurrent
	}

	maxQueue := config.MaxQueue
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueue
	}

	r := &Runner{
		bulkhead: bulkhead.New[Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxQueue,
			QueueTimeout:  config.QueueTimeout,
		}),
		timeout: config.Timeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = observability.NewTracer(nil)
	}
	return r
}

// Close stops the queue of the runner. Commands submitted afterwards are
// rejected.
func (r *Runner) Close() error {
	return r.bulkhead.Close()
}

// slotKey marks a context running inside a slot of a runner.
type slotKey struct{}

func (r *Runner) holdsSlot(ctx context.Context) bool {
	held, _ := ctx.Value(slotKey{}).(*Runner)
	return held == r
}

// Run executes cmd on behalf of the tool described by caller, whose standard
// streams the command inherits. In-process commands run with cleanup
// required, since the calling tool continues afterwards.
//
// A command that runs and exits non-zero is not an error: the exit code is
// reported in the result.
func (r *Runner) Run(ctx context.Context, cmd *job.Command, caller *driver.ToolContext) (Result, error) {
	if cmd == nil {
		return Result{}, ErrNilCommand
	}

	lc, err := statemachine.NewLifecycle(cmd.ID, cmd.Tool)
	if err != nil {
		return Result{}, err
	}

	ctx, span := r.tracer.StartCommand(ctx, cmd.ID, cmd.Tool, cmd.Kind.String())

	logging.Debug().
		Add(logging.CommandID(cmd.ID)).
		Add(logging.ToolName(cmd.Tool)).
		Add(logging.CommandKind(cmd.Kind.String())).
		Msg("running command")

	// A queued command can still be started after its wait timed out;
	// once Run has returned it must not start.
	var (
		mu        sync.Mutex
		abandoned bool
	)
	code := 1
	run := func(ctx context.Context) (Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			return Result{}, context.Canceled
		}
		if err := lc.Start(); err != nil {
			return Result{}, err
		}
		var runErr error
		code, runErr = r.execute(context.WithValue(ctx, slotKey{}, r), cmd, caller)
		if err := lc.Finish(code, runErr); err != nil {
			return Result{}, err
		}
		return Result{ExitCode: code}, runErr
	}
	if r.holdsSlot(ctx) {
		// Nested in a command of this runner, which already holds a slot.
		_, err = run(ctx)
	} else {
		_, err = r.bulkhead.Execute(ctx, run)
	}
	mu.Lock()
	abandoned = true
	mu.Unlock()
	if lc.State() == statemachine.StatePending {
		// Rejected or cancelled before it started.
		_ = lc.Finish(1, err)
		code = 1
	}

	res := Result{
		CommandID: cmd.ID,
		Kind:      cmd.Kind,
		ExitCode:  code,
		State:     lc.State(),
		Duration:  lc.Context().Duration(),
	}

	observability.Finish(span, res.ExitCode, err)
	r.metrics.RecordCommand(ctx, cmd.Tool, cmd.Kind.String(), res.State == statemachine.StateSucceeded, res.Duration)

	event := logging.Debug()
	if err != nil {
		event = logging.Warn().Add(logging.ErrorField(err))
	}
	event.
		Add(logging.CommandID(cmd.ID)).
		Add(logging.ToolName(cmd.Tool)).
		Add(logging.ExitCode(res.ExitCode)).
		Add(logging.Duration(res.Duration)).
		Msg("command finished")

	return res, err
}

// RunAll runs the commands of c in order and stops at the first command that
// fails or exits non-zero.
func (r *Runner) RunAll(ctx context.Context, c *job.Compilation, caller *driver.ToolContext) ([]Result, error) {
	var results []Result
	for _, cmd := range c.Jobs() {
		res, err := r.Run(ctx, cmd, caller)
		results = append(results, res)
		if err != nil || res.ExitCode != 0 {
			return results, err
		}
	}
	return results, nil
}

func (r *Runner) execute(ctx context.Context, cmd *job.Command, caller *driver.ToolContext) (int, error) {
	if cmd.Kind == job.KindInProcess {
		return r.callInProcess(ctx, cmd, caller)
	}
	return r.spawn(ctx, cmd, caller)
}

func (r *Runner) callInProcess(ctx context.Context, cmd *job.Command, caller *driver.ToolContext) (int, error) {
	target := cmd.Target.WithCleanup(true)
	if caller != nil {
		target = target.WithStdio(caller.Stdin, caller.Stdout, caller.Stderr)
	}

	code := target.CallToolMain(ctx, cmd.ToolArgs())
	if code == driver.NotCallable {
		return 1, fmt.Errorf("%w: %s", ErrNotCallable, cmd.Tool)
	}
	return code, nil
}

func (r *Runner) spawn(ctx context.Context, cmd *job.Command, caller *driver.ToolContext) (int, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	c := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...) // #nosec G204 -- argv built by job.Builder
	if cmd.Environment != nil {
		c.Env = cmd.Environment
	}
	if caller != nil {
		c.Stdin = caller.Stdin
		c.Stdout = caller.Stdout
		c.Stderr = caller.Stderr
	}

	err := c.Run()
	if err == nil {
		return 0, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return 1, fmt.Errorf("command %s: %w", cmd.ID, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// Exit code != 0 is not an error. Killed processes report -1,
		// which must not be confused with driver.NotCallable.
		if code := exitErr.ExitCode(); code > 0 {
			return code, nil
		}
		return 1, nil
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
		return ExitCodeNotFound, fmt.Errorf("%w: %w", ErrStart, err)
	}
	return 1, fmt.Errorf("%w: %w", ErrStart, err)
}
