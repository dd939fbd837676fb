package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/domain/job"
	"github.com/felixgeelhaar/multicall/infrastructure/observability"
	"github.com/felixgeelhaar/multicall/infrastructure/statemachine"
)

type fixture struct {
	caller  *driver.ToolContext
	stdout  *bytes.Buffer
	cleanup *bool
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	cleanup := new(bool)
	reg, err := driver.NewRegistry(
		driver.Entry{Name: "ld", Main: func(_ context.Context, args []string, tc *driver.ToolContext) int {
			*cleanup = tc.Cleanup
			fmt.Fprintln(tc.Stdout, strings.Join(args, " "))
			return 0
		}},
		driver.Entry{Name: "as", Main: func(context.Context, []string, *driver.ToolContext) int {
			return driver.NotCallable
		}},
		driver.Entry{Name: "ar", Main: func(context.Context, []string, *driver.ToolContext) int {
			return 4
		}},
	)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	stdout := &bytes.Buffer{}
	caller := driver.NewRootContext("/usr/bin/multicall", reg,
		driver.WithStdio(strings.NewReader(""), stdout, &bytes.Buffer{}))
	return fixture{caller: caller, stdout: stdout, cleanup: cleanup}
}

func (f fixture) build(t *testing.T, opts job.Options, req job.Request) *job.Command {
	t.Helper()
	cmd, err := job.NewBuilder(f.caller).Build(job.NewCompilation(opts), req)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return cmd
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestRunner_InProcess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cmd := f.build(t, job.Options{InProcess: true}, job.Request{Tool: "ld", Args: []string{"-o", "a.out"}, InProcess: true})

	res, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 || res.State != statemachine.StateSucceeded || res.Kind != job.KindInProcess {
		t.Errorf("Run() = %+v", res)
	}
	if res.CommandID != cmd.ID {
		t.Errorf("CommandID = %q, want %q", res.CommandID, cmd.ID)
	}
	if got := f.stdout.String(); got != "ld -o a.out\n" {
		t.Errorf("tool output = %q", got)
	}
	if !*f.cleanup {
		t.Error("in-process commands must run with cleanup required")
	}
}

func TestRunner_InProcessExitCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cmd := f.build(t, job.Options{InProcess: true}, job.Request{Tool: "ar", InProcess: true})

	res, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 4 || res.State != statemachine.StateFailed {
		t.Errorf("Run() = %+v, want exit 4 failed", res)
	}
}

func TestRunner_NotCallable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cmd := f.build(t, job.Options{InProcess: true}, job.Request{Tool: "as", InProcess: true})

	res, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller)
	if !errors.Is(err, ErrNotCallable) {
		t.Fatalf("Run() error = %v, want ErrNotCallable", err)
	}
	if res.ExitCode == driver.NotCallable || res.State != statemachine.StateFailed {
		t.Errorf("Run() = %+v", res)
	}
}

func TestRunner_SpawnExitCode(t *testing.T) {
	t.Parallel()

	sh := requireShell(t)
	f := newFixture(t)
	cmd := f.build(t, job.Options{}, job.Request{Executable: sh, Args: []string{"-c", "exit 3"}})

	res, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 3 || res.State != statemachine.StateFailed || res.Kind != job.KindSpawn {
		t.Errorf("Run() = %+v, want spawned exit 3", res)
	}
}

func TestRunner_SpawnEnvironmentReplaces(t *testing.T) {
	t.Setenv("MULTICALL_TEST_INHERITED", "leak")

	sh := requireShell(t)
	f := newFixture(t)
	cmd := f.build(t, job.Options{}, job.Request{
		Executable:  sh,
		Args:        []string{"-c", `echo "$FOO:$MULTICALL_TEST_INHERITED"`},
		Environment: []string{"FOO=bar"},
	})

	if _, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := f.stdout.String(); got != "bar:\n" {
		t.Errorf("output = %q, want %q", got, "bar:\n")
	}
}

func TestRunner_SpawnNotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	cmd := f.build(t, job.Options{}, job.Request{Executable: "/nonexistent/multicall-tool"})

	res, err := New(DefaultConfig()).Run(context.Background(), cmd, f.caller)
	if !errors.Is(err, ErrStart) {
		t.Fatalf("Run() error = %v, want ErrStart", err)
	}
	if res.ExitCode != ExitCodeNotFound {
		t.Errorf("ExitCode = %d, want %d", res.ExitCode, ExitCodeNotFound)
	}
}

func TestRunner_RunAllStopsAtFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	c := job.NewCompilation(job.Options{InProcess: true})
	b := job.NewBuilder(f.caller)
	for _, tool := range []string{"ld", "ar", "ld"} {
		if _, err := b.Build(c, job.Request{Tool: tool, InProcess: true}); err != nil {
			t.Fatalf("Build() error = %v", err)
		}
	}

	results, err := New(DefaultConfig()).RunAll(context.Background(), c, f.caller)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(results) != 2 || results[1].ExitCode != 4 {
		t.Errorf("RunAll() = %+v, want stop after the second command", results)
	}
}

func TestRunner_TracesCommands(t *testing.T) {
	t.Parallel()

	rec := tracetest.NewSpanRecorder()
	tracer := observability.NewTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))

	f := newFixture(t)
	cmd := f.build(t, job.Options{InProcess: true}, job.Request{Tool: "ld", InProcess: true})
	if _, err := New(DefaultConfig(), WithTracer(tracer)).Run(context.Background(), cmd, f.caller); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	spans := rec.Ended()
	if len(spans) != 1 || spans[0].Name() != observability.SpanCommand {
		t.Fatalf("ended spans = %v", spans)
	}
}

func TestRunner_NilCommand(t *testing.T) {
	t.Parallel()

	if _, err := New(DefaultConfig()).Run(context.Background(), nil, nil); !errors.Is(err, ErrNilCommand) {
		t.Errorf("Run(nil) error = %v", err)
	}
}

func TestRunner_QueuesBeyondMaxConcurrent(t *testing.T) {
	t.Parallel()

	var running, peak atomic.Int32
	reg := driver.MustRegistry(driver.Entry{Name: "ld", Main: func(context.Context, []string, *driver.ToolContext) int {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return 0
	}})
	caller := driver.NewRootContext("/usr/bin/multicall", reg)

	r := New(Config{MaxConcurrent: 2})
	t.Cleanup(func() { _ = r.Close() })

	const links = 6
	var wg sync.WaitGroup
	errs := make([]error, links)
	codes := make([]int, links)
	for i := range links {
		cmd, err := job.NewBuilder(caller).Build(job.NewCompilation(job.Options{InProcess: true}), job.Request{Tool: "ld", InProcess: true})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Run(context.Background(), cmd, caller)
			codes[i], errs[i] = res.ExitCode, err
		}()
	}
	wg.Wait()

	for i := range links {
		if errs[i] != nil || codes[i] != 0 {
			t.Errorf("link %d: exit %d, error %v", i, codes[i], errs[i])
		}
	}
	if got := peak.Load(); got > 2 {
		t.Errorf("%d commands ran at once, want at most 2", got)
	}
}

// A tool running in the only slot must be able to run further commands
// through the same runner.
func TestRunner_NestedCommandsShareSlot(t *testing.T) {
	t.Parallel()

	r := New(Config{MaxConcurrent: 1})
	t.Cleanup(func() { _ = r.Close() })

	nest := func(depth int) driver.MainFunc {
		return func(ctx context.Context, _ []string, tc *driver.ToolContext) int {
			if depth == 0 {
				return 7
			}
			cmd, err := job.NewBuilder(tc).Build(job.NewCompilation(job.Options{InProcess: true}),
				job.Request{Tool: fmt.Sprintf("level%d", depth-1), InProcess: true})
			if err != nil {
				return 1
			}
			res, err := r.Run(ctx, cmd, tc)
			if err != nil {
				fmt.Fprintln(tc.Stderr, err)
				return 1
			}
			return res.ExitCode
		}
	}
	reg := driver.MustRegistry(
		driver.Entry{Name: "level0", Main: nest(0)},
		driver.Entry{Name: "level1", Main: nest(1)},
		driver.Entry{Name: "level2", Main: nest(2)},
	)
	var stderr bytes.Buffer
	caller := driver.NewRootContext("/usr/bin/multicall", reg, driver.WithStdio(strings.NewReader(""), &bytes.Buffer{}, &stderr))

	cmd, err := job.NewBuilder(caller).Build(job.NewCompilation(job.Options{InProcess: true}), job.Request{Tool: "level2", InProcess: true})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := r.Run(ctx, cmd, caller)
	if err != nil {
		t.Fatalf("Run() error = %v, stderr %q", err, stderr.String())
	}
	if res.ExitCode != 7 {
		t.Errorf("exit code = %d, want 7; stderr %q", res.ExitCode, stderr.String())
	}
}

func TestRunner_QueueTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	reg := driver.MustRegistry(driver.Entry{Name: "ld", Main: func(context.Context, []string, *driver.ToolContext) int {
		close(started)
		<-release
		return 0
	}})
	caller := driver.NewRootContext("/usr/bin/multicall", reg)

	r := New(Config{MaxConcurrent: 1, QueueTimeout: 20 * time.Millisecond})
	t.Cleanup(func() { _ = r.Close() })

	build := func() *job.Command {
		cmd, err := job.NewBuilder(caller).Build(job.NewCompilation(job.Options{InProcess: true}), job.Request{Tool: "ld", InProcess: true})
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}
		return cmd
	}
	first, second := build(), build()

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), first, caller)
		done <- err
	}()
	<-started

	res, err := r.Run(context.Background(), second, caller)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want a queue timeout", err)
	}
	if res.ExitCode != 1 || res.State != statemachine.StateFailed {
		t.Errorf("Run() = %+v, want a failed result", res)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Run() error = %v", err)
	}
}
