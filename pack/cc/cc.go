// Package cc provides a minimal compiler driver that turns its inputs into a
// single link command and runs it, in-process when possible.
package cc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/domain/job"
	"github.com/felixgeelhaar/multicall/infrastructure/executor"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
)

// Name is the registered tool name.
const Name = "cc"

// printJobsFlag prints the constructed commands instead of running them.
const printJobsFlag = "-###"

// ErrNoInputs indicates cc was called without input files.
var ErrNoInputs = errors.New("no input files")

// Config configures cc.
type Config struct {
	// InProcess permits running the linker in-process.
	InProcess bool

	// GenDiagnostics isolates every command in its own process.
	GenDiagnostics bool

	// Linker is the tool the link command targets.
	Linker string

	// Runner executes the link command. Nil creates a default runner.
	Runner *executor.Runner
}

// DefaultConfig returns in-process linking with ld.
func DefaultConfig() Config {
	return Config{
		InProcess: true,
		Linker:    "ld",
	}
}

// Option configures cc.
type Option func(*Config)

// WithInProcess sets whether the linker may run in-process.
func WithInProcess(enabled bool) Option {
	return func(c *Config) {
		c.InProcess = enabled
	}
}

// WithGenDiagnostics forces every command into its own process.
func WithGenDiagnostics(enabled bool) Option {
	return func(c *Config) {
		c.GenDiagnostics = enabled
	}
}

// WithRunner sets the command runner.
func WithRunner(r *executor.Runner) Option {
	return func(c *Config) {
		c.Runner = r
	}
}

// Entry returns the registry entry for cc.
func Entry(opts ...Option) driver.Entry {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Runner == nil {
		cfg.Runner = executor.New(executor.DefaultConfig())
	}

	return driver.Entry{
		Name: Name,
		Main: func(ctx context.Context, args []string, tc *driver.ToolContext) int {
			return New(tc, cfg).Run(ctx, args)
		},
	}
}

// App is the cc command line.
type App struct {
	root   *cobra.Command
	tc     *driver.ToolContext
	config Config
	stdout io.Writer
	stderr io.Writer

	output        string
	linker        string
	linkerPath    string
	noInProcess   bool
	genReproducer bool
	noCanonical   bool
	env           []string
	printJobs     bool
}

// New creates the command line of cc running as tc.
func New(tc *driver.ToolContext, config Config) *App {
	a := &App{
		tc:     tc,
		config: config,
		stdout: tc.Stdout,
		stderr: tc.Stderr,
	}
	if a.config.Runner == nil {
		a.config.Runner = executor.New(executor.DefaultConfig())
	}

	a.root = &cobra.Command{
		Use:   tc.ProgramName() + " [options] inputs...",
		Short: "Compile and link inputs into an executable",
		Long: `Builds one link command for the given inputs and runs it.

The linker runs in-process when this binary embeds it, unless a linker path,
--no-in-process or --gen-reproducer requires a separate process.

Examples:
  cc -o app main.o util.o
  cc -### -o app main.o
  cc --no-in-process --env LANG=C -o app main.o`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.link(cmd.Context(), args)
		},
	}

	flags := a.root.Flags()
	flags.StringVarP(&a.output, "output", "o", "a.out", "Write output to file")
	flags.StringVar(&a.linker, "linker", config.Linker, "Linker tool name")
	flags.StringVar(&a.linkerPath, "linker-path", "", "Run this linker executable instead of an embedded tool")
	flags.BoolVar(&a.noInProcess, "no-in-process", false, "Always run the linker in a separate process")
	flags.BoolVar(&a.genReproducer, "gen-reproducer", false, "Isolate every command so failures can be reproduced")
	flags.BoolVar(&a.noCanonical, "no-canonical-prefixes", false, "Re-invoke this binary by the name it was started as")
	flags.StringArrayVar(&a.env, "env", nil, "Set the linker environment (KEY=VALUE, repeatable)")

	a.root.SetOut(a.stdout)
	a.root.SetErr(a.stderr)
	return a
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// ExecuteWithArgs runs cc with args, which exclude the program name.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	rest := make([]string, 0, len(args))
	for _, arg := range args {
		if arg == printJobsFlag {
			a.printJobs = true
			continue
		}
		rest = append(rest, arg)
	}
	a.root.SetArgs(rest)
	return a.root.ExecuteContext(ctx)
}

// Run runs cc with argv, whose first element is the program name, and
// returns the exit status.
func (a *App) Run(ctx context.Context, argv []string) int {
	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}

	err := a.ExecuteWithArgs(ctx, args)
	if err == nil {
		return 0
	}

	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintf(a.stderr, "%s: error: %v\n", a.tc.ProgramName(), err)
	return 1
}

func (a *App) link(ctx context.Context, inputs []string) error {
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	c := job.NewCompilation(job.Options{
		InProcess:      a.config.InProcess,
		GenDiagnostics: a.config.GenDiagnostics || a.genReproducer,
	})

	infos := make([]job.InputInfo, len(inputs))
	for i, in := range inputs {
		infos[i] = job.InputInfo{Filename: in, Type: inputType(in)}
	}

	// Spawned sub-commands re-invoke this binary through BinaryPath.
	self := a.tc.Clone()
	self.SetCanonicalPrefixes(!a.noCanonical)

	args := append([]string{"-o", a.output}, inputs...)
	_, err := job.NewBuilder(self).Build(c, job.Request{
		Tool:        a.linker,
		Output:      a.output,
		Inputs:      infos,
		Args:        args,
		Executable:  a.linkerPath,
		Environment: a.env,
		InProcess:   !a.noInProcess,
	})
	if err != nil {
		return err
	}

	if a.printJobs {
		return c.Print(a.stderr)
	}

	caller := a.tc.WithStdio(nil, a.stdout, a.stderr)
	results, err := a.config.Runner.RunAll(ctx, c, caller)
	if err != nil {
		fmt.Fprintf(a.stderr, "%s: error: %v\n", a.tc.ProgramName(), err)
		code := 1
		if n := len(results); n > 0 && results[n-1].ExitCode > 0 {
			code = results[n-1].ExitCode
		}
		return &exitError{code: code}
	}

	last := results[len(results)-1]
	logging.Debug().
		Add(logging.ToolName(Name)).
		Add(logging.CommandID(last.CommandID)).
		Add(logging.CommandKind(last.Kind.String())).
		Add(logging.ExitCode(last.ExitCode)).
		Msg("link finished")

	if last.ExitCode != 0 {
		return &exitError{code: last.ExitCode}
	}
	return nil
}

func inputType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".c":
		return "c"
	case ".o", ".obj":
		return "object"
	case ".a", ".lib":
		return "archive"
	default:
		return "unknown"
	}
}

// exitError carries the exit code of a failed link command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("linker exited with status %d", e.code)
}
