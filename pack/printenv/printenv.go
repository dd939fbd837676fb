// Package printenv prints the environment the tool runs with. It makes the
// difference between in-process and spawned commands observable.
package printenv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/multicall/domain/driver"
)

// Name is the registered tool name.
const Name = "printenv"

// errMissing reports that a requested variable is not set. It carries no
// message because printenv exits silently in that case.
var errMissing = errors.New("variable not set")

// Entry returns the registry entry for printenv.
func Entry() driver.Entry {
	return driver.Entry{
		Name: Name,
		Main: func(ctx context.Context, args []string, tc *driver.ToolContext) int {
			return New(tc).Run(ctx, args)
		},
	}
}

// App is the printenv command line.
type App struct {
	root    *cobra.Command
	tc      *driver.ToolContext
	stdout  io.Writer
	stderr  io.Writer
	environ func() []string
}

// New creates the command line of printenv running as tc.
func New(tc *driver.ToolContext) *App {
	a := &App{
		tc:      tc,
		stdout:  tc.Stdout,
		stderr:  tc.Stderr,
		environ: os.Environ,
	}

	a.root = &cobra.Command{
		Use:           tc.ProgramName() + " [NAME...]",
		Short:         "Print all or part of the environment",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(_ *cobra.Command, args []string) error {
			return a.print(args)
		},
	}
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

// ExecuteWithArgs runs printenv with args, which exclude the program name.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// Run runs printenv with argv, whose first element is the program name, and
// returns the exit status: 1 when a named variable is not set.
func (a *App) Run(ctx context.Context, argv []string) int {
	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}

	err := a.ExecuteWithArgs(ctx, args)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errMissing):
		return 1
	default:
		fmt.Fprintf(a.stderr, "%s: %v\n", a.tc.ProgramName(), err)
		return 2
	}
}

func (a *App) print(names []string) error {
	env := a.environ()

	if len(names) == 0 {
		sorted := append([]string(nil), env...)
		sort.Strings(sorted)
		for _, kv := range sorted {
			fmt.Fprintln(a.stdout, kv)
		}
		return nil
	}

	values := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}

	var missing bool
	for _, name := range names {
		v, ok := values[name]
		if !ok {
			missing = true
			continue
		}
		fmt.Fprintln(a.stdout, v)
	}
	if missing {
		return errMissing
	}
	return nil
}
