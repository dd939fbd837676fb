// Package ld provides a minimal linker. It reads its inputs in parallel on
// the shared worker pool and writes them, with a checksum table, into one
// output file.
//
// Every link runs in its own session. The per-input records are allocated
// from that session and are released with it, so several links can share a
// process and a pool without seeing each other's state.
package ld

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/domain/session"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
	"github.com/felixgeelhaar/multicall/infrastructure/pool"
)

// Name is the registered tool name.
const Name = "ld"

// Magic is the first line of every output file.
const Magic = "!<multicall-ld>"

var (
	// ErrNoOutput indicates ld was called without -o.
	ErrNoOutput = errors.New("no output file specified")

	// ErrNoInputs indicates ld was called without input files.
	ErrNoInputs = errors.New("no input files")
)

// section is the in-memory record of one input file.
type section struct {
	name string
	data []byte
	sum  [sha256.Size]byte
}

// Destroy drops the file contents when the session is torn down.
func (s *section) Destroy() {
	s.data = nil
}

// Config configures ld.
type Config struct {
	// Pool runs the input readers. Nil uses the process-wide pool.
	Pool *pool.Pool
}

// Option configures ld.
type Option func(*Config)

// WithPool sets the pool the inputs are read on.
func WithPool(p *pool.Pool) Option {
	return func(c *Config) {
		c.Pool = p
	}
}

// Entry returns the registry entry for ld.
func Entry(opts ...Option) driver.Entry {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return driver.Entry{
		Name: Name,
		Main: func(ctx context.Context, args []string, tc *driver.ToolContext) int {
			return New(tc, cfg).Run(ctx, args)
		},
	}
}

// App is the ld command line.
type App struct {
	root   *cobra.Command
	tc     *driver.ToolContext
	config Config
	stdout io.Writer
	stderr io.Writer

	output  string
	threads int
}

// New creates the command line of ld running as tc.
func New(tc *driver.ToolContext, config Config) *App {
	a := &App{
		tc:     tc,
		config: config,
		stdout: tc.Stdout,
		stderr: tc.Stderr,
	}

	a.root = &cobra.Command{
		Use:   tc.ProgramName() + " -o output inputs...",
		Short: "Link inputs into one output file",
		Long: `Reads every input in parallel and writes the output file: the magic line,
one "name size sha256" line per input in command line order, then the input
contents in the same order.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.link(cmd.Context(), args)
		},
	}

	flags := a.root.Flags()
	flags.StringVarP(&a.output, "output", "o", "", "Write output to file")
	flags.IntVar(&a.threads, "threads", 0, "Use a private pool of n workers instead of the shared pool")

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

// ExecuteWithArgs runs ld with args, which exclude the program name.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.root.ExecuteContext(ctx)
}

// Run runs ld with argv, whose first element is the program name, and
// returns the exit status.
func (a *App) Run(ctx context.Context, argv []string) int {
	var args []string
	if len(argv) > 1 {
		args = argv[1:]
	}
	if err := a.ExecuteWithArgs(ctx, args); err != nil {
		fmt.Fprintf(a.stderr, "%s: error: %v\n", a.tc.ProgramName(), err)
		return 1
	}
	return 0
}

func (a *App) link(ctx context.Context, inputs []string) error {
	if a.output == "" {
		return ErrNoOutput
	}
	if len(inputs) == 0 {
		return ErrNoInputs
	}

	p := a.config.Pool
	if a.threads > 0 {
		p = pool.New(pool.WithWorkers(a.threads))
		defer p.Close()
	} else if p == nil {
		p = pool.Default()
	}

	lane, ok := session.LaneFrom(ctx)
	if !ok {
		lane = session.NewLane(Name)
		ctx = session.WithLane(ctx, lane)
	}

	s := session.Open(lane, session.WithName(Name+":"+a.output))
	if a.tc.Cleanup {
		defer s.Close()
	} else {
		defer s.Detach()
	}
	ctx = session.WithSession(ctx, s)

	sections, err := readInputs(ctx, p, inputs)
	if err != nil {
		return err
	}

	if err := os.WriteFile(a.output, render(sections), 0o644); err != nil { // #nosec G306 -- linker output
		return fmt.Errorf("write %s: %w", a.output, err)
	}

	logging.Debug().
		Add(logging.ToolName(Name)).
		Add(logging.SessionID(s.ID())).
		Add(logging.Count("inputs", len(sections))).
		Add(logging.Str("output", a.output)).
		Msg("link finished")
	return nil
}

// readInputs reads every input on p. Each task allocates its section from the
// session current in the task, which is the session of this link.
func readInputs(ctx context.Context, p *pool.Pool, inputs []string) ([]*section, error) {
	sections := make([]*section, len(inputs))
	errs := make([]error, len(inputs))

	g := p.NewGroup()
	for i, in := range inputs {
		err := g.Go(ctx, func(ctx context.Context) {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			data, err := os.ReadFile(in) // #nosec G304 -- input named on the command line
			if err != nil {
				errs[i] = err
				return
			}
			sec := session.Alloc[section](session.Current(ctx)).New()
			sec.name = in
			sec.data = data
			sec.sum = sha256.Sum256(data)
			sections[i] = sec
		})
		if err != nil {
			errs[i] = err
			break
		}
	}
	if err := g.Wait(ctx); err != nil {
		// Reads already started allocate from this link's session.
		_ = g.Wait(context.WithoutCancel(ctx))
		return nil, err
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return sections, nil
}

func render(sections []*section) []byte {
	var b bytes.Buffer
	b.WriteString(Magic)
	b.WriteByte('\n')
	for _, s := range sections {
		fmt.Fprintf(&b, "%s %d %s\n", s.name, len(s.data), hex.EncodeToString(s.sum[:]))
	}
	for _, s := range sections {
		b.Write(s.data)
	}
	return b.Bytes()
}
