// Package job builds the commands a driver tool emits, deciding for each
// whether it runs in-process or as a separate process.
package job

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/felixgeelhaar/multicall/domain/driver"
)

// Kind selects how a command is executed.
type Kind int

const (
	// KindSpawn runs the command as a child process.
	KindSpawn Kind = iota
	// KindInProcess calls the target tool's entry function directly.
	KindInProcess
)

func (k Kind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindInProcess:
		return "in-process"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// InputInfo describes one input of a command.
type InputInfo struct {
	Filename string
	Type     string
}

// Command is a constructed job. It is never executed by this package.
type Command struct {
	ID   string
	Kind Kind
	Tool string

	// Executable is the program started for a spawned command.
	Executable string

	// Argv is the complete command line, starting with Executable for a
	// spawned command or the re-invocation prefix of Target otherwise.
	Argv []string

	// Environment replaces the inherited environment when non-nil.
	// In-process commands ignore it.
	Environment []string

	Output string
	Inputs []InputInfo

	// Target is the resolved tool for an in-process command.
	Target *driver.ToolContext

	prefixLen int
}

// ToolArgs returns the argument vector handed to the tool's entry function:
// the tool name followed by the command arguments.
func (c *Command) ToolArgs() []string {
	args := make([]string, 0, len(c.Argv)-c.prefixLen+1)
	args = append(args, c.Tool)
	return append(args, c.Argv[c.prefixLen:]...)
}

// Args returns the arguments after the executable prefix.
func (c *Command) Args() []string {
	return append([]string(nil), c.Argv[c.prefixLen:]...)
}

// Print writes the command the way "-###" shows it: every argument quoted,
// in-process commands marked as such.
func (c *Command) Print(w io.Writer) error {
	var b strings.Builder
	for _, a := range c.Argv {
		b.WriteByte(' ')
		b.WriteString(driver.QuoteArg(a))
	}
	if c.Kind == KindInProcess {
		b.WriteString(" (in-process)")
	}
	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())
	return err
}

// Options are the compilation-wide settings that affect command building.
type Options struct {
	// InProcess permits in-process commands at all.
	InProcess bool

	// GenDiagnostics requests reproducer generation, which needs every
	// command isolated in its own process.
	GenDiagnostics bool
}

// Compilation is the ordered job list of one driver invocation.
type Compilation struct {
	Options Options

	mu   sync.Mutex
	jobs []*Command
}

// NewCompilation creates an empty job list.
func NewCompilation(opts Options) *Compilation {
	return &Compilation{Options: opts}
}

// Add appends cmd to the job list.
func (c *Compilation) Add(cmd *Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, cmd)
}

// Jobs returns the commands in construction order.
func (c *Compilation) Jobs() []*Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Command(nil), c.jobs...)
}

// Print writes every command of the job list.
func (c *Compilation) Print(w io.Writer) error {
	for _, cmd := range c.Jobs() {
		if err := cmd.Print(w); err != nil {
			return err
		}
	}
	return nil
}
