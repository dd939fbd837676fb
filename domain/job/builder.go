package job

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/multicall/domain/driver"
)

// Request describes the command a tool wants to emit.
type Request struct {
	// Tool is the target tool name, e.g. "ld".
	Tool string

	Output string
	Inputs []InputInfo

	// Args is the flat argument list after the tool name.
	Args []string

	// Executable overrides the program to start. Setting it forces a
	// spawned command.
	Executable string

	// Environment, when non-nil, replaces the inherited environment of a
	// spawned command. Entries must be KEY=VALUE.
	Environment []string

	// InProcess permits running the tool in-process for this command.
	InProcess bool
}

// Builder constructs commands relative to the context of the running tool.
type Builder struct {
	tc *driver.ToolContext
}

// NewBuilder creates a builder for the tool described by tc.
func NewBuilder(tc *driver.ToolContext) *Builder {
	return &Builder{tc: tc}
}

// Build constructs the command for req and appends it to c.
//
// The command runs in-process when both req and the compilation permit it,
// the compilation is not generating diagnostics, no executable override is given and the target
// resolves to a callable embedded tool. Otherwise the command spawns either
// the override or this binary re-invoked for the target tool.
func (b *Builder) Build(c *Compilation, req Request) (*Command, error) {
	if c == nil {
		return nil, ErrNilCompilation
	}
	if req.Tool == "" && req.Executable == "" {
		return nil, ErrEmptyTool
	}
	if err := validateEnvironment(req.Environment); err != nil {
		return nil, err
	}

	cmd := &Command{
		ID:     uuid.NewString(),
		Tool:   req.Tool,
		Output: req.Output,
		Inputs: append([]InputInfo(nil), req.Inputs...),
	}

	var target *driver.ToolContext
	if req.Tool != "" {
		// A tool that is not embedded is started by name below.
		if tc, err := b.tc.ForTool(req.Tool); err == nil {
			target = tc
		}
	}

	var prefix []string
	switch {
	case req.InProcess && c.Options.InProcess && !c.Options.GenDiagnostics && req.Executable == "" &&
		target != nil && target.Main != nil:
		cmd.Kind = KindInProcess
		cmd.Target = target
		prefix = target.ExecutionArgs()
		cmd.Executable = target.BinaryPath
	case req.Executable != "":
		cmd.Kind = KindSpawn
		prefix = []string{req.Executable}
		cmd.Executable = req.Executable
	case target != nil:
		cmd.Kind = KindSpawn
		prefix = target.ExecutionArgs()
		cmd.Executable = target.BinaryPath
	default:
		// Not embedded: start the tool by name.
		cmd.Kind = KindSpawn
		prefix = []string{req.Tool}
		cmd.Executable = req.Tool
	}

	if cmd.Kind == KindSpawn && req.Environment != nil {
		cmd.Environment = append([]string{}, req.Environment...)
	}

	cmd.prefixLen = len(prefix)
	cmd.Argv = make([]string, 0, len(prefix)+len(req.Args))
	cmd.Argv = append(cmd.Argv, prefix...)
	cmd.Argv = append(cmd.Argv, req.Args...)

	c.Add(cmd)
	return cmd, nil
}

func validateEnvironment(env []string) error {
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i <= 0 {
			return fmt.Errorf("%w: %q", ErrInvalidEnvironment, kv)
		}
	}
	return nil
}
