// Package driver provides tool registration, invocation-name resolution and
// the execution context handed to every embedded tool.
package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ToolContext identifies a tool invocation inside the multi-call binary.
//
// The root context is created once from argv[0]. Contexts for dispatched tools
// are derived from it with NewContext and are not modified afterwards.
type ToolContext struct {
	// BinaryPath is the path used to re-invoke the current binary,
	// e.g. "/usr/bin/multicall" or "C:\bin\clang-cl.exe".
	BinaryPath string

	// ProvidedToolName is the tool name when it was given separately from
	// the binary name, as in "multicall cc ...".
	ProvidedToolName string

	// VerbatimToolName is the registered name that matched. For
	// "i386-cc-15" it is "cc".
	VerbatimToolName string

	// Main is the entry function of the matched tool, nil when none matched.
	Main MainFunc

	// NeedsPrependArg reports that re-invoking this tool out of process
	// requires ProvidedToolName as an extra leading argument.
	NeedsPrependArg bool

	// Cleanup reports whether the tool must release the state it allocated
	// before returning. A tool that runs once per process skips cleanup to
	// speed up shutdown; tools called in-process by another tool must not.
	Cleanup bool

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	registry   *Registry
	driverName string
	argv0      string
	shifted    bool
}

// Option configures a root ToolContext.
type Option func(*ToolContext)

// WithDriverName overrides the generic multiplexer name (default "multicall").
func WithDriverName(name string) Option {
	return func(tc *ToolContext) {
		if name != "" {
			tc.driverName = name
		}
	}
}

// WithStdio sets the standard streams handed to tools.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(tc *ToolContext) {
		tc.Stdin = stdin
		tc.Stdout = stdout
		tc.Stderr = stderr
	}
}

// WithCleanup sets the cleanup flag of the root context.
func WithCleanup(cleanup bool) Option {
	return func(tc *ToolContext) {
		tc.Cleanup = cleanup
	}
}

// NewRootContext creates the process-level context from argv[0] and the tool
// table of the binary. The registry may be nil for a binary that embeds a
// single tool unknown to the driver.
func NewRootContext(argv0 string, registry *Registry, opts ...Option) *ToolContext {
	tc := &ToolContext{
		BinaryPath: argv0,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		registry:   registry,
		driverName: DefaultDriverName,
		argv0:      argv0,
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc
}

// Registry returns the tool table this context resolves against.
func (tc *ToolContext) Registry() *Registry {
	return tc.registry
}

// DriverName returns the generic multiplexer name.
func (tc *ToolContext) DriverName() string {
	return tc.driverName
}

// Argv0 returns the argv[0] the process was started with, falling back to
// BinaryPath when it is unknown.
func (tc *ToolContext) Argv0() string {
	if tc.argv0 != "" {
		return tc.argv0
	}
	return tc.BinaryPath
}

// ProgramName returns the name of the tool including any target triple or
// version decoration, e.g. "x86_64-cc-18".
func (tc *ToolContext) ProgramName() string {
	if tc.ProvidedToolName != "" {
		return tc.ProvidedToolName
	}
	return baseName(tc.BinaryPath)
}

// ExecutionArgs returns the leading arguments that re-invoke this tool.
func (tc *ToolContext) ExecutionArgs() []string {
	if tc.NeedsPrependArg && tc.ProvidedToolName != "" {
		return []string{tc.BinaryPath, tc.ProvidedToolName}
	}
	return []string{tc.BinaryPath}
}

// ExecutionArgsString returns ExecutionArgs quoted for display.
func (tc *ToolContext) ExecutionArgsString() string {
	args := tc.ExecutionArgs()
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = QuoteArg(a)
	}
	return strings.Join(quoted, " ")
}

// ToolArgs returns the argument vector the tool should see for args. When the
// tool was selected by the second argument ("multicall cc -o x"), the driver
// name is dropped so the tool sees "cc -o x".
func (tc *ToolContext) ToolArgs(args []string) []string {
	if tc.shifted && len(args) >= 2 {
		return append([]string(nil), args[1:]...)
	}
	return append([]string(nil), args...)
}

// CallToolMain invokes the tool in-process. It returns NotCallable when the
// context has no entry function.
func (tc *ToolContext) CallToolMain(ctx context.Context, args []string) int {
	if tc.Main == nil {
		return NotCallable
	}
	return tc.Main(ctx, args, tc)
}

// NewContext resolves args against the registry and returns a context bound
// to the matched tool. If the match is the tool this context already
// describes, the receiver itself is returned, so "clang-cl.exe" keeps its own
// identity instead of becoming "multicall clang-cl".
func (tc *ToolContext) NewContext(args []string) (*ToolContext, bool) {
	if len(args) == 0 {
		return nil, false
	}

	var next *ToolContext
	if tc.registry == nil {
		next = &ToolContext{BinaryPath: args[0]}
	} else {
		var ok bool
		if len(args) >= 2 {
			next, ok = tc.discover(args[0], args[1], true)
		} else {
			next, ok = tc.discover(args[0], "", false)
		}
		if !ok {
			return nil, false
		}
	}

	if tc.VerbatimToolName != "" && next.VerbatimToolName == tc.VerbatimToolName {
		return tc, true
	}

	next.Cleanup = tc.Cleanup
	next.Stdin, next.Stdout, next.Stderr = tc.Stdin, tc.Stdout, tc.Stderr
	next.registry = tc.registry
	next.driverName = tc.driverName
	next.argv0 = tc.argv0
	return next, true
}

// ForTool returns a context that targets the registered tool matching name
// through this binary. It is used to run or re-invoke another embedded tool
// from inside a tool.
//
// The re-invocation argv of the result always selects the target in a child
// process: the binary followed by name when the binary's own file name selects
// no tool, the binary alone when its file name already selects the target, and
// otherwise the canonical binary. When neither path can select the target, as
// for a copied "cc" binary asked for "ld", the tool is started by name.
func (tc *ToolContext) ForTool(name string) (*ToolContext, error) {
	if tc.registry == nil {
		return nil, ErrNoRegistry
	}
	e, ok := tc.registry.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	next := tc.Clone()
	next.VerbatimToolName = e.Name
	next.Main = e.Main
	next.shifted = false
	next.BinaryPath, next.ProvidedToolName, next.NeedsPrependArg = tc.reinvocation(name, e.Name)
	return next, nil
}

// reinvocation returns the binary, provided tool name and prepend flag that
// make a child process of this binary run tool.
func (tc *ToolContext) reinvocation(name, tool string) (string, string, bool) {
	for _, path := range []string{tc.BinaryPath, executablePath(tc.Argv0(), true)} {
		e, ok := tc.selectedBy(path)
		switch {
		case !ok:
			return path, name, true
		case e.Name == tool:
			return path, "", false
		}
	}
	return name, "", false
}

// selectedBy returns the tool a process started as path runs without further
// arguments. A path naming the driver selects none.
func (tc *ToolContext) selectedBy(path string) (Entry, bool) {
	if strings.EqualFold(CleanToolName(path), tc.driverName) {
		return Entry{}, false
	}
	return tc.registry.Resolve(path)
}

func (tc *ToolContext) discover(arg0, arg1 string, hasArg1 bool) (*ToolContext, bool) {
	self := strings.EqualFold(CleanToolName(arg0), tc.driverName)
	if hasArg1 && self {
		if next, ok := tc.discoverSecond(arg0, arg1); ok {
			return next, true
		}
	}

	if e, ok := tc.registry.Resolve(arg0); ok {
		return &ToolContext{
			BinaryPath:       arg0,
			Main:             e.Main,
			VerbatimToolName: e.Name,
		}, true
	}

	if hasArg1 && !self {
		return tc.discoverSecond(arg0, arg1)
	}
	return nil, false
}

func (tc *ToolContext) discoverSecond(arg0, arg1 string) (*ToolContext, bool) {
	next, ok := tc.discover(arg1, "", false)
	if !ok {
		return nil, false
	}
	next.BinaryPath = arg0
	next.ProvidedToolName = arg1
	next.NeedsPrependArg = true
	next.shifted = true
	return next, true
}

// Clone returns a shallow copy of the context.
func (tc *ToolContext) Clone() *ToolContext {
	c := *tc
	return &c
}

// WithCleanup returns a copy of the context with the cleanup flag set.
func (tc *ToolContext) WithCleanup(cleanup bool) *ToolContext {
	c := tc.Clone()
	c.Cleanup = cleanup
	return c
}

// WithStdio returns a copy of the context writing to the given streams.
// Nil streams keep the current ones.
func (tc *ToolContext) WithStdio(stdin io.Reader, stdout, stderr io.Writer) *ToolContext {
	c := tc.Clone()
	if stdin != nil {
		c.Stdin = stdin
	}
	if stdout != nil {
		c.Stdout = stdout
	}
	if stderr != nil {
		c.Stderr = stderr
	}
	return c
}

// SetCanonicalPrefixes re-derives BinaryPath from argv[0]. With canonical set
// the path is made absolute and symlinks are resolved; otherwise argv[0] is
// only looked up in PATH when it does not name an existing file.
//
// When the resolved binary has a different file name than the one invoked,
// as happens for a "cc -> multicall" symlink, the invoked name is kept as
// ProvidedToolName so the tool can still be re-invoked.
func (tc *ToolContext) SetCanonicalPrefixes(canonical bool) {
	tool := baseName(tc.BinaryPath)
	tc.BinaryPath = executablePath(tc.Argv0(), canonical)

	if baseName(tc.BinaryPath) != tool && tc.ProvidedToolName == "" {
		tc.ProvidedToolName = trimExe(tool)
		tc.NeedsPrependArg = true
	}
}

func executablePath(argv0 string, canonical bool) string {
	path := argv0
	if _, err := os.Stat(path); err != nil {
		if found, err := exec.LookPath(path); err == nil {
			path = found
		}
	}
	if !canonical {
		return path
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		path = resolved
	}
	return path
}

// QuoteArg quotes an argument the way commands are echoed for display.
func QuoteArg(arg string) string {
	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('"')
	for i := 0; i < len(arg); i++ {
		switch c := arg[i]; c {
		case '"', '\\', '$':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
