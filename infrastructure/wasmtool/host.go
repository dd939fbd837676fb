// Package wasmtool runs WebAssembly (WASI) modules as embedded tools using
// wazero.
//
// Each configured module is compiled once when it is registered. Every call
// instantiates a fresh, anonymous module instance with the arguments, standard
// streams and environment of that call, so a tool may run concurrently with
// itself.
package wasmtool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"github.com/felixgeelhaar/multicall/domain/config"
	"github.com/felixgeelhaar/multicall/domain/driver"
	"github.com/felixgeelhaar/multicall/infrastructure/logging"
)

// Config configures the host runtime.
type Config struct {
	// MaxMemory bounds the linear memory of each instance in bytes.
	MaxMemory int64

	// MaxExecTime bounds a single call. Zero means no limit.
	MaxExecTime time.Duration
}

// DefaultConfig returns a 64MB memory limit and no time limit.
func DefaultConfig() Config {
	return Config{MaxMemory: 64 * 1024 * 1024}
}

// Option configures a Host.
type Option func(*Config)

// WithMaxMemory sets the per-instance memory limit.
func WithMaxMemory(bytes int64) Option {
	return func(c *Config) {
		c.MaxMemory = bytes
	}
}

// WithMaxExecTime sets the per-call time limit.
func WithMaxExecTime(d time.Duration) Option {
	return func(c *Config) {
		c.MaxExecTime = d
	}
}

// Host owns the wazero runtime shared by all WebAssembly tools.
type Host struct {
	runtime wazero.Runtime
	config  Config

	mu      sync.Mutex
	modules map[string]wazero.CompiledModule
	closed  bool
}

// New creates a host with WASI preview 1 available to its modules.
func New(ctx context.Context, opts ...Option) (*Host, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	runtimeConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MaxMemory > 0 {
		// WASM memory is in pages of 64KB
		maxPages := uint32(cfg.MaxMemory / 65536)
		if maxPages == 0 {
			maxPages = 1
		}
		runtimeConfig = runtimeConfig.WithMemoryLimitPages(maxPages)
	}

	runtime := wazero.NewRuntimeWithConfig(ctx, runtimeConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	return &Host{
		runtime: runtime,
		config:  cfg,
		modules: make(map[string]wazero.CompiledModule),
	}, nil
}

// Compile compiles module bytes under name. A later Compile with the same
// name replaces the module.
func (h *Host) Compile(ctx context.Context, name string, wasm []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHostClosed
	}

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCompile, name, err)
	}
	if _, ok := compiled.ExportedFunctions()[startFunction]; !ok {
		_ = compiled.Close(ctx)
		return fmt.Errorf("%w: %s", ErrNoStart, name)
	}

	if old, ok := h.modules[name]; ok {
		_ = old.Close(ctx)
	}
	h.modules[name] = compiled
	return nil
}

// Load reads and compiles the module a tool configuration points at and
// returns its registry entry.
func (h *Host) Load(ctx context.Context, tool config.WasmToolConfig) (driver.Entry, error) {
	wasm, err := os.ReadFile(tool.Path)
	if err != nil {
		return driver.Entry{}, fmt.Errorf("read wasm tool %s: %w", tool.Name, err)
	}
	if err := h.Compile(ctx, tool.Name, wasm); err != nil {
		return driver.Entry{}, err
	}

	logging.Debug().
		Add(logging.Component("wasmtool")).
		Add(logging.ToolName(tool.Name)).
		Add(logging.Str("path", tool.Path)).
		Msg("compiled wasm tool")

	e := h.Entry(tool.Name)
	e.Description = tool.Description
	return e, nil
}

// Entries loads every configured tool in order.
func (h *Host) Entries(ctx context.Context, tools []config.WasmToolConfig) ([]driver.Entry, error) {
	entries := make([]driver.Entry, 0, len(tools))
	for _, t := range tools {
		e, err := h.Load(ctx, t)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Entry returns a registry entry that runs the module compiled under name.
func (h *Host) Entry(name string) driver.Entry {
	return driver.Entry{
		Name: name,
		Main: func(ctx context.Context, args []string, tc *driver.ToolContext) int {
			code, err := h.Run(ctx, name, args, tc)
			if err != nil {
				fmt.Fprintf(tc.Stderr, "%s: %v\n", tc.ProgramName(), err)
				logging.Error().
					Add(logging.Component("wasmtool")).
					Add(logging.ToolName(name)).
					Add(logging.ErrorField(err)).
					Msg("wasm tool failed")
			}
			return code
		},
	}
}

// Run instantiates the module compiled under name and runs its _start
// function with args as argv. The module reads and writes the streams of tc
// and sees the environment of the process. The exit code is the value passed
// to proc_exit, or 0 when _start returns normally.
//
// A trap or cancelled call returns exit code 1 and an error.
func (h *Host) Run(ctx context.Context, name string, args []string, tc *driver.ToolContext) (int, error) {
	h.mu.Lock()
	compiled, ok := h.modules[name]
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return 1, ErrHostClosed
	}
	if !ok {
		return 1, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}

	if h.config.MaxExecTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.MaxExecTime)
		defer cancel()
	}

	mod, err := h.runtime.InstantiateModule(ctx, compiled, moduleConfig(args, tc))
	if mod != nil {
		defer mod.Close(ctx)
	}
	if err == nil {
		return 0, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if ctx.Err() != nil {
			return 1, fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
		}
		return int(exitErr.ExitCode()), nil
	}
	return 1, fmt.Errorf("run %s: %w", name, err)
}

func moduleConfig(args []string, tc *driver.ToolContext) wazero.ModuleConfig {
	// Anonymous so that concurrent calls of one tool do not collide.
	mc := wazero.NewModuleConfig().
		WithName("").
		WithArgs(args...).
		WithSysWalltime().
		WithSysNanotime()

	if tc.Stdin != nil {
		mc = mc.WithStdin(tc.Stdin)
	}
	if tc.Stdout != nil {
		mc = mc.WithStdout(tc.Stdout)
	}
	if tc.Stderr != nil {
		mc = mc.WithStderr(tc.Stderr)
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			mc = mc.WithEnv(k, v)
		}
	}
	return mc
}

// Modules returns the number of compiled modules.
func (h *Host) Modules() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.modules)
}

// Close releases the runtime and every compiled module.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.modules = nil
	return h.runtime.Close(ctx)
}

const startFunction = "_start"
