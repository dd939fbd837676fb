package wasmtool

import "errors"

var (
	// ErrHostClosed indicates the host was used after Close.
	ErrHostClosed = errors.New("wasm host closed")

	// ErrCompile indicates a module failed to compile.
	ErrCompile = errors.New("failed to compile wasm module")

	// ErrNoStart indicates a module does not export _start.
	ErrNoStart = errors.New("wasm module has no _start export")

	// ErrUnknownModule indicates no module was compiled under the name.
	ErrUnknownModule = errors.New("unknown wasm module")

	// ErrInterrupted indicates a call was cancelled or timed out.
	ErrInterrupted = errors.New("wasm tool interrupted")
)
