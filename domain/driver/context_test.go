package driver

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNewContext_DirectInvocation(t *testing.T) {
	t.Parallel()

	root := NewRootContext("/opt/bin/x86_64-clang-cl-18", testRegistry(t))

	tc, ok := root.NewContext([]string{"/opt/bin/x86_64-clang-cl-18", "-c", "a.c"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if tc.VerbatimToolName != "clang-cl" {
		t.Errorf("VerbatimToolName = %q, want clang-cl", tc.VerbatimToolName)
	}
	if tc.NeedsPrependArg {
		t.Error("NeedsPrependArg should be false for a direct invocation")
	}
	if got := tc.CallToolMain(context.Background(), nil); got != 20 {
		t.Errorf("CallToolMain() = %d, want 20", got)
	}
	if got := tc.ProgramName(); got != "x86_64-clang-cl-18" {
		t.Errorf("ProgramName() = %q", got)
	}
	if got := tc.ToolArgs([]string{"/opt/bin/x86_64-clang-cl-18", "-c"}); !reflect.DeepEqual(got, []string{"/opt/bin/x86_64-clang-cl-18", "-c"}) {
		t.Errorf("ToolArgs() = %v", got)
	}
}

func TestNewContext_SelfNameRecursion(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	root := NewRootContext("/usr/bin/multicall", reg)

	viaDriver, ok := root.NewContext([]string{"/usr/bin/multicall", "clang", "-c", "a.c"})
	if !ok {
		t.Fatal("NewContext() via driver found no tool")
	}
	direct, ok := root.NewContext([]string{"clang", "-c", "a.c"})
	if !ok {
		t.Fatal("NewContext() direct found no tool")
	}

	if viaDriver.VerbatimToolName != direct.VerbatimToolName {
		t.Errorf("verbatim names differ: %q vs %q", viaDriver.VerbatimToolName, direct.VerbatimToolName)
	}
	ctx := context.Background()
	if viaDriver.CallToolMain(ctx, nil) != direct.CallToolMain(ctx, nil) {
		t.Error("driver and direct invocation should reach the same entry function")
	}

	if viaDriver.BinaryPath != "/usr/bin/multicall" {
		t.Errorf("BinaryPath = %q, want /usr/bin/multicall", viaDriver.BinaryPath)
	}
	if viaDriver.ProvidedToolName != "clang" {
		t.Errorf("ProvidedToolName = %q, want clang", viaDriver.ProvidedToolName)
	}
	if !viaDriver.NeedsPrependArg {
		t.Error("NeedsPrependArg should be true when the tool came from the second argument")
	}

	gotArgs := viaDriver.ToolArgs([]string{"/usr/bin/multicall", "clang", "-c", "a.c"})
	if !reflect.DeepEqual(gotArgs, []string{"clang", "-c", "a.c"}) {
		t.Errorf("ToolArgs() = %v", gotArgs)
	}
	if got := viaDriver.ExecutionArgs(); !reflect.DeepEqual(got, []string{"/usr/bin/multicall", "clang"}) {
		t.Errorf("ExecutionArgs() = %v", got)
	}
	if got := viaDriver.ExecutionArgsString(); got != `"/usr/bin/multicall" "clang"` {
		t.Errorf("ExecutionArgsString() = %s", got)
	}
}

func TestNewContext_DriverNameCaseAndSuffix(t *testing.T) {
	t.Parallel()

	root := NewRootContext(`C:\llvm\MULTICALL.EXE`, testRegistry(t))
	tc, ok := root.NewContext([]string{`C:\llvm\MULTICALL.EXE`, "cc"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if tc.VerbatimToolName != "cc" {
		t.Errorf("VerbatimToolName = %q, want cc", tc.VerbatimToolName)
	}
}

func TestNewContext_NoMatch(t *testing.T) {
	t.Parallel()

	root := NewRootContext("libclangd", testRegistry(t))

	if _, ok := root.NewContext([]string{"libclangd"}); ok {
		t.Error("libclangd should not resolve")
	}
	if _, ok := root.NewContext([]string{"multicall", "libclangd"}); ok {
		t.Error("multicall libclangd should not resolve")
	}
	if _, ok := root.NewContext(nil); ok {
		t.Error("empty args should not resolve")
	}
}

func TestNewContext_FallsBackToSecondArgument(t *testing.T) {
	t.Parallel()

	root := NewRootContext("./renamed-binary", testRegistry(t))
	tc, ok := root.NewContext([]string{"./renamed-binary", "cc", "x.o"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if tc.VerbatimToolName != "cc" || tc.ProvidedToolName != "cc" {
		t.Errorf("got verbatim=%q provided=%q", tc.VerbatimToolName, tc.ProvidedToolName)
	}
}

func TestNewContext_SameToolReturnsReceiver(t *testing.T) {
	t.Parallel()

	root := NewRootContext("clang-cl.exe", testRegistry(t))
	first, ok := root.NewContext([]string{"clang-cl.exe"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}

	again, ok := first.NewContext([]string{"multicall", "clang-cl"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if again != first {
		t.Error("asking for the same verbatim tool should return the receiver")
	}

	other, ok := first.NewContext([]string{"multicall", "cc"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if other == first {
		t.Error("a different tool needs a new context")
	}
}

func TestNewContext_InheritsCleanupAndStdio(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	root := NewRootContext("multicall", testRegistry(t), WithCleanup(true), WithStdio(nil, &out, &out))

	tc, ok := root.NewContext([]string{"multicall", "cc"})
	if !ok {
		t.Fatal("NewContext() found no tool")
	}
	if !tc.Cleanup {
		t.Error("Cleanup should be inherited")
	}
	if tc.Stdout != &out {
		t.Error("Stdout should be inherited")
	}
	if tc.Registry() != root.Registry() {
		t.Error("registry should be inherited")
	}
	if tc.Argv0() != "multicall" {
		t.Errorf("Argv0() = %q", tc.Argv0())
	}
}

func TestNewContext_WithoutRegistry(t *testing.T) {
	t.Parallel()

	root := NewRootContext("single-tool", nil)
	tc, ok := root.NewContext([]string{"single-tool"})
	if !ok {
		t.Fatal("NewContext() without registry should still describe the binary")
	}
	if got := tc.CallToolMain(context.Background(), nil); got != NotCallable {
		t.Errorf("CallToolMain() = %d, want NotCallable", got)
	}
}

func TestToolContext_CopiesDoNotAlias(t *testing.T) {
	t.Parallel()

	root := NewRootContext("multicall", testRegistry(t))
	var buf bytes.Buffer
	c := root.WithCleanup(true).WithStdio(nil, &buf, nil)

	if root.Cleanup {
		t.Error("WithCleanup must not modify the receiver")
	}
	if root.Stdout == c.Stdout {
		t.Error("WithStdio must not modify the receiver")
	}
	if c.Stderr != root.Stderr {
		t.Error("nil stream should keep the current one")
	}
}

func TestToolContext_ForTool(t *testing.T) {
	t.Parallel()

	root := NewRootContext("/usr/bin/multicall", testRegistry(t), WithCleanup(true))
	target, err := root.ForTool("clang-cl")
	if err != nil {
		t.Fatalf("ForTool() error = %v", err)
	}
	if got := target.ExecutionArgs(); !reflect.DeepEqual(got, []string{"/usr/bin/multicall", "clang-cl"}) {
		t.Errorf("ExecutionArgs() = %v", got)
	}
	if got := target.CallToolMain(context.Background(), nil); got != 20 {
		t.Errorf("CallToolMain() = %d, want 20", got)
	}
	if !target.Cleanup || target.Registry() != root.Registry() {
		t.Error("ForTool() should inherit the root settings")
	}
	if root.VerbatimToolName != "" || root.NeedsPrependArg {
		t.Error("ForTool() must not modify the receiver")
	}
}

func TestToolContext_ForToolErrors(t *testing.T) {
	t.Parallel()

	root := NewRootContext("/usr/bin/multicall", testRegistry(t))
	if _, err := root.ForTool("gcc"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("ForTool(gcc) error = %v, want ErrToolNotFound", err)
	}

	bare := NewRootContext("/usr/bin/multicall", nil)
	if _, err := bare.ForTool("cc"); !errors.Is(err, ErrNoRegistry) {
		t.Errorf("ForTool() without registry error = %v, want ErrNoRegistry", err)
	}
}

// The argv that re-invokes a tool must select that tool again, whatever name
// the running binary has.
func TestToolContext_ForToolReinvokesTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	binary := filepath.Join(dir, "multicall")
	if err := os.WriteFile(binary, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	link := filepath.Join(dir, "cc")
	symlinks := os.Symlink(binary, link) == nil
	canonical, err := filepath.EvalSymlinks(binary)
	if err != nil {
		t.Fatalf("EvalSymlinks() error = %v", err)
	}

	tests := []struct {
		name     string
		argv0    string
		driver   string
		tool     string
		wantArgs []string
		symlink  bool
	}{
		{"driver binary", "/usr/bin/multicall", "", "clang-cl", []string{"/usr/bin/multicall", "clang-cl"}, false},
		{"unrelated binary name", "/usr/bin/toolbox", "", "clang-cl", []string{"/usr/bin/toolbox", "clang-cl"}, false},
		{"binary named after the target", "/nonexistent/bin/clang-cl", "", "clang-cl", []string{"/nonexistent/bin/clang-cl"}, false},
		{"copy named after another tool", "/nonexistent/bin/cc", "", "clang-cl", []string{"clang-cl"}, false},
		{"windows copy", `C:\bin\cc.exe`, "", "clang", []string{"clang"}, false},
		{"symlink named after another tool", link, "", "clang-cl", []string{canonical, "clang-cl"}, true},
		{"driver named like a tool", "/usr/bin/cc", "cc", "clang", []string{"/usr/bin/cc", "clang"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.symlink && !symlinks {
				t.Skip("symlinks unsupported")
			}

			root := NewRootContext(tt.argv0, testRegistry(t), WithDriverName(tt.driver))
			target, err := root.ForTool(tt.tool)
			if err != nil {
				t.Fatalf("ForTool() error = %v", err)
			}
			if got := target.ExecutionArgs(); !reflect.DeepEqual(got, tt.wantArgs) {
				t.Errorf("ExecutionArgs() = %v, want %v", got, tt.wantArgs)
			}

			argv := append(target.ExecutionArgs(), "-o", "out")
			child, ok := root.NewContext(argv)
			if !ok {
				t.Fatalf("NewContext(%v) found no tool", argv)
			}
			if child.VerbatimToolName != target.VerbatimToolName {
				t.Errorf("re-invocation runs %q, want %q", child.VerbatimToolName, target.VerbatimToolName)
			}
			if got := child.ToolArgs(argv)[1:]; !reflect.DeepEqual(got, []string{"-o", "out"}) {
				t.Errorf("ToolArgs() = %v, want the arguments after the tool name", got)
			}
		})
	}
}

func TestNewContext_DriverNamedLikeTool(t *testing.T) {
	t.Parallel()

	root := NewRootContext("/usr/bin/cc", testRegistry(t), WithDriverName("cc"))

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"/usr/bin/cc", "a.c"}, "cc"},
		{[]string{"/usr/bin/cc"}, "cc"},
		{[]string{"/usr/bin/cc", "clang-cl", "a.c"}, "clang-cl"},
	}
	for _, tt := range tests {
		tc, ok := root.NewContext(tt.args)
		if !ok {
			t.Errorf("NewContext(%v) found no tool", tt.args)
			continue
		}
		if tc.VerbatimToolName != tt.want {
			t.Errorf("NewContext(%v) = %q, want %q", tt.args, tc.VerbatimToolName, tt.want)
		}
	}
}

func TestSetCanonicalPrefixes_Symlink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "multicall")
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	link := filepath.Join(dir, "cc")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tc := NewRootContext(link, testRegistry(t))
	tc.SetCanonicalPrefixes(true)

	if filepath.Base(tc.BinaryPath) != "multicall" {
		t.Errorf("BinaryPath = %q, want the symlink target", tc.BinaryPath)
	}
	if tc.ProvidedToolName != "cc" {
		t.Errorf("ProvidedToolName = %q, want cc", tc.ProvidedToolName)
	}
	if !tc.NeedsPrependArg {
		t.Error("NeedsPrependArg should be set after symlink canonicalization")
	}
	args := tc.ExecutionArgs()
	if len(args) != 2 || args[1] != "cc" {
		t.Errorf("ExecutionArgs() = %v", args)
	}
}

func TestSetCanonicalPrefixes_NonCanonicalKeepsPath(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "multicall")
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("write target: %v", err)
	}
	link := filepath.Join(dir, "cc")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	tc := NewRootContext(link, testRegistry(t))
	tc.SetCanonicalPrefixes(false)

	if tc.BinaryPath != link {
		t.Errorf("BinaryPath = %q, want %q", tc.BinaryPath, link)
	}
	if tc.ProvidedToolName != "" || tc.NeedsPrependArg {
		t.Error("an unchanged binary name needs no provided tool name")
	}
}

func TestQuoteArg(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  string
	}{
		{"plain", `"plain"`},
		{`a"b`, `"a\"b"`},
		{`$HOME`, `"\$HOME"`},
		{`c:\x`, `"c:\\x"`},
		{"", `""`},
	}
	for _, tt := range tests {
		if got := QuoteArg(tt.input); got != tt.want {
			t.Errorf("QuoteArg(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}
