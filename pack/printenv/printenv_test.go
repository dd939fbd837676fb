package printenv

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/felixgeelhaar/multicall/domain/driver"
)

func newApp(env ...string) (*App, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	tc := driver.NewRootContext("printenv", nil, driver.WithStdio(strings.NewReader(""), &stdout, &stderr))
	a := New(tc)
	a.environ = func() []string { return env }
	return a, &stdout, &stderr
}

func TestPrintenv(t *testing.T) {
	t.Parallel()

	env := []string{"PATH=/bin", "HOME=/home/dev", "EMPTY=", "LANG=C=UTF-8"}
	tests := []struct {
		name     string
		args     []string
		wantCode int
		want     string
	}{
		{"all sorted", []string{"printenv"}, 0, "EMPTY=\nHOME=/home/dev\nLANG=C=UTF-8\nPATH=/bin\n"},
		{"named", []string{"printenv", "HOME", "LANG"}, 0, "/home/dev\nC=UTF-8\n"},
		{"empty value", []string{"printenv", "EMPTY"}, 0, "\n"},
		{"missing", []string{"printenv", "HOME", "NOPE", "PATH"}, 1, "/home/dev\n/bin\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			a, stdout, stderr := newApp(env...)
			if code := a.Run(context.Background(), tt.args); code != tt.wantCode {
				t.Errorf("Run() = %d, want %d", code, tt.wantCode)
			}
			if stdout.String() != tt.want {
				t.Errorf("stdout = %q, want %q", stdout.String(), tt.want)
			}
			if stderr.Len() != 0 {
				t.Errorf("stderr = %q, want empty", stderr.String())
			}
		})
	}
}

func TestPrintenv_UnknownFlag(t *testing.T) {
	t.Parallel()

	a, _, stderr := newApp()
	if code := a.Run(context.Background(), []string{"printenv", "--bogus"}); code != 2 {
		t.Errorf("Run() = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "unknown flag") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestEntry_ProcessEnvironment(t *testing.T) {
	t.Setenv("MULTICALL_PRINTENV_TEST", "visible")

	var stdout bytes.Buffer
	reg := driver.MustRegistry(Entry())
	root := driver.NewRootContext("printenv", reg, driver.WithStdio(strings.NewReader(""), &stdout, &bytes.Buffer{}))
	tc, ok := root.NewContext([]string{"printenv"})
	if !ok {
		t.Fatal("printenv did not resolve")
	}
	if code := tc.CallToolMain(context.Background(), []string{"printenv", "MULTICALL_PRINTENV_TEST"}); code != 0 {
		t.Fatalf("CallToolMain() = %d", code)
	}
	if stdout.String() != "visible\n" {
		t.Errorf("stdout = %q", stdout.String())
	}
}
