package driver

import (
	"context"
	"fmt"
)

// MainFunc is the entry point of an embedded tool. args[0] is the program
// name the tool should report; the remaining elements are its arguments.
// The return value is the tool's exit status.
type MainFunc func(ctx context.Context, args []string, tc *ToolContext) int

// Entry binds a tool name to its entry function.
type Entry struct {
	Name string
	Main MainFunc
	// Description is an optional one-line summary listed in help output.
	Description string
}

// Registry is the ordered table of tools embedded in the current binary.
//
// A registry is built once at process start and is read-only afterwards, so
// lookups need no synchronization. Names do not have to be unique: resolution
// picks the longest match and falls back to registration order on ties.
type Registry struct {
	entries []Entry
}

// NewRegistry creates a registry from entries, preserving their order.
func NewRegistry(entries ...Entry) (*Registry, error) {
	r := &Registry{entries: make([]Entry, 0, len(entries))}
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d: %w", i, ErrEmptyName)
		}
		if e.Main == nil {
			return nil, fmt.Errorf("entry %q: %w", e.Name, ErrNoMain)
		}
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on invalid entries. It is meant
// for the static tool tables assembled at init time.
func MustRegistry(entries ...Entry) *Registry {
	r, err := NewRegistry(entries...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entries returns a copy of the registered entries in registration order.
func (r *Registry) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

// Lookup returns the first entry registered under exactly name.
func (r *Registry) Lookup(name string) (Entry, bool) {
	if r == nil {
		return Entry{}, false
	}
	for _, e := range r.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of registered entries.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}
