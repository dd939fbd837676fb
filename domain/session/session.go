// Package session provides the per-invocation state shared by the code of one
// tool run: a session owns lazily created allocators and is installed as the
// current session of a lane while it is open.
package session

import (
	"reflect"
	"sync"

	"github.com/google/uuid"
)

// Session is the state of one tool run, such as one link.
//
// Opening a session installs it on a lane; Close tears down its allocators in
// the order they were created and restores the lane. Sessions started
// concurrently on different lanes are independent.
type Session struct {
	id       string
	name     string
	slabSize int

	mu        sync.Mutex
	allocs    map[reflect.Type]Allocator
	order     []Allocator
	destroyed bool

	scope *Scope
}

// Option configures a session.
type Option func(*Session)

// WithName sets a human-readable session name.
func WithName(name string) Option {
	return func(s *Session) {
		s.name = name
	}
}

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) {
		if id != "" {
			s.id = id
		}
	}
}

// WithSlabSize sets the number of objects per allocator slab.
func WithSlabSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.slabSize = n
		}
	}
}

// Open creates a session and installs it as the current session of lane.
func Open(lane *Lane, opts ...Option) *Session {
	s := &Session{
		id:       uuid.NewString(),
		slabSize: defaultSlabSize,
		allocs:   make(map[reflect.Type]Allocator),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.scope = lane.Install(s)
	return s
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Allocators returns the number of allocators created so far.
func (s *Session) Allocators() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Close destroys every allocator in creation order and restores the session
// that was current on the lane before Open. It panics with ErrScopeOrder if a
// session opened later on the same lane is still installed. Close is
// idempotent.
func (s *Session) Close() {
	if !s.scope.released {
		s.scope.mustBeTop()
	}
	s.destroy()
	s.scope.Release()
}

// Detach restores the lane without destroying the allocators. It is the fast
// path for a process that is about to exit anyway.
func (s *Session) Detach() {
	s.scope.Release()
}

func (s *Session) destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	order := s.order
	s.order = nil
	s.allocs = nil
	s.mu.Unlock()

	for _, a := range order {
		a.Destroy()
	}
}

// Destroy closes the current session of lane, if there is one.
func Destroy(lane *Lane) {
	if s, ok := lane.Peek(); ok {
		s.Close()
	}
}
