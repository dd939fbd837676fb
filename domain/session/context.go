package session

import (
	"context"
	"fmt"
)

type sessionKey struct{}

type laneKey struct{}

// WithSession returns a copy of ctx carrying s. Code that can take a context
// should use this rather than the lane slot.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session carried by ctx, if any.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok && s != nil
}

// WithLane returns a copy of ctx carrying the lane of the running goroutine.
func WithLane(ctx context.Context, l *Lane) context.Context {
	return context.WithValue(ctx, laneKey{}, l)
}

// LaneFrom returns the lane carried by ctx, if any.
func LaneFrom(ctx context.Context) (*Lane, bool) {
	l, ok := ctx.Value(laneKey{}).(*Lane)
	return l, ok && l != nil
}

// Lookup returns the session for ctx: the one carried explicitly, or else
// the current session of the lane carried by ctx.
func Lookup(ctx context.Context) (*Session, bool) {
	if s, ok := FromContext(ctx); ok {
		return s, true
	}
	if l, ok := LaneFrom(ctx); ok {
		return l.Peek()
	}
	return nil, false
}

// Current is Lookup for code that requires a session. It panics with
// ErrNoSession when none is reachable from ctx.
func Current(ctx context.Context) *Session {
	s, ok := Lookup(ctx)
	if !ok {
		panic(fmt.Errorf("%w in context", ErrNoSession))
	}
	return s
}
