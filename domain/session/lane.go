package session

import "fmt"

// Lane holds the current session of one goroutine.
//
// A lane plays the role a thread-local "current context" pointer plays in a
// threaded runtime. It is owned by exactly one goroutine and is not safe for
// concurrent use; sessions reach other goroutines only through the worker
// pool, which installs them on the worker's own lane.
//
// Installs and releases nest strictly: every Install returns a Scope that
// must be released before the scope installed below it.
type Lane struct {
	name  string
	top   *Scope
	depth int
}

// NewLane creates an empty lane. The name only appears in diagnostics.
func NewLane(name string) *Lane {
	return &Lane{name: name}
}

// Name returns the lane name.
func (l *Lane) Name() string {
	return l.name
}

// Depth returns the number of active scopes on the lane.
func (l *Lane) Depth() int {
	return l.depth
}

// Install makes s the current session of the lane until the returned scope
// is released. s may be nil, which masks any session installed below.
func (l *Lane) Install(s *Session) *Scope {
	sc := &Scope{lane: l, session: s, prev: l.top}
	l.top = sc
	l.depth++
	return sc
}

// Peek returns the current session without enforcing that one is installed.
func (l *Lane) Peek() (*Session, bool) {
	if l == nil || l.top == nil || l.top.session == nil {
		return nil, false
	}
	return l.top.session, true
}

// Current returns the current session. It panics with ErrNoSession when none
// is installed: reaching session-dependent code without a session is a bug.
func (l *Lane) Current() *Session {
	s, ok := l.Peek()
	if !ok {
		name := "<nil>"
		if l != nil {
			name = l.name
		}
		panic(fmt.Errorf("%w on lane %q", ErrNoSession, name))
	}
	return s
}

// Has reports whether a session is installed on the lane.
func Has(l *Lane) bool {
	_, ok := l.Peek()
	return ok
}

// Scope is the guard returned by Lane.Install.
type Scope struct {
	lane     *Lane
	session  *Session
	prev     *Scope
	released bool
}

// Session returns the session this scope installed.
func (sc *Scope) Session() *Session {
	return sc.session
}

// Lane returns the lane the scope was installed on.
func (sc *Scope) Lane() *Lane {
	return sc.lane
}

// Release restores the session that was current before the scope was
// installed. Releasing twice is a no-op; releasing a scope that is not the
// innermost one panics with ErrScopeOrder.
func (sc *Scope) Release() {
	if sc.released {
		return
	}
	sc.mustBeTop()
	sc.lane.top = sc.prev
	sc.lane.depth--
	sc.released = true
}

func (sc *Scope) mustBeTop() {
	if sc.lane.top != sc {
		panic(fmt.Errorf("%w on lane %q", ErrScopeOrder, sc.lane.name))
	}
}
