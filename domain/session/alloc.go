package session

import (
	"fmt"
	"reflect"
	"sync"
)

const defaultSlabSize = 64

// Allocator is the type-erased view of a SpecificAlloc kept by a session so
// allocators of different element types can be torn down uniformly.
type Allocator interface {
	// Len returns the number of live objects.
	Len() int
	// Destroy finalizes every object and releases the backing storage.
	Destroy()
}

// Destroyer is implemented by objects that hold resources needing explicit
// release when their allocator is destroyed. Destroy must not touch objects
// owned by another allocator: allocators are torn down one after another and
// the order is not part of the contract.
type Destroyer interface {
	Destroy()
}

// SpecificAlloc hands out objects of one type from fixed-size slabs. Pointers
// stay valid until the allocator is destroyed because slabs never move.
type SpecificAlloc[T any] struct {
	mu        sync.Mutex
	slabSize  int
	slabs     [][]T
	used      int
	count     int
	destroyed bool
}

func newSpecificAlloc[T any](slabSize int) *SpecificAlloc[T] {
	return &SpecificAlloc[T]{slabSize: slabSize}
}

// New returns a pointer to a zeroed T owned by the allocator.
func (a *SpecificAlloc[T]) New() *T {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		panic(fmt.Errorf("%w: allocation from destroyed allocator", ErrSessionClosed))
	}
	if len(a.slabs) == 0 || a.used == a.slabSize {
		a.slabs = append(a.slabs, make([]T, a.slabSize))
		a.used = 0
	}
	p := &a.slabs[len(a.slabs)-1][a.used]
	a.used++
	a.count++
	return p
}

// Len returns the number of objects allocated.
func (a *SpecificAlloc[T]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Each calls fn for every object in allocation order.
func (a *SpecificAlloc[T]) Each(fn func(*T)) {
	a.mu.Lock()
	slabs, used := a.slabs, a.used
	a.mu.Unlock()
	forEach(slabs, used, fn)
}

// Destroy calls Destroy on every object that implements Destroyer, in
// allocation order, and drops the slabs.
func (a *SpecificAlloc[T]) Destroy() {
	a.mu.Lock()
	if a.destroyed {
		a.mu.Unlock()
		return
	}
	a.destroyed = true
	slabs, used := a.slabs, a.used
	a.slabs = nil
	a.used = 0
	a.count = 0
	a.mu.Unlock()

	forEach(slabs, used, func(p *T) {
		if d, ok := any(p).(Destroyer); ok {
			d.Destroy()
		}
	})
}

func forEach[T any](slabs [][]T, used int, fn func(*T)) {
	for i, slab := range slabs {
		n := len(slab)
		if i == len(slabs)-1 {
			n = used
		}
		for j := 0; j < n; j++ {
			fn(&slab[j])
		}
	}
}

// Alloc returns the session's allocator for T, creating it on first use.
// Every call with the same session and type returns the same allocator.
func Alloc[T any](s *Session) *SpecificAlloc[T] {
	key := reflect.TypeFor[T]()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		panic(fmt.Errorf("%w: %s", ErrSessionClosed, s.id))
	}
	if a, ok := s.allocs[key]; ok {
		return a.(*SpecificAlloc[T])
	}
	a := newSpecificAlloc[T](s.slabSize)
	s.allocs[key] = a
	s.order = append(s.order, a)
	return a
}

// Make allocates a zeroed T from the session's allocator for T.
func Make[T any](s *Session) *T {
	return Alloc[T](s).New()
}
