// Package pool provides the shared worker pool used by embedded tools.
//
// Tasks carry the session that was current when they were submitted. The
// worker that runs a task installs that session on its own lane for the
// duration of the task and restores whatever was installed before, so code
// inside the task always observes the submitting session even when sessions
// of unrelated tool runs share the same workers.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/felixgeelhaar/multicall/domain/session"
)

// Task is a unit of work. ctx carries the captured session and the lane of
// the goroutine running the task.
type Task func(ctx context.Context)

type job struct {
	ctx     context.Context
	session *session.Session
	fn      Task
	group   *Group
}

// Pool runs tasks on a fixed set of worker goroutines.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []*job
	closed bool

	workers int
	lanes   []*session.Lane
	wg      sync.WaitGroup
	root    *Group

	workerInit func(*session.Lane)
	afterTask  func(*session.Lane)
	onPanic    func(any)

	metrics Metrics
}

// Option configures a pool.
type Option func(*Pool)

// WithWorkers sets the number of worker goroutines.
func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithWorkerInit sets a hook run once on every worker lane before it takes
// its first task.
func WithWorkerInit(fn func(*session.Lane)) Option {
	return func(p *Pool) {
		p.workerInit = fn
	}
}

// WithAfterTask sets a hook run on the executing lane after each task, once
// the lane has been restored.
func WithAfterTask(fn func(*session.Lane)) Option {
	return func(p *Pool) {
		p.afterTask = fn
	}
}

// WithPanicHandler sets the function receiving values recovered from
// panicking tasks. The default handler re-panics, terminating the process.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) {
		if fn != nil {
			p.onPanic = fn
		}
	}
}

// New creates a pool and starts its workers.
func New(opts ...Option) *Pool {
	p := &Pool{
		workers: runtime.GOMAXPROCS(0),
		onPanic: func(r any) { panic(r) },
	}
	p.cond = sync.NewCond(&p.mu)
	for _, opt := range opts {
		opt(p)
	}
	p.root = p.NewGroup()

	p.lanes = make([]*session.Lane, p.workers)
	for i := range p.lanes {
		p.lanes[i] = session.NewLane(fmt.Sprintf("pool-worker-%d", i))
	}

	// Run init hooks before any worker can pick up a task.
	if p.workerInit != nil {
		for _, lane := range p.lanes {
			p.workerInit(lane)
		}
	}

	for _, lane := range p.lanes {
		p.wg.Add(1)
		go p.processLoop(lane)
	}
	return p
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Async submits task to the pool's default group.
func (p *Pool) Async(ctx context.Context, task Task) error {
	return p.root.Go(ctx, task)
}

// Wait blocks until every task submitted with Async has finished or ctx is
// done.
func (p *Pool) Wait(ctx context.Context) error {
	return p.root.Wait(ctx)
}

// Close stops accepting tasks, lets the workers drain the queue and waits
// for them to exit.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
}

func (p *Pool) enqueue(j *job) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	j.group.pending++
	p.queue = append(p.queue, j)
	p.metrics.TasksSubmitted++
	p.cond.Broadcast()
	return nil
}

// popLocked removes the oldest queued job. p.mu must be held.
func (p *Pool) popLocked() *job {
	j := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return j
}

// popGroupLocked removes the oldest queued job of g, or returns nil when g has
// none queued. p.mu must be held.
func (p *Pool) popGroupLocked(g *Group) *job {
	for i, j := range p.queue {
		if j.group == g {
			p.queue = slices.Delete(p.queue, i, i+1)
			return j
		}
	}
	return nil
}

func (p *Pool) processLoop(lane *session.Lane) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.queue) == 0 {
			p.mu.Unlock()
			return
		}
		j := p.popLocked()
		p.mu.Unlock()

		p.run(lane, j)
	}
}

// run executes j on lane with the captured session installed.
func (p *Pool) run(lane *session.Lane, j *job) {
	scope := lane.Install(j.session)

	ctx := session.WithLane(session.WithSession(j.ctx, j.session), lane)
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		j.fn(ctx)
	}()

	scope.Release()
	if p.afterTask != nil {
		p.afterTask(lane)
	}

	p.mu.Lock()
	j.group.pending--
	if recovered != nil {
		p.metrics.TasksPanicked++
	} else {
		p.metrics.TasksCompleted++
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	if recovered != nil {
		p.onPanic(recovered)
	}
}

// Metrics tracks pool activity.
type Metrics struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksPanicked  int64
}
