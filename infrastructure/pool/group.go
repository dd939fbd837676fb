package pool

import (
	"context"

	"github.com/felixgeelhaar/multicall/domain/session"
)

// Group tracks a set of tasks that are waited for together, such as the
// parallel steps of one link.
type Group struct {
	pool    *Pool
	pending int
}

// NewGroup creates an empty task group.
func (p *Pool) NewGroup() *Group {
	return &Group{pool: p}
}

// Go submits task. The session reachable from ctx at this moment, either
// carried explicitly or current on the lane carried by ctx, is captured and
// installed for the task.
func (g *Group) Go(ctx context.Context, task Task) error {
	s, _ := session.Lookup(ctx)
	return g.pool.enqueue(&job{
		ctx:     ctx,
		session: s,
		fn:      task,
		group:   g,
	})
}

// Wait blocks until every task of the group has finished or ctx is done, in
// which case it returns ctx.Err() and the unfinished tasks keep running.
// While waiting it runs queued tasks of this group on the caller's lane, so a
// task may submit and wait for sub-tasks without starving the pool. Tasks of
// other groups are left to the workers.
func (g *Group) Wait(ctx context.Context) error {
	lane, ok := session.LaneFrom(ctx)
	if !ok {
		lane = session.NewLane("pool-waiter")
	}

	p := g.pool
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	for g.pending > 0 {
		if err := ctx.Err(); err != nil {
			p.mu.Unlock()
			return err
		}
		if j := p.popGroupLocked(g); j != nil {
			p.mu.Unlock()
			p.run(lane, j)
			p.mu.Lock()
			continue
		}
		p.cond.Wait()
	}
	p.mu.Unlock()
	return nil
}

// Pending returns the number of unfinished tasks in the group.
func (g *Group) Pending() int {
	g.pool.mu.Lock()
	defer g.pool.mu.Unlock()
	return g.pending
}
