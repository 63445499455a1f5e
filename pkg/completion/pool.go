package completion

import (
	"sync"
	"sync/atomic"
)

// Pool is the single shared worker pool every completion chain schedules
// callbacks onto (§4.C/§5). Size 1 (the default) serializes every callback
// in submission order, which the design calls out as a de-facto lock over
// the caches, inventory, connection table, and upgrade state (§5). Larger
// sizes are permitted; ordering *within* one chain is still guaranteed
// because each link only schedules after its predecessor resolves.
//
// The job queue is an unbounded slice guarded by mu/cond rather than a
// bounded channel: a worker finalizing a node can itself call schedule
// (Then's continuation does exactly this) from inside the same goroutine
// that would otherwise need to drain the channel to make room, which
// self-deadlocks a size-1 pool once the backlog fills a fixed buffer.
//
// Grounded on the teacher's parallel-dispatch idiom in
// cluster.Manager.Start (collect work, fan out, wait) generalized from a
// one-shot batch into a persistent job queue.
type Pool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	jobs      []func()
	closed    bool
	wg        sync.WaitGroup
	generation atomic.Uint64
	closeOnce sync.Once
}

// NewPool starts a worker pool with the given number of goroutines. Size <
// 1 is treated as 1.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	p := &Pool{}
	p.cond = sync.NewCond(&p.mu)
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.jobs) == 0 && !p.closed {
			p.cond.Wait()
		}
		if len(p.jobs) == 0 && p.closed {
			p.mu.Unlock()
			return
		}
		fn := p.jobs[0]
		p.jobs = p.jobs[1:]
		p.mu.Unlock()

		fn()
	}
}

// schedule enqueues fn for execution by a worker goroutine. Never blocks,
// so it is safe to call from inside a job a worker is currently running.
func (p *Pool) schedule(fn func()) {
	p.mu.Lock()
	p.jobs = append(p.jobs, fn)
	p.mu.Unlock()
	p.cond.Signal()
}

// generationNow returns the current cancellation generation.
func (p *Pool) generationNow() uint64 {
	return p.generation.Load()
}

// CancelCompletions marks every outstanding completion scheduled on this
// pool as cancelled. Cancellation is cooperative: work already in flight
// runs to completion, but no not-yet-scheduled dependent chain link
// executes its callback (§4.C).
func (p *Pool) CancelCompletions() {
	p.generation.Add(1)
}

// Shutdown stops accepting new work and waits for in-flight jobs to drain,
// then joins every worker goroutine (§5: "worker pool joined on shutdown").
func (p *Pool) Shutdown() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})
	p.wg.Wait()
}
