// Package workerpool implements the fixed-size worker pool that owns
// dispatched connections after the reactor hands them off, per spec
// section 4.5.
//
// Author: momentics <momentics@gmail.com>
package workerpool

import (
	"sync"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-gateway/internal/gwerr"
)

// Task is one unit of dispatched work: typically "parse and serve this
// connection's next request".
type Task func()

// Pool is a fixed worker count, bounded-capacity task queue adapted from
// the teacher's lock-free-queue executor, with two additions the teacher
// doesn't have: a capacity bound (the teacher's queue is unbounded) and a
// non-blocking Submit that runs the task inline when the queue is full,
// so the reactor's single goroutine never blocks handing off work.
type Pool struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	queue    *queue.Queue
	capacity int
	stopped  bool
	wg       sync.WaitGroup

	inlineFallbacks int
}

// New starts numWorkers goroutines draining a queue bounded at capacity.
func New(numWorkers, capacity int) *Pool {
	p := &Pool{
		queue:    queue.New(),
		capacity: capacity,
	}
	p.notEmpty = sync.NewCond(&p.mu)
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

func (p *Pool) runWorker() {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for p.queue.Length() == 0 && !p.stopped {
			p.notEmpty.Wait()
		}
		if p.queue.Length() == 0 && p.stopped {
			p.mu.Unlock()
			return
		}
		item := p.queue.Remove()
		p.mu.Unlock()

		if task, ok := item.(Task); ok {
			task()
		}
	}
}

// Submit enqueues task for async execution. If the queue is at capacity
// the task runs inline on the caller's goroutine instead of blocking,
// matching spec section 4.5's non-blocking-submit requirement, and the
// fallback is counted for /stats visibility.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return gwerr.New(gwerr.CodeInternal, "workerpool: submit after close")
	}
	if p.queue.Length() >= p.capacity {
		p.inlineFallbacks++
		p.mu.Unlock()
		task()
		return nil
	}
	p.queue.Add(task)
	p.notEmpty.Signal()
	p.mu.Unlock()
	return nil
}

// InlineFallbacks reports how many tasks bypassed the queue because it
// was full, for /stats.
func (p *Pool) InlineFallbacks() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inlineFallbacks
}

// QueueDepth reports the current backlog length.
func (p *Pool) QueueDepth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Length()
}

// Close stops all workers after draining the currently queued tasks.
func (p *Pool) Close() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.notEmpty.Broadcast()
	p.wg.Wait()
}
