// Package pool provides a fixed-size worker pool consuming tasks from a
// shared bounded FIFO queue.
package pool

import (
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jkatz326/ngram/pkg/errors"
)

// Task is a unit of work executed exactly once by one worker.
type Task func()

// Pool runs a fixed set of persistent worker goroutines over a shared
// bounded queue. Submission is fire-and-forget: each task owns whatever it
// needs to report its own result.
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// New starts workers goroutines consuming from a queue of the given depth.
// Non-positive arguments fall back to a single worker and a queue depth
// matching the worker count.
func New(workers, queueDepth int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueDepth <= 0 {
		queueDepth = workers
	}
	p := &Pool{
		tasks:  make(chan Task, queueDepth),
		logger: slog.Default().With("component", "worker-pool"),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(id, task)
	}
}

// run isolates a single task so a panicking request cannot take the worker,
// or any shared state, down with it.
func (p *Pool) run(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked",
				"worker", id,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	task()
}

// Submit enqueues a task for eventual execution and returns immediately
// once the task is queued. When the queue is full, Submit blocks until a
// worker frees a slot. After Stop has begun it returns ErrPoolClosed.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return errors.ErrPoolClosed
	}
	p.tasks <- task
	return nil
}

// Stop rejects new submissions, lets queued and in-flight tasks finish, and
// waits for every worker to exit. It is idempotent and safe to call
// concurrently with Submit.
func (p *Pool) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.tasks)
		p.mu.Unlock()
		p.wg.Wait()
	})
}

// QueueLen returns the number of tasks waiting for a worker.
func (p *Pool) QueueLen() int {
	return len(p.tasks)
}

// QueueCap returns the queue depth fixed at construction.
func (p *Pool) QueueCap() int {
	return cap(p.tasks)
}
