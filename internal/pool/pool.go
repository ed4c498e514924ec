// Package pool implements a bounded worker pool with futures.
//
// A Pool runs a fixed number of workers. Workers execute against the pool's
// own context, which is detached from the caller's signal handling: an
// external interrupt never reaches a worker directly. Only Shutdown(false),
// used on the failure path, cancels work in flight.
package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/epigenlab/trackstore/internal/logging"
	"github.com/epigenlab/trackstore/internal/metrics"
)

var (
	// ErrPoolClosed is returned by Submit after the pool stopped accepting work.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrAbandoned resolves futures whose tasks were queued but never ran
	// because the pool was shut down without waiting.
	ErrAbandoned = errors.New("pool: task abandoned by shutdown")
)

// Task is one unit of work executed by a pool worker.
type Task func(ctx context.Context) error

// Future tracks the terminal state of one submitted task.
type Future struct {
	done chan struct{}
	once sync.Once
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) complete(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the task reaches a terminal state.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task reaches a terminal state and returns its error.
func (f *Future) Wait() error {
	<-f.done
	return f.err
}

type pending struct {
	run Task
	fut *Future
}

// Pool is a fixed-size worker pool.
type Pool struct {
	name   string
	queue  chan *pending
	quit   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New creates a pool with the given worker count and queue capacity.
// The queue capacity bounds how many tasks Submit can enqueue without
// blocking; size it to the wave size so a full wave never blocks submission.
func New(name string, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < workers {
		queueSize = workers
	}

	// Detached from any signal context: workers ignore external interrupts.
	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		name:   name,
		queue:  make(chan *pending, queueSize),
		quit:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.workerLoop(i)
	}
	return p
}

// Submit enqueues a task and returns its future. The enqueue happens under
// the pool lock, so a task accepted by Submit is in the queue before any
// concurrent Shutdown marks the pool closed: it is always either executed
// or resolved with ErrAbandoned, never orphaned.
func (p *Pool) Submit(run Task) (*Future, error) {
	pd := &pending{run: run, fut: newFuture()}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	select {
	case p.queue <- pd:
		if m := metrics.Get(); m != nil {
			m.InFlightTasks.WithLabelValues(p.name).Inc()
		}
		return pd.fut, nil
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}
}

// Shutdown stops the pool. With wait=true it drains every queued task and
// blocks until all workers exit; this is the normal path. With wait=false it
// returns immediately, marking the pool non-accepting and abandoning queued
// work; running tasks observe cancellation through their context. Used only
// on the failure path.
func (p *Pool) Shutdown(wait bool) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if wait {
		close(p.quit)
		p.wg.Wait()
		return
	}

	p.cancel()
	log := logging.Component("pool")

	// Resolve whatever is still queued so no future is orphaned.
	abandoned := 0
	for {
		select {
		case pd := <-p.queue:
			pd.fut.complete(ErrAbandoned)
			abandoned++
			if m := metrics.Get(); m != nil {
				m.InFlightTasks.WithLabelValues(p.name).Dec()
				m.TasksAbandoned.WithLabelValues(p.name).Inc()
			}
		default:
			if abandoned > 0 {
				log.Warn("abandoned queued tasks", "pool", p.name, "count", abandoned)
			}
			return
		}
	}
}

func (p *Pool) workerLoop(id int) {
	defer p.wg.Done()

	log := logging.WorkerLogger(p.name, id)
	log.Debug("worker started")
	defer log.Debug("worker stopped")

	for {
		select {
		case <-p.ctx.Done():
			return
		case pd := <-p.queue:
			p.execute(pd)
		case <-p.quit:
			// Drain remaining queued work, then exit.
			for {
				select {
				case pd := <-p.queue:
					p.execute(pd)
				default:
					return
				}
			}
		}
	}
}

func (p *Pool) execute(pd *pending) {
	m := metrics.Get()

	if err := p.ctx.Err(); err != nil {
		pd.fut.complete(ErrAbandoned)
		if m != nil {
			m.InFlightTasks.WithLabelValues(p.name).Dec()
			m.TasksAbandoned.WithLabelValues(p.name).Inc()
		}
		return
	}

	err := pd.run(p.ctx)
	pd.fut.complete(err)
	if m != nil {
		m.InFlightTasks.WithLabelValues(p.name).Dec()
		if err != nil {
			m.TasksFailed.WithLabelValues(p.name).Inc()
		} else {
			m.TasksCompleted.WithLabelValues(p.name).Inc()
		}
	}
}
