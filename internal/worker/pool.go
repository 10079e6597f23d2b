package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when the queue has no free slot.
	ErrQueueFull = errors.New("worker queue full")

	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Task is a unit of work executed by the pool.
type Task interface {
	Execute(ctx context.Context) error
	ID() string
}

// Pool runs submitted tasks on a fixed number of worker goroutines fed from
// a bounded queue.
type Pool struct {
	name    string
	workers int
	queue   chan Task
	logger  *logrus.Logger

	mu      sync.RWMutex
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewPool creates a pool. Call Start before submitting.
func NewPool(name string, workers, queueSize int, logger *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan Task, queueSize),
		logger:  logger,
	}
}

// Start launches the workers. Tasks receive a context derived from ctx that
// is cancelled by Stop.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Infof("Pool %s starting with %d workers", p.name, p.workers)
	for i := 1; i <= p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx, i)
	}
}

func (p *Pool) work(ctx context.Context, n int) {
	defer p.wg.Done()
	for task := range p.queue {
		entry := p.logger.WithFields(logrus.Fields{"pool": p.name, "worker": n, "task_id": task.ID()})
		entry.Debug("Started task")
		if err := task.Execute(ctx); err != nil {
			entry.WithError(err).Warn("Task returned an error")
			continue
		}
		entry.Debug("Finished task")
	}
}

// Submit enqueues a task without blocking.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop refuses new tasks, lets the workers drain the queue and waits for
// them. Tasks still running see their context cancelled when cancelRunning
// is true.
func (p *Pool) Stop(cancelRunning bool) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	if cancelRunning && p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Infof("Pool %s stopped", p.name)
}
