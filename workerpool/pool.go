// Package workerpool runs detached jobs on a fixed set of goroutines with a bounded queue.
package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
)

var ErrClosed = errors.New("worker pool closed")

// Job is a unit of detached work. The context is the pool's own, not the submitter's.
type Job func(ctx context.Context)

// Pool manages concurrent jobs
type Pool struct {
	workers  int
	jobQueue chan Job
	wg       sync.WaitGroup
	once     sync.Once
	mu       sync.RWMutex
	closed   bool
	ctx      context.Context
	cancel   context.CancelFunc
	onPanic  func(any)
}

type Option func(*Pool)

// WithPanicHandler is called with the recovered value whenever a job panics.
func WithPanicHandler(fn func(any)) Option {
	return func(p *Pool) { p.onPanic = fn }
}

// New creates a new pool with the specified number of workers and queue capacity.
func New(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers:  workers,
		jobQueue: make(chan Job, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the workers. Calling it more than once is a no-op.
func (p *Pool) Start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobQueue {
		p.run(job)
	}
}

func (p *Pool) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("WORKER_POOL: Job panicked", "panic", r)
			if p.onPanic != nil {
				p.onPanic(r)
			}
		}
	}()
	job(p.ctx)
}

// TrySubmit enqueues job without blocking. It returns false when the queue is
// full and ErrClosed after Close.
func (p *Pool) TrySubmit(job Job) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false, ErrClosed
	}
	select {
	case p.jobQueue <- job:
		return true, nil
	default:
		return false, nil
	}
}

// Submit enqueues job, blocking while the queue is full or until ctx is done.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobQueue <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs, drains the queue and waits for running jobs.
// Jobs still running when ctx is done see their context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.jobQueue)
	p.mu.Unlock()

	// Workers may never have been started; drain so queued jobs still run.
	p.Start()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
