package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrPoolClosed = errors.New("worker pool closed")

type job struct {
	run   func()
	abort func(error)
}

// Pool runs submitted tasks on a fixed number of workers. Submitting blocks
// while the queue is full.
type Pool struct {
	jobs   chan job
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func New(ctx context.Context, maxWorkers, queueSize int) *Pool {
	if maxWorkers < 1 {
		maxWorkers = 2
	}
	if queueSize < 1 {
		queueSize = 100
	}

	poolCtx, cancel := context.WithCancel(ctx)

	pool := &Pool{
		jobs:   make(chan job, queueSize),
		ctx:    poolCtx,
		cancel: cancel,
	}

	for i := 0; i < maxWorkers; i++ {
		pool.wg.Add(1)
		go pool.worker()
	}

	return pool
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			j.run()
		}
	}
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	select {
	case p.jobs <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Go submits fn without a result. It returns an error when ctx is done or the
// pool stopped before the task could be queued.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) error {
	return p.enqueue(ctx, job{
		run: func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("worker task panicked", "panic", r)
				}
			}()
			fn(ctx)
		},
		abort: func(err error) {
			slog.Warn("worker task dropped", "err", err)
		},
	})
}

// Stop cancels the workers. Tasks still queued are resolved with
// ErrPoolClosed.
func (p *Pool) Stop() {
	p.cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	for j := range p.jobs {
		j.abort(ErrPoolClosed)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

// Future is the pending result of a task submitted with Submit.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func (f *Future[T]) resolve(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Wait blocks until the task finished or was dropped.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Submit queues fn on the pool. fn receives ctx; a panic inside fn is
// reported as the future's error.
func Submit[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	var zero T
	err := p.enqueue(ctx, job{
		run: func() {
			var (
				val T
				err error
			)
			func() {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("task panicked: %v", r)
					}
				}()
				val, err = fn(ctx)
			}()
			f.resolve(val, err)
		},
		abort: func(err error) {
			f.resolve(zero, err)
		},
	})
	if err != nil {
		f.resolve(zero, err)
	}

	return f
}
