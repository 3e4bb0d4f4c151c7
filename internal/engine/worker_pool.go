package engine

import (
	"context"
	"sync"
)

// job is the unit of work dispatched to a worker.
type job[T, R any] struct {
	payload T
	result  chan<- jobResult[R]
}

type jobResult[R any] struct {
	value R
	err   error
}

// workerPool is a fixed-size goroutine pool with a bounded input queue.
type workerPool[T, R any] struct {
	queue   chan job[T, R]
	process func(ctx context.Context, t T) (R, error)
	wg      sync.WaitGroup
}

// newWorkerPool creates and starts a pool with n goroutines and queue capacity cap.
func newWorkerPool[T, R any](ctx context.Context, n, cap int, fn func(context.Context, T) (R, error)) *workerPool[T, R] {
	p := &workerPool[T, R]{
		queue:   make(chan job[T, R], cap),
		process: fn,
	}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.run(ctx)
		}()
	}
	return p
}

func (p *workerPool[T, R]) run(ctx context.Context) {
	for {
		select {
		case j, ok := <-p.queue:
			if !ok {
				return
			}
			v, err := p.process(ctx, j.payload)
			if j.result != nil {
				j.result <- jobResult[R]{value: v, err: err}
			}
		case <-ctx.Done():
			return
		}
	}
}

// Submit enqueues a job, blocking while the queue is full. The returned
// channel yields exactly one result once a worker has processed the job.
func (p *workerPool[T, R]) Submit(ctx context.Context, t T) (<-chan jobResult[R], error) {
	resultC := make(chan jobResult[R], 1)
	select {
	case p.queue <- job[T, R]{payload: t, result: resultC}:
		return resultC, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Drain closes the queue and waits for all workers to finish.
// Submit must not be called afterwards.
func (p *workerPool[T, R]) Drain() {
	close(p.queue)
	p.wg.Wait()
}

// QueueLen returns how many jobs are currently queued.
func (p *workerPool[T, R]) QueueLen() int {
	return len(p.queue)
}

// QueueCap returns the total queue capacity.
func (p *workerPool[T, R]) QueueCap() int {
	return cap(p.queue)
}
