package resolve

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// pool runs backend calls on a fixed number of goroutines so slow lookups
// never pile up unbounded, and spaces them out with a token bucket.
type pool struct {
	jobs    chan func()
	limiter *rate.Limiter
	timeout time.Duration

	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newPool(workers int, limiter *rate.Limiter, timeout time.Duration) *pool {
	if workers < 1 {
		workers = 1
	}
	p := &pool{
		jobs:    make(chan func()),
		limiter: limiter,
		timeout: timeout,
		quit:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case job := <-p.jobs:
			job()
		}
	}
}

func (p *pool) close() {
	p.closeOnce.Do(func() { close(p.quit) })
	p.wg.Wait()
}

type result[T any] struct {
	val T
	err error
}

// submit runs fn on a worker and waits for it. The per-call timeout starts
// when a worker picks the job up, not while it waits in line.
func submit[T any](ctx context.Context, p *pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	out := make(chan result[T], 1)

	job := func() {
		if err := ctx.Err(); err != nil {
			out <- result[T]{err: err}
			return
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				out <- result[T]{err: err}
				return
			}
		}
		callCtx := ctx
		if p.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		v, err := fn(callCtx)
		out <- result[T]{val: v, err: err}
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-p.quit:
		return zero, ErrClosed
	}

	select {
	case r := <-out:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
