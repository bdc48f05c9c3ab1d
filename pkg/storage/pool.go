package storage

import (
	"context"
	"time"

	"github.com/cuemby/foodie/pkg/metrics"
	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of concurrent store operations. Waiting for a slot
// is limited by the acquire timeout instead of blocking forever.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewPool creates a pool with size slots
func NewPool(size int, timeout time.Duration) *Pool {
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		timeout: timeout,
	}
}

// Acquire waits for a free slot. The returned release function must be
// called exactly once. If ctx ends first its error is returned; if the
// acquire timeout elapses first ErrPoolTimeout is returned.
func (p *Pool) Acquire(ctx context.Context) (func(), error) {
	if p.sem.TryAcquire(1) {
		return p.release, nil
	}

	timer := metrics.NewTimer()
	waitCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.sem.Acquire(waitCtx, 1)
	timer.ObserveDuration(metrics.StorePoolWaitDuration)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.StorePoolTimeouts.Inc()
		return nil, ErrPoolTimeout
	}
	return p.release, nil
}

func (p *Pool) release() {
	p.sem.Release(1)
}
