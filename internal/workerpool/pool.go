// Package workerpool runs a fixed number of workers until they all return.
package workerpool

import (
	"context"
	"sync"

	"github.com/specialistvlad/stackbuild/internal/ctxlog"
)

// Pool is a fixed-size set of workers. The build and push phases each own
// one, sized independently.
type Pool struct {
	name string
	size int
}

// New creates a pool. size must be positive.
func New(name string, size int) *Pool {
	if size < 1 {
		panic("workerpool: size must be positive")
	}
	return &Pool{name: name, size: size}
}

// Run starts the workers and blocks until every one of them has returned.
// Workers are expected to return once their queue is closed and drained.
func (p *Pool) Run(ctx context.Context, work func(ctx context.Context, workerID int)) {
	logger := ctxlog.FromContext(ctx).With("pool", p.name)
	logger.Debug("Starting worker pool.", "workers", p.size)

	var wg sync.WaitGroup
	wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go func(id int) {
			defer wg.Done()
			logger.Debug("Worker started.", "workerID", id)
			work(ctx, id)
			logger.Debug("Worker finished.", "workerID", id)
		}(i)
	}
	wg.Wait()
	logger.Debug("Worker pool drained.")
}
