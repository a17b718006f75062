package pool

import (
	"context"
	"sync"

	"mediaTranscode/worker/kafka"
)

// WorkerPool bounds how many profile pipelines run at once. Submit blocks
// for a slot and runs the handler on the calling goroutine, so the consumer
// acks a message only after its outcome is recorded. Concurrency across
// partitions is still bounded by the semaphore.
type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit runs the handler once a slot frees up and returns its error. A
// cancelled context while waiting returns ctx.Err() without running the
// handler.
func (p *WorkerPool) Submit(ctx context.Context, msg *kafka.ProfileTaskMessage, handler func(context.Context, *kafka.ProfileTaskMessage) error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.wg.Add(1)
	defer func() {
		<-p.sem
		p.wg.Done()
	}()

	return handler(ctx, msg)
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
