package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediaTranscode/worker/kafka"
)

func TestSubmit_ReturnsHandlerError(t *testing.T) {
	p := NewWorkerPool(1)
	want := errors.New("store unavailable")

	err := p.Submit(context.Background(), &kafka.ProfileTaskMessage{}, func(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Expected handler error surfaced to the caller, got %v", err)
	}
}

func TestSubmit_BoundsConcurrency(t *testing.T) {
	p := NewWorkerPool(2)

	var running, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Submit(context.Background(), &kafka.ProfileTaskMessage{}, func(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
				n := atomic.AddInt32(&running, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&running, -1)
				return nil
			})
		}()
	}
	wg.Wait()
	p.Wait()

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("Expected at most 2 concurrent handlers, saw %d", got)
	}
}

func TestSubmit_CancelledWhileWaiting(t *testing.T) {
	p := NewWorkerPool(1)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Submit(context.Background(), &kafka.ProfileTaskMessage{}, func(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
			<-release
			return nil
		})
	}()

	// Wait for the slot to be taken.
	deadline := time.After(time.Second)
	for len(p.sem) == 0 {
		select {
		case <-deadline:
			t.Fatal("First handler never started")
		case <-time.After(time.Millisecond):
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := p.Submit(ctx, &kafka.ProfileTaskMessage{}, func(ctx context.Context, msg *kafka.ProfileTaskMessage) error {
		ran = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if ran {
		t.Error("Handler must not run after cancellation")
	}

	close(release)
	wg.Wait()
}
