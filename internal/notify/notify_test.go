package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "calalert/pkg/logx"
)

type captureDispatcher struct {
	mu   sync.Mutex
	got  []Notification
	fail atomic.Int32 // number of initial calls to fail
}

func (c *captureDispatcher) Dispatch(ctx context.Context, n Notification) error {
	if c.fail.Load() > 0 {
		c.fail.Add(-1)
		return errors.New("transient")
	}
	c.mu.Lock()
	c.got = append(c.got, n)
	c.mu.Unlock()
	return nil
}

func (c *captureDispatcher) snapshot() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.got...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPipelineDeliversInOrderOfQueue(t *testing.T) {
	t.Parallel()
	d := &captureDispatcher{}
	s := New(Config{Workers: 1, QueueSize: 8, RatePerSec: 1000}, d, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i := 0; i < 3; i++ {
		if err := s.Enqueue(context.Background(), Notification{Title: "t", Message: "m"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitFor(t, func() bool { return len(d.snapshot()) == 3 })
}

func TestPipelineRetriesTransientFailures(t *testing.T) {
	t.Parallel()
	d := &captureDispatcher{}
	d.fail.Store(2)
	s := New(Config{
		Workers: 1, QueueSize: 8, RatePerSec: 1000,
		RetryMax: 3, RetryBase: time.Millisecond, RetryMaxDelay: 5 * time.Millisecond,
	}, d, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Enqueue(context.Background(), Notification{Title: "retry me"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return len(d.snapshot()) == 1 })
}

func TestEnqueueAfterStopFails(t *testing.T) {
	t.Parallel()
	d := &captureDispatcher{}
	s := New(Config{}, d, logx.Nop(), nil)
	s.Start(context.Background())
	s.Stop(context.Background())

	if err := s.Enqueue(context.Background(), Notification{Title: "late"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after stop = %v, want ErrStopped", err)
	}
}

func TestQueueFullIsReported(t *testing.T) {
	t.Parallel()
	block := make(chan struct{})
	var once sync.Once
	d := DispatchFunc(func(ctx context.Context, n Notification) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	})
	s := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 1000}, d, logx.Nop(), nil)
	s.Start(context.Background())
	defer func() {
		once.Do(func() { close(block) })
		s.Stop(context.Background())
	}()

	// First fills the worker, second fills the queue; a third must be refused.
	_ = s.Enqueue(context.Background(), Notification{Title: "1"})
	waitFor(t, func() bool {
		return s.Enqueue(context.Background(), Notification{Title: "2"}) == ErrQueueFull ||
			s.Enqueue(context.Background(), Notification{Title: "3"}) == ErrQueueFull
	})
	once.Do(func() { close(block) })
}

func TestRetryDelayIsBoundedAndPositive(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}.withDefaults()
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d < 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}
