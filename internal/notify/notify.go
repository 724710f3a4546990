// Package notify delivers surfaced alerts to the user. The pipeline is
// asynchronous: Enqueue is non-blocking, a worker pool drains a bounded
// queue, and sends are rate limited and retried with jittered backoff.
// Deduplication is not done here; acknowledgment keys upstream already
// guarantee an alert is dispatched at most once.
package notify

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"calalert/internal/eventbus"
	logx "calalert/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify pipeline stopped")
)

// Notification is one user-visible message.
type Notification struct {
	Title   string
	Message string

	// Duration is how long a desktop popup stays on screen; zero lets
	// the desktop environment decide.
	Duration time.Duration
}

// Dispatcher sends a single notification over one channel.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatchFunc adapts a function to Dispatcher.
type DispatchFunc func(ctx context.Context, n Notification) error

func (f DispatchFunc) Dispatch(ctx context.Context, n Notification) error { return f(ctx, n) }

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 3
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 10 * time.Second
	}
	return c
}

// Service is the async pipeline in front of a Dispatcher.
type Service struct {
	mu sync.Mutex

	log        logx.Logger
	dispatcher Dispatcher
	bus        eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	enqueueWG sync.WaitGroup
	workerWG  sync.WaitGroup
	queue     chan Notification
	runCtx    context.Context
	runCancel context.CancelFunc
}

func New(cfg Config, dispatcher Dispatcher, log logx.Logger, bus eventbus.Bus) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		log:        log.With(logx.String("component", "notify")),
		dispatcher: dispatcher,
		bus:        bus,
		cfg:        cfg,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Start spins up the worker pool. Idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan Notification, s.cfg.QueueSize)
	s.accepting = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)

	for i := 0; i < s.cfg.Workers; i++ {
		s.workerWG.Add(1)
		go s.workerLoop(s.runCtx, s.queue)
	}
}

// Stop blocks intake and drains the queue until ctx expires, then cuts
// in-flight sends.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	cancel := s.runCancel
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.enqueueWG.Wait()
		close(q)
		s.workerWG.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		cancel()
		<-done
	}
	cancel()
}

// Enqueue hands a notification to the pipeline without blocking.
func (s *Service) Enqueue(ctx context.Context, n Notification) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	select {
	case q <- n:
		return nil
	default:
		s.log.Warn("notification dropped", logx.String("title", n.Title), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan Notification) {
	defer s.workerWG.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, n)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, n Notification) {
	cfg := s.cfg

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := s.dispatcher.Dispatch(callCtx, n)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		s.log.Debug("dispatch failed",
			logx.String("title", n.Title),
			logx.Int("attempt", attempt),
			logx.Int("max", maxAttempts),
			logx.Err(err))

		if attempt >= maxAttempts {
			break
		}
		select {
		case <-time.After(retryDelay(cfg, attempt)):
		case <-ctx.Done():
			return
		}
	}

	s.log.Error("notification undeliverable",
		logx.String("title", n.Title), logx.Err(lastErr))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{
			Type: "notify.failed",
			Data: fmt.Sprintf("%s: %v", n.Title, lastErr),
		})
	}
}

// retryDelay is exponential backoff with 0.7..1.3 jitter.
func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
