// Package session runs the alert evaluation loop: on a fixed tick and on
// data-change signals it computes the due alerts, acknowledges them, and
// hands them to the notifier. Acknowledgment happens before dispatch, so
// a crash between the two loses a notification rather than repeating it.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"calalert/internal/eventbus"
	"calalert/internal/notify"
	"calalert/pkg/alert"
	logx "calalert/pkg/logx"
)

type Config struct {
	Enabled       bool
	EvalInterval  time.Duration // default 60s
	StaleWindow   time.Duration // default alert.DefaultStaleWindow
	LookAhead     time.Duration // default 24h
	FetchThrottle time.Duration // default 5x EvalInterval
	SoundEnabled  bool
}

func (c Config) withDefaults() Config {
	if c.EvalInterval <= 0 {
		c.EvalInterval = time.Minute
	}
	if c.StaleWindow <= 0 {
		c.StaleWindow = alert.DefaultStaleWindow
	}
	if c.LookAhead <= 0 {
		c.LookAhead = 24 * time.Hour
	}
	if c.FetchThrottle <= 0 {
		c.FetchThrottle = 5 * c.EvalInterval
	}
	return c
}

// EventSource supplies the current event snapshot and can refresh it.
type EventSource interface {
	Events() []alert.CalendarEvent
	Calendars() []alert.Calendar
	Refresh(ctx context.Context, after, before time.Time) error
}

// AckStore persists acknowledgment keys across restarts.
type AckStore interface {
	Has(ctx context.Context, key string) (bool, error)
	Record(ctx context.Context, key string, fire time.Time) error
}

// Notifier accepts formatted notifications; satisfied by notify.Service.
type Notifier interface {
	Enqueue(ctx context.Context, n notify.Notification) error
}

// Player plays the audible cue; satisfied by sound implementations.
type Player interface {
	Play(ctx context.Context) error
}

// Formatter renders one pending alert into a notification title/body.
type Formatter func(p alert.PendingAlert) (title, message string)

// DefaultFormatter shows the event summary, calendar, and start time.
func DefaultFormatter(p alert.PendingAlert) (string, string) {
	title := p.Event.Summary
	if title == "" {
		title = "Upcoming event"
	}
	var body string
	if p.Event.StartUTC != nil {
		if p.Event.AllDay {
			body = p.Event.StartUTC.Local().Format("Mon Jan 2")
		} else {
			body = p.Event.StartUTC.Local().Format("Mon Jan 2 15:04")
		}
	}
	if p.Event.Location != "" {
		if body != "" {
			body += " · "
		}
		body += p.Event.Location
	}
	if p.CalendarName != "" {
		if body != "" {
			body += "\n"
		}
		body += p.CalendarName
	}
	return title, body
}

// Session folds ticks and bus signals into a single evaluation goroutine.
type Session struct {
	cfg Config
	log logx.Logger
	bus eventbus.Bus

	source    EventSource
	store     AckStore
	notifier  Notifier
	player    Player
	formatter Formatter

	// nowFn is swapped in tests.
	nowFn func() time.Time

	fetchLimiter *rate.Limiter

	mu         sync.Mutex
	dispatched map[string]struct{} // keys acked by this process

	cron      *cron.Cron
	evalCh    chan struct{}
	runCtx    context.Context
	runCancel context.CancelFunc
	unsub     func()
	wg        sync.WaitGroup
	started   bool
}

func New(cfg Config, source EventSource, store AckStore, notifier Notifier, player Player, formatter Formatter, log logx.Logger, bus eventbus.Bus) *Session {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	if formatter == nil {
		formatter = DefaultFormatter
	}
	return &Session{
		cfg:          cfg,
		log:          log.With(logx.String("component", "session")),
		bus:          bus,
		source:       source,
		store:        store,
		notifier:     notifier,
		player:       player,
		formatter:    formatter,
		nowFn:        time.Now,
		fetchLimiter: rate.NewLimiter(rate.Every(cfg.FetchThrottle), 1),
		dispatched:   map[string]struct{}{},
		evalCh:       make(chan struct{}, 1),
	}
}

func (s *Session) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.log.Info("session disabled")
		return nil
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	s.cron = cron.New()
	if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.EvalInterval), s.requestEval); err != nil {
		return fmt.Errorf("session tick: %w", err)
	}
	s.cron.Start()

	if s.bus != nil {
		ch, unsub := s.bus.Subscribe(16)
		s.unsub = unsub
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.runCtx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if ev.Type == eventbus.TypeEventsChanged {
						s.requestEval()
					}
				}
			}
		}()
	}

	s.wg.Add(1)
	go s.evalLoop()

	// First evaluation right away; it also kicks off the initial fetch.
	s.requestEval()
	s.log.Info("session started",
		logx.Duration("eval_interval", s.cfg.EvalInterval),
		logx.Duration("stale_window", s.cfg.StaleWindow),
		logx.Duration("look_ahead", s.cfg.LookAhead))
	return nil
}

func (s *Session) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.unsub != nil {
		s.unsub()
	}
	s.runCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// requestEval coalesces any number of triggers into one queued evaluation.
func (s *Session) requestEval() {
	select {
	case s.evalCh <- struct{}{}:
	default:
	}
}

func (s *Session) evalLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.runCtx.Done():
			return
		case <-s.evalCh:
			s.Evaluate(s.runCtx)
		}
	}
}

// Evaluate runs one pass: refresh (throttled, async), compute due
// alerts, acknowledge and dispatch them.
func (s *Session) Evaluate(ctx context.Context) {
	now := s.nowFn()

	s.maybeRefresh(ctx, now)

	events := s.source.Events()
	calendars := s.source.Calendars()

	view := &ackView{ctx: ctx, session: s}
	pending := alert.PendingAlerts(events, calendars, view, now, s.cfg.StaleWindow)
	if len(pending) == 0 {
		return
	}

	dispatchedAny := false
	for _, p := range pending {
		key := alert.Key(p.EventID, p.AlertID, p.FireTime)

		// Acknowledge first. If recording fails we skip the dispatch:
		// a missed notification beats a repeating one.
		if s.store != nil {
			if err := s.store.Record(ctx, key, p.FireTime); err != nil {
				s.log.Error("ack record failed; suppressing dispatch",
					logx.String("key", key), logx.Err(err))
				continue
			}
		}
		s.mu.Lock()
		s.dispatched[key] = struct{}{}
		s.mu.Unlock()

		title, message := s.formatter(p)
		if s.notifier != nil {
			if err := s.notifier.Enqueue(ctx, notify.Notification{Title: title, Message: message}); err != nil {
				s.log.Warn("notification enqueue failed",
					logx.String("key", key), logx.Err(err))
			}
		}
		dispatchedAny = true

		s.log.Info("alert dispatched",
			logx.String("event", p.EventID),
			logx.String("alert", p.AlertID),
			logx.Time("fire", p.FireTime))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{
				Type: eventbus.TypeAlertDispatched,
				Data: eventbus.AlertDispatched{Key: key, EventID: p.EventID, FireTime: p.FireTime},
			})
		}
	}

	// One cue per pass, no matter how many alerts fired together.
	if dispatchedAny && s.cfg.SoundEnabled && s.player != nil {
		if err := s.player.Play(ctx); err != nil {
			s.log.Warn("sound cue failed", logx.Err(err))
		}
	}
}

// maybeRefresh starts an async feed refresh, throttled so reactive
// evaluations cannot hammer the feeds.
func (s *Session) maybeRefresh(ctx context.Context, now time.Time) {
	if !s.fetchLimiter.Allow() {
		return
	}
	after := now.Add(-s.cfg.StaleWindow)
	before := now.Add(s.cfg.LookAhead)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.source.Refresh(ctx, after, before); err != nil {
			s.log.Warn("feed refresh failed", logx.Err(err))
		}
	}()
}

// ackView adapts the session's dispatch memory plus the persistent store
// to the evaluator's acked-set interface. A store read error is treated
// as "not acknowledged"; the local map still suppresses duplicates from
// this process.
type ackView struct {
	ctx     context.Context
	session *Session
}

func (v *ackView) Has(key string) bool {
	s := v.session
	s.mu.Lock()
	_, local := s.dispatched[key]
	s.mu.Unlock()
	if local {
		return true
	}
	if s.store == nil {
		return false
	}
	ok, err := s.store.Has(v.ctx, key)
	if err != nil {
		s.log.Warn("ack lookup failed", logx.String("key", key), logx.Err(err))
		return false
	}
	return ok
}
