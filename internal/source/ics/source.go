package ics

import (
	"context"
	"errors"
	"sync"
	"time"

	"calalert/internal/eventbus"
	"calalert/pkg/alert"
	logx "calalert/pkg/logx"
)

type Config struct {
	CacheDir string
	Timeout  time.Duration
}

// Source materializes calendar events from a set of ICS feeds. It holds
// the last good expansion per calendar, so consumers always see a
// consistent snapshot even while a refresh is in flight.
type Source struct {
	log logx.Logger
	bus eventbus.Bus

	fetcher *Fetcher

	mu        sync.RWMutex
	feeds     []Feed
	calendars []alert.Calendar
	events    map[string][]alert.CalendarEvent // calendar id -> expanded events
	loaded    map[string]bool
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Source {
	return &Source{
		log:     log.With(logx.String("component", "ics")),
		bus:     bus,
		fetcher: NewFetcher(cfg.CacheDir, cfg.Timeout, log),
		events:  map[string][]alert.CalendarEvent{},
		loaded:  map[string]bool{},
	}
}

// Configure replaces the feed and calendar set, e.g. after a config
// reload. Events of removed calendars are dropped.
func (s *Source) Configure(feeds []Feed, calendars []alert.Calendar) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeds = append([]Feed(nil), feeds...)
	s.calendars = append([]alert.Calendar(nil), calendars...)

	known := map[string]bool{}
	for _, f := range feeds {
		known[f.CalendarID] = true
	}
	for id := range s.events {
		if !known[id] {
			delete(s.events, id)
			delete(s.loaded, id)
		}
	}
}

// Calendars returns the configured calendar set in configuration order.
func (s *Source) Calendars() []alert.Calendar {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]alert.Calendar(nil), s.calendars...)
}

// Events returns the current snapshot across all calendars.
func (s *Source) Events() []alert.CalendarEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []alert.CalendarEvent
	for _, f := range s.feeds {
		out = append(out, s.events[f.CalendarID]...)
	}
	return out
}

// Refresh pulls every feed and re-expands events within [after, before].
// Feeds fail independently; the previous snapshot of a failing feed is
// kept. A bus event is published per calendar whose data was rebuilt.
func (s *Source) Refresh(ctx context.Context, after, before time.Time) error {
	s.mu.RLock()
	feeds := append([]Feed(nil), s.feeds...)
	s.mu.RUnlock()

	var errs []error
	for _, feed := range feeds {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if err := s.refreshFeed(ctx, feed, after, before); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Source) refreshFeed(ctx context.Context, feed Feed, after, before time.Time) error {
	res, err := s.fetcher.Fetch(ctx, feed)
	if err != nil {
		s.log.Warn("feed refresh failed",
			logx.String("calendar", feed.CalendarID),
			logx.String("url", redactURL(feed.URL)),
			logx.Err(err))
		return err
	}

	s.mu.RLock()
	alreadyLoaded := s.loaded[feed.CalendarID]
	s.mu.RUnlock()
	if res.FromCache && alreadyLoaded {
		// Nothing new; keep the current expansion.
		return nil
	}

	parsed, perrs := parseCalendar(res.Body)
	for _, perr := range perrs {
		s.log.Warn("skipping malformed vevent",
			logx.String("calendar", feed.CalendarID), logx.Err(perr))
	}
	if len(parsed) == 0 && len(perrs) > 0 {
		return errors.Join(perrs...)
	}

	events := expandEvents(feed.CalendarID, parsed, after, before, s.log)

	s.mu.Lock()
	s.events[feed.CalendarID] = events
	s.loaded[feed.CalendarID] = true
	s.mu.Unlock()

	s.log.Info("calendar refreshed",
		logx.String("calendar", feed.CalendarID),
		logx.Int("events", len(events)),
		logx.Bool("from_cache", res.FromCache))

	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeEventsChanged,
		Data: eventbus.EventsChanged{Source: feed.CalendarID, Count: len(events)},
	})
	return nil
}
