package config

import (
	"fmt"
	"strings"

	"calalert/pkg/alert"
)

// Validate checks a parsed config for semantic problems the decoder
// cannot catch: bad durations, bad alert offsets, duplicate calendar
// IDs, and channel settings that cannot work.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	durations := []struct{ path, raw string }{
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"storage.retention", cfg.Storage.Retention},
		{"feeds.timeout", cfg.Feeds.Timeout},
		{"scheduler.eval_interval", cfg.Scheduler.EvalInterval},
		{"scheduler.stale_window", cfg.Scheduler.StaleWindow},
		{"scheduler.look_ahead", cfg.Scheduler.LookAhead},
		{"scheduler.fetch_throttle", cfg.Scheduler.FetchThrottle},
		{"notify.retry_base", cfg.Notify.RetryBase},
		{"notify.retry_max_delay", cfg.Notify.RetryMaxDelay},
		{"notify.duration", cfg.Notify.Duration},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	seen := map[string]bool{}
	for i, cal := range cfg.Calendars {
		id := strings.TrimSpace(cal.ID)
		if id == "" {
			return fmt.Errorf("calendars[%d]: id is required", i)
		}
		if seen[id] {
			return fmt.Errorf("calendars[%d]: duplicate id %q", i, id)
		}
		seen[id] = true
		if strings.TrimSpace(cal.Feed) == "" {
			return fmt.Errorf("calendars[%d] (%s): feed URL is required", i, id)
		}
		for _, off := range cal.DefaultAlerts {
			if _, err := alert.ParseOffset(off); err != nil {
				return fmt.Errorf("calendars[%d] (%s): default_alerts: %w", i, id, err)
			}
		}
		for _, off := range cal.DefaultAlertsAllDay {
			if _, err := alert.ParseOffset(off); err != nil {
				return fmt.Errorf("calendars[%d] (%s): default_alerts_all_day: %w", i, id, err)
			}
		}
	}

	switch strings.TrimSpace(cfg.Notify.Channel) {
	case "", "none", "desktop":
	case "telegram":
		if strings.TrimSpace(cfg.Notify.Telegram.Token) == "" {
			return fmt.Errorf("notify.telegram.token is required when channel is telegram")
		}
		if cfg.Notify.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id is required when channel is telegram")
		}
	default:
		return fmt.Errorf("notify.channel: unknown channel %q", cfg.Notify.Channel)
	}

	switch strings.TrimSpace(cfg.Storage.Driver) {
	case "", "none":
	case "file", "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return fmt.Errorf("storage.path is required for driver %q", cfg.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}

	if cfg.Sound.Enabled && strings.TrimSpace(cfg.Sound.Command) == "" {
		return fmt.Errorf("sound.command is required when sound is enabled")
	}

	return nil
}
