package config

import (
	"reflect"
	"sort"
	"strings"

	logx "calalert/pkg/logx"
)

// SummarizeChange returns a sorted list of changed sections plus safe
// structured attrs for logging. Secrets (the Telegram token) are never
// included, only whether one is set.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newCfg.Storage.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Feeds, newCfg.Feeds) {
		changed = append(changed, "feeds")
		attrs = append(attrs,
			logx.String("feeds.refresh", strings.TrimSpace(newCfg.Feeds.Refresh)))
	}

	if !reflect.DeepEqual(oldCfg.Calendars, newCfg.Calendars) {
		changed = append(changed, "calendars")
		attrs = append(attrs, logx.Int("calendars.count", len(newCfg.Calendars)))
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.eval_interval", strings.TrimSpace(newCfg.Scheduler.EvalInterval)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		attrs = append(attrs,
			logx.String("notify.channel", strings.TrimSpace(newCfg.Notify.Channel)),
			logx.Int("notify.workers", newCfg.Notify.Workers),
			logx.Bool("notify.telegram_token_set", strings.TrimSpace(newCfg.Notify.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Sound, newCfg.Sound) {
		changed = append(changed, "sound")
		attrs = append(attrs, logx.Bool("sound.enabled", newCfg.Sound.Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}
