package config

// Config is the daemon configuration. Durations are strings in Go
// duration syntax ("90s", "10m"); cron fields take robfig/cron specs.
type Config struct {
	Logging   LoggingConfig    `json:"logging"`
	Storage   StorageConfig    `json:"storage"`
	Feeds     FeedsConfig      `json:"feeds"`
	Calendars []CalendarConfig `json:"calendars"`
	Scheduler SchedulerConfig  `json:"scheduler"`
	Notify    NotifyConfig     `json:"notify"`
	Sound     SoundConfig      `json:"sound"`
}

type LoggingConfig struct {
	Level   string     `json:"level"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StorageConfig struct {
	// Driver: "file", "sqlite", or "none".
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	// Retention bounds how long acknowledgments are kept; entries whose
	// fire instant is older are pruned on PruneSchedule.
	Retention     string `json:"retention,omitempty"`      // default 720h
	PruneSchedule string `json:"prune_schedule,omitempty"` // default "30 3 * * *"
}

type FeedsConfig struct {
	// Refresh is the cron spec for pulling all feeds, e.g. "*/15 * * * *".
	Refresh string `json:"refresh"`
	// CacheDir stores conditional-fetch state and last good bodies.
	CacheDir string `json:"cache_dir"`
	Timeout  string `json:"timeout,omitempty"`
}

// CalendarConfig binds one ICS feed to one calendar, including the
// default alert sets events may inherit. Offsets use the signed
// P/T duration grammar, e.g. "-PT15M".
type CalendarConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Feed string `json:"feed"`

	DefaultAlerts       []string `json:"default_alerts,omitempty"`
	DefaultAlertsAllDay []string `json:"default_alerts_all_day,omitempty"`
}

type SchedulerConfig struct {
	Enabled       bool   `json:"enabled"`
	EvalInterval  string `json:"eval_interval,omitempty"`  // default 60s
	StaleWindow   string `json:"stale_window,omitempty"`   // default 10m
	LookAhead     string `json:"look_ahead,omitempty"`     // default 24h
	FetchThrottle string `json:"fetch_throttle,omitempty"` // default 5x eval interval
}

type NotifyConfig struct {
	// Channel: "desktop" (D-Bus), "telegram", or "none".
	Channel string `json:"channel"`

	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`

	// Duration is how long a desktop notification stays on screen.
	Duration string `json:"duration,omitempty"`

	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token  string `json:"token,omitempty"`
	ChatID int64  `json:"chat_id,omitempty"`
}

type SoundConfig struct {
	Enabled bool     `json:"enabled"`
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}
