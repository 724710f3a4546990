// Package app wires the daemon together: config, logging, storage, the
// ICS source, the notify pipeline, and the scheduling session.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"calalert/internal/ackstore"
	"calalert/internal/config"
	"calalert/internal/eventbus"
	"calalert/internal/notify"
	"calalert/internal/session"
	"calalert/internal/sound"
	"calalert/internal/source/ics"
	"calalert/pkg/alert"
	logx "calalert/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store    ackstore.Store
	source   *ics.Source
	notifier *notify.Service
	desktop  *notify.DesktopDispatcher
	player   sound.Player
	sess     *session.Session

	cron *cron.Cron

	sessCfg   session.Config
	retention time.Duration

	runCtx    context.Context
	runCancel context.CancelFunc
	watchDone chan struct{}
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("component", "app"))

	bus := eventbus.New()

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
	}

	if err := a.build(cfg); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	// Acknowledgment storage (optional).
	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := ackstore.Open(ackstore.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("component", "ackstore")))
	if err != nil {
		return err
	}
	a.store = store
	if store != nil {
		a.log.Info("ack store enabled", logx.String("driver", cfg.Storage.Driver))
	}
	a.retention, err = config.ParseDurationOrDefault("storage.retention", cfg.Storage.Retention, 720*time.Hour)
	if err != nil {
		return err
	}

	// ICS source.
	feedTimeout, err := config.ParseDurationField("feeds.timeout", cfg.Feeds.Timeout)
	if err != nil {
		return err
	}
	a.source = ics.New(ics.Config{
		CacheDir: cfg.Feeds.CacheDir,
		Timeout:  feedTimeout,
	}, a.log, a.bus)
	feeds, calendars := mapCalendars(cfg.Calendars)
	a.source.Configure(feeds, calendars)

	// Notification channel + pipeline.
	dispatcher, err := a.buildDispatcher(cfg)
	if err != nil {
		return err
	}
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return err
	}
	a.notifier = notify.New(ncfg, dispatcher, a.log, a.bus)

	// Sound cue.
	a.player = sound.Nop{}
	if cfg.Sound.Enabled {
		p, err := sound.NewCommandPlayer(cfg.Sound.Command, cfg.Sound.Args, a.log)
		if err != nil {
			return err
		}
		a.player = p
	}

	// Scheduling session.
	a.sessCfg, err = mapSessionConfig(cfg)
	if err != nil {
		return err
	}
	a.sess = session.New(a.sessCfg, a.source, sessionStore(a.store), a.notifier, a.player, nil, a.log, a.bus)
	return nil
}

func (a *App) buildDispatcher(cfg *config.Config) (notify.Dispatcher, error) {
	switch strings.TrimSpace(cfg.Notify.Channel) {
	case "", "none":
		a.log.Warn("no notify channel configured; alerts are log-only")
		return notify.DispatchFunc(func(ctx context.Context, n notify.Notification) error {
			a.log.Info("alert", logx.String("title", n.Title), logx.String("message", n.Message))
			return nil
		}), nil
	case "desktop":
		d := notify.NewDesktopDispatcher(a.log)
		a.desktop = d
		return a.wrapDuration(d, cfg)
	case "telegram":
		t, err := notify.NewTelegramDispatcher(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.ChatID, a.log)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("notify.channel: unknown channel %q", cfg.Notify.Channel)
	}
}

// wrapDuration stamps the configured popup duration onto each notification.
func (a *App) wrapDuration(d notify.Dispatcher, cfg *config.Config) (notify.Dispatcher, error) {
	dur, err := config.ParseDurationField("notify.duration", cfg.Notify.Duration)
	if err != nil {
		return nil, err
	}
	if dur <= 0 {
		return d, nil
	}
	return notify.DispatchFunc(func(ctx context.Context, n notify.Notification) error {
		if n.Duration == 0 {
			n.Duration = dur
		}
		return d.Dispatch(ctx, n)
	}), nil
}

func (a *App) Start(ctx context.Context) error {
	a.runCtx, a.runCancel = context.WithCancel(context.WithoutCancel(ctx))

	a.notifier.Start(a.runCtx)
	if err := a.sess.Start(a.runCtx); err != nil {
		return err
	}

	// Cron: feed refresh plus nightly ack pruning.
	a.cron = cron.New()
	cfg := a.cfgm.Get()
	refreshSpec := strings.TrimSpace(cfg.Feeds.Refresh)
	if refreshSpec == "" {
		refreshSpec = "*/15 * * * *"
	}
	if _, err := a.cron.AddFunc(refreshSpec, func() { a.refreshFeeds(a.runCtx) }); err != nil {
		return fmt.Errorf("feeds.refresh: %w", err)
	}
	if a.store != nil {
		pruneSpec := strings.TrimSpace(cfg.Storage.PruneSchedule)
		if pruneSpec == "" {
			pruneSpec = "30 3 * * *"
		}
		if _, err := a.cron.AddFunc(pruneSpec, func() { a.pruneAcks(a.runCtx) }); err != nil {
			return fmt.Errorf("storage.prune_schedule: %w", err)
		}
	}
	a.cron.Start()

	// Config hot reload.
	a.cfgm.SetLogger(a.log.With(logx.String("component", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})
	sub := a.cfgm.Subscribe(8)
	a.watchDone = make(chan struct{})
	go func() {
		defer close(a.watchDone)
		a.reloadLoop(a.runCtx, sub)
	}()
	go func() {
		_ = a.cfgm.Watch(a.runCtx)
	}()

	// systemd integration is a no-op outside a unit.
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		a.startWatchdog(a.runCtx)
	}

	a.log.Info("started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	a.log.Info("stopping")

	if a.cron != nil {
		cronCtx := a.cron.Stop()
		select {
		case <-cronCtx.Done():
		case <-ctx.Done():
		}
	}

	if a.sess != nil {
		a.sess.Stop(ctx)
	}
	if a.notifier != nil {
		a.notifier.Stop(ctx)
	}

	if a.runCancel != nil {
		a.runCancel()
	}
	if a.watchDone != nil {
		select {
		case <-a.watchDone:
		case <-ctx.Done():
		}
	}

	if a.desktop != nil {
		_ = a.desktop.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("ack store close failed", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func (a *App) refreshFeeds(ctx context.Context) {
	now := time.Now()
	after := now.Add(-a.sessCfg.StaleWindow)
	before := now.Add(a.sessCfg.LookAhead)
	if err := a.source.Refresh(ctx, after, before); err != nil {
		a.log.Warn("scheduled feed refresh failed", logx.Err(err))
	}
}

func (a *App) pruneAcks(ctx context.Context) {
	cutoff := time.Now().Add(-a.retention)
	if err := a.store.PruneOlderThan(ctx, cutoff); err != nil {
		a.log.Warn("ack prune failed", logx.Err(err))
	}
}

func (a *App) startWatchdog(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return
	}
	tick := interval / 2
	a.log.Debug("systemd watchdog enabled", logx.Duration("interval", tick))
	go func() {
		t := time.NewTicker(tick)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

// reloadLoop applies hot config changes: logging always, calendars by
// reconfiguring the source. Storage, notify channel, and scheduler
// changes need a restart and are called out in the log.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts; only the latest state matters.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes")
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			for _, s := range sections {
				switch s {
				case "calendars":
					feeds, calendars := mapCalendars(newCfg.Calendars)
					a.source.Configure(feeds, calendars)
					a.refreshFeeds(ctx)
				case "storage", "notify", "scheduler", "feeds", "sound":
					a.log.Warn("config section changed; restart required",
						logx.String("section", s))
				}
			}

			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Info("config reloaded", fields...)
		}
	}
}

// sessionStore narrows the optional ack store to the session interface;
// a typed nil must stay a nil interface.
func sessionStore(st ackstore.Store) session.AckStore {
	if st == nil {
		return nil
	}
	return st
}

func mapCalendars(specs []config.CalendarConfig) ([]ics.Feed, []alert.Calendar) {
	feeds := make([]ics.Feed, 0, len(specs))
	calendars := make([]alert.Calendar, 0, len(specs))
	for _, c := range specs {
		feeds = append(feeds, ics.Feed{CalendarID: c.ID, URL: c.Feed})
		calendars = append(calendars, alert.Calendar{
			ID:                  c.ID,
			Name:                c.Name,
			DefaultAlerts:       defaultAlertSet(c.DefaultAlerts),
			DefaultAlertsAllDay: defaultAlertSet(c.DefaultAlertsAllDay),
		})
	}
	return feeds, calendars
}

// defaultAlertSet turns configured offset literals into display alerts.
func defaultAlertSet(offsets []string) alert.AlertSet {
	if len(offsets) == 0 {
		return nil
	}
	set := make(alert.AlertSet, len(offsets))
	for i, off := range offsets {
		set[fmt.Sprintf("default-%d", i+1)] = alert.Alert{
			Trigger: alert.OffsetTrigger{Offset: off, RelativeTo: alert.AnchorStart},
			Action:  alert.ActionDisplay,
		}
	}
	return set
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	retryBase, err := config.ParseDurationField("notify.retry_base", cfg.Notify.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notify.retry_max_delay", cfg.Notify.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Workers:       cfg.Notify.Workers,
		QueueSize:     cfg.Notify.QueueSize,
		RatePerSec:    cfg.Notify.RatePerSec,
		RetryMax:      cfg.Notify.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, nil
}

func mapSessionConfig(cfg *config.Config) (session.Config, error) {
	evalInterval, err := config.ParseDurationOrDefault("scheduler.eval_interval", cfg.Scheduler.EvalInterval, time.Minute)
	if err != nil {
		return session.Config{}, err
	}
	staleWindow, err := config.ParseDurationOrDefault("scheduler.stale_window", cfg.Scheduler.StaleWindow, alert.DefaultStaleWindow)
	if err != nil {
		return session.Config{}, err
	}
	lookAhead, err := config.ParseDurationOrDefault("scheduler.look_ahead", cfg.Scheduler.LookAhead, 24*time.Hour)
	if err != nil {
		return session.Config{}, err
	}
	fetchThrottle, err := config.ParseDurationField("scheduler.fetch_throttle", cfg.Scheduler.FetchThrottle)
	if err != nil {
		return session.Config{}, err
	}
	return session.Config{
		Enabled:       cfg.Scheduler.Enabled,
		EvalInterval:  evalInterval,
		StaleWindow:   staleWindow,
		LookAhead:     lookAhead,
		FetchThrottle: fetchThrottle,
		SoundEnabled:  cfg.Sound.Enabled,
	}, nil
}
