package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fooddates/internal/config"
	"fooddates/internal/expiry"
	"fooddates/internal/metrics"
	"fooddates/internal/notifier"
	"fooddates/internal/prefs"
	"fooddates/internal/storage"
	"fooddates/internal/task/engine"
	"fooddates/internal/task/scheduler"
	kit "fooddates/internal/transport"
	logx "fooddates/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Enabled:  cfg.Scheduler.On(),
		Timezone: strings.TrimSpace(cfg.Scheduler.Timezone),
	}
}

// mapTaskEngineConfig fills defaults for omitted fields. The engine is
// always enabled: /check runs outside it but scheduled jobs need it.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	ec := engine.Config{Enabled: true}
	te := cfg.TaskEngine
	if te == nil {
		te = &config.TaskEngineConfig{}
	}
	ec.Workers = te.Workers
	ec.QueueSize = te.QueueSize
	ec.HistorySize = te.HistorySize
	ec.RetryMax = te.RetryMax
	if ec.RetryMax == 0 {
		ec.RetryMax = 3
	}

	var err error
	if ec.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if ec.RetryBase, err = config.ParseDurationOrDefault("task_engine.retry_base", te.RetryBase, time.Second); err != nil {
		return engine.Config{}, err
	}
	if ec.RetryMaxDelay, err = config.ParseDurationOrDefault("task_engine.retry_max_delay", te.RetryMaxDelay, 30*time.Second); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// mapNotifierConfig enables the notifier with defaults when the section is
// omitted.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{Enabled: true, PersistDedup: true}, nil
	}
	nc := notifier.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		Burst:           n.Burst,
		RetryMax:        n.RetryMax,
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
	var err error
	if nc.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase); err != nil {
		return notifier.Config{}, err
	}
	if nc.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay); err != nil {
		return notifier.Config{}, err
	}
	if nc.DedupWindow, err = config.ParseDurationField("notifier.dedup_window", n.DedupWindow); err != nil {
		return notifier.Config{}, err
	}
	return nc, nil
}

// mapStorageConfig defaults to the in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	if sc == nil {
		return storage.Config{Driver: "memory"}, nil
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "memory":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: strings.TrimSpace(sc.Path)}, nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			return storage.Config{}, errors.New("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapPreferences overlays configured defaults on the built-in ones.
func mapPreferences(cfg *config.Config) (prefs.Preferences, error) {
	p := prefs.Defaults()
	pc := cfg.Preferences
	if pc == nil {
		return p, nil
	}
	if s := strings.TrimSpace(pc.DateFormat); s != "" {
		p.DateFormat = s
	}
	if s := strings.TrimSpace(pc.NotificationTime); s != "" {
		t, err := prefs.ParseNotificationTime(s)
		if err != nil {
			return prefs.Preferences{}, fmt.Errorf("preferences.notification_time: %w", err)
		}
		p.NotificationTime = t
	}
	if s := strings.TrimSpace(pc.ThemeMode); s != "" {
		m, err := prefs.ParseThemeMode(s)
		if err != nil {
			return prefs.Preferences{}, fmt.Errorf("preferences.theme_mode: %w", err)
		}
		p.ThemeMode = m
	}
	p.DynamicColors = pc.DynamicColors
	if err := p.Validate(); err != nil {
		return prefs.Preferences{}, fmt.Errorf("preferences: %w", err)
	}
	return p, nil
}

type reminderSettings struct {
	TaskName string
	Timeout  time.Duration
	WarnDays int
	Announce bool
}

func mapReminder(cfg *config.Config) (reminderSettings, error) {
	r := reminderSettings{
		TaskName: strings.TrimSpace(cfg.Reminder.TaskName),
		WarnDays: cfg.Reminder.WarnDays,
		Announce: cfg.Reminder.Announce,
	}
	if r.TaskName == "" {
		r.TaskName = config.DefaultTaskName
	}
	if r.WarnDays <= 0 {
		r.WarnDays = 1
	}
	var err error
	if r.Timeout, err = config.ParseDurationOrDefault("reminder.timeout", cfg.Reminder.Timeout, 2*time.Minute); err != nil {
		return reminderSettings{}, err
	}
	return r, nil
}

// mapChecker resolves where the daily notice goes: the configured chat,
// else the first owner's private chat.
func mapChecker(cfg *config.Config, r reminderSettings, loc *time.Location) expiry.CheckerConfig {
	cc := expiry.CheckerConfig{WarnDays: r.WarnDays, Location: loc, Channel: kit.ChannelLog}
	if !cfg.Telegram.Enabled {
		return cc
	}
	cc.Channel = kit.ChannelTelegram
	switch {
	case cfg.Telegram.ChatID != 0:
		cc.Target = kit.ChatTarget{ChatID: cfg.Telegram.ChatID}
	case len(cfg.Telegram.OwnerUserIDs) > 0:
		cc.Target = kit.ChatTarget{ChatID: cfg.Telegram.OwnerUserIDs[0]}
	}
	return cc
}

func mapMetrics(cfg *config.Config) metrics.ServerConfig {
	addr := strings.TrimSpace(cfg.Metrics.Addr)
	if addr == "" {
		addr = config.DefaultMetricsAddr
	}
	return metrics.ServerConfig{Enabled: cfg.Metrics.Enabled, Addr: addr, Pprof: cfg.Metrics.Pprof}
}

// mapItemsSchedule returns the item gauge schedule once it parses.
func mapItemsSchedule(cfg *config.Config) (string, error) {
	spec := strings.TrimSpace(cfg.Metrics.ItemsSchedule)
	if spec == "" {
		spec = itemGaugesDefault
	}
	if _, err := scheduler.ParseSchedule(spec); err != nil {
		return "", fmt.Errorf("metrics.items_schedule: %w", err)
	}
	return spec, nil
}

// mappedConfig is cfg translated into the service configs.
type mappedConfig struct {
	engine   engine.Config
	notifier notifier.Config
	storage  storage.Config
	prefs    prefs.Preferences
	reminder reminderSettings
}

// mapAll maps every section and joins the errors.
func mapAll(cfg *config.Config) (mappedConfig, error) {
	var (
		m    mappedConfig
		err  error
		errs []error
	)
	if m.engine, err = mapTaskEngineConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if m.notifier, err = mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if m.storage, err = mapStorageConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if m.prefs, err = mapPreferences(cfg); err != nil {
		errs = append(errs, err)
	}
	if m.reminder, err = mapReminder(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err = mapItemsSchedule(cfg); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.Enabled && cfg.Telegram.ChatID == 0 && len(cfg.Telegram.OwnerUserIDs) == 0 {
		errs = append(errs, errors.New("telegram: chat_id or owner_user_ids is required to deliver notifications"))
	}
	if len(errs) > 0 {
		return mappedConfig{}, errors.Join(errs...)
	}
	return m, nil
}

// validate maps every section so a hot reload cannot commit a config the
// services would reject.
func validate(cfg *config.Config) error {
	_, err := mapAll(cfg)
	return err
}
