package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
// Sections declared as pointers may be omitted; runtime defaults apply.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	TaskEngine  *TaskEngineConfig  `json:"task_engine,omitempty"`
	Notifier    *NotifierConfig    `json:"notifier,omitempty"`
	Storage     *StorageConfig     `json:"storage,omitempty"`
	Reminder    ReminderConfig     `json:"reminder"`
	Preferences *PreferencesConfig `json:"preferences,omitempty"`
	Metrics     MetricsConfig      `json:"metrics,omitempty"`
}

type TelegramConfig struct {
	Enabled      bool    `json:"enabled"`
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// ChatID receives the daily expiration notice. When zero the first
	// owner's private chat is used.
	ChatID      int64  `json:"chat_id,omitempty"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // "text" | "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger service (cron + periodic tasks).
type SchedulerConfig struct {
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
	// Timezone used for "today" computations and cron triggers.
	// Empty means the process local zone.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls execution of scheduled jobs.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - history_size: 100
//   - retry_max: 3
//   - retry_base: "1s", retry_max_delay: "30s"
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
	RetryBase      string `json:"retry_base,omitempty"`
	RetryMaxDelay  string `json:"retry_max_delay,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
// If the whole section is omitted the notifier runs with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	Burst           int    `json:"burst,omitempty"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./fooddates.db" }
type StorageConfig struct {
	Driver      string `json:"driver"` // memory | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// ReminderConfig controls the daily expiration check.
type ReminderConfig struct {
	// TaskName is the identity the daily check is registered under.
	TaskName string `json:"task_name,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	// WarnDays is how many days ahead (after today) an item counts as
	// expiring soon. 0 means the default of 1 (tomorrow).
	WarnDays int `json:"warn_days,omitempty"`
	// Announce echoes "notification in ..." back to the user whenever the
	// check is rescheduled.
	Announce bool `json:"announce,omitempty"`
}

// PreferencesConfig holds the defaults used for preferences the user has
// never set.
type PreferencesConfig struct {
	DateFormat       string `json:"date_format,omitempty"`
	NotificationTime string `json:"notification_time,omitempty"` // "HH:MM"
	ThemeMode        string `json:"theme_mode,omitempty"`        // light | dark | system
	DynamicColors    bool   `json:"dynamic_colors,omitempty"`
}

// On reports whether the scheduler fires jobs.
func (c SchedulerConfig) On() bool { return c.Enabled == nil || *c.Enabled }

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default 127.0.0.1:9464
	// Pprof mounts net/http/pprof under /debug/pprof/ on the same listener.
	Pprof bool `json:"pprof,omitempty"`
	// ItemsSchedule refreshes the item gauges: a cron expression, a
	// duration or an HH:MM interval. Default "5m".
	ItemsSchedule string `json:"items_schedule,omitempty"`
}

const (
	DefaultTaskName    = "check_expirations"
	DefaultMetricsAddr = "127.0.0.1:9464"
)
