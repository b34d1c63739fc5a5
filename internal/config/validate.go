package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "fooddates/pkg/logx"
)

// Validate checks cross-field rules that the strict decoder cannot express.
// Domain values (theme names, clock strings) are checked by the packages
// that own them when the config is mapped at startup.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	if c.Telegram.Enabled && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram.enabled=true"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if !logx.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if te := c.TaskEngine; te != nil {
		if te.Workers < 0 || te.QueueSize < 0 || te.HistorySize < 0 || te.RetryMax < 0 {
			errs = append(errs, errors.New("task_engine: numeric fields must be >= 0"))
		}
		for path, raw := range map[string]string{
			"task_engine.default_timeout": te.DefaultTimeout,
			"task_engine.retry_base":      te.RetryBase,
			"task_engine.retry_max_delay": te.RetryMaxDelay,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if n := c.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.Burst < 0 || n.RetryMax < 0 || n.DedupMaxEntries < 0 {
			errs = append(errs, errors.New("notifier: numeric fields must be >= 0"))
		}
		for path, raw := range map[string]string{
			"notifier.retry_base":      n.RetryBase,
			"notifier.retry_max_delay": n.RetryMaxDelay,
			"notifier.dedup_window":    n.DedupWindow,
		} {
			if _, err := ParseDurationField(path, raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s := c.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "memory":
		case "file", "sqlite":
			if strings.TrimSpace(s.Path) == "" {
				errs = append(errs, fmt.Errorf("storage.path is required for driver %q", s.Driver))
			}
		default:
			errs = append(errs, fmt.Errorf("storage.driver: unsupported %q", s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Reminder.WarnDays < 0 {
		errs = append(errs, errors.New("reminder.warn_days must be >= 0"))
	}
	if _, err := ParseDurationField("reminder.timeout", c.Reminder.Timeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
