package config

import (
	"reflect"
	"sort"
	"strings"

	logx "fooddates/pkg/logx"
)

// SummarizeConfigChange returns the sorted list of changed top-level
// sections and log fields describing the new values. Secrets (the bot
// token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Enabled != nt.Enabled ||
		ot.ChatID != nt.ChatID ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		(ot.Token != nt.Token) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.enabled", nt.Enabled),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler.On() != newCfg.Scheduler.On() ||
		strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.On()),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if !reflect.DeepEqual(derefTaskEngine(oldCfg.TaskEngine), derefTaskEngine(newCfg.TaskEngine)) {
		te := derefTaskEngine(newCfg.TaskEngine)
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.Int("task_engine.retry_max", te.RetryMax),
		)
	}

	if !reflect.DeepEqual(oldCfg.Notifier, newCfg.Notifier) {
		changed = append(changed, "notifier")
		if n := newCfg.Notifier; n != nil {
			attrs = append(attrs,
				logx.Bool("notifier.enabled", n.Enabled),
				logx.Int("notifier.rate_per_sec", n.RatePerSec),
				logx.Bool("notifier.persist_dedup", n.PersistDedup),
			)
		}
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		if s := newCfg.Storage; s != nil {
			attrs = append(attrs, logx.String("storage.driver", strings.TrimSpace(s.Driver)))
		}
	}

	if oldCfg.Reminder != newCfg.Reminder {
		changed = append(changed, "reminder")
		attrs = append(attrs,
			logx.String("reminder.task_name", newCfg.Reminder.TaskName),
			logx.Int("reminder.warn_days", newCfg.Reminder.WarnDays),
		)
	}

	if !reflect.DeepEqual(oldCfg.Preferences, newCfg.Preferences) {
		changed = append(changed, "preferences")
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
		attrs = append(attrs,
			logx.Bool("metrics.enabled", newCfg.Metrics.Enabled),
			logx.String("metrics.addr", newCfg.Metrics.Addr),
			logx.String("metrics.items_schedule", newCfg.Metrics.ItemsSchedule),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}
