// Package metrics exposes Prometheus metrics for the check routine, the
// task engine and the notifier. Values are fed from the event bus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fooddates_check_runs_total",
			Help: "Expiration check runs by result",
		},
		[]string{"result"}, // ok, notified, failed
	)

	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fooddates_check_duration_seconds",
			Help:    "Expiration check duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	// items per bucket as seen by the last check
	CheckItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fooddates_check_items",
			Help: "Items found by the last check per bucket",
		},
		[]string{"bucket"}, // expired, today, soon
	)

	ItemsTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fooddates_items",
			Help: "Tracked food items by state",
		},
		[]string{"state"}, // fresh, expired
	)

	NextCheckTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fooddates_next_check_timestamp_seconds",
			Help: "Unix time of the next scheduled check",
		},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fooddates_task_runs_total",
			Help: "Background task runs by task and status",
		},
		[]string{"task", "status"}, // ok, failed, skipped
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fooddates_task_duration_seconds",
			Help:    "Background task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"task"},
	)

	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fooddates_notifications_total",
			Help: "Notifications by channel and outcome",
		},
		[]string{"channel", "status"}, // sent, failed, deduped, dropped
	)

	SettingsChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fooddates_settings_changes_total",
			Help: "Accepted settings changes",
		},
	)
)

func RecordCheck(result string, took time.Duration, expired, today, soon int) {
	CheckRuns.WithLabelValues(result).Inc()
	CheckDuration.Observe(took.Seconds())
	CheckItems.WithLabelValues("expired").Set(float64(expired))
	CheckItems.WithLabelValues("today").Set(float64(today))
	CheckItems.WithLabelValues("soon").Set(float64(soon))
}

func RecordTask(task, status string, took time.Duration) {
	TaskRuns.WithLabelValues(task, status).Inc()
	if status != "skipped" {
		TaskDuration.WithLabelValues(task).Observe(took.Seconds())
	}
}

func RecordNotification(channel, status string) {
	if channel == "" {
		channel = "unknown"
	}
	Notifications.WithLabelValues(channel, status).Inc()
}

func SetItems(expired, today, soon, fresh int) {
	ItemsTracked.WithLabelValues("expired").Set(float64(expired))
	ItemsTracked.WithLabelValues("today").Set(float64(today))
	ItemsTracked.WithLabelValues("soon").Set(float64(soon))
	ItemsTracked.WithLabelValues("fresh").Set(float64(fresh))
}

func SetNextCheck(at time.Time) {
	if at.IsZero() {
		NextCheckTimestamp.Set(0)
		return
	}
	NextCheckTimestamp.Set(float64(at.Unix()))
}
