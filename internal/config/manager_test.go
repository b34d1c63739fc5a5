package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  enabled: true
  token: "123:abc"
  owner_user_ids: [42]
  poll_timeout: 10s
logging:
  level: debug
  console: true
scheduler:
  enabled: true
  timezone: UTC
storage:
  driver: sqlite
  path: ./data/fooddates.db
reminder:
  warn_days: 2
preferences:
  date_format: "%Y-%m-%d"
  notification_time: "08:30"
  theme_mode: dark
`

func TestParseBytesYAMLAndJSON(t *testing.T) {
	t.Parallel()

	fromYAML, err := ParseBytes("config.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !fromYAML.Telegram.Enabled || fromYAML.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("telegram section: %+v", fromYAML.Telegram)
	}
	if fromYAML.Storage == nil || fromYAML.Storage.Driver != "sqlite" {
		t.Fatalf("storage section: %+v", fromYAML.Storage)
	}
	if fromYAML.Preferences == nil || fromYAML.Preferences.NotificationTime != "08:30" {
		t.Fatalf("preferences section: %+v", fromYAML.Preferences)
	}

	js := `{"scheduler":{"enabled":true},"reminder":{"task_name":"daily"}}`
	fromJSON, err := ParseBytes("config.json", []byte(js))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if fromJSON.Reminder.TaskName != "daily" {
		t.Fatalf("reminder: %+v", fromJSON.Reminder)
	}
}

func TestSchedulerEnabledDefault(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "section omitted", body: `{}`, want: true},
		{name: "key omitted", body: `{"scheduler":{"timezone":"UTC"}}`, want: true},
		{name: "explicit true", body: `{"scheduler":{"enabled":true}}`, want: true},
		{name: "explicit false", body: `{"scheduler":{"enabled":false}}`, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := ParseBytes("c.json", []byte(tt.body))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if got := cfg.Scheduler.On(); got != tt.want {
				t.Fatalf("On() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseBytesRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
		want string
	}{
		{name: "unknown key", file: "c.json", body: `{"nope":1}`, want: "unknown field"},
		{name: "trailing data", file: "c.json", body: `{}{}`, want: "trailing data"},
		{name: "bad duration", file: "c.json", body: `{"reminder":{"timeout":"soon"}}`, want: "reminder.timeout"},
		{name: "bad timezone", file: "c.json", body: `{"scheduler":{"timezone":"Mars/Base"}}`, want: "scheduler.timezone"},
		{name: "token required", file: "c.json", body: `{"telegram":{"enabled":true}}`, want: "telegram.token"},
		{name: "storage path", file: "c.json", body: `{"storage":{"driver":"file"}}`, want: "storage.path"},
		{name: "storage driver", file: "c.json", body: `{"storage":{"driver":"postgres","path":"x"}}`, want: "unsupported"},
		{name: "bad yaml", file: "c.yml", body: "a: [", want: "yaml"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBytes(tt.file, []byte(tt.body))
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err=%v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestEmptyYAMLIsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := ParseBytes("empty.yaml", []byte("\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(*cfg, Config{}) {
		t.Fatalf("expected zero config, got %+v", cfg)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	off := false
	oldCfg := &Config{Telegram: TelegramConfig{Token: "secret"}}
	newCfg := &Config{
		Telegram:  TelegramConfig{Token: "secret"},
		Scheduler: SchedulerConfig{Enabled: &off},
		Reminder:  ReminderConfig{WarnDays: 3},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if want := []string{"reminder", "scheduler"}; !reflect.DeepEqual(changed, want) {
		t.Fatalf("changed=%v want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}

	changed, _ = SummarizeConfigChange(newCfg, newCfg)
	if len(changed) != 0 {
		t.Fatalf("expected no change, got %v", changed)
	}
}

func TestWatchPublishesReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"reminder":{"warn_days":1}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{"reminder":{"warn_days":4}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case cfg := <-sub:
		if cfg.Reminder.WarnDays != 4 {
			t.Fatalf("warn_days=%d", cfg.Reminder.WarnDays)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no reload published")
	}
	if got := m.Get().Reminder.WarnDays; got != 4 {
		t.Fatalf("Get().Reminder.WarnDays=%d", got)
	}

	cancel()
	<-done
}
