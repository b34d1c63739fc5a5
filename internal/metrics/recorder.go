package metrics

import (
	"context"

	"fooddates/internal/eventbus"
	"fooddates/internal/expiry"
	"fooddates/internal/notifier"
	"fooddates/internal/reminder"
	"fooddates/internal/task/engine"
)

// Record updates metrics from bus events until ctx ends.
func Record(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			Observe(ev)
		}
	}
}

// Observe applies one event.
func Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TopicCheckFinished:
		if ce, ok := ev.Data.(expiry.CheckEvent); ok {
			result := "ok"
			switch {
			case ce.Error != "":
				result = "failed"
			case ce.Notified:
				result = "notified"
			}
			RecordCheck(result, ce.Took, ce.Expired, ce.Today, ce.Soon)
		}
	case eventbus.TopicCheckScheduled:
		if p, ok := ev.Data.(reminder.Plan); ok {
			SetNextCheck(p.Due)
		}
	case eventbus.TopicTaskFinished, eventbus.TopicTaskFailed, eventbus.TopicTaskSkipped:
		if te, ok := ev.Data.(engine.TaskEvent); ok {
			RecordTask(te.Name, taskStatus(ev.Type), te.Duration)
		}
	case eventbus.TopicNotifySent, eventbus.TopicNotifyFailed, eventbus.TopicNotifyDeduped, eventbus.TopicNotifyDropped:
		if ne, ok := ev.Data.(notifier.NotificationEvent); ok {
			RecordNotification(ne.Channel, notifyStatus(ev.Type))
		}
	case eventbus.TopicSettingsChanged:
		SettingsChanges.Inc()
	}
}

func taskStatus(topic string) string {
	switch topic {
	case eventbus.TopicTaskFailed:
		return "failed"
	case eventbus.TopicTaskSkipped:
		return "skipped"
	default:
		return "ok"
	}
}

func notifyStatus(topic string) string {
	switch topic {
	case eventbus.TopicNotifySent:
		return "sent"
	case eventbus.TopicNotifyFailed:
		return "failed"
	case eventbus.TopicNotifyDeduped:
		return "deduped"
	default:
		return "dropped"
	}
}
