package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"fooddates/internal/config"
	logx "fooddates/pkg/logx"
)

// reloadLoop applies published configs until ctx ends. Bursts are
// coalesced to the latest config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		var next *config.Config
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			next = cfg
		}
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					next = newer
				}
			default:
				break drain
			}
		}
		a.applyConfig(ctx, last, next)
		last = next
	}
}

func (a *App) applyConfig(ctx context.Context, prev, cfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, cfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := func(s string) bool { return slices.Contains(sections, s) }

	if changed("storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}
	if prev != nil && (prev.Telegram.Enabled != cfg.Telegram.Enabled || prev.Telegram.Token != cfg.Telegram.Token) {
		a.log.Warn("telegram transport changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogging(cfg))
	a.cmdm.SetOwners(cfg.Telegram.OwnerUserIDs)

	if ec, err := mapTaskEngineConfig(cfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ec)
	}

	sc := mapSchedulerConfig(cfg)
	wasEnabled := a.sched.Enabled()
	a.sched.Apply(sc)
	switch {
	case wasEnabled && !sc.Enabled:
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	case !wasEnabled && sc.Enabled:
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if nc, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasOn := a.notif.Enabled()
		a.notif.Apply(nc)
		switch {
		case wasOn && !nc.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasOn && nc.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	a.metrics.Reconfigure(ctx, mapMetrics(cfg))
	if changed("metrics") {
		if err := a.syncItemGauges(cfg); err != nil {
			a.log.Warn("item gauges not rescheduled", logx.Err(err))
		}
	}

	if p, err := mapPreferences(cfg); err != nil {
		a.log.Warn("invalid preferences config; keeping previous", logx.Err(err))
	} else {
		a.prefs.SetDefaults(p)
	}

	if rem, err := mapReminder(cfg); err != nil {
		a.log.Warn("invalid reminder config; keeping previous", logx.Err(err))
	} else {
		if rem.TaskName != a.daily.Identity() {
			a.log.Warn("reminder.task_name changed; restart required for changes to take effect")
		}
		a.announce.Store(rem.Announce)
		a.checker.Apply(mapChecker(cfg, rem, a.sched.Location()))
	}

	// the stored notification time may fall back to a new default, and a
	// new timezone moves the due time
	if changed("preferences") || changed("reminder") || changed("scheduler") {
		if plan, err := a.settings.Restore(ctx); err != nil {
			a.log.Warn("daily check not rescheduled", logx.Err(err))
		} else {
			a.log.Info("daily check rescheduled", logx.Time("due", plan.Due), logx.String("in", plan.Human()))
		}
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}
