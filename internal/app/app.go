// Package app wires the services together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"fooddates/internal/config"
	"fooddates/internal/eventbus"
	"fooddates/internal/expiry"
	"fooddates/internal/metrics"
	"fooddates/internal/notifier"
	"fooddates/internal/prefs"
	"fooddates/internal/reminder"
	rtsup "fooddates/internal/runtime/supervisor"
	"fooddates/internal/settings"
	"fooddates/internal/storage"
	"fooddates/internal/task/engine"
	"fooddates/internal/task/scheduler"
	kit "fooddates/internal/transport"
	"fooddates/internal/transport/logadapter"
	telegram "fooddates/internal/transport/telegram/adapter"
	"fooddates/internal/transport/telegram/router"
	logx "fooddates/pkg/logx"
)

const (
	itemGaugesTask    = "items.gauges"
	itemGaugesDefault = "5m"
	commandTimeout    = 30 * time.Second
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter

	engine  *engine.Service
	sched   *scheduler.Service
	notif   *notifier.Service
	metrics *metrics.Server

	prefs    *prefs.Store
	items    *expiry.Items
	checker  *expiry.Checker
	daily    *reminder.Daily
	settings *settings.Controller
	cmdm     *router.CommandManager

	announce atomic.Bool
	updates  chan kit.Update
}

// New loads the config at cfgPath and builds every service. Nothing runs
// until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	mc, err := mapAll(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))
	bus := eventbus.New()

	sc := mc.storage
	store, err := storage.Open(sc, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	var ad kit.Adapter
	if cfg.Telegram.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, log)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		ad = tg
	} else {
		log.Warn("telegram disabled; notifications go to the log")
		ad = logadapter.New(log)
	}

	engineSvc := engine.New(mc.engine, log, bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, log, bus)

	notifSvc := notifier.New(mc.notifier, ad, log, bus, store)

	prefStore := prefs.New(store, mc.prefs, log)

	rem := mc.reminder
	checker := expiry.NewChecker(store, prefStore, notifSvc, mapChecker(cfg, rem, schedSvc.Location()), log, bus)
	daily := reminder.NewDaily(schedSvc, checker.Run, reminder.Options{Identity: rem.TaskName, Timeout: rem.Timeout}, log)
	ctrl := settings.New(prefStore, daily, schedSvc, settings.Options{
		Identity: rem.TaskName,
		Location: schedSvc.Location,
	}, log, bus)

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   engineSvc,
		sched:    schedSvc,
		notif:    notifSvc,
		metrics:  metrics.NewServer(mapMetrics(cfg), log),
		prefs:    prefStore,
		items:    expiry.NewItems(store, log),
		checker:  checker,
		daily:    daily,
		settings: ctrl,
		cmdm:     router.NewCommandManager(log, ad, cfg.Telegram.OwnerUserIDs, commandTimeout),
		updates:  make(chan kit.Update, 256),
	}
	a.announce.Store(rem.Announce)

	h := &router.Handlers{
		Settings: ctrl,
		Items:    a.items,
		Checker:  checker,
		Announce: a.announce.Load,
		Location: schedSvc.Location,
	}
	a.cmdm.SetRegistry(h.Registry())
	return a, nil
}

// Done is closed when the app supervisor ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Settings exposes the settings controller.
func (a *App) Settings() *settings.Controller { return a.settings }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validate(cfg) })

	// metrics first so startup events are counted
	a.sup.Go("metrics.record", func(c context.Context) error { return metrics.Record(c, a.bus) })
	a.metrics.Start(run)

	if a.notif.Enabled() {
		a.notif.Start(run)
	}
	a.engine.Start(run)
	a.sched.Start(run)

	if err := a.syncItemGauges(a.cfgm.Get()); err != nil {
		return err
	}
	plan, err := a.settings.Restore(run)
	if err != nil {
		return fmt.Errorf("restore daily check: %w", err)
	}
	if a.sched.Enabled() {
		a.log.Info("daily check scheduled", logx.Time("due", plan.Due), logx.String("in", plan.Human()))
	} else {
		a.log.Warn("daily check registered but scheduler is disabled", logx.Time("due", plan.Due))
	}

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	if mu, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		mctx, cancel := context.WithTimeout(run, 10*time.Second)
		if err := mu.UpdateMenuCommands(mctx, a.cmdm.MenuCommands()); err != nil {
			a.log.Warn("menu commands not updated", logx.Err(err))
		}
		cancel()
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	checks, unsubChecks := a.bus.Subscribe(16)
	a.sup.Go0("items.after_check", func(c context.Context) {
		defer unsubChecks()
		finished := eventbus.Filter(checks, eventbus.TopicCheckFinished)
		for {
			select {
			case <-c.Done():
				return
			case _, ok := <-finished:
				if !ok {
					return
				}
				if a.sched.Has(itemGaugesTask) {
					if err := a.refreshItemGauges(c); err != nil {
						a.log.Debug("item gauges not refreshed", logx.Err(err))
					}
				}
			}
		}
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

// syncItemGauges keeps the item gauge job registered while metrics are
// served.
func (a *App) syncItemGauges(cfg *config.Config) error {
	if !cfg.Metrics.Enabled {
		if a.sched.Remove(itemGaugesTask) {
			a.log.Info("item gauges stopped")
		}
		return nil
	}
	spec, err := mapItemsSchedule(cfg)
	if err != nil {
		return err
	}
	added := !a.sched.Has(itemGaugesTask)
	if _, err := a.sched.AddSchedule(itemGaugesTask, spec, 10*time.Second, a.refreshItemGauges); err != nil {
		return fmt.Errorf("register %s: %w", itemGaugesTask, err)
	}
	if added {
		a.log.Info("item gauges scheduled", logx.String("schedule", spec))
	}
	return nil
}

// refreshItemGauges is the periodic job behind the item gauges.
func (a *App) refreshItemGauges(ctx context.Context) error {
	rep, err := a.checker.Tally(ctx)
	if err != nil {
		return err
	}
	metrics.SetItems(len(rep.Expired), len(rep.DueToday), len(rep.Soon), rep.Fresh)
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "taskengine", 2*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "metrics", time.Second, func(c context.Context) error { a.metrics.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and by ctx's deadline, so one
// component cannot stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}
