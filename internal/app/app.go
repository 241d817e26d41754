package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"wovbot/internal/config"
	"wovbot/internal/eventbus"
	"wovbot/internal/jobs"
	"wovbot/internal/notifier"
	rtsup "wovbot/internal/runtime/supervisor"
	"wovbot/internal/storage"
	"wovbot/internal/systemd"
	"wovbot/internal/task/engine"
	"wovbot/internal/task/scheduler"
	kit "wovbot/internal/transport"
	telegram "wovbot/internal/transport/telegram/adapter"
	"wovbot/internal/transport/telegram/router"
	logx "wovbot/pkg/logx"
)

const jobGrace = 5 * time.Second

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.JobStore
	adapter kit.Adapter

	engine *engine.Service
	sched  *scheduler.Service
	notif  *notifier.Service
	sd     *systemd.Notifier

	cmdm *router.CommandManager

	updates chan kit.Update
}

type Option func(*options)

type options struct {
	adapter kit.Adapter
}

// WithAdapter replaces the Telegram adapter (tests, other transports).
func WithAdapter(a kit.Adapter) Option {
	return func(o *options) { o.adapter = a }
}

// NewApp loads the config and builds every component. Nothing runs until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	// The Telegram sink stays off until the adapter and target exist,
	// otherwise Apply warns about a missing chat.
	logCfg := mapLoggingConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	logSvc, log := logx.New(logCfg, nil)

	ad := o.adapter
	if ad == nil {
		tcfg, err := mapTelegramConfig(cfg)
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		tg, err := telegram.New(tcfg, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		ad = tg
	}
	logSvc.SetSender(ad)
	logTarget := mapLogTarget(cfg)
	logSvc.SetTelegramTarget(logTarget.ChatID, logTarget.ThreadID)
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	fail := func(err error) (*App, error) {
		_ = logSvc.Close()
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return fail(err)
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return fail(fmt.Errorf("open storage: %w", err))
	}

	bus := eventbus.New()
	engineSvc := engine.New(mapEngineConfig(cfg), log.With(logx.String("comp", "engine")), bus)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	notifSvc := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	reg := scheduler.NewRegistry()
	if err := jobs.Register(reg, jobs.Deps{
		Log:           log.With(logx.String("comp", "jobs")),
		Notifier:      notifSvc,
		DefaultTarget: logTarget,
	}); err != nil {
		_ = store.Close()
		return fail(err)
	}

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		return fail(err)
	}
	schedSvc := scheduler.New(schedCfg, reg, store, engineSvc, log.With(logx.String("comp", "scheduler")), bus)

	cmdm := router.NewCommandManager(log.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     bus,
		store:   store,
		adapter: ad,
		engine:  engineSvc,
		sched:   schedSvc,
		notif:   notifSvc,
		sd:      systemd.New(mapSystemdConfig(cfg), log.With(logx.String("comp", "systemd"))),
		cmdm:    cmdm,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	runCtx := a.sup.Context()

	// Reloads are validated before commit/publish.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	n, err := a.sched.LoadFromStore(runCtx)
	if err != nil {
		a.log.Error("loading jobs failed; starting with an empty schedule", logx.Err(err))
	}

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start adapter: %w", err)
	}
	a.notif.Start(runCtx)

	a.cmdm.SetRegistry(runCtx, router.BuiltinCommands(a.sched, a.sched.Now))
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if a.sched.Enabled() {
		a.sup.Go("scheduler.run", a.sched.Run)
	} else {
		a.log.Warn("scheduler disabled; stored jobs will not fire")
	}

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
				// Debug level; interval jobs can be frequent.
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, cfg)
				last = cfg
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := a.sd.RunWatchdog(c); err != nil {
			a.log.Warn("systemd watchdog unavailable", logx.Err(err))
		}
	})
	a.sd.Status("%d jobs scheduled", n)
	a.sd.Ready()
	a.announce(runCtx, n)

	a.log.Info("app started", logx.Int("jobs", n), logx.Bool("scheduler", a.sched.Enabled()))
	return nil
}

// announce posts a startup line to the log group. Best effort.
func (a *App) announce(ctx context.Context, jobs int) {
	target := mapLogTarget(a.cfgm.Get())
	if target.ChatID == 0 || !a.notif.Enabled() {
		return
	}
	err := a.notif.Notify(ctx, kit.Notification{
		Target:  target,
		Text:    fmt.Sprintf("✅ <b>wovbot started</b>\n%d jobs scheduled", jobs),
		Options: &kit.SendOptions{ParseMode: "HTML", DisablePreview: true},
	})
	if err != nil {
		a.log.Debug("startup announcement skipped", logx.Err(err))
	}
}

// applyConfig hot-applies logging, owners and notifier settings. Other
// sections are only logged; they take effect on restart.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	changed, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(changed) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.sd.Reloading()
	defer a.sd.Ready()

	target := mapLogTarget(newCfg)
	a.logs.SetTelegramTarget(target.ChatID, target.ThreadID)
	a.logs.Apply(mapLoggingConfig(newCfg))

	a.cmdm.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ncfg, err := mapNotifierConfig(newCfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		wasEnabled := a.notif.Enabled()
		a.notif.Apply(ncfg)
		switch {
		case wasEnabled && !ncfg.Enabled:
			a.log.Info("notifier disabled via config")
			stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			a.notif.Stop(stopCtx)
			cancel()
		case !wasEnabled && ncfg.Enabled:
			a.log.Info("notifier enabled via config")
			a.notif.Start(ctx)
		}
	}

	if len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so the dispatch loop, poller and watchers start unwinding.
	a.sup.Cancel()

	// step runs fn bounded by limit and by the caller's deadline.
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
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
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		}
	}

	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 3*time.Second, a.sup.Wait)
	// Dispatched handlers are never cancelled; give them a grace window,
	// then drain whatever they queued for delivery.
	a.engine.Close()
	step("jobs", jobGrace, func(c context.Context) error {
		if err := a.engine.Wait(c); err != nil {
			return fmt.Errorf("%d jobs still running: %w", a.engine.Snapshot().InFlight, err)
		}
		return nil
	})
	step("notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("storage", 2*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
