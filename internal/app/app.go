package app

import (
	"context"
	"fmt"
	"time"

	"escalabot/internal/config"
	"escalabot/internal/roster"
	rtsup "escalabot/internal/runtime/supervisor"
	"escalabot/internal/storage"
	"escalabot/internal/transport"
	telegram "escalabot/internal/transport/telegram/adapter"
	"escalabot/internal/transport/telegram/router"
	"escalabot/internal/trigger"
	logx "escalabot/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	adapter transport.Adapter
	rost    *roster.Service
	trig    *trigger.Service
	cmdm    *router.Manager

	cfgSub  chan *config.Config
	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, logSvc.Logger().With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	rost := roster.New(
		roster.Config{RatePerSec: cfg.Reminders.RatePerSec},
		store, ad,
		logSvc.Logger().With(logx.String("comp", "roster")),
	)

	tc, err := mapTriggerConfig(cfg)
	if err != nil {
		return nil, err
	}
	trig := trigger.New(tc, rost.RunDispatchPass, logSvc.Logger().With(logx.String("comp", "trigger")))

	cmdm := router.NewManager(logSvc.Logger().With(logx.String("comp", "commands")), ad)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: ad,
		rost:    rost,
		trig:    trig,
		cmdm:    cmdm,
		updates: make(chan transport.Update, 256),
	}
	cmdm.SetRegistry(a.commands())
	return a, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(false),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start telegram adapter: %w", err)
	}

	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	if err := a.trig.Start(a.sup.Context()); err != nil {
		return fmt.Errorf("start trigger loop: %w", err)
	}

	a.cfgSub = a.cfgm.Subscribe(1)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go("config.apply", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case cfg, ok := <-a.cfgSub:
				if !ok {
					return nil
				}
				a.applyConfig(cfg)
			}
		}
	})

	a.log.Info("started")
	return nil
}

// applyConfig applies the hot-reloadable parts of a new config: log sinks
// and the trigger schedule. Token/storage changes need a restart.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(mapLoggingConfig(cfg))

	tc, err := mapTriggerConfig(cfg)
	if err != nil {
		a.log.Warn("new trigger config rejected", logx.Err(err))
		return
	}
	if err := a.trig.Apply(tc); err != nil {
		a.log.Warn("trigger config apply failed", logx.Err(err))
	}
}

func (a *App) Stop(ctx context.Context) error {
	a.trig.Stop(ctx)
	_ = a.adapter.Stop(ctx)

	if a.sup != nil {
		a.sup.Cancel()
		wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_ = a.sup.Wait(wctx)
		cancel()
	}
	if a.cfgSub != nil {
		a.cfgm.Unsubscribe(a.cfgSub)
		a.cfgSub = nil
	}

	err := a.store.Close()
	a.log.Info("stopped")
	_ = a.logs.Close()
	return err
}

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	sc := storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}
	if sc.Driver == "" {
		sc.Driver = "file"
	}
	if sc.Path == "" {
		sc.Path = "./data"
	}
	return sc, nil
}

func mapTriggerConfig(cfg *config.Config) (trigger.Config, error) {
	passTimeout, err := config.ParseDurationOrDefault("reminders.pass_timeout", cfg.Reminders.PassTimeout, 2*time.Minute)
	if err != nil {
		return trigger.Config{}, err
	}
	return trigger.Config{
		Enabled:     cfg.Reminders.Enabled,
		Morning:     cfg.Reminders.Morning,
		Afternoon:   cfg.Reminders.Afternoon,
		Timezone:    cfg.Reminders.Timezone,
		PassTimeout: passTimeout,
	}, nil
}
