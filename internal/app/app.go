// Package app wires configuration, storage, the coordinator, the planner,
// the delivery sink, and the runner into one process.
package app

import (
	"context"
	"sync"

	"groupcast/internal/config"
	"groupcast/internal/directory"
	"groupcast/internal/eventbus"
	"groupcast/internal/groupstate"
	"groupcast/internal/planner"
	"groupcast/internal/runner"
	"groupcast/internal/sink"
	"groupcast/internal/sink/telegram"
	logx "groupcast/pkg/logx"
)

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store groupstate.Store
	dir   directory.Directory
	snk   sink.Sink
	run   *runner.Service
	bus   eventbus.Bus

	wg     sync.WaitGroup
	cancel context.CancelFunc
	cfgSub chan *config.Config
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(cfg.Logging)
	mgr.SetLogger(log.With(logx.String("component", "config")))

	storeCfg, err := cfg.Storage.StoreConfig()
	if err != nil {
		return nil, err
	}
	store, err := groupstate.OpenStore(storeCfg, log.With(logx.String("component", "groupstate")))
	if err != nil {
		return nil, err
	}

	dirCfg, err := cfg.Directory.DirectoryConfig()
	if err != nil {
		return nil, err
	}
	dir, err := directory.Open(dirCfg, log.With(logx.String("component", "directory")))
	if err != nil {
		return nil, err
	}

	var snk sink.Sink = sink.Nop{}
	if !cfg.Runner.DryRun && cfg.Telegram != nil && cfg.Telegram.Token != "" {
		snk, err = telegram.New(telegram.Config{
			Token:      cfg.Telegram.Token,
			RatePerSec: cfg.Telegram.RatePerSec,
		}, log.With(logx.String("component", "telegram")))
		if err != nil {
			return nil, err
		}
	}

	bus := eventbus.New()
	coord := groupstate.NewCoordinator(store, nil, log.With(logx.String("component", "coordinator")))
	gen := planner.New(coord, nil, log.With(logx.String("component", "planner")))

	runCfg, err := runnerConfig(cfg)
	if err != nil {
		return nil, err
	}
	run := runner.New(runCfg, coord, gen, dir, snk, bus, nil, log.With(logx.String("component", "runner")))

	return &App{
		cfgMgr: mgr,
		logSvc: logSvc,
		log:    log,
		store:  store,
		dir:    dir,
		snk:    snk,
		run:    run,
		bus:    bus,
	}, nil
}

func runnerConfig(cfg *config.Config) (runner.Config, error) {
	pol, err := cfg.Policy()
	if err != nil {
		return runner.Config{}, err
	}
	plan, err := cfg.PlannerConfig()
	if err != nil {
		return runner.Config{}, err
	}
	return runner.Config{
		Enabled:    cfg.Runner.Enabled,
		Cron:       cfg.Runner.Cron,
		Timezone:   cfg.Runner.Timezone,
		AutoAssign: cfg.Runner.AutoAssign,
		DryRun:     cfg.Runner.DryRun,
		Policy:     pol,
		Plan:       plan,
	}, nil
}

// Runner exposes the runner for operator-triggered runs.
func (a *App) Runner() *runner.Service { return a.run }

// Directory exposes the inventory for import tooling.
func (a *App) Directory() directory.Directory { return a.dir }

func (a *App) Start(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.run.Start(wctx); err != nil {
		cancel()
		return err
	}

	// Hot reload: logging and runner knobs follow the file.
	sub := a.cfgMgr.Subscribe(1)
	a.cfgSub = sub
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(wctx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-wctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.logSvc.Apply(cfg.Logging)
				if rc, err := runnerConfig(cfg); err == nil {
					a.run.Apply(rc)
				} else {
					a.log.Warn("config update not applied to runner", logx.Err(err))
				}
			}
		}
	}()

	a.log.Info("groupcast started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.cfgMgr.Unsubscribe(a.cfgSub)
	a.run.Stop(ctx)
	a.wg.Wait()

	_ = a.snk.Close()
	_ = a.dir.Close()
	_ = a.store.Close()
	_ = a.logSvc.Close()
	return nil
}
