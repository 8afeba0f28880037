// Package app wires the settings manager, storage, agents, producers and the
// ingest listener into one runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"mediarelay/internal/eventbus"
	"mediarelay/internal/ingest"
	"mediarelay/internal/metadata"
	"mediarelay/internal/notify"
	"mediarelay/internal/notify/agents/slack"
	"mediarelay/internal/notify/agents/telegram"
	"mediarelay/internal/notify/agents/webhook"
	"mediarelay/internal/producer"
	"mediarelay/internal/retention"
	"mediarelay/internal/settings"
	"mediarelay/internal/storage"
	logx "mediarelay/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *settings.Manager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	manager   *notify.Manager
	producer  *producer.Service
	ingest    *ingest.Service
	retention *retention.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := settings.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	logSvc, log := logx.New(mapLogConfig(cfg.Logging))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "settings")))

	bus := eventbus.New()

	var store storage.Store
	if sc, err := mapStorageConfig(cfg.Storage); err != nil {
		return nil, err
	} else if sc.Driver != "" {
		st, err := storage.Open(sc, logSvc.Logger().With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		if store != nil {
			log.Info("storage enabled", logx.String("driver", sc.Driver))
		}
	}

	rep := notify.NewReporter(logSvc.Logger().With(logx.String("comp", "notify")), bus, store)

	manager := notify.NewManager(logSvc.Logger().With(logx.String("comp", "notify")), bus)
	manager.Register(
		telegram.New(cfgm, store, nil, rep, logSvc.Logger()),
		slack.New(cfgm, rep, logSvc.Logger()),
		webhook.New(cfgm, rep, logSvc.Logger()),
	)

	prod := producer.New(manager, metadata.New(cfgm), logSvc.Logger())

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		manager:   manager,
		producer:  prod,
		retention: retention.New(store, logSvc.Logger()),
	}
	a.ingest = ingest.New(prod, a, logSvc.Logger())
	return a, nil
}

// Producer exposes the event producers for in-process callers (CLI flows).
func (a *App) Producer() *producer.Service { return a.producer }

func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetValidator(func(c context.Context, cfg *settings.Settings) error {
		return validate(cfg)
	})

	cfg := a.cfgm.Current()
	if err := a.retention.Apply(cfg.Retention); err != nil {
		return err
	}
	a.ingest.Apply(ctx, cfg.Ingest)

	// Hot reload: the settings watcher republishes on commit; re-apply the
	// sections that own background machinery.
	sub := a.cfgm.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				if next == nil {
					continue
				}
				a.logs.Apply(mapLogConfig(next.Logging))
				if err := a.retention.Apply(next.Retention); err != nil {
					a.log.Warn("retention reconfigure failed", logx.Err(err))
				}
				a.ingest.Apply(ctx, next.Ingest)
			}
		}
	}()

	a.log.Info("mediarelay started", logx.String("settings", a.cfgPath))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.ingest.Stop(ctx)
	a.retention.Stop()

	// Let in-flight notification fan-outs drain before closing the store.
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.manager.Wait(waitCtx); err != nil {
		a.log.Warn("shutdown with notifications still in flight", logx.Err(err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("mediarelay stopped")
	return a.logs.Close()
}

// SendTest broadcasts a test notification through every registered agent and
// waits for the fan-out to complete.
func (a *App) SendTest(ctx context.Context) error {
	title := "Media Relay"
	if cfg := a.cfgm.Current(); cfg != nil && cfg.Main.ApplicationTitle != "" {
		title = cfg.Main.ApplicationTitle
	}

	a.manager.Send(ctx, notify.KindTest, notify.Payload{
		Event:        "Test Notification",
		Subject:      title,
		Message:      "Check, check, 1, 2, 3. Are we coming in clear?",
		NotifySystem: true,
	})

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return a.manager.Wait(waitCtx)
}

func mapLogConfig(s settings.LoggingSettings) logx.Config {
	return logx.Config{
		Level:   s.Level,
		Console: s.Console,
		File: logx.FileConfig{
			Enabled: s.File.Enabled,
			Path:    s.File.Path,
		},
	}
}

func mapStorageConfig(s *settings.StorageSettings) (storage.Config, error) {
	if s == nil {
		return storage.Config{}, nil
	}
	out := storage.Config{Driver: s.Driver, Path: s.Path}
	if s.BusyTimeout != "" {
		d, err := time.ParseDuration(s.BusyTimeout)
		if err != nil {
			return storage.Config{}, fmt.Errorf("storage.busy_timeout: %w", err)
		}
		out.BusyTimeout = d
	}
	return out, nil
}

// validate rejects a bad hot-reload before commit.
func validate(cfg *settings.Settings) error {
	if cfg == nil {
		return fmt.Errorf("empty settings")
	}
	if _, err := mapStorageConfig(cfg.Storage); err != nil {
		return err
	}
	if r := cfg.Retention; r != nil && r.MaxAge != "" {
		if _, err := time.ParseDuration(r.MaxAge); err != nil {
			return fmt.Errorf("retention.max_age: %w", err)
		}
	}
	if u := strings.TrimSpace(cfg.Main.ApplicationURL); u != "" && strings.HasSuffix(u, "/") {
		return fmt.Errorf("main.application_url must not end with a slash")
	}
	return nil
}
