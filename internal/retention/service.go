// Package retention prunes old delivery audit records on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mediarelay/internal/settings"
	"mediarelay/internal/storage"
	logx "mediarelay/pkg/logx"
)

const (
	defaultSchedule = "0 3 * * *"
	defaultMaxAge   = 720 * time.Hour
)

type Service struct {
	mu    sync.Mutex
	log   logx.Logger
	store storage.Store

	cron   *cron.Cron
	maxAge time.Duration
	sched  string
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log.With(logx.String("comp", "retention"))}
}

// Apply reconciles the running job with cfg. Safe to call during hot-reload.
func (s *Service) Apply(cfg *settings.RetentionSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg == nil || !cfg.Enabled || s.store == nil {
		s.stopLocked()
		return nil
	}

	sched := cfg.Schedule
	if sched == "" {
		sched = defaultSchedule
	}
	maxAge := defaultMaxAge
	if cfg.MaxAge != "" {
		d, err := time.ParseDuration(cfg.MaxAge)
		if err != nil {
			return fmt.Errorf("retention max_age: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("retention max_age must be positive")
		}
		maxAge = d
	}

	if s.cron != nil && s.sched == sched && s.maxAge == maxAge {
		return nil
	}
	s.stopLocked()

	c := cron.New()
	if _, err := c.AddFunc(sched, s.runOnce); err != nil {
		return fmt.Errorf("retention schedule %q: %w", sched, err)
	}
	c.Start()

	s.cron = c
	s.sched = sched
	s.maxAge = maxAge
	s.log.Info("retention scheduled", logx.String("schedule", sched), logx.Duration("max_age", maxAge))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.cron == nil {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.cron = nil
	s.sched = ""
	s.maxAge = 0
}

func (s *Service) runOnce() {
	s.mu.Lock()
	maxAge := s.maxAge
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.store.PruneDeliveries(ctx, time.Now().Add(-maxAge))
	if err != nil {
		s.log.Error("delivery prune failed", logx.Err(err))
		return
	}
	if removed > 0 {
		s.log.Info("delivery records pruned", logx.Int64("removed", removed))
	}
}
