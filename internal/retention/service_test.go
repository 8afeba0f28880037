package retention

import (
	"context"
	"sync"
	"testing"
	"time"

	"mediarelay/internal/settings"
	"mediarelay/internal/storage"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

type fakeStore struct {
	mu       sync.Mutex
	pruned   []time.Time
}

func (f *fakeStore) All(ctx context.Context) ([]users.User, error)     { return nil, nil }
func (f *fakeStore) PutUser(ctx context.Context, u users.User) error   { return nil }
func (f *fakeStore) AppendDelivery(ctx context.Context, rec storage.DeliveryRecord) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) PruneDeliveries(ctx context.Context, olderThan time.Time) (int64, error) {
	f.mu.Lock()
	f.pruned = append(f.pruned, olderThan)
	f.mu.Unlock()
	return 1, nil
}

func TestApplyValidation(t *testing.T) {
	t.Parallel()
	s := New(&fakeStore{}, logx.Nop())
	defer s.Stop()

	if err := s.Apply(&settings.RetentionSettings{Enabled: true, MaxAge: "not-a-duration"}); err == nil {
		t.Fatal("expected error for bad max_age")
	}
	if err := s.Apply(&settings.RetentionSettings{Enabled: true, MaxAge: "-1h"}); err == nil {
		t.Fatal("expected error for negative max_age")
	}
	if err := s.Apply(&settings.RetentionSettings{Enabled: true, Schedule: "not a cron"}); err == nil {
		t.Fatal("expected error for bad schedule")
	}
	if err := s.Apply(nil); err != nil {
		t.Fatalf("nil settings should disable cleanly: %v", err)
	}
	if err := s.Apply(&settings.RetentionSettings{Enabled: false}); err != nil {
		t.Fatalf("disabled settings should stop cleanly: %v", err)
	}
}

func TestApplyDefaultsAndIdempotence(t *testing.T) {
	t.Parallel()
	s := New(&fakeStore{}, logx.Nop())
	defer s.Stop()

	if err := s.Apply(&settings.RetentionSettings{Enabled: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.sched != defaultSchedule || s.maxAge != defaultMaxAge {
		t.Fatalf("defaults not applied: %q %v", s.sched, s.maxAge)
	}
	before := s.cron
	if err := s.Apply(&settings.RetentionSettings{Enabled: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.cron != before {
		t.Fatal("unchanged settings must not restart the job")
	}
}

func TestApplyWithoutStoreIsNoop(t *testing.T) {
	t.Parallel()
	s := New(nil, logx.Nop())
	if err := s.Apply(&settings.RetentionSettings{Enabled: true}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if s.cron != nil {
		t.Fatal("no store, no job")
	}
}

func TestRunOnceUsesConfiguredMaxAge(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	s := New(store, logx.Nop())
	defer s.Stop()

	if err := s.Apply(&settings.RetentionSettings{Enabled: true, MaxAge: "24h"}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	s.runOnce()

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.pruned) != 1 {
		t.Fatalf("prunes = %d, want 1", len(store.pruned))
	}
	cutoff := store.pruned[0]
	want := time.Now().Add(-24 * time.Hour)
	if cutoff.Before(want.Add(-time.Minute)) || cutoff.After(want.Add(time.Minute)) {
		t.Fatalf("cutoff = %v, want ~%v", cutoff, want)
	}
}
