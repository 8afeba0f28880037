package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

func openTestStore(t *testing.T, dir string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "relay.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st == nil {
		t.Fatal("Open returned nil store")
	}
	return st
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", "  None  "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q) should return nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreUsersRoundtrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st := openTestStore(t, dir)
	u := users.User{
		ID:          7,
		DisplayName: "alice",
		Permissions: users.PermissionManageRequests,
		Settings: &users.NotificationSettings{
			Channels: map[users.AgentKey]users.ChannelPrefs{
				users.AgentTelegram: {NotifyTypes: 6, ChatID: 42},
			},
		},
	}
	if err := st.PutUser(ctx, u); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := st.PutUser(ctx, users.User{ID: 3, DisplayName: "bob"}); err != nil {
		t.Fatalf("PutUser: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopen: the snapshot must survive the process boundary.
	st = openTestStore(t, dir)
	defer st.Close()

	all, err := st.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("users = %d, want 2", len(all))
	}
	if all[0].ID != 3 || all[1].ID != 7 {
		t.Fatalf("users not sorted by id: %+v", all)
	}
	got := all[1]
	if got.DisplayName != "alice" || got.Permissions != users.PermissionManageRequests {
		t.Fatalf("user fields lost: %+v", got)
	}
	prefs, ok := got.Settings.Channel(users.AgentTelegram)
	if !ok || prefs.ChatID != 42 || prefs.NotifyTypes != 6 {
		t.Fatalf("channel prefs lost: %+v", prefs)
	}
}

func TestFileStorePutUserRequiresID(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, t.TempDir())
	defer st.Close()
	if err := st.PutUser(context.Background(), users.User{DisplayName: "ghost"}); err == nil {
		t.Fatal("expected error for zero user id")
	}
}

func TestFileStoreDeliveriesPrune(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	st := openTestStore(t, dir)
	defer st.Close()

	now := time.Now()
	old := DeliveryRecord{At: now.Add(-48 * time.Hour), Agent: "telegram", Kind: "media.approved", Recipient: "100", OK: true}
	fresh := DeliveryRecord{At: now, Agent: "telegram", Kind: "media.available", Recipient: "200", OK: false, Error: "timeout"}
	for _, rec := range []DeliveryRecord{old, fresh} {
		if err := st.AppendDelivery(ctx, rec); err != nil {
			t.Fatalf("AppendDelivery: %v", err)
		}
	}

	removed, err := st.PruneDeliveries(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneDeliveries: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	// The append handle must still work after the prune rewrite.
	if err := st.AppendDelivery(ctx, DeliveryRecord{At: now, Agent: "slack", Kind: "test", Recipient: "system", OK: true}); err != nil {
		t.Fatalf("AppendDelivery after prune: %v", err)
	}

	removed, err = st.PruneDeliveries(ctx, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneDeliveries: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
}
