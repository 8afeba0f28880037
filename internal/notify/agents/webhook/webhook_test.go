package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"mediarelay/internal/notify"
	"mediarelay/internal/settings"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

func webhookSettings(url, auth string) *settings.Settings {
	return &settings.Settings{
		Notifications: settings.NotificationsSettings{
			Webhook: settings.WebhookSettings{
				Enabled: true,
				Types:   uint32(notify.KindAll),
				Options: settings.WebhookOptions{URL: url, AuthHeader: auth},
			},
		},
	}
}

func TestSendPostsPayloadJSON(t *testing.T) {
	t.Parallel()
	var (
		mu     sync.Mutex
		got    body
		auth   string
		ctype  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		ctype = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	a := New(settings.Static(webhookSettings(srv.URL, "Bearer secret")), nil, logx.Nop())
	a.Send(context.Background(), notify.KindIssueCreated, notify.Payload{
		Event:   "Video Issue Reported",
		Subject: "Dune (2021)",
		Message: "broken",
		Issue: &notify.IssueInfo{
			ID:         42,
			ReportedBy: &users.User{DisplayName: "bob"},
			Type:       notify.IssueTypeVideo,
			Status:     notify.IssueStatusOpen,
		},
		Media:        &notify.MediaRef{Type: notify.MediaTypeTV, TmdbID: 1399, Status: notify.MediaStatusAvailable},
		Extra:        []notify.Extra{{Name: "Affected Season", Value: "2"}},
		NotifySystem: true,
	})

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer secret" {
		t.Fatalf("auth header = %q", auth)
	}
	if ctype != "application/json" {
		t.Fatalf("content type = %q", ctype)
	}
	if got.NotificationType != "issue.created" {
		t.Fatalf("notification_type = %q", got.NotificationType)
	}
	if got.Subject != "Dune (2021)" || got.Event != "Video Issue Reported" {
		t.Fatalf("envelope = %+v", got)
	}
	if got.Media == nil || got.Media.MediaType != "tv" || got.Media.TmdbID != 1399 {
		t.Fatalf("media = %+v", got.Media)
	}
	if got.Issue == nil || got.Issue.ID != 42 || got.Issue.IssueType != "Video" || got.Issue.Status != "open" || got.Issue.ReportedBy != "bob" {
		t.Fatalf("issue = %+v", got.Issue)
	}
	if len(got.Extra) != 1 || got.Extra[0].Name != "Affected Season" {
		t.Fatalf("extra = %+v", got.Extra)
	}
}

func TestSendSkipsNonSystemPayloads(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("endpoint must not be called")
	}))
	defer srv.Close()

	a := New(settings.Static(webhookSettings(srv.URL, "")), nil, logx.Nop())
	a.Send(context.Background(), notify.KindMediaApproved, notify.Payload{
		Subject:     "s",
		NotifyAdmin: true,
	})
}

func TestShouldSendRequiresURL(t *testing.T) {
	t.Parallel()
	a := New(settings.Static(webhookSettings("", "")), nil, logx.Nop())
	if a.ShouldSend() {
		t.Fatal("missing url should gate the agent off")
	}
}
