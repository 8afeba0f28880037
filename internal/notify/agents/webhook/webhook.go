// Package webhook posts the raw notification payload as JSON to a configured
// endpoint. It is the escape hatch for integrations without a dedicated
// agent; the endpoint is treated as a system destination.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mediarelay/internal/notify"
	"mediarelay/internal/settings"
	logx "mediarelay/pkg/logx"
)

const Name = "webhook"

type Option func(*Agent)

func WithSettingsOverride(s *settings.WebhookSettings) Option {
	return func(a *Agent) { a.override = s }
}

func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

type Agent struct {
	provider settings.Provider
	override *settings.WebhookSettings
	rep      *notify.Reporter
	log      logx.Logger
	client   *http.Client
}

func New(provider settings.Provider, rep *notify.Reporter, log logx.Logger, opts ...Option) *Agent {
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Agent{
		provider: provider,
		rep:      rep,
		log:      log.With(logx.String("agent", Name)),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string { return Name }

func (a *Agent) ShouldSend() bool {
	s := a.agentSettings()
	return s.Enabled && strings.TrimSpace(s.Options.URL) != ""
}

func (a *Agent) agentSettings() settings.WebhookSettings {
	if a.override != nil {
		return *a.override
	}
	if cfg := a.provider.Current(); cfg != nil {
		return cfg.Notifications.Webhook
	}
	return settings.WebhookSettings{}
}

// body is the wire schema. Field names are part of the external contract;
// keep them stable.
type body struct {
	NotificationType string         `json:"notification_type"`
	Event            string         `json:"event,omitempty"`
	Subject          string         `json:"subject"`
	Message          string         `json:"message,omitempty"`
	Image            string         `json:"image,omitempty"`
	Media            *mediaBody     `json:"media,omitempty"`
	Request          *requestBody   `json:"request,omitempty"`
	Comment          *commentBody   `json:"comment,omitempty"`
	Issue            *issueBody     `json:"issue,omitempty"`
	Extra            []notify.Extra `json:"extra,omitempty"`
}

type mediaBody struct {
	MediaType string `json:"media_type"`
	TmdbID    int    `json:"tmdb_id"`
	Status    int    `json:"status"`
}

type requestBody struct {
	RequestedBy string `json:"requested_by"`
}

type commentBody struct {
	CommentedBy string `json:"commented_by"`
	Message     string `json:"message"`
}

type issueBody struct {
	ID         int    `json:"id"`
	ReportedBy string `json:"reported_by"`
	IssueType  string `json:"issue_type"`
	Status     string `json:"status"`
}

func buildBody(kind notify.Kind, p notify.Payload) body {
	out := body{
		NotificationType: kind.String(),
		Event:            p.Event,
		Subject:          p.Subject,
		Message:          p.Message,
		Image:            p.Image,
		Extra:            p.Extra,
	}
	if p.Media != nil {
		out.Media = &mediaBody{MediaType: string(p.Media.Type), TmdbID: p.Media.TmdbID, Status: int(p.Media.Status)}
	}
	if p.Request != nil && p.Request.RequestedBy != nil {
		out.Request = &requestBody{RequestedBy: p.Request.RequestedBy.DisplayName}
	}
	if p.Comment != nil {
		cb := &commentBody{Message: p.Comment.Message}
		if p.Comment.User != nil {
			cb.CommentedBy = p.Comment.User.DisplayName
		}
		out.Comment = cb
	}
	if p.Issue != nil {
		status := "open"
		if p.Issue.Status == notify.IssueStatusResolved {
			status = "resolved"
		}
		ib := &issueBody{ID: p.Issue.ID, IssueType: p.Issue.Type.Label(), Status: status}
		if p.Issue.ReportedBy != nil {
			ib.ReportedBy = p.Issue.ReportedBy.DisplayName
		}
		out.Issue = ib
	}
	return out
}

func (a *Agent) Send(ctx context.Context, kind notify.Kind, p notify.Payload) bool {
	s := a.agentSettings()
	if !p.NotifySystem || !notify.HasNotificationType(kind, notify.Kind(s.Types)) {
		return true
	}

	d := notify.Delivery{Agent: Name, Kind: kind, Recipient: "system", Subject: p.Subject}
	d.Err = a.post(ctx, s.Options, buildBody(kind, p))
	a.rep.Record(ctx, d)
	return true
}

func (a *Agent) post(ctx context.Context, opts settings.WebhookOptions, data body) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, opts.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.AuthHeader != "" {
		req.Header.Set("Authorization", opts.AuthHeader)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
