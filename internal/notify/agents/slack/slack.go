// Package slack delivers notifications to a Slack incoming webhook.
//
// Slack has no per-user addressing here: the webhook itself is the system
// destination, so only the notifySystem branch applies.
package slack

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

const Name = "slack"

type Option func(*Agent)

// WithSettingsOverride pins the agent section to a fixed value (test
// notifications against unsaved settings).
func WithSettingsOverride(s *settings.SlackSettings) Option {
	return func(a *Agent) { a.override = s }
}

// WithHTTPClient replaces the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(a *Agent) { a.client = c }
}

type Agent struct {
	provider settings.Provider
	override *settings.SlackSettings
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
	return s.Enabled && strings.TrimSpace(s.Options.WebhookURL) != ""
}

func (a *Agent) agentSettings() settings.SlackSettings {
	if a.override != nil {
		return *a.override
	}
	if cfg := a.provider.Current(); cfg != nil {
		return cfg.Notifications.Slack
	}
	return settings.SlackSettings{}
}

type attachmentField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type attachment struct {
	Title     string            `json:"title"`
	TitleLink string            `json:"title_link,omitempty"`
	Text      string            `json:"text,omitempty"`
	ImageURL  string            `json:"image_url,omitempty"`
	Fields    []attachmentField `json:"fields,omitempty"`
}

type message struct {
	Text        string       `json:"text"`
	Attachments []attachment `json:"attachments,omitempty"`
}

// buildMessage is the pure rendering step for the Slack wire format.
func buildMessage(kind notify.Kind, p notify.Payload, main settings.MainSettings) message {
	title := p.Subject
	if p.Event != "" {
		title = p.Event + " - " + p.Subject
	}

	att := attachment{Title: p.Subject, Text: p.Message, ImageURL: p.Image}

	switch {
	case p.Request != nil:
		if p.Request.RequestedBy != nil {
			att.Fields = append(att.Fields, attachmentField{Title: "Requested By", Value: p.Request.RequestedBy.DisplayName, Short: true})
		}
	case p.Comment != nil:
		name := ""
		if p.Comment.User != nil {
			name = p.Comment.User.DisplayName
		}
		att.Fields = append(att.Fields, attachmentField{Title: "Comment from " + name, Value: p.Comment.Message})
	case p.Issue != nil:
		if p.Issue.ReportedBy != nil {
			att.Fields = append(att.Fields, attachmentField{Title: "Reported By", Value: p.Issue.ReportedBy.DisplayName, Short: true})
		}
		att.Fields = append(att.Fields, attachmentField{Title: "Issue Type", Value: p.Issue.Type.Label(), Short: true})
		status := "Open"
		if p.Issue.Status == notify.IssueStatusResolved {
			status = "Resolved"
		}
		att.Fields = append(att.Fields, attachmentField{Title: "Issue Status", Value: status, Short: true})
	}

	for _, extra := range p.Extra {
		att.Fields = append(att.Fields, attachmentField{Title: extra.Name, Value: extra.Value, Short: true})
	}

	if main.ApplicationURL != "" {
		if p.Issue != nil {
			att.TitleLink = fmt.Sprintf("%s/issues/%d", main.ApplicationURL, p.Issue.ID)
		} else if p.Media != nil {
			att.TitleLink = fmt.Sprintf("%s/%s/%d", main.ApplicationURL, p.Media.Type, p.Media.TmdbID)
		}
	}

	return message{Text: title, Attachments: []attachment{att}}
}

// Send posts one message to the configured webhook when the system branch
// applies; other branches have no Slack equivalent.
func (a *Agent) Send(ctx context.Context, kind notify.Kind, p notify.Payload) bool {
	s := a.agentSettings()
	if !p.NotifySystem || !notify.HasNotificationType(kind, notify.Kind(s.Types)) {
		return true
	}

	var main settings.MainSettings
	if cfg := a.provider.Current(); cfg != nil {
		main = cfg.Main
	}

	d := notify.Delivery{Agent: Name, Kind: kind, Recipient: "system", Subject: p.Subject}
	d.Err = postJSON(ctx, a.client, s.Options.WebhookURL, buildMessage(kind, p, main))
	a.rep.Record(ctx, d)
	return true
}

func postJSON(ctx context.Context, client *http.Client, url string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
