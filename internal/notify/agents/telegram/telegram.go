package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"mediarelay/internal/notify"
	"mediarelay/internal/settings"
	"mediarelay/internal/users"
	logx "mediarelay/pkg/logx"
)

// Name is the agent identity used in the manager registry, delivery records,
// and per-user channel preferences.
const Name = "telegram"

// Telegram's bot API allows ~30 messages per second overall.
const defaultRatePerSec = 25

// Sender is the slice of the telebot API the agent needs. *tele.Bot
// satisfies it; tests substitute a fake.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type Option func(*Agent)

// WithSettingsOverride pins the agent section to a fixed value instead of
// reading it live from the provider. Used to send a test notification
// against a not-yet-saved configuration; the main section (application
// URL/title) is still read from the provider.
func WithSettingsOverride(s *settings.TelegramSettings) Option {
	return func(a *Agent) { a.override = s }
}

// WithSenderFactory replaces the telebot client constructor (tests).
func WithSenderFactory(fn func(token string) (Sender, error)) Option {
	return func(a *Agent) { a.newSender = fn }
}

// Agent delivers notifications through the Telegram bot API.
type Agent struct {
	provider settings.Provider
	override *settings.TelegramSettings
	users    users.Repository
	admins   notify.AdminFilter
	rep      *notify.Reporter
	log      logx.Logger

	newSender func(token string) (Sender, error)

	mu          sync.Mutex
	limiter     *rate.Limiter
	limitPerSec int
}

func New(provider settings.Provider, repo users.Repository, admins notify.AdminFilter, rep *notify.Reporter, log logx.Logger, opts ...Option) *Agent {
	if log.IsZero() {
		log = logx.Nop()
	}
	if admins == nil {
		admins = notify.DefaultAdminFilter
	}
	a := &Agent{
		provider:  provider,
		users:     repo,
		admins:    admins,
		rep:       rep,
		log:       log.With(logx.String("agent", Name)),
		newSender: newTelebotSender,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Agent) Name() string { return Name }

// ShouldSend reports whether the channel is enabled and minimally configured.
// It reads settings fresh unless the agent carries an override.
func (a *Agent) ShouldSend() bool {
	s := a.agentSettings()
	return s.Enabled && strings.TrimSpace(s.Options.BotToken) != ""
}

func (a *Agent) agentSettings() settings.TelegramSettings {
	if a.override != nil {
		return *a.override
	}
	if cfg := a.provider.Current(); cfg != nil {
		return cfg.Notifications.Telegram
	}
	return settings.TelegramSettings{}
}

func (a *Agent) mainSettings() settings.MainSettings {
	if cfg := a.provider.Current(); cfg != nil {
		return cfg.Main
	}
	return settings.MainSettings{}
}

// target is one resolved recipient destination.
type target struct {
	chatID   int64
	threadID int
	silent   bool
}

// Send resolves the three recipient branches, renders the payload once, and
// attempts every resolved delivery. Branches run concurrently with no
// ordering guarantee; individual failures are recorded and swallowed.
// The return value is true once all branches were attempted.
func (a *Agent) Send(ctx context.Context, kind notify.Kind, p notify.Payload) bool {
	s := a.agentSettings()
	rendered := Render(kind, p, a.mainSettings())
	a.applyRate(s.Options.RatePerSec)

	token := s.Options.BotToken
	systemChat := s.Options.ChatID

	var wg sync.WaitGroup

	// System destination.
	if p.NotifySystem && notify.HasNotificationType(kind, notify.Kind(s.Types)) && systemChat != 0 {
		t := target{chatID: systemChat, threadID: s.Options.MessageThreadID, silent: s.Options.SendSilently}
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.deliver(ctx, token, t, rendered, kind, p)
		}()
	}

	// Directly-affected user. Deduped against the system destination: the
	// same chat must not hear about one event twice.
	if u := p.NotifyUser; u != nil {
		if prefs, ok := u.Settings.Channel(users.AgentTelegram); ok &&
			u.Settings.HasNotificationType(users.AgentTelegram, uint32(kind)) &&
			prefs.ChatID != 0 && prefs.ChatID != systemChat {
			t := target{chatID: prefs.ChatID, threadID: prefs.ThreadID, silent: prefs.Silent}
			wg.Add(1)
			go func() {
				defer wg.Done()
				a.deliver(ctx, token, t, rendered, kind, p)
			}()
		}
	}

	// Admin fan-out over a snapshot of the user set. Per-admin deliveries run
	// concurrently; one failure never cancels siblings.
	if p.NotifyAdmin && a.users != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot, err := a.users.All(ctx)
			if err != nil {
				a.log.Warn("admin fan-out aborted: user snapshot failed",
					logx.String("kind", kind.String()),
					logx.String("subject", p.Subject),
					logx.Err(err),
				)
				return
			}
			var awg sync.WaitGroup
			for i := range snapshot {
				u := snapshot[i]
				prefs, ok := u.Settings.Channel(users.AgentTelegram)
				if !ok || !u.Settings.HasNotificationType(users.AgentTelegram, uint32(kind)) {
					continue
				}
				if !a.admins(kind, &u, p) {
					continue
				}
				if prefs.ChatID == 0 || prefs.ChatID == systemChat {
					continue
				}
				t := target{chatID: prefs.ChatID, threadID: prefs.ThreadID, silent: prefs.Silent}
				awg.Add(1)
				go func() {
					defer awg.Done()
					a.deliver(ctx, token, t, rendered, kind, p)
				}()
			}
			awg.Wait()
		}()
	}

	wg.Wait()
	return true
}

func (a *Agent) deliver(ctx context.Context, token string, t target, r Rendered, kind notify.Kind, p notify.Payload) {
	d := notify.Delivery{
		Agent:     Name,
		Kind:      kind,
		Recipient: strconv.FormatInt(t.chatID, 10),
		Subject:   p.Subject,
	}

	if lim := a.currentLimiter(); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			d.Err = err
			a.rep.Record(ctx, d)
			return
		}
	}

	sender, err := a.newSender(token)
	if err != nil {
		d.Err = fmt.Errorf("telegram client: %w", err)
		a.rep.Record(ctx, d)
		return
	}

	opts := &tele.SendOptions{
		ParseMode:           tele.ModeMarkdownV2,
		DisableNotification: t.silent,
		ThreadID:            t.threadID,
	}
	var what interface{} = r.Text
	if r.Photo != "" {
		what = &tele.Photo{File: tele.FromURL(r.Photo), Caption: r.Text}
	}

	_, d.Err = sender.Send(tele.ChatID(t.chatID), what, opts)
	a.rep.Record(ctx, d)
}

func (a *Agent) applyRate(perSec int) {
	if perSec <= 0 {
		perSec = defaultRatePerSec
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.limiter == nil || a.limitPerSec != perSec {
		a.limiter = rate.NewLimiter(rate.Limit(perSec), perSec)
		a.limitPerSec = perSec
	}
}

func (a *Agent) currentLimiter() *rate.Limiter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.limiter
}

// newTelebotSender builds a per-dispatch client. Offline mode skips the getMe
// round trip, so construction is cheap and a hot-reloaded token takes effect
// on the next dispatch.
func newTelebotSender(token string) (Sender, error) {
	return tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: 10 * time.Second},
	})
}
