package notify

import (
	"context"
	"time"

	"mediarelay/internal/eventbus"
	"mediarelay/internal/storage"
	logx "mediarelay/pkg/logx"
)

// Reporter is the side channel for delivery outcomes: structured log line,
// lifecycle event on the bus, and a best-effort audit record in the store.
//
// Failures are reported here and nowhere else; the agent contract makes
// Send() itself silent about partial failure. A nil Reporter is safe to use.
type Reporter struct {
	log   logx.Logger
	bus   eventbus.Bus
	store storage.Store
}

func NewReporter(log logx.Logger, bus eventbus.Bus, store storage.Store) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Reporter{log: log, bus: bus, store: store}
}

// Record logs and publishes one delivery outcome.
func (r *Reporter) Record(ctx context.Context, d Delivery) {
	if r == nil {
		return
	}

	ev := eventbus.Event{
		Type:      eventbus.TypeSent,
		Agent:     d.Agent,
		Kind:      d.Kind.String(),
		Recipient: d.Recipient,
		Subject:   d.Subject,
	}
	if d.Err != nil {
		ev.Type = eventbus.TypeFailed
		ev.Error = d.Err.Error()
		r.log.Warn("notification delivery failed",
			logx.String("agent", d.Agent),
			logx.String("kind", d.Kind.String()),
			logx.String("recipient", d.Recipient),
			logx.String("subject", d.Subject),
			logx.Err(d.Err),
		)
	} else {
		r.log.Debug("notification delivered",
			logx.String("agent", d.Agent),
			logx.String("kind", d.Kind.String()),
			logx.String("recipient", d.Recipient),
		)
	}
	if r.bus != nil {
		r.bus.Publish(ev)
	}

	if r.store != nil {
		rec := storage.DeliveryRecord{
			At:        time.Now(),
			Agent:     d.Agent,
			Kind:      d.Kind.String(),
			Recipient: d.Recipient,
			Subject:   d.Subject,
			OK:        d.Err == nil,
		}
		if d.Err != nil {
			rec.Error = d.Err.Error()
		}
		actx, cancel := context.WithTimeout(withoutCancel(ctx), 250*time.Millisecond)
		defer cancel()
		if err := r.store.AppendDelivery(actx, rec); err != nil {
			r.log.Debug("delivery audit write failed", logx.Err(err))
		}
	}
}

// withoutCancel keeps audit writes alive briefly even when the dispatch
// context has already been cancelled.
func withoutCancel(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(ctx)
}
