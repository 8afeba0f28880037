package notify

import (
	"context"
	"fmt"
	"sync"

	"mediarelay/internal/eventbus"
	logx "mediarelay/pkg/logx"
)

// Manager owns the set of registered channel agents and broadcasts one
// payload to all of them.
//
// Send is fire-and-forget: each gated agent runs on its own goroutine and a
// producer is free to return without observing the outcome. Callers that do
// need completion (tests, the CLI test-notification path, shutdown) await it
// via Wait.
type Manager struct {
	log logx.Logger
	bus eventbus.Bus

	mu     sync.Mutex
	agents []Agent

	wg sync.WaitGroup
}

func NewManager(log logx.Logger, bus eventbus.Bus) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{log: log, bus: bus}
}

// Register adds agents to the registry. Registration is idempotent per agent
// name; re-registering a name replaces the previous instance.
func (m *Manager) Register(agents ...Agent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range agents {
		if a == nil {
			continue
		}
		replaced := false
		for i, existing := range m.agents {
			if existing.Name() == a.Name() {
				m.agents[i] = a
				replaced = true
				break
			}
		}
		if !replaced {
			m.agents = append(m.agents, a)
		}
	}
}

// Agents returns a snapshot of the registered agents.
func (m *Manager) Agents() []Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Agent(nil), m.agents...)
}

// Send fans the payload out to every agent whose gate passes. Agents run
// concurrently and independently; a failing or panicking agent is logged and
// never affects its siblings or the caller.
func (m *Manager) Send(ctx context.Context, kind Kind, p Payload) {
	if err := p.Validate(); err != nil {
		m.log.Error("refusing to dispatch invalid payload",
			logx.String("kind", kind.String()),
			logx.String("subject", p.Subject),
			logx.Err(err),
		)
		return
	}

	for _, a := range m.Agents() {
		if !a.ShouldSend() {
			if m.bus != nil {
				m.bus.Publish(eventbus.Event{
					Type:    eventbus.TypeSkipped,
					Agent:   a.Name(),
					Kind:    kind.String(),
					Subject: p.Subject,
				})
			}
			continue
		}

		if m.bus != nil {
			m.bus.Publish(eventbus.Event{
				Type:    eventbus.TypeDispatched,
				Agent:   a.Name(),
				Kind:    kind.String(),
				Subject: p.Subject,
			})
		}

		m.wg.Add(1)
		go func(agent Agent) {
			defer m.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					m.log.Error("notification agent panicked",
						logx.String("agent", agent.Name()),
						logx.String("kind", kind.String()),
						logx.Any("panic", r),
					)
				}
			}()
			agent.Send(ctx, kind, p)
		}(a)
	}
}

// Wait blocks until all in-flight agent sends scheduled so far have finished,
// or until ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notification fan-out: %w", ctx.Err())
	}
}
