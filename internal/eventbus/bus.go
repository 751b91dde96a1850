// Package eventbus implements capability.EventSink: synchronous in-process
// dispatch to registered handlers, with optional NATS JetStream publishing
// for external consumers. Grounded on beads' internal/eventbus.Bus.
package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/cludeai/cortex/internal/capability"
)

// Handler reacts to published events. A handler error is logged and
// swallowed; one misbehaving handler must never block or fail the caller
// that published the event.
type Handler interface {
	ID() string
	Handle(ctx context.Context, ev capability.Event)
}

// Bus is an in-process event dispatcher that doubles as a
// capability.EventSink.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
	js       nats.JetStreamContext
	subject  string
	log      *slog.Logger
}

// New creates an empty Bus. SetJetStream attaches durable publishing later;
// a Bus with no JetStream context still dispatches to local handlers.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{log: log, subject: "cortex.events"}
}

// SetJetStream attaches a JetStream context used to additionally publish
// every event for durable, cross-process consumption.
func (b *Bus) SetJetStream(js nats.JetStreamContext, subject string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
	if subject != "" {
		b.subject = subject
	}
}

// Register adds a handler. Handlers run in registration order.
func (b *Bus) Register(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Unregister removes a handler by ID, returning true if one was removed.
func (b *Bus) Unregister(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, h := range b.handlers {
		if h.ID() == id {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Publish implements capability.EventSink: it dispatches to every local
// handler, then best-effort publishes to JetStream when configured.
func (b *Bus) Publish(ctx context.Context, ev capability.Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers...)
	js := b.js
	subject := b.subject
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Warn("eventbus: handler panicked", "handler", h.ID(), "event", ev.Kind, "recover", r)
				}
			}()
			h.Handle(ctx, ev)
		}()
	}

	if js != nil {
		b.publishToJetStream(js, subject, ev)
	}
}

// publishToJetStream is fire-and-forget: JetStream is supplementary to
// local dispatch, never a prerequisite for it.
func (b *Bus) publishToJetStream(js nats.JetStreamContext, subject string, ev capability.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Warn("eventbus: marshal event failed", "event", ev.Kind, "error", err)
		return
	}
	if _, err := js.Publish(subject+"."+ev.Kind, payload); err != nil {
		b.log.Warn("eventbus: jetstream publish failed", "event", ev.Kind, "error", err)
	}
}

var _ capability.EventSink = (*Bus)(nil)
