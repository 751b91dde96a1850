package eventbus

import (
	"context"
	"testing"

	"github.com/cludeai/cortex/internal/capability"
)

type recordingHandler struct {
	id    string
	seen  []capability.Event
	panic bool
}

func (h *recordingHandler) ID() string { return h.id }
func (h *recordingHandler) Handle(ctx context.Context, ev capability.Event) {
	if h.panic {
		panic("boom")
	}
	h.seen = append(h.seen, ev)
}

func TestPublishDispatchesToHandlers(t *testing.T) {
	b := New(nil)
	h := &recordingHandler{id: "h1"}
	b.Register(h)

	b.Publish(context.Background(), capability.Event{Kind: "memory.stored"})

	if len(h.seen) != 1 || h.seen[0].Kind != "memory.stored" {
		t.Errorf("seen = %+v, want one memory.stored event", h.seen)
	}
}

func TestPublishSurvivesHandlerPanic(t *testing.T) {
	b := New(nil)
	bad := &recordingHandler{id: "bad", panic: true}
	good := &recordingHandler{id: "good"}
	b.Register(bad)
	b.Register(good)

	b.Publish(context.Background(), capability.Event{Kind: "dream.phase"})

	if len(good.seen) != 1 {
		t.Errorf("expected the handler after a panicking one to still run, seen=%+v", good.seen)
	}
}

func TestUnregisterRemovesHandler(t *testing.T) {
	b := New(nil)
	h := &recordingHandler{id: "h1"}
	b.Register(h)
	if !b.Unregister("h1") {
		t.Fatal("Unregister returned false for a registered handler")
	}
	b.Publish(context.Background(), capability.Event{Kind: "x"})
	if len(h.seen) != 0 {
		t.Error("unregistered handler should not receive events")
	}
}
