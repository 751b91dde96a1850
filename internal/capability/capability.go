// Package capability declares the ports the cortex core depends on. Every
// concrete implementation lives in its own package (llmclient, embedclient,
// eventbus, commitsink) and is wired in by internal/cortexapi; nothing under
// internal/ingest, internal/recall, internal/dream, etc. imports a concrete
// implementation package directly.
package capability

import (
	"context"
	"time"
)

// Embedder turns text into a fixed-dimension vector.
type Embedder struct {
	Dim int
	Fn  func(ctx context.Context, text string) ([]float32, error)
}

func (e Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.Fn(ctx, text)
}

// LanguageModel scores importance and synthesizes text for dream phases.
// Both methods are optional in the sense that cortexapi treats a nil
// LanguageModel as "capability unavailable" and falls back to the rule-based
// paths documented in SPEC_FULL.md rather than failing the caller.
type LanguageModel interface {
	// ScoreImportance rates a memory's long-term importance from its summary
	// plus any deterministic hints the caller already derived (e.g. "whale",
	// "exit", "ath", "first_interaction" — see ingest.ImportanceFallback for
	// the rule table a LanguageModel's judgment is meant to improve on).
	ScoreImportance(ctx context.Context, summary string, hints []string) (float64, error)
	Synthesize(ctx context.Context, prompt string) (string, error)
}

// CommitSink stamps a record with a signature tying it to the code state
// that produced it.
type CommitSink interface {
	Signature(ctx context.Context) (string, error)
}

// Clock abstracts wall-clock time so decay, recency scoring, and dream
// scheduling are deterministic under test.
type Clock interface {
	Now() time.Time
}

// RealClock is the production Clock, backed by time.Now.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock that never advances unless explicitly moved,
// used by tests that assert exact decay/recency values.
type FixedClock struct{ T time.Time }

func (c FixedClock) Now() time.Time { return c.T }

// Event is one notification published through an EventSink.
type Event struct {
	Kind string
	Data map[string]any
}

// EventSink publishes lifecycle notifications (memory stored, bond formed,
// dream phase completed, ...). Implementations must not block the caller
// on a slow subscriber; eventbus.Bus dispatches synchronously to in-process
// handlers but swallows and logs handler errors rather than propagating
// them, per SPEC_FULL.md §6.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// NopEventSink discards every event. Useful as a zero-value default so
// cortexapi never has to nil-check before publishing.
type NopEventSink struct{}

func (NopEventSink) Publish(context.Context, Event) {}
