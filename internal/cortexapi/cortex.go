// Package cortexapi wires every engine component into the single public
// surface a host process embeds: store, recall, link, decay, dream, and the
// introspection operations (stats, recent, selfModel, inferConcepts,
// formatContext). Grounded on the teacher's top-level service composition
// (pkg/extraction.Service, pkg/agent.Service): a thin struct holding
// collaborators constructed once at startup, exposing one method per public
// operation.
package cortexapi

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/decay"
	"github.com/cludeai/cortex/internal/dream"
	"github.com/cludeai/cortex/internal/entityextract"
	"github.com/cludeai/cortex/internal/eventbus"
	"github.com/cludeai/cortex/internal/ingest"
	"github.com/cludeai/cortex/internal/linker"
	"github.com/cludeai/cortex/internal/recall"
	"github.com/cludeai/cortex/internal/reinforce"
	"github.com/cludeai/cortex/internal/scheduler"
	"github.com/cludeai/cortex/internal/store"
)

// Config is everything New needs to assemble a Cortex. Storage is required;
// a nil Clock defaults to capability.RealClock, and every other capability
// is optional and the engine degrades gracefully without it (see each
// component's own doc comment).
type Config struct {
	Storage     store.Storage
	Embedder    *capability.Embedder
	LLM         capability.LanguageModel
	CommitSink  capability.CommitSink
	Clock       capability.Clock
	Events      capability.EventSink
	Lexicon     *entityextract.Lexicon
	OnEmergence func(text string)
	Log         *slog.Logger
}

// Cortex is the assembled engine: every operation in the public surface is a
// thin method here delegating to one collaborator.
type Cortex struct {
	storage store.Storage
	clock   capability.Clock
	events  capability.EventSink
	bus     *eventbus.Bus // non-nil only when Config.Events was left nil

	ingestor   *ingest.Ingestor
	extractor  *entityextract.Extractor
	linker     *linker.Linker
	recaller   *recall.Recaller
	reinforcer *reinforce.Reinforcer
	decayer    *decay.Engine
	dreamer    *dream.Engine
	scheduler  *scheduler.Scheduler

	mu          sync.Mutex
	initialized bool
}

// New assembles a Cortex from cfg. It does not call init(); the caller
// invokes Init explicitly, matching the spec's "init() — idempotent" shape.
func New(cfg Config) (*Cortex, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("cortexapi: storage is required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = capability.RealClock{}
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	var events capability.EventSink
	var bus *eventbus.Bus
	if cfg.Events != nil {
		events = cfg.Events
	} else {
		bus = eventbus.New(log)
		events = bus
	}

	c := &Cortex{storage: cfg.Storage, clock: clock, events: events, bus: bus}

	c.dreamer = &dream.Engine{
		Storage:     cfg.Storage,
		LLM:         cfg.LLM,
		Embedder:    cfg.Embedder,
		Clock:       clock,
		Events:      events,
		OnEmergence: cfg.OnEmergence,
		Log:         log,
	}

	c.reinforcer = &reinforce.Reinforcer{Storage: cfg.Storage, Clock: clock, Log: log}
	c.linker = &linker.Linker{Storage: cfg.Storage}
	c.extractor = &entityextract.Extractor{Storage: cfg.Storage, Lexicon: cfg.Lexicon}
	c.decayer = &decay.Engine{Storage: cfg.Storage, Clock: clock}
	c.recaller = &recall.Recaller{
		Storage:  cfg.Storage,
		Embedder: cfg.Embedder,
		Scoring:  &recall.ScoringEngine{Clock: clock, Recency: recall.DefaultRecency},
	}

	c.ingestor = &ingest.Ingestor{
		Storage:    cfg.Storage,
		Embedder:   cfg.Embedder,
		LLM:        cfg.LLM,
		CommitSink: cfg.CommitSink,
		Lexicon:    cfg.Lexicon,
		Clock:      clock,
		Events:     events,
		AfterStore: []ingest.AfterStore{
			c.afterStoreExtractAndLink,
			c.afterStoreNoteImportance,
		},
	}

	c.scheduler = scheduler.New(c.runScheduledDream, c.runScheduledDecay, clock.Now, log)

	return c, nil
}

func (c *Cortex) afterStoreExtractAndLink(ctx context.Context, r *cortex.Record) {
	cands := c.extractor.Extract(r.Content)
	if len(cands) > 0 {
		if _, err := c.extractor.Process(ctx, r, cands); err != nil {
			slog.Default().Warn("cortexapi: entity extraction failed", "record", r.ID, "error", err)
		}
	}
	if err := c.linker.LinkNew(ctx, r); err != nil {
		slog.Default().Warn("cortexapi: linking failed", "record", r.ID, "error", err)
	}
}

func (c *Cortex) afterStoreNoteImportance(ctx context.Context, r *cortex.Record) {
	c.dreamer.NoteImportance(ctx, r.Importance)
}

func (c *Cortex) runScheduledDream(ctx context.Context) {
	if _, err := c.dreamer.Run(ctx); err != nil {
		slog.Default().Warn("cortexapi: scheduled dream cycle failed", "error", err)
	}
}

func (c *Cortex) runScheduledDecay(ctx context.Context) {
	if _, err := c.decayer.Run(ctx); err != nil {
		slog.Default().Warn("cortexapi: scheduled decay failed", "error", err)
	}
}

// Init marks the Cortex initialized and is idempotent. It creates nothing
// and checks nothing itself: the backend's own Open/New already created the
// schema.
func (c *Cortex) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.initialized = true
	return nil
}

// Destroy stops the background schedule and releases the storage backend.
// It is safe to call even if StartDreamSchedule was never called.
func (c *Cortex) Destroy() error {
	c.scheduler.Stop()
	return c.storage.Close()
}
