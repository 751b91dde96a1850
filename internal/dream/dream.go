// Package dream implements the background consolidation cycle: five ordered
// phases that turn faded or clustered episodic memory into durable semantic
// and self-model records. Grounded on the teacher corpus's own AI-compaction
// component (internal/compact.Compactor), generalized from "shrink one
// issue's fields" to "synthesize one semantic record from a related cluster
// of memories, bond the cluster to it."
package dream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// State is the dream engine's current phase, exposed so cortexapi.Cortex can
// report it (e.g. for a stats() call).
type State string

const (
	StateIdle          State = "idle"
	StateConsolidation State = "consolidation"
	StateCompaction    State = "compaction"
	StateReflection    State = "reflection"
	StateContradiction State = "contradiction"
	StateEmergence     State = "emergence"
)

// ImportanceTriggerThreshold is the cumulative importance of records stored
// since the last cycle that fires an early, event-driven cycle in addition
// to the wall-clock schedule.
const ImportanceTriggerThreshold = 5.0

// ConsolidationWindow bounds how far back Phase 1 looks for episodic
// records to cluster.
const ConsolidationWindow = 72 * time.Hour

// CompactionAge is the minimum age an episodic record must have to be
// eligible for Phase 2.
const CompactionAge = 7 * 24 * time.Hour

// CompactionDecayCeiling and CompactionImportanceCeiling bound Phase 2
// eligibility: a record must have faded (low decay) and never been
// important to begin with.
const (
	CompactionDecayCeiling      = 0.3
	CompactionImportanceCeiling = 0.5
	minClusterSize              = 3
)

// Report summarizes one Run call for logging/events.
type Report struct {
	Ran              bool
	ConsolidatedNew  int
	CompactedInto    int
	ReflectionsNew   int
	ResolutionsNew   int
	EmergenceWritten bool
}

// Engine runs the five-phase dream cycle. Storage and Clock are required;
// LLM, Embedder, Events and OnEmergence are optional capabilities — absent
// an LLM, every phase short-circuits to a no-op, since every phase's work is
// a call→synthesize→bond operation that needs a language model to produce
// the synthesized text.
type Engine struct {
	Storage     store.Storage
	LLM         capability.LanguageModel
	Embedder    *capability.Embedder
	Clock       capability.Clock
	Events      capability.EventSink
	OnEmergence func(text string)
	Log         *slog.Logger

	mu              sync.Mutex
	running         bool
	state           State
	sinceLastCycle  float64
	newRecordsTotal []int64 // accumulated across phases 1-4 of the in-flight cycle, fed to phase 5
}

func (e *Engine) logger() *slog.Logger {
	if e.Log == nil {
		return slog.Default()
	}
	return e.Log
}

// State reports the phase currently in flight, or StateIdle between cycles.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == "" {
		return StateIdle
	}
	return e.state
}

// NoteImportance accumulates the importance of records stored since the last
// cycle and triggers an early cycle once the cumulative sum crosses
// ImportanceTriggerThreshold. cortexapi calls it from an ingest AfterStore
// hook for every stored record.
func (e *Engine) NoteImportance(ctx context.Context, importance float64) {
	e.mu.Lock()
	e.sinceLastCycle += importance
	fire := e.sinceLastCycle >= ImportanceTriggerThreshold && !e.running
	e.mu.Unlock()

	if fire {
		go func() {
			if _, err := e.Run(context.WithoutCancel(ctx)); err != nil {
				e.logger().Warn("dream: importance-triggered cycle failed", "error", err)
			}
		}()
	}
}

// Run executes one full dream cycle. Concurrent callers coalesce onto the
// in-flight cycle: a Run call made while another is running returns
// immediately with Report{Ran: false} rather than queuing or erroring.
func (e *Engine) Run(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Report{Ran: false}, nil
	}
	e.running = true
	e.sinceLastCycle = 0
	e.newRecordsTotal = nil
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.state = StateIdle
		e.mu.Unlock()
	}()

	var report Report
	report.Ran = true

	newIDs := e.runPhase(ctx, StateConsolidation, e.consolidate)
	report.ConsolidatedNew = len(newIDs)
	e.track(newIDs)

	compactedIDs := e.runPhase(ctx, StateCompaction, e.compact)
	report.CompactedInto = len(compactedIDs)
	e.track(compactedIDs)

	reflectionIDs := e.runPhase(ctx, StateReflection, e.reflect)
	report.ReflectionsNew = len(reflectionIDs)
	e.track(reflectionIDs)

	resolutionIDs := e.runPhase(ctx, StateContradiction, e.resolveContradictions)
	report.ResolutionsNew = len(resolutionIDs)
	e.track(resolutionIDs)

	report.EmergenceWritten = e.runEmergence(ctx)

	return report, nil
}

func (e *Engine) track(ids []int64) {
	if len(ids) == 0 {
		return
	}
	e.mu.Lock()
	e.newRecordsTotal = append(e.newRecordsTotal, ids...)
	e.mu.Unlock()
}

type phaseFunc func(ctx context.Context) ([]int64, error)

// runPhase runs one phase under its own state label. A phase that errors is
// logged and treated as having produced nothing; it never aborts the cycle,
// per the propagation policy that independent dream phases never fail each
// other.
func (e *Engine) runPhase(ctx context.Context, s State, fn phaseFunc) []int64 {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()

	if e.LLM == nil {
		return nil
	}
	ids, err := fn(ctx)
	if err != nil {
		e.logger().Warn("dream: phase failed", "phase", s, "error", err)
		return nil
	}
	e.publish(ctx, string(s), ids)
	return ids
}

func (e *Engine) publish(ctx context.Context, phase string, newIDs []int64) {
	if e.Events == nil {
		return
	}
	e.Events.Publish(ctx, capability.Event{Kind: "dream.phase", Data: map[string]any{
		"phase":  phase,
		"newIds": newIDs,
	}})
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock.Now()
	}
	return time.Now().UTC()
}

func dominantGroup(tags, concepts []string) string {
	if len(concepts) > 0 {
		return concepts[0]
	}
	if len(tags) > 0 {
		return tags[0]
	}
	return "uncategorized"
}

func groupByDominantConcept(records []*cortex.Record) map[string][]*cortex.Record {
	groups := make(map[string][]*cortex.Record)
	for _, r := range records {
		key := dominantGroup(r.Tags, r.Concepts)
		groups[key] = append(groups[key], r)
	}
	return groups
}
