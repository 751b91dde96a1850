package cortexapi

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/decay"
	"github.com/cludeai/cortex/internal/dream"
	"github.com/cludeai/cortex/internal/ingest"
	"github.com/cludeai/cortex/internal/recall"
	"github.com/cludeai/cortex/internal/store"
)

// Store persists one new observation. A validation or conflict error
// returns (nil, nil) rather than an error, matching the documented
// "store returns null on validation/conflict without raising" contract; all
// other errors are returned to the caller.
func (c *Cortex) Store(ctx context.Context, in ingest.Input) (*cortex.Record, error) {
	r, err := c.ingestor.Store(ctx, in)
	if err != nil {
		if errors.Is(err, cortex.ErrValidation) || errors.Is(err, cortex.ErrConflict) {
			return nil, nil
		}
		return nil, err
	}
	return r, nil
}

// Recall runs the full six-phase pipeline and reinforces every returned
// record plus every pairwise combination, fire-and-forget so recall latency
// never waits on the write-back (mirrors Ingestor.store's AfterStore hooks).
func (c *Cortex) Recall(ctx context.Context, q recall.Query) (recall.Response, error) {
	resp, err := c.recaller.Recall(ctx, q)
	if err != nil {
		return resp, err
	}
	if resp.Partial && ctx.Err() != nil {
		return recall.Response{}, cortex.CancelledError("recall: " + ctx.Err().Error())
	}
	ids := make([]int64, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.Record.ID)
	}
	if len(ids) > 0 {
		go c.reinforcer.ReinforceRecall(context.WithoutCancel(ctx), ids)
	}
	c.publish(ctx, "memory.recalled", map[string]any{"count": len(ids)})
	return resp, nil
}

// RecallSummaries runs the same ranking as Recall but strips record content
// (leaving summary/metadata) and skips the reinforcement side effect,
// matching the progressive-disclosure contract: cheap to call repeatedly,
// paired with Hydrate for the records a caller actually wants in full.
func (c *Cortex) RecallSummaries(ctx context.Context, q recall.Query) (recall.Response, error) {
	resp, err := c.recaller.Recall(ctx, q)
	if err != nil {
		return resp, err
	}
	for _, r := range resp.Results {
		stripped := *r.Record
		stripped.Content = ""
		stripped.Embedding = nil
		r.Record = &stripped
	}
	return resp, nil
}

// Hydrate returns full records for a set of hash ids, in the order
// requested; an id with no matching record is simply omitted.
func (c *Cortex) Hydrate(ctx context.Context, hashIDs []string) ([]*cortex.Record, error) {
	out := make([]*cortex.Record, 0, len(hashIDs))
	for _, h := range hashIDs {
		r, err := c.storage.GetRecordByHash(ctx, h)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Link upserts a bond between two records. Calling it twice with the same
// (sourceID, targetID, kind) updates the existing bond's strength rather
// than creating a duplicate — "last strength wins".
func (c *Cortex) Link(ctx context.Context, sourceID, targetID int64, kind cortex.BondKind, strength float64) error {
	key := cortex.BondKey{SourceID: sourceID, TargetID: targetID, Kind: kind}
	existing, err := c.storage.GetBond(ctx, key)
	if err == nil && existing != nil {
		existing.Strength = cortex.Clamp01(strength)
		return c.storage.UpdateBond(ctx, existing)
	}
	b := &cortex.Bond{SourceID: sourceID, TargetID: targetID, Kind: kind, Strength: cortex.Clamp01(strength), CreatedAt: c.clock.Now()}
	if err := c.storage.InsertBond(ctx, b); err != nil {
		if _, ok := cortex.ExistingID(err); ok {
			return nil
		}
		return err
	}
	return nil
}

// Decay runs one decay pass over every record and returns how many changed.
func (c *Cortex) Decay(ctx context.Context) (int, error) {
	return c.decayer.Run(ctx)
}

// Dream runs one dream cycle synchronously to completion (IDLE).
func (c *Cortex) Dream(ctx context.Context) (dream.Report, error) {
	return c.dreamer.Run(ctx)
}

// StartDreamSchedule installs the wall-clock timers: a dream cycle every 6h
// and a decay pass daily at 03:00 UTC.
func (c *Cortex) StartDreamSchedule(ctx context.Context) {
	c.scheduler.Start(ctx)
}

// StopDreamSchedule cancels both timers and waits for them to exit.
func (c *Cortex) StopDreamSchedule() {
	c.scheduler.Stop()
}

// Stats summarizes the current memory store.
type Stats struct {
	TotalRecords   int
	ByKind         map[cortex.Kind]int
	TotalBonds     int
	CompactedCount int
	DreamState     dream.State
}

func (c *Cortex) Stats(ctx context.Context) (Stats, error) {
	records, err := c.storage.AllRecords(ctx, "")
	if err != nil {
		return Stats{}, err
	}
	bonds, err := c.storage.ListAllBonds(ctx)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{TotalRecords: len(records), ByKind: map[cortex.Kind]int{}, TotalBonds: len(bonds)}
	for _, r := range records {
		s.ByKind[r.Kind]++
		if r.Compacted {
			s.CompactedCount++
		}
	}
	s.DreamState = c.dreamer.State()
	return s, nil
}

// Recent returns the most recent records within the last `hours`, optionally
// filtered by kind, newest first.
func (c *Cortex) Recent(ctx context.Context, hours int, kinds []cortex.Kind, limit int) ([]*cortex.Record, error) {
	cutoff := c.clock.Now().Add(-time.Duration(hours) * time.Hour)
	records, err := c.storage.QueryCandidates(ctx, store.CandidateFilter{
		Kinds: kinds,
		Since: cutoff.Unix(),
		Limit: math.MaxInt32,
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// SelfModel returns every current self_model record.
func (c *Cortex) SelfModel(ctx context.Context) ([]*cortex.Record, error) {
	return c.storage.QueryCandidates(ctx, store.CandidateFilter{Kinds: []cortex.Kind{cortex.KindSelfModel}})
}

// InferConcepts runs the same pattern passes the ingest path uses for entity
// extraction over a not-yet-stored summary, and returns the distinct
// normalized concept/entity names found — useful for a caller building an
// Input.Concepts list before calling Store.
func (c *Cortex) InferConcepts(ctx context.Context, summary, source string, tags []string) []string {
	cands := c.extractor.Extract(summary)
	seen := make(map[string]bool, len(cands))
	out := make([]string, 0, len(cands)+len(tags))
	for _, t := range tags {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, cand := range cands {
		if !seen[cand.Normalized] {
			seen[cand.Normalized] = true
			out = append(out, cand.Normalized)
		}
	}
	sort.Strings(out)
	return out
}

// On registers handler for events of the given kind ("memory.stored",
// "memory.recalled", "dream.phase", ...). It only works when Cortex was
// constructed without an explicit Config.Events, since an externally
// supplied EventSink may not support registration.
func (c *Cortex) On(kind string, handler func(ctx context.Context, ev capability.Event)) bool {
	if c.bus == nil {
		return false
	}
	c.bus.Register(&kindFilterHandler{id: kind, kind: kind, fn: handler})
	return true
}

type kindFilterHandler struct {
	id   string
	kind string
	fn   func(ctx context.Context, ev capability.Event)
}

func (h *kindFilterHandler) ID() string { return h.id }
func (h *kindFilterHandler) Handle(ctx context.Context, ev capability.Event) {
	if ev.Kind != h.kind {
		return
	}
	h.fn(ctx, ev)
}

func (c *Cortex) publish(ctx context.Context, kind string, data map[string]any) {
	if c.events == nil {
		return
	}
	c.events.Publish(ctx, capability.Event{Kind: kind, Data: data})
}
