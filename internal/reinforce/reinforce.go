// Package reinforce applies Hebbian-style reinforcement whenever records
// are retrieved together: each touched record's access count and recency
// reset, and every co-retrieved pair's "relates" bond strengthens (or is
// created). Grounded on the teacher's fire-and-forget goroutine dispatch
// pattern used for non-blocking side effects elsewhere in the codebase.
package reinforce

import (
	"context"
	"log/slog"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// BondIncrement is how much a co-retrieval strengthens an existing
// "relates" bond, and BondSeedStrength is the strength a brand-new one is
// created at.
const (
	BondIncrement    = 0.05
	BondSeedStrength = 0.3
)

type Reinforcer struct {
	Storage store.Storage
	Clock   capability.Clock
	Log     *slog.Logger
}

func (r *Reinforcer) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}

// Touch bumps access bookkeeping for a single retrieved record and is
// intended to run in its own goroutine; a failure here must never surface
// to the recall caller.
func (r *Reinforcer) Touch(ctx context.Context, id int64) {
	rec, err := r.Storage.GetRecord(ctx, id)
	if err != nil {
		r.logger().Warn("reinforce: get record failed", "id", id, "error", err)
		return
	}
	rec.AccessCount++
	rec.LastAccessed = r.Clock.Now()
	rec.DecayFactor = 1
	if err := r.Storage.UpdateRecord(ctx, rec); err != nil {
		r.logger().Warn("reinforce: update record failed", "id", id, "error", err)
	}
}

// ReinforceCoRetrieval strengthens (or seeds) a "relates" bond between two
// records that were surfaced together by the same recall call.
func (r *Reinforcer) ReinforceCoRetrieval(ctx context.Context, a, b int64) {
	if a == b {
		return
	}
	key := cortex.BondKey{SourceID: a, TargetID: b, Kind: cortex.BondRelates}
	existing, err := r.Storage.GetBond(ctx, key)
	if err == nil {
		existing.Strength = cortex.Clamp01(existing.Strength + BondIncrement)
		if err := r.Storage.UpdateBond(ctx, existing); err != nil {
			r.logger().Warn("reinforce: update bond failed", "a", a, "b", b, "error", err)
		}
		return
	}
	bond := &cortex.Bond{SourceID: a, TargetID: b, Kind: cortex.BondRelates, Strength: BondSeedStrength, CreatedAt: r.Clock.Now()}
	if err := r.Storage.InsertBond(ctx, bond); err != nil {
		if _, ok := cortex.ExistingID(err); !ok {
			r.logger().Warn("reinforce: insert bond failed", "a", a, "b", b, "error", err)
		}
	}
}

// ReinforceRecall is called once per recall response: it touches every
// returned record and reinforces every pairwise combination, launched as a
// background goroutine by the caller so recall latency never waits on it.
func (r *Reinforcer) ReinforceRecall(ctx context.Context, ids []int64) {
	for _, id := range ids {
		r.Touch(ctx, id)
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			r.ReinforceCoRetrieval(ctx, ids[i], ids[j])
		}
	}
}
