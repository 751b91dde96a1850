// Package decay applies the per-kind exponential forgetting curve to every
// record not accessed in the last 24 hours: decayFactor <- max(floor,
// decayFactor * rate^daysSinceLastAccess).
package decay

import (
	"context"
	"math"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// Floor is the minimum decayFactor a record can reach; memories never fully
// vanish. Recall multiplies a record's whole composite score by its
// decayFactor, and candidate queries leave out records below
// store.DefaultMinDecay unless the caller sets a lower MinDecay.
const Floor = 0.05

// Rates is the per-day decay rate for each memory kind: episodic memories
// fade fastest, self_model slowest.
var Rates = map[cortex.Kind]float64{
	cortex.KindEpisodic:   0.93,
	cortex.KindSemantic:   0.98,
	cortex.KindProcedural: 0.97,
	cortex.KindSelfModel:  0.99,
}

func rateFor(k cortex.Kind) float64 {
	if r, ok := Rates[k]; ok {
		return r
	}
	return 0.95
}

// Engine walks the store applying decay; Run is intended to be invoked once
// a day by internal/scheduler.
type Engine struct {
	Storage store.Storage
	Clock   capability.Clock
}

// Apply returns the record's decayFactor after accounting for the days
// elapsed since it was last accessed, without persisting it. A record
// accessed less than 24 hours ago keeps its decayFactor unchanged.
func Apply(r *cortex.Record, now time.Time) float64 {
	days := now.Sub(r.LastAccessed).Hours() / 24
	if days < 1 {
		return r.DecayFactor
	}
	rate := rateFor(r.Kind)
	next := r.DecayFactor * math.Pow(rate, days)
	if next < Floor {
		next = Floor
	}
	return next
}

// Run applies decay to every record across all owners and persists the
// updated decayFactor. Records whose computed decayFactor is unchanged are
// skipped to avoid needless writes.
func (e *Engine) Run(ctx context.Context) (int, error) {
	records, err := e.Storage.AllRecords(ctx, "")
	if err != nil {
		return 0, cortex.StoreUnavailableError("decay: list records", err)
	}
	now := e.Clock.Now()
	updated := 0
	for _, r := range records {
		next := Apply(r, now)
		if next == r.DecayFactor {
			continue
		}
		r.DecayFactor = next
		if err := e.Storage.UpdateRecord(ctx, r); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}
