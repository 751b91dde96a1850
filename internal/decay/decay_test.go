package decay

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

func TestApplyDecaysByKindRate(t *testing.T) {
	now := time.Now()
	r := &cortex.Record{Kind: cortex.KindEpisodic, DecayFactor: 1, LastAccessed: now.Add(-24 * time.Hour)}
	got := Apply(r, now)
	want := Rates[cortex.KindEpisodic]
	if absFloat(got-want) > 1e-9 {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
}

func TestApplyFloorsAtMinimum(t *testing.T) {
	now := time.Now()
	r := &cortex.Record{Kind: cortex.KindEpisodic, DecayFactor: 1, LastAccessed: now.Add(-365 * 24 * time.Hour)}
	got := Apply(r, now)
	if got != Floor {
		t.Errorf("Apply() = %v, want floor %v", got, Floor)
	}
}

func TestRunPersistsUpdatedDecay(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	past := time.Now().Add(-48 * time.Hour)
	id, _ := s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindSemantic, Content: "x", CreatedAt: past, LastAccessed: past, DecayFactor: 1})

	e := &Engine{Storage: s, Clock: capability.FixedClock{T: time.Now()}}
	n, err := e.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n != 1 {
		t.Errorf("updated count = %d, want 1", n)
	}
	got, _ := s.GetRecord(ctx, id)
	if got.DecayFactor >= 1 {
		t.Errorf("DecayFactor = %v, want < 1 after two days", got.DecayFactor)
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
