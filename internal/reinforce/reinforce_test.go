package reinforce

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

func TestTouchResetsDecayAndBumpsAccess(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	past := time.Now().Add(-72 * time.Hour)
	id, _ := s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindEpisodic, Content: "x", CreatedAt: past, LastAccessed: past, DecayFactor: 0.2})

	clk := capability.FixedClock{T: time.Now()}
	r := &Reinforcer{Storage: s, Clock: clk}
	r.Touch(ctx, id)

	got, err := s.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if got.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1", got.AccessCount)
	}
	if got.DecayFactor != 1 {
		t.Errorf("DecayFactor = %v, want reset to 1", got.DecayFactor)
	}
}

func TestReinforceCoRetrievalSeedsThenStrengthens(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	clk := capability.FixedClock{T: time.Now()}
	r := &Reinforcer{Storage: s, Clock: clk}

	r.ReinforceCoRetrieval(ctx, 1, 2)
	bond, err := s.GetBond(ctx, cortex.BondKey{SourceID: 1, TargetID: 2, Kind: cortex.BondRelates})
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if bond.Strength != BondSeedStrength {
		t.Errorf("Strength = %v, want seed %v", bond.Strength, BondSeedStrength)
	}

	r.ReinforceCoRetrieval(ctx, 1, 2)
	bond, err = s.GetBond(ctx, cortex.BondKey{SourceID: 1, TargetID: 2, Kind: cortex.BondRelates})
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	want := BondSeedStrength + BondIncrement
	if bond.Strength != want {
		t.Errorf("Strength = %v, want %v", bond.Strength, want)
	}
}

func TestReinforceCoRetrievalCapsAtOne(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	clk := capability.FixedClock{T: time.Now()}
	r := &Reinforcer{Storage: s, Clock: clk}

	if err := s.InsertBond(ctx, &cortex.Bond{SourceID: 1, TargetID: 2, Kind: cortex.BondRelates, Strength: 0.99}); err != nil {
		t.Fatalf("InsertBond: %v", err)
	}
	r.ReinforceCoRetrieval(ctx, 1, 2)
	bond, err := s.GetBond(ctx, cortex.BondKey{SourceID: 1, TargetID: 2, Kind: cortex.BondRelates})
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if bond.Strength != 1 {
		t.Errorf("Strength = %v, want capped at 1", bond.Strength)
	}
}
