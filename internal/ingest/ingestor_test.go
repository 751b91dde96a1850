package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

func TestStoreAssignsHashAndImportance(t *testing.T) {
	clk := capability.FixedClock{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ig := &Ingestor{Storage: ephemeral.New(), Clock: clk}

	r, err := ig.Store(context.Background(), Input{Content: "a whale just moved to a new ath"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if r.HashID == "" {
		t.Error("expected a hash id to be assigned")
	}
	// Floor 0.4 plus the whale (+0.3) and ath (+0.15) hints.
	if r.Importance <= 0.5 {
		t.Errorf("Importance = %v, want > 0.5 for content carrying whale/ath hints", r.Importance)
	}
	if r.Kind != cortex.KindEpisodic {
		t.Errorf("Kind = %v, want default episodic", r.Kind)
	}
}

func TestImportanceFallbackFloorsAndClampsByHintTable(t *testing.T) {
	if got := ImportanceFallback(nil); got != 0.4 {
		t.Errorf("ImportanceFallback(nil) = %v, want the 0.4 floor", got)
	}
	if got := ImportanceFallback([]string{hintWhale, hintExit, hintATH, hintFirstInteraction}); got != 1 {
		t.Errorf("ImportanceFallback(all hints) = %v, want 1 (0.4+0.3+0.25+0.15+0.1, clamped)", got)
	}
}

func TestStoreFirstInteractionHintRaisesImportance(t *testing.T) {
	clk := capability.FixedClock{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	ig := &Ingestor{Storage: ephemeral.New(), Clock: clk}

	r, err := ig.Store(context.Background(), Input{Content: "saying hello for the first time", OwnerID: "owner-1"})
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if r.Importance <= 0.4 {
		t.Errorf("Importance = %v, want > 0.4 floor for a first interaction", r.Importance)
	}
}

func TestStoreIsIdempotentOnIdenticalContent(t *testing.T) {
	clk := capability.FixedClock{T: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := ephemeral.New()
	ig := &Ingestor{Storage: s, Clock: clk}

	in := Input{Content: "the deploy window is 2am utc", Summary: "deploy window"}
	first, err := ig.Store(context.Background(), in)
	if err != nil {
		t.Fatalf("Store (first): %v", err)
	}
	second, err := ig.Store(context.Background(), in)
	if err != nil {
		t.Fatalf("Store (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected identical content to dedupe to the same id, got %d and %d", first.ID, second.ID)
	}
}

func TestStoreRejectsEmptyContent(t *testing.T) {
	ig := &Ingestor{Storage: ephemeral.New(), Clock: capability.RealClock{}}
	_, err := ig.Store(context.Background(), Input{Content: ""})
	if err == nil {
		t.Fatal("expected validation error for empty content")
	}
}
