package recall

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

func TestRecallRanksByMetadataRelevance(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	now := time.Now().UTC()

	mk := func(content string, importance float64) int64 {
		id, err := s.InsertRecord(ctx, &cortex.Record{
			Kind: cortex.KindSemantic, Content: content, Summary: content, Importance: importance,
			CreatedAt: now, LastAccessed: now, DecayFactor: 1,
		})
		if err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
		return id
	}
	mk("the launch window is friday at noon", 0.9)
	mk("unrelated chit chat about the weather", 0.3)

	rc := &Recaller{Storage: s, Scoring: &ScoringEngine{Clock: capability.FixedClock{T: now}}}
	resp, err := rc.Recall(ctx, Query{Text: "launch window friday", Limit: 5})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	if len(resp.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if resp.Results[0].Record.Content != "the launch window is friday at noon" {
		t.Errorf("top result = %q, want the matching launch record", resp.Results[0].Record.Content)
	}
}

func TestRecallTraversesBondGraph(t *testing.T) {
	s := ephemeral.New()
	ctx := context.Background()
	now := time.Now().UTC()

	a, _ := s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindSemantic, Content: "root cause analysis of the outage", Importance: 0.8, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	b, _ := s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindSemantic, Content: "mitigation steps taken afterward", Importance: 0.5, CreatedAt: now, LastAccessed: now, DecayFactor: 1})
	if err := s.InsertBond(ctx, &cortex.Bond{SourceID: a, TargetID: b, Kind: cortex.BondCauses, Strength: 0.9, CreatedAt: now}); err != nil {
		t.Fatalf("InsertBond: %v", err)
	}

	rc := &Recaller{Storage: s, Scoring: &ScoringEngine{Clock: capability.FixedClock{T: now}}}
	resp, err := rc.Recall(ctx, Query{Text: "root cause outage", Limit: 1})
	if err != nil {
		t.Fatalf("Recall: %v", err)
	}
	found := false
	for _, r := range resp.Results {
		if r.Record.ID == b {
			found = true
		}
	}
	if !found {
		t.Error("expected the causally-bonded record to be pulled in via graph traversal")
	}
}
