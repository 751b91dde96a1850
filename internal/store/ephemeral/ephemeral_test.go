package ephemeral

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

func TestInsertRecordDedup(t *testing.T) {
	s := New()
	ctx := context.Background()
	r := &cortex.Record{HashID: "clude-aaaa1111", Kind: cortex.KindEpisodic, Content: "hi", CreatedAt: time.Now()}
	id, err := s.InsertRecord(ctx, r)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	dup := &cortex.Record{HashID: "clude-aaaa1111", Kind: cortex.KindEpisodic, Content: "hi again", CreatedAt: time.Now()}
	_, err = s.InsertRecord(ctx, dup)
	if err == nil {
		t.Fatal("expected conflict error on duplicate hash")
	}
	existing, ok := cortex.ExistingID(err)
	if !ok || existing != id {
		t.Fatalf("ExistingID() = (%v,%v), want (%v,true)", existing, ok, id)
	}
}

func TestVectorSearchRanksByCosine(t *testing.T) {
	s := New()
	ctx := context.Background()
	mustInsert := func(emb []float32) {
		_, err := s.InsertRecord(ctx, &cortex.Record{
			Kind: cortex.KindSemantic, Content: "x", CreatedAt: time.Now(), Embedding: emb,
		})
		if err != nil {
			t.Fatalf("InsertRecord: %v", err)
		}
	}
	mustInsert([]float32{1, 0})
	mustInsert([]float32{0, 1})
	mustInsert([]float32{0.9, 0.1})

	out, err := s.VectorSearch(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
	if out[0].Embedding[0] != 1 {
		t.Errorf("nearest match should be the identical vector, got %v", out[0].Embedding)
	}
}

func TestQueryCandidatesFiltersByTags(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindEpisodic, Content: "a", Tags: []string{"alpha"}, CreatedAt: time.Now(), DecayFactor: 1})
	_, _ = s.InsertRecord(ctx, &cortex.Record{Kind: cortex.KindEpisodic, Content: "b", Tags: []string{"beta"}, CreatedAt: time.Now(), DecayFactor: 1})

	out, err := s.QueryCandidates(ctx, store.CandidateFilter{Tags: []string{"alpha"}})
	if err != nil {
		t.Fatalf("QueryCandidates: %v", err)
	}
	if len(out) != 1 || out[0].Content != "a" {
		t.Fatalf("QueryCandidates() = %+v, want just record a", out)
	}
}

func TestBondLifecycle(t *testing.T) {
	s := New()
	ctx := context.Background()
	b := &cortex.Bond{SourceID: 1, TargetID: 2, Kind: cortex.BondRelates, Strength: 0.3}
	if err := s.InsertBond(ctx, b); err != nil {
		t.Fatalf("InsertBond: %v", err)
	}
	if err := s.InsertBond(ctx, b); err == nil {
		t.Fatal("expected conflict on duplicate bond key")
	}
	b.Strength = 0.5
	if err := s.UpdateBond(ctx, b); err != nil {
		t.Fatalf("UpdateBond: %v", err)
	}
	got, err := s.GetBond(ctx, b.Key())
	if err != nil {
		t.Fatalf("GetBond: %v", err)
	}
	if got.Strength != 0.5 {
		t.Errorf("Strength = %v, want 0.5", got.Strength)
	}
}
