package linker

import (
	"context"
	"testing"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store/ephemeral"
)

func insert(t *testing.T, s *ephemeral.Store, content string, emb []float32, concepts []string) *cortex.Record {
	t.Helper()
	return insertWithHash(t, s, content, emb, concepts, "")
}

func insertWithHash(t *testing.T, s *ephemeral.Store, content string, emb []float32, concepts []string, hashID string) *cortex.Record {
	t.Helper()
	r := &cortex.Record{Kind: cortex.KindSemantic, HashID: hashID, Content: content, Embedding: emb, Concepts: concepts, CreatedAt: time.Now()}
	id, err := s.InsertRecord(context.Background(), r)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	r.ID = id
	return r
}

func TestLinkNewCreatesRelatesBondAboveThreshold(t *testing.T) {
	s := ephemeral.New()
	l := &Linker{Storage: s}
	a := insert(t, s, "a", []float32{1, 0, 0}, nil)
	b := insert(t, s, "b", []float32{0.99, 0.01, 0}, nil)

	if err := l.LinkNew(context.Background(), b); err != nil {
		t.Fatalf("LinkNew: %v", err)
	}
	bond, err := s.GetBond(context.Background(), cortex.BondKey{SourceID: b.ID, TargetID: a.ID, Kind: cortex.BondRelates})
	if err != nil {
		t.Fatalf("expected a relates bond, got: %v", err)
	}
	if bond.Strength < SimilarityThreshold {
		t.Errorf("Strength = %v, want >= %v", bond.Strength, SimilarityThreshold)
	}
}

func TestLinkNewSkipsBelowThreshold(t *testing.T) {
	s := ephemeral.New()
	l := &Linker{Storage: s}
	a := insert(t, s, "a", []float32{1, 0, 0}, nil)
	b := insert(t, s, "b", []float32{0, 1, 0}, nil)

	if err := l.LinkNew(context.Background(), b); err != nil {
		t.Fatalf("LinkNew: %v", err)
	}
	if _, err := s.GetBond(context.Background(), cortex.BondKey{SourceID: b.ID, TargetID: a.ID, Kind: cortex.BondRelates}); err == nil {
		t.Error("expected no bond below the similarity threshold")
	}
}

func TestLinkByRulesProposesContradictsViaHashReference(t *testing.T) {
	s := ephemeral.New()
	l := &Linker{Storage: s}
	a := insertWithHash(t, s, "the deploy window is 2am utc", nil, []string{"deploy"}, "clude-aaaaaaaa")

	b := &cortex.Record{
		Kind:      cortex.KindSemantic,
		Content:   "this contradicts clude-aaaaaaaa: the deploy window is now 4am utc",
		Concepts:  []string{"deploy"},
		CreatedAt: time.Now(),
	}
	id, err := s.InsertRecord(context.Background(), b)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	b.ID = id

	if err := l.LinkNew(context.Background(), b); err != nil {
		t.Fatalf("LinkNew: %v", err)
	}
	if _, err := s.GetBond(context.Background(), cortex.BondKey{SourceID: b.ID, TargetID: a.ID, Kind: cortex.BondContradicts}); err != nil {
		t.Errorf("expected a contradicts bond, got: %v", err)
	}
}

func TestLinkByRulesProposesSupportsViaEvidenceID(t *testing.T) {
	s := ephemeral.New()
	l := &Linker{Storage: s}
	a := insertWithHash(t, s, "fees are low this week", nil, nil, "clude-bbbbbbbb")

	b := &cortex.Record{
		Kind:        cortex.KindSemantic,
		Content:     "confirming fees are still low, consistent with prior observation",
		EvidenceIDs: []string{"clude-bbbbbbbb"},
		CreatedAt:   time.Now(),
	}
	id, err := s.InsertRecord(context.Background(), b)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	b.ID = id

	if err := l.LinkNew(context.Background(), b); err != nil {
		t.Fatalf("LinkNew: %v", err)
	}
	if _, err := s.GetBond(context.Background(), cortex.BondKey{SourceID: b.ID, TargetID: a.ID, Kind: cortex.BondSupports}); err != nil {
		t.Errorf("expected a supports bond, got: %v", err)
	}
}
