package dream

import (
	"context"
	"errors"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/idgen"
)

// synthesized is the shape of one new record a dream phase wants to store,
// independent of which phase produced it.
type synthesized struct {
	Kind        cortex.Kind
	Content     string
	Summary     string
	Tags        []string
	Concepts    []string
	EvidenceIDs []string
	OwnerID     string
	Importance  float64
}

// store persists a synthesized record the same way Ingestor.Store does:
// clamp, embed if possible, insert, and return the assigned record. A
// content-hash conflict is not an error — dream phases are safe to retry —
// the existing record is returned instead.
func (e *Engine) store(ctx context.Context, s synthesized) (*cortex.Record, error) {
	now := e.now()
	r := &cortex.Record{
		Kind:         s.Kind,
		Content:      s.Content,
		Summary:      s.Summary,
		Tags:         s.Tags,
		Concepts:     s.Concepts,
		EvidenceIDs:  s.EvidenceIDs,
		OwnerID:      s.OwnerID,
		Importance:   s.Importance,
		CreatedAt:    now,
		LastAccessed: now,
		DecayFactor:  1,
	}
	r.ClampRanges()
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.HashID = idgen.RecordHash(string(r.Kind), r.Summary, r.CreatedAt)

	if e.Embedder != nil {
		emb, err := e.Embedder.Embed(ctx, r.Content)
		if err == nil {
			r.Embedding = emb
		}
	}

	id, err := e.Storage.InsertRecord(ctx, r)
	if err != nil {
		if existingID, ok := cortex.ExistingID(err); ok {
			if existing, getErr := e.Storage.GetRecord(ctx, existingID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	r.ID = id
	return r, nil
}

// bond creates a directed bond at its kind's base weight, ignoring an
// already-present bond for the same (source,target,kind) tuple — every
// phase below is safe to re-run over the same inputs.
func (e *Engine) bond(ctx context.Context, sourceID, targetID int64, kind cortex.BondKind) error {
	b := &cortex.Bond{SourceID: sourceID, TargetID: targetID, Kind: kind, Strength: cortex.BondBaseWeight[kind]}
	if err := e.Storage.InsertBond(ctx, b); err != nil {
		if errors.Is(err, cortex.ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}

func (e *Engine) log(ctx context.Context, kind cortex.DreamKind, inputIDs []int64, output string, newIDs []int64) {
	dl := &cortex.DreamLog{
		Kind:           kind,
		InputMemoryIDs: inputIDs,
		Output:         output,
		NewMemoryIDs:   newIDs,
		CreatedAt:      e.now(),
	}
	if _, err := e.Storage.InsertDreamLog(ctx, dl); err != nil {
		e.logger().Warn("dream: failed to write dream log", "kind", kind, "error", err)
	}
}
