// Package linker forms bonds between records: embedding-similarity
// "relates" bonds above a fixed threshold, plus a small set of rule-based
// proposals for "supports" and "contradicts" pairs. Grounded on the
// teacher's Edge type (internal/store/models.go) for the directed,
// confidence-weighted relationship shape.
package linker

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// SimilarityThreshold is the minimum cosine similarity two records must
// share for the linker to propose a "relates" bond between them.
const SimilarityThreshold = 0.82

// TopK bounds how many neighbors the linker considers per record: spec
// §4.4's "top-k (k = 5) most-similar non-compacted records."
const TopK = 5

type Linker struct {
	Storage store.Storage
}

// LinkNew runs both passes against one freshly stored record: a
// vector-similarity scan against existing records for "relates" bonds, and
// a lexical rule pass for "supports"/"contradicts" proposals.
func (l *Linker) LinkNew(ctx context.Context, r *cortex.Record) error {
	if len(r.Embedding) > 0 {
		if err := l.linkBySimilarity(ctx, r); err != nil {
			return err
		}
	}
	return l.linkByRules(ctx, r)
}

func (l *Linker) linkBySimilarity(ctx context.Context, r *cortex.Record) error {
	neighbors, err := l.Storage.VectorSearch(ctx, r.Embedding, TopK+1)
	if err != nil {
		return cortex.CapabilityUnavailableError("vector search: " + err.Error())
	}
	for _, n := range neighbors {
		if n.ID == r.ID || n.Compacted {
			continue
		}
		sim := cosine(r.Embedding, n.Embedding)
		if sim < SimilarityThreshold {
			continue
		}
		if err := l.proposeBond(ctx, r.ID, n.ID, cortex.BondRelates, sim); err != nil {
			return err
		}
	}
	return nil
}

// hashRefRe matches a cited record's content-addressed id (spec §3:
// "clude-<8 hex>") appearing inline in another record's content — the
// reference pattern a "contradicts"/"but" signal or an explicit evidence
// citation points at.
var hashRefRe = regexp.MustCompile(`clude-[0-9a-f]{8}`)

// linkByRules implements spec §4.4's two rule-based signals: a record that
// contains the substring "contradicts", or "but" followed by a reference to
// another record, proposes a single "contradicts" bond to that referenced
// record; a record that cites an evidence id explicitly proposes a
// "supports" bond back to each cited record.
func (l *Linker) linkByRules(ctx context.Context, r *cortex.Record) error {
	if ref := contradictionReference(r.Content); ref != "" {
		target, err := l.Storage.GetRecordByHash(ctx, ref)
		if err == nil {
			if err := l.proposeBond(ctx, r.ID, target.ID, cortex.BondContradicts, cortex.BondBaseWeight[cortex.BondContradicts]); err != nil {
				return err
			}
		}
	}

	for _, evID := range r.EvidenceIDs {
		target, err := l.Storage.GetRecordByHash(ctx, evID)
		if err != nil {
			// Dangling evidence ids are permitted, not rejected (spec §3).
			continue
		}
		if err := l.proposeBond(ctx, r.ID, target.ID, cortex.BondSupports, cortex.BondBaseWeight[cortex.BondSupports]); err != nil {
			return err
		}
	}
	return nil
}

// contradictionReference returns the hash id of the record content
// references as a contradiction, or "" if content carries neither signal.
// The substring "contradicts" is itself sufficient; "but" requires a
// reference pattern (a cited hash id) to follow it, since "but" alone is
// too common a word to treat as a contradiction signal on its own.
func contradictionReference(content string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "contradicts") {
		if ref := hashRefRe.FindString(content); ref != "" {
			return ref
		}
	}
	if idx := strings.Index(lower, "but"); idx >= 0 {
		if ref := hashRefRe.FindString(content[idx:]); ref != "" {
			return ref
		}
	}
	return ""
}

// proposeBond is idempotent per ordered-pair+kind: a bond already present
// for (sourceID,targetID,kind) is left untouched rather than duplicated or
// errored on.
func (l *Linker) proposeBond(ctx context.Context, sourceID, targetID int64, kind cortex.BondKind, strength float64) error {
	existing, err := l.Storage.GetBond(ctx, cortex.BondKey{SourceID: sourceID, TargetID: targetID, Kind: kind})
	if err == nil && existing != nil {
		return nil
	}
	b := &cortex.Bond{SourceID: sourceID, TargetID: targetID, Kind: kind, Strength: cortex.Clamp01(strength)}
	if err := l.Storage.InsertBond(ctx, b); err != nil {
		if _, ok := cortex.ExistingID(err); ok {
			return nil
		}
		return err
	}
	return nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
