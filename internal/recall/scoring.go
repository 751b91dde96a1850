// Package recall implements the hybrid retrieval pipeline: vector search,
// metadata candidates, composite scoring, entity expansion, and bond-graph
// traversal. Grounded on the teacher's scanner/resolver scoring shape
// (weighted signal combination) generalized to the memory-recall formula.
package recall

import (
	"context"
	"math"
	"time"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
)

// Weights are the fixed coefficients of the composite recall score:
//
//	score = (w_recency*recency + w_relevance*relevance + w_importance*importance
//	         + w_vector*vectorScore + w_graph*graphBoost) * decayFactor * tagScore
const (
	WeightRecency    = 0.5
	WeightRelevance  = 3.0
	WeightImportance = 2.0
	WeightVector     = 3.0
	WeightGraph      = 1.5
)

// RecencyFunc computes a [0,1] recency signal from a record's age. The
// default is 1/(1+ageHours/24); an alternate exponential-decay function
// (0.995^hours) can be injected for callers that want sharper recency
// falloff.
type RecencyFunc func(age time.Duration) float64

// DefaultRecency is 1/(1+ageHours/24): a record one day old scores 0.5, one
// week old scores ~0.125.
func DefaultRecency(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return 1 / (1 + hours/24)
}

// ExponentialRecency is the alternate recency function from the spec's
// open question on recency shape: 0.995^hours.
func ExponentialRecency(age time.Duration) float64 {
	hours := age.Hours()
	if hours < 0 {
		hours = 0
	}
	return math.Pow(0.995, hours)
}

// Candidate is a record under consideration for a recall result, carrying
// the partial signals the ScoringEngine combines.
type Candidate struct {
	Record        *cortex.Record
	VectorScore   float64  // 1 - rank/(n+1) in phase-1 vector search order, 0 if not vector-matched; not the cosine similarity itself
	Relevance     float64  // lexical overlap with the query, 0..1
	GraphBoost    float64  // accumulated weight from bond-graph traversal
	RequestedTags []string // Query.Tags, threaded through for tagScore's overlap ratio
}

// Scored is a Candidate plus its final composite score.
type Scored struct {
	Candidate
	Score float64
}

// ScoringEngine combines a Candidate's signals into the final composite
// score used to rank and threshold recall results.
type ScoringEngine struct {
	Clock   capability.Clock
	Recency RecencyFunc
}

func (se *ScoringEngine) recencyFunc() RecencyFunc {
	if se.Recency != nil {
		return se.Recency
	}
	return DefaultRecency
}

// Score computes the composite score for one candidate:
//
//	score = (w_recency*recency + w_relevance*relevance + w_importance*importance
//	         + w_vector*vectorScore + w_graph*graphBoost) * decayFactor * tagScore
func (se *ScoringEngine) Score(c Candidate) Scored {
	now := se.Clock.Now()
	age := now.Sub(c.Record.LastAccessed)
	recency := se.recencyFunc()(age)
	importance := c.Record.Importance
	tagScore := tagOverlapScore(c.RequestedTags, c.Record.Tags)
	decay := c.Record.DecayFactor
	if decay <= 0 {
		decay = 1
	}

	raw := WeightRecency*recency + WeightRelevance*c.Relevance + WeightImportance*importance +
		WeightVector*c.VectorScore + WeightGraph*c.GraphBoost
	score := raw * decay * tagScore

	return Scored{Candidate: c, Score: score}
}

// tagOverlapScore implements spec §4.5's tag signal:
// 0.5 + 0.5*(|requestedTags ∩ recordTags| / |requestedTags|), or 0.5 when
// the query requested no tags at all.
func tagOverlapScore(requested, recordTags []string) float64 {
	if len(requested) == 0 {
		return 0.5
	}
	present := make(map[string]struct{}, len(recordTags))
	for _, t := range recordTags {
		present[t] = struct{}{}
	}
	seen := make(map[string]struct{}, len(requested))
	overlap := 0
	for _, t := range requested {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := present[t]; ok {
			overlap++
		}
	}
	return 0.5 + 0.5*float64(overlap)/float64(len(seen))
}

// ScoreAll scores every candidate and returns them sorted highest-first.
func (se *ScoringEngine) ScoreAll(cands []Candidate) []Scored {
	out := make([]Scored, len(cands))
	for i, c := range cands {
		out[i] = se.Score(c)
	}
	sortScoredDesc(out)
	return out
}

// sortScoredDesc orders by score descending; ties break by newer createdAt,
// then by lower id (spec §4.5: "Ties broken by newer createdAt, then lower
// id.").
func sortScoredDesc(xs []Scored) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && ranksAfter(xs[j-1], xs[j]); j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

// ranksAfter reports whether a ranks below b under the score/createdAt/id
// ordering, i.e. whether a sorting pass should move b ahead of a.
func ranksAfter(a, b Scored) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
		return a.Record.CreatedAt.Before(b.Record.CreatedAt)
	}
	return a.Record.ID > b.Record.ID
}
