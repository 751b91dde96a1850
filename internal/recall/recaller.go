package recall

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// Query is a recall request.
type Query struct {
	Text     string
	OwnerID  string
	Tags     []string
	Concepts []string
	Kinds    []cortex.Kind
	Limit    int

	// MinImportance and MinDecay narrow the metadata candidate pool the same
	// way they narrow store.CandidateFilter; zero means "use the store's
	// documented default" for each.
	MinImportance float64
	MinDecay      float64
}

// Result is one ranked recall hit, with its bond-graph provenance when it
// was surfaced through traversal rather than directly matched.
type Result struct {
	Record     *cortex.Record
	Score      float64
	ViaBondIDs []int64
}

// Response is the outcome of a recall call, including whether the overall
// timeout budget was exhausted before every phase completed.
type Response struct {
	Results []Result
	Partial bool
}

// Overall budget for a recall call; when exceeded, whatever phases have
// already run contribute to the result and Partial is set.
const defaultTimeout = 15 * time.Second

// defaultLimit and maxLimit bound the number of results a caller gets back:
// spec §4.5 defaults an unset limit to 5 and caps any caller-supplied value
// at 50 rather than letting a recall call fan out unboundedly.
const defaultLimit = 5
const maxLimit = 50

// candidateOverfetch is how much wider than the final limit phase 1/2
// over-fetch, so that composite scoring (which can reorder phase-1/2's own
// rankings) still has enough of the true candidate pool to choose from.
const candidateOverfetch = 3

// EntityExpansionLimit bounds how many additional records phase 5 pulls in
// per co-occurring entity (spec §4.5: "fetch up to 3 additional high
// importance records").
const EntityExpansionLimit = 3

// entityCoOccurrenceMinStrength is the minimum co-occurrence count (spec
// §4.5: "co-occurrence count >= 2") an entity relation must carry before
// phase 5 treats it as a co-occurring entity worth expanding through.
const entityCoOccurrenceMinStrength = 2

// entityExpansionScoreMultiplier discounts phase-5 hits relative to a
// directly matched/scored candidate (spec §4.5: "score them with a 0.7
// multiplier").
const entityExpansionScoreMultiplier = 0.7

// entityExpansionCandidateWindow is how many of phase-4's top scored
// candidates phase 5 walks entities from (spec §4.5: "top candidate (top
// 2*limit)").
const entityExpansionCandidateWindow = 2

// MaxTraversalDepth bounds phase 6's bond-graph walk.
const MaxTraversalDepth = 2

// graphBoostFalloff is the per-depth discount phase 6 applies to a bond's
// strength (spec §4.5: "graphBoost = strength * (0.8^depth)").
const graphBoostFalloff = 0.8

type Recaller struct {
	Storage  store.Storage
	Embedder *capability.Embedder
	Scoring  *ScoringEngine
}

// Recall runs the six-phase pipeline: vector search, metadata candidates,
// merge and composite scoring, entity expansion, bond-graph traversal, and a
// final re-sort/truncate to the requested limit.
func (rc *Recaller) Recall(ctx context.Context, q Query) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	candidates, partial := rc.gatherCandidates(ctx, q, limit)

	// Phases 3-4: merge (already done in gatherCandidates) and composite
	// score every candidate.
	scored := rc.Scoring.ScoreAll(candidates)

	seen := make(map[int64]bool, len(scored)*2)
	merged := make([]Result, 0, len(scored))
	for _, s := range scored {
		seen[s.Record.ID] = true
		merged = append(merged, Result{Record: s.Record, Score: s.Score})
	}

	// Phase 5: entity expansion over the top 2*limit scored candidates.
	expanded, expPartial := rc.expandViaEntities(ctx, q, scored, seen, limit)
	partial = partial || expPartial
	merged = append(merged, expanded...)
	sortResultsDesc(merged)

	// Phase 6 seeds from the top `limit` records after entity expansion.
	seeds := merged
	if len(seeds) > limit {
		seeds = seeds[:limit]
	}
	traversed, travPartial := rc.expandViaGraph(ctx, q, seeds, seen, limit)
	partial = partial || travPartial
	merged = append(merged, traversed...)

	sortResultsDesc(merged)
	if len(merged) > limit {
		merged = merged[:limit]
	}

	return Response{Results: merged, Partial: partial}, nil
}

// vectorHit is one phase-1 result with its rank-derived score, kept
// separate from the metadata phase's output until both complete so the two
// storage calls can run concurrently without sharing mutable state.
type vectorHit struct {
	record *cortex.Record
	score  float64
}

func (rc *Recaller) gatherCandidates(ctx context.Context, q Query, limit int) ([]Candidate, bool) {
	var (
		vectorHits []vectorHit
		meta       []*cortex.Record
		vecPartial bool
	)

	overfetch := limit * candidateOverfetch

	g, gctx := errgroup.WithContext(ctx)

	// Phase 1: vector search, only when an embedder is configured and the
	// query carries free text to embed.
	g.Go(func() error {
		if rc.Embedder == nil || q.Text == "" {
			return nil
		}
		emb, err := rc.Embedder.Embed(gctx, q.Text)
		if err != nil {
			vecPartial = true
			return nil
		}
		hits, err := rc.Storage.VectorSearch(gctx, emb, overfetch)
		if err != nil {
			vecPartial = true
			return nil
		}
		vectorHits = make([]vectorHit, len(hits))
		for i, r := range hits {
			vectorHits[i] = vectorHit{record: r, score: 1.0 - float64(i)/float64(len(hits)+1)}
		}
		return nil
	})

	// Phase 2: metadata candidates (tags/concepts/kind/owner filters), run
	// concurrently with phase 1 since neither depends on the other's result.
	var metaErr error
	g.Go(func() error {
		var err error
		meta, err = rc.Storage.QueryCandidates(gctx, store.CandidateFilter{
			OwnerID:       q.OwnerID,
			Tags:          q.Tags,
			Concepts:      q.Concepts,
			Kinds:         q.Kinds,
			MinImportance: q.MinImportance,
			MinDecay:      q.MinDecay,
			Limit:         overfetch,
		})
		metaErr = err
		return nil
	})

	g.Wait() // both goroutines swallow their own errors into partial flags; Wait only syncs completion

	partial := vecPartial || metaErr != nil

	// Phase 3: merge, deduplicating phases 1-2 by record id.
	byRecord := make(map[int64]*Candidate, len(vectorHits)+len(meta))
	for _, h := range vectorHits {
		upsertCandidate(byRecord, h.record, func(c *Candidate) { c.VectorScore = h.score })
	}
	for _, r := range meta {
		rel := relevance(q, r)
		upsertCandidate(byRecord, r, func(c *Candidate) {
			if rel > c.Relevance {
				c.Relevance = rel
			}
		})
	}

	out := make([]Candidate, 0, len(byRecord))
	for _, c := range byRecord {
		c.RequestedTags = q.Tags
		out = append(out, *c)
	}
	return out, partial
}

func upsertCandidate(byRecord map[int64]*Candidate, r *cortex.Record, apply func(*Candidate)) {
	c, ok := byRecord[r.ID]
	if !ok {
		c = &Candidate{Record: r}
		byRecord[r.ID] = c
	}
	apply(c)
}

// relevance implements spec §4.5's lexical relevance signal: 0.5 when the
// query carries no free text (nothing to penalize a candidate for), else
// 0.3 + 0.7*min(1, keywordMatches/queryWords) over query words longer than
// two characters matched against the record's summary.
func relevance(q Query, r *cortex.Record) float64 {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return 0.5
	}
	words := strings.Fields(strings.ToLower(text))
	queryWords := 0
	for _, w := range words {
		if len(w) > 2 {
			queryWords++
		}
	}
	if queryWords == 0 {
		return 0.5
	}

	lowerSummary := strings.ToLower(r.Summary)
	matches := 0
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if strings.Contains(lowerSummary, w) {
			matches++
		}
	}

	ratio := float64(matches) / float64(queryWords)
	if ratio > 1 {
		ratio = 1
	}
	return 0.3 + 0.7*ratio
}

// expandViaEntities is phase 5: for each of the top 2*limit scored
// candidates, pull the entities it mentions, and for every entity that
// co-occurs with another entity at least entityCoOccurrenceMinStrength
// times, fetch that other entity's highest-importance mentions (up to
// EntityExpansionLimit) and score them at a discount.
func (rc *Recaller) expandViaEntities(ctx context.Context, q Query, scored []Scored, seen map[int64]bool, limit int) ([]Result, bool) {
	window := scored
	if w := entityExpansionCandidateWindow * limit; len(window) > w {
		window = window[:w]
	}

	partial := false
	var out []Result

	for _, s := range window {
		mentions, err := rc.Storage.ListMentions(ctx, s.Record.ID)
		if err != nil {
			partial = true
			continue
		}

		for _, m := range mentions {
			relations, err := rc.Storage.ListEntityRelations(ctx, m.EntityID)
			if err != nil {
				partial = true
				continue
			}

			for _, rel := range relations {
				if rel.Strength < entityCoOccurrenceMinStrength {
					continue
				}
				coEntityID := rel.TargetID
				if coEntityID == m.EntityID {
					coEntityID = rel.SourceID
				}

				coMentions, err := rc.Storage.ListEntityMentions(ctx, coEntityID)
				if err != nil {
					partial = true
					continue
				}

				var candidates []*cortex.Record
				for _, cm := range coMentions {
					if seen[cm.RecordID] {
						continue
					}
					r, err := rc.Storage.GetRecord(ctx, cm.RecordID)
					if err != nil || r.Compacted {
						continue
					}
					candidates = append(candidates, r)
				}
				sortRecordsByImportanceDesc(candidates)
				if len(candidates) > EntityExpansionLimit {
					candidates = candidates[:EntityExpansionLimit]
				}

				for _, r := range candidates {
					if seen[r.ID] {
						continue
					}
					seen[r.ID] = true
					scoredHit := rc.Scoring.Score(Candidate{Record: r, Relevance: relevance(q, r), RequestedTags: q.Tags})
					out = append(out, Result{Record: r, Score: scoredHit.Score * entityExpansionScoreMultiplier})
				}
			}
		}
	}

	return out, partial
}

// expandViaGraph is phase 6: walk the bond graph from the top `limit`
// records up to MaxTraversalDepth, in TraversalPriority order, scoring each
// newly reached record with a full composite score whose GraphBoost is the
// traversed bond's strength discounted by graphBoostFalloff^depth.
func (rc *Recaller) expandViaGraph(ctx context.Context, q Query, seeds []Result, seen map[int64]bool, limit int) ([]Result, bool) {
	partial := false
	var results []Result

	type frontierEntry struct {
		id    int64
		depth int
	}
	var frontier []frontierEntry
	for _, s := range seeds {
		frontier = append(frontier, frontierEntry{id: s.Record.ID, depth: 0})
	}

	for len(frontier) > 0 && len(results) < limit*2 {
		cur := frontier[0]
		frontier = frontier[1:]
		if cur.depth >= MaxTraversalDepth {
			continue
		}
		bonds, err := rc.Storage.ListBonds(ctx, cur.id)
		if err != nil {
			partial = true
			continue
		}
		ordered := orderByPriority(bonds)
		for _, b := range ordered {
			otherID := b.TargetID
			if otherID == cur.id {
				otherID = b.SourceID
			}
			if seen[otherID] {
				continue
			}
			r, err := rc.Storage.GetRecord(ctx, otherID)
			if err != nil || r.Compacted {
				continue
			}
			depth := cur.depth + 1
			graphBoost := b.Strength * math.Pow(graphBoostFalloff, float64(depth))

			seen[otherID] = true
			scoredHit := rc.Scoring.Score(Candidate{Record: r, Relevance: relevance(q, r), RequestedTags: q.Tags, GraphBoost: graphBoost})
			results = append(results, Result{Record: r, Score: scoredHit.Score, ViaBondIDs: []int64{cur.id}})
			frontier = append(frontier, frontierEntry{id: otherID, depth: depth})
		}
	}

	return results, partial
}

func orderByPriority(bonds []*cortex.Bond) []*cortex.Bond {
	rank := make(map[cortex.BondKind]int, len(cortex.TraversalPriority))
	for i, k := range cortex.TraversalPriority {
		rank[k] = i
	}
	out := append([]*cortex.Bond(nil), bonds...)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rank[out[j].Kind] < rank[out[j-1].Kind]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// sortRecordsByImportanceDesc orders by importance descending, used to pick
// "up to 3 additional high-importance records" per co-occurring entity.
func sortRecordsByImportanceDesc(rs []*cortex.Record) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].Importance > rs[j-1].Importance; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

// sortResultsDesc orders by score descending; ties break by newer
// createdAt, then by lower id (spec §4.5).
func sortResultsDesc(xs []Result) {
	for i := 1; i < len(xs); i++ {
		for j := i; j > 0 && resultRanksAfter(xs[j-1], xs[j]); j-- {
			xs[j], xs[j-1] = xs[j-1], xs[j]
		}
	}
}

func resultRanksAfter(a, b Result) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
		return a.Record.CreatedAt.Before(b.Record.CreatedAt)
	}
	return a.Record.ID > b.Record.ID
}
