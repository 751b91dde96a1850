package dream

import (
	"context"
	"fmt"
	"strings"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// consolidate is Phase 1. It clusters the last ConsolidationWindow of
// episodic records by dominant concept/tag, and for every cluster with at
// least minClusterSize members synthesizes an evidence-linked semantic
// record bonded back to each member with "supports".
func (e *Engine) consolidate(ctx context.Context) ([]int64, error) {
	cutoff := e.now().Add(-ConsolidationWindow)
	records, err := e.Storage.QueryCandidates(ctx, store.CandidateFilter{
		Kinds: []cortex.Kind{cortex.KindEpisodic},
		Since: cutoff.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("consolidate: query candidates: %w", err)
	}

	var newIDs []int64
	for concept, members := range groupByDominantConcept(records) {
		if len(members) < minClusterSize {
			continue
		}
		text, err := e.LLM.Synthesize(ctx, consolidationPrompt(concept, members))
		if err != nil {
			e.logger().Warn("dream: consolidation synthesize failed", "concept", concept, "error", err)
			continue
		}

		rec, err := e.store(ctx, synthesized{
			Kind:        cortex.KindSemantic,
			Content:     text,
			Summary:     truncateSummary(text),
			Concepts:    []string{concept},
			EvidenceIDs: hashIDs(members),
			Importance:  0.6,
		})
		if err != nil {
			e.logger().Warn("dream: consolidation store failed", "concept", concept, "error", err)
			continue
		}

		for _, m := range members {
			if err := e.bond(ctx, rec.ID, m.ID, cortex.BondSupports); err != nil {
				e.logger().Warn("dream: consolidation bond failed", "from", rec.ID, "to", m.ID, "error", err)
			}
		}
		e.log(ctx, cortex.DreamConsolidation, recordIDs(members), text, []int64{rec.ID})
		newIDs = append(newIDs, rec.ID)
	}
	return newIDs, nil
}

func consolidationPrompt(concept string, members []*cortex.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "These episodic memories share the concept %q. Pose and answer the single most important focal-point question they raise together, as one concise paragraph:\n\n", concept)
	for _, m := range members {
		fmt.Fprintf(&sb, "- %s\n", m.Summary)
	}
	return sb.String()
}

// compact is Phase 2. It selects faded, never-important episodic records
// older than CompactionAge, groups them by dominant concept, and replaces
// each group with one semantic summary: originals are marked compacted and
// elaborate into the summary.
func (e *Engine) compact(ctx context.Context) ([]int64, error) {
	cutoff := e.now().Add(-CompactionAge)
	all, err := e.Storage.AllRecords(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("compact: all records: %w", err)
	}

	var eligible []*cortex.Record
	for _, r := range all {
		if r.Kind != cortex.KindEpisodic || r.Compacted {
			continue
		}
		if !r.CreatedAt.Before(cutoff) {
			continue
		}
		if r.DecayFactor >= CompactionDecayCeiling || r.Importance >= CompactionImportanceCeiling {
			continue
		}
		eligible = append(eligible, r)
	}

	var newIDs []int64
	for concept, group := range groupByDominantConcept(eligible) {
		text, err := e.LLM.Synthesize(ctx, compactionPrompt(concept, group))
		if err != nil {
			e.logger().Warn("dream: compaction synthesize failed", "concept", concept, "error", err)
			continue
		}

		summary, err := e.store(ctx, synthesized{
			Kind:        cortex.KindSemantic,
			Content:     text,
			Summary:     truncateSummary(text),
			Concepts:    []string{concept},
			EvidenceIDs: hashIDs(group),
			Importance:  0.4,
		})
		if err != nil {
			e.logger().Warn("dream: compaction store failed", "concept", concept, "error", err)
			continue
		}

		for _, m := range group {
			m.Compacted = true
			m.CompactedInto = summary.HashID
			if err := e.Storage.UpdateRecord(ctx, m); err != nil {
				e.logger().Warn("dream: compaction mark failed", "record", m.ID, "error", err)
				continue
			}
			if err := e.bond(ctx, m.ID, summary.ID, cortex.BondElaborates); err != nil {
				e.logger().Warn("dream: compaction bond failed", "from", m.ID, "to", summary.ID, "error", err)
			}
		}
		e.log(ctx, cortex.DreamCompaction, recordIDs(group), text, []int64{summary.ID})
		newIDs = append(newIDs, summary.ID)
	}
	return newIDs, nil
}

func compactionPrompt(concept string, group []*cortex.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Synthesize one short semantic summary capturing what all of these faded memories about %q established:\n\n", concept)
	for _, m := range group {
		fmt.Fprintf(&sb, "- %s\n", m.Summary)
	}
	return sb.String()
}

// reflect is Phase 3. It loads the current self-model plus recent semantic
// records and asks the LLM for 1-3 self-observations, each stored as its own
// self_model record with a "supports" bond to every record it cites.
func (e *Engine) reflect(ctx context.Context) ([]int64, error) {
	selfModel, err := e.Storage.QueryCandidates(ctx, store.CandidateFilter{Kinds: []cortex.Kind{cortex.KindSelfModel}})
	if err != nil {
		return nil, fmt.Errorf("reflect: query self_model: %w", err)
	}
	cutoff := e.now().Add(-ConsolidationWindow)
	semantic, err := e.Storage.QueryCandidates(ctx, store.CandidateFilter{
		Kinds: []cortex.Kind{cortex.KindSemantic},
		Since: cutoff.Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("reflect: query semantic: %w", err)
	}

	basis := append(append([]*cortex.Record{}, selfModel...), semantic...)
	if len(basis) == 0 {
		return nil, nil
	}

	text, err := e.LLM.Synthesize(ctx, reflectionPrompt(basis))
	if err != nil {
		return nil, fmt.Errorf("reflect: synthesize: %w", err)
	}

	observations := splitObservations(text, 3)
	var newIDs []int64
	for _, obs := range observations {
		rec, err := e.store(ctx, synthesized{
			Kind:        cortex.KindSelfModel,
			Content:     obs,
			Summary:     truncateSummary(obs),
			Tags:        []string{"reflection"},
			EvidenceIDs: hashIDs(basis),
			Importance:  0.55,
		})
		if err != nil {
			e.logger().Warn("dream: reflection store failed", "error", err)
			continue
		}
		for _, b := range basis {
			if err := e.bond(ctx, rec.ID, b.ID, cortex.BondSupports); err != nil {
				e.logger().Warn("dream: reflection bond failed", "from", rec.ID, "to", b.ID, "error", err)
			}
		}
		newIDs = append(newIDs, rec.ID)
	}
	e.log(ctx, cortex.DreamReflection, recordIDs(basis), text, newIDs)
	return newIDs, nil
}

func reflectionPrompt(basis []*cortex.Record) string {
	var sb strings.Builder
	sb.WriteString("Based on the self-model and recent semantic memory below, state 1 to 3 short self-observations, one per line:\n\n")
	for _, r := range basis {
		fmt.Fprintf(&sb, "- %s\n", r.Summary)
	}
	return sb.String()
}

func splitObservations(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 && strings.TrimSpace(text) != "" {
		out = []string{strings.TrimSpace(text)}
	}
	return out
}

// resolveContradictions is Phase 4. It enumerates unresolved "contradicts"
// bonds, asks the LLM to reconcile each pair, stores the reconciled belief
// with "resolves" bonds to both originals, and halves the decay factor of
// the weaker of the two (lower importance; the older one if tied).
func (e *Engine) resolveContradictions(ctx context.Context) ([]int64, error) {
	bonds, err := e.Storage.ListAllBonds(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolveContradictions: list bonds: %w", err)
	}

	resolved := make(map[int64]bool)
	for _, b := range bonds {
		if b.Kind == cortex.BondResolves {
			resolved[b.TargetID] = true
		}
	}

	var newIDs []int64
	for _, b := range bonds {
		if b.Kind != cortex.BondContradicts {
			continue
		}
		if resolved[b.SourceID] || resolved[b.TargetID] {
			continue
		}

		a, err := e.Storage.GetRecord(ctx, b.SourceID)
		if err != nil {
			continue
		}
		c, err := e.Storage.GetRecord(ctx, b.TargetID)
		if err != nil {
			continue
		}

		text, err := e.LLM.Synthesize(ctx, reconcilePrompt(a, c))
		if err != nil {
			e.logger().Warn("dream: reconcile synthesize failed", "a", a.ID, "b", c.ID, "error", err)
			continue
		}

		reconciled, err := e.store(ctx, synthesized{
			Kind:        cortex.KindSemantic,
			Content:     text,
			Summary:     truncateSummary(text),
			EvidenceIDs: []string{a.HashID, c.HashID},
			Importance:  0.65,
		})
		if err != nil {
			e.logger().Warn("dream: reconcile store failed", "error", err)
			continue
		}

		if err := e.bond(ctx, reconciled.ID, a.ID, cortex.BondResolves); err != nil {
			e.logger().Warn("dream: reconcile bond failed", "from", reconciled.ID, "to", a.ID, "error", err)
		}
		if err := e.bond(ctx, reconciled.ID, c.ID, cortex.BondResolves); err != nil {
			e.logger().Warn("dream: reconcile bond failed", "from", reconciled.ID, "to", c.ID, "error", err)
		}

		weaker := weakerOf(a, c)
		weaker.DecayFactor = cortex.Clamp01(weaker.DecayFactor * 0.5)
		if weaker.DecayFactor < 0.05 {
			weaker.DecayFactor = 0.05
		}
		if err := e.Storage.UpdateRecord(ctx, weaker); err != nil {
			e.logger().Warn("dream: reconcile weaker update failed", "record", weaker.ID, "error", err)
		}

		resolved[a.ID] = true
		resolved[c.ID] = true
		e.log(ctx, cortex.DreamContradiction, []int64{a.ID, c.ID}, text, []int64{reconciled.ID})
		newIDs = append(newIDs, reconciled.ID)
	}
	return newIDs, nil
}

func reconcilePrompt(a, c *cortex.Record) string {
	return fmt.Sprintf("These two memories contradict each other. Reconcile them into one short, consistent belief:\n\nA: %s\nB: %s\n", a.Summary, c.Summary)
}

func weakerOf(a, c *cortex.Record) *cortex.Record {
	if a.Importance != c.Importance {
		if a.Importance < c.Importance {
			return a
		}
		return c
	}
	if a.CreatedAt.Before(c.CreatedAt) {
		return a
	}
	return c
}

// runEmergence is Phase 5. It asks the LLM for an introspective synthesis
// over everything phases 1-4 produced this cycle, stores the result as a
// self_model record tagged "emergence", and invokes the optional
// OnEmergence callback — whose panics/errors must never propagate.
func (e *Engine) runEmergence(ctx context.Context) bool {
	e.mu.Lock()
	e.state = StateEmergence
	producedIDs := append([]int64(nil), e.newRecordsTotal...)
	e.mu.Unlock()

	if e.LLM == nil || len(producedIDs) == 0 {
		return false
	}

	var produced []*cortex.Record
	for _, id := range producedIDs {
		r, err := e.Storage.GetRecord(ctx, id)
		if err == nil {
			produced = append(produced, r)
		}
	}
	if len(produced) == 0 {
		return false
	}

	text, err := e.LLM.Synthesize(ctx, emergencePrompt(produced))
	if err != nil {
		e.logger().Warn("dream: emergence synthesize failed", "error", err)
		return false
	}

	rec, err := e.store(ctx, synthesized{
		Kind:       cortex.KindSelfModel,
		Content:    text,
		Summary:    truncateSummary(text),
		Tags:       []string{"emergence"},
		Importance: 0.7,
	})
	if err != nil {
		e.logger().Warn("dream: emergence store failed", "error", err)
		return false
	}

	e.log(ctx, cortex.DreamEmergence, producedIDs, text, []int64{rec.ID})
	e.publish(ctx, string(StateEmergence), []int64{rec.ID})

	if e.OnEmergence != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger().Warn("dream: onEmergence callback panicked", "recover", r)
				}
			}()
			e.OnEmergence(text)
		}()
	}
	return true
}

func emergencePrompt(produced []*cortex.Record) string {
	var sb strings.Builder
	sb.WriteString("Reflect on what this dream cycle produced and write one short introspective synthesis:\n\n")
	for _, r := range produced {
		fmt.Fprintf(&sb, "- %s\n", r.Summary)
	}
	return sb.String()
}

func truncateSummary(text string) string {
	const max = 280
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= max {
		return trimmed
	}
	cut := trimmed[:max]
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "..."
}

func hashIDs(records []*cortex.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.HashID)
	}
	return out
}

func recordIDs(records []*cortex.Record) []int64 {
	out := make([]int64, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
