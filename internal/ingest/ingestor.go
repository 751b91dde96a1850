// Package ingest implements the write path: clamp, score, embed, hash and
// store a new observation, then kick off entity extraction and linking in
// the background. Grounded on the teacher's Extractor.ProcessMessage, which
// runs the same "derive, then store" shape for observational memory.
package ingest

import (
	"context"
	"strings"
	"unicode"

	"github.com/cludeai/cortex/internal/capability"
	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/entityextract"
	"github.com/cludeai/cortex/internal/idgen"
	"github.com/cludeai/cortex/internal/store"
)

// Deterministic importance hints (spec §4.2 step 2). A LanguageModel
// capability receives the same hints a rule-based fallback would use, so
// its judgment can improve on the rule table rather than ignore it.
const (
	hintWhale            = "whale"
	hintExit             = "exit"
	hintATH              = "ath"
	hintFirstInteraction = "first_interaction"
)

// ImportanceFallback assigns an importance score from the deterministic hint
// table used whenever no LanguageModel capability is configured: starting
// from a 0.4 floor, a whale mention adds +0.3, an exit adds +0.25, an
// all-time-high adds +0.15, and a first interaction with the owner adds
// +0.1. The result is clamped to [0, 1].
func ImportanceFallback(hints []string) float64 {
	score := 0.4
	for _, h := range hints {
		switch h {
		case hintWhale:
			score += 0.3
		case hintExit:
			score += 0.25
		case hintATH:
			score += 0.15
		case hintFirstInteraction:
			score += 0.1
		}
	}
	return cortex.Clamp01(score)
}

// deriveContentHints scans content for the whale/exit/ath signal words,
// matching whole words only so "bath" does not trip the "ath" hint.
func deriveContentHints(content string) []string {
	words := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	present := make(map[string]bool, len(words))
	for _, w := range words {
		present[w] = true
	}
	var hints []string
	if present[hintWhale] {
		hints = append(hints, hintWhale)
	}
	if present[hintExit] {
		hints = append(hints, hintExit)
	}
	if present[hintATH] {
		hints = append(hints, hintATH)
	}
	return hints
}

// AfterStore is called once a record is durably stored, outside the request
// path, so entity extraction / linking / dream-trigger bookkeeping never add
// latency to an ingest call. Ingestor.Store launches it in its own goroutine.
type AfterStore func(ctx context.Context, r *cortex.Record)

// Ingestor runs the store pipeline: clamp, score, embed, hash/dedupe,
// classify concepts, persist, then hand off to AfterStore hooks.
type Ingestor struct {
	Storage    store.Storage
	Embedder   *capability.Embedder
	LLM        capability.LanguageModel
	CommitSink capability.CommitSink
	Lexicon    *entityextract.Lexicon
	Clock      capability.Clock
	Events     capability.EventSink
	AfterStore []AfterStore
}

// Input is the caller-supplied shape of a new observation; everything else
// on Record is derived.
type Input struct {
	Kind     cortex.Kind
	Content  string
	Summary  string
	Tags     []string
	Concepts []string
	Source   string
	SourceID string
	OwnerID  string
	WalletID string
	Metadata map[string]any
}

// Store validates, enriches, and persists one new observation. A duplicate
// (same content-hash) observation is not an error: the existing record is
// returned unchanged, matching the "store is idempotent under identical
// content" contract.
func (ig *Ingestor) Store(ctx context.Context, in Input) (*cortex.Record, error) {
	if in.Content == "" {
		return nil, cortex.ValidationError("content must not be empty")
	}
	if in.Kind == "" {
		in.Kind = cortex.KindEpisodic
	}

	now := ig.Clock.Now()
	summary := in.Summary
	if summary == "" {
		summary = summarize(in.Content)
	}

	r := &cortex.Record{
		Kind:         in.Kind,
		Content:      in.Content,
		Summary:      summary,
		Tags:         in.Tags,
		Concepts:     in.Concepts,
		Source:       in.Source,
		SourceID:     in.SourceID,
		OwnerID:      in.OwnerID,
		WalletID:     in.WalletID,
		Metadata:     in.Metadata,
		Importance:   0.5,
		CreatedAt:    now,
		LastAccessed: now,
		DecayFactor:  1,
	}
	r.ClampRanges()
	if err := r.Validate(); err != nil {
		return nil, err
	}

	firstInteraction := false
	if in.OwnerID != "" {
		if recent, err := ig.Storage.FetchRecent(ctx, in.OwnerID, 1); err == nil && len(recent) == 0 {
			firstInteraction = true
		}
	}
	r.Importance = ig.scoreImportance(ctx, r, firstInteraction)

	if ig.Embedder != nil {
		emb, err := ig.Embedder.Embed(ctx, r.Content)
		if err != nil {
			return nil, cortex.CapabilityUnavailableError("embed: " + err.Error())
		}
		r.Embedding = emb
	}

	r.HashID = idgen.RecordHash(string(r.Kind), r.Summary, r.CreatedAt)

	if ig.CommitSink != nil {
		if sig, err := ig.CommitSink.Signature(ctx); err == nil {
			r.CommitSignature = sig
		}
	}

	if ig.Lexicon != nil {
		scanned := strings.Join([]string{r.Summary, r.Source, strings.Join(r.Tags, " ")}, " ")
		r.Concepts = mergeConcepts(r.Concepts, ig.Lexicon.Concepts(scanned))
	}

	id, err := ig.Storage.InsertRecord(ctx, r)
	if err != nil {
		if existingID, ok := cortex.ExistingID(err); ok {
			existing, getErr := ig.Storage.GetRecord(ctx, existingID)
			if getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	r.ID = id

	ig.publish(ctx, "memory.stored", map[string]any{"id": r.ID, "hashId": r.HashID})

	for _, hook := range ig.AfterStore {
		hook := hook
		rc := *r
		go hook(context.WithoutCancel(ctx), &rc)
	}

	return r, nil
}

func (ig *Ingestor) scoreImportance(ctx context.Context, r *cortex.Record, firstInteraction bool) float64 {
	hints := deriveContentHints(r.Content)
	if firstInteraction {
		hints = append(hints, hintFirstInteraction)
	}
	if ig.LLM != nil {
		if score, err := ig.LLM.ScoreImportance(ctx, r.Summary, hints); err == nil {
			return cortex.Clamp01(score)
		}
	}
	return ImportanceFallback(hints)
}

// mergeConcepts appends found onto existing, preserving order and dropping
// duplicates, so caller-supplied concepts always win ties over lexicon
// matches of the same term.
func mergeConcepts(existing, found []string) []string {
	seen := make(map[string]bool, len(existing)+len(found))
	out := make([]string, 0, len(existing)+len(found))
	for _, c := range existing {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	for _, c := range found {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

func (ig *Ingestor) publish(ctx context.Context, kind string, data map[string]any) {
	if ig.Events == nil {
		return
	}
	ig.Events.Publish(ctx, capability.Event{Kind: kind, Data: data})
}

func summarize(content string) string {
	const max = 160
	trimmed := strings.TrimSpace(content)
	if len(trimmed) <= max {
		return trimmed
	}
	cut := trimmed[:max]
	if i := strings.LastIndex(cut, " "); i > max/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
