// Package entityextract mines named entities out of a record's content
// through an ordered pass of patterns, weighting salience by which pass
// found the mention. It is grounded on the teacher's CandidateRegistry
// (pkg/scanner/discovery) for the stopword-filtered proper-noun pass and on
// pkg/implicit-matcher for canonicalization and Aho-Corasick lexicon
// scanning.
package entityextract

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"

	"github.com/coregx/ahocorasick"
	"github.com/orsinium-labs/stopwords"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// Candidate is one raw entity mention found in a record's content.
type Candidate struct {
	Kind        cortex.EntityKind
	Surface     string
	Normalized  string
	Salience    float64
	OffsetStart int
	OffsetEnd   int
}

var (
	handleRe = regexp.MustCompile(`@[A-Za-z0-9_]{2,32}`)
	walletRe = regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`)
	tickerRe = regexp.MustCompile(`\$[A-Z]{2,10}\b`)
)

// Extractor runs the ordered pattern passes against a record's content and
// resolves/creates entities in Storage, updating co-occurrence counters for
// every pair of entities mentioned together in the same record.
type Extractor struct {
	Storage store.Storage
	Lexicon *Lexicon

	coOccur sync.Map // coKey -> *int64
}

type coKey struct{ a, b int64 }

// Lexicon is a compiled Aho-Corasick automaton over a fixed concept
// vocabulary, used to tag EntityConcept mentions the other passes miss.
type Lexicon struct {
	ac      *ahocorasick.Automaton
	terms   []string
	termIdx map[string]int
}

// CanonicalizeForMatch normalizes text for lexicon/proper-noun matching:
// fold case, keep letters/digits/joiners, collapse everything else to a
// single space. Mirrors the teacher's shared canonicalizer so the same
// input always maps to the same key whether matched via the lexicon or the
// proper-noun pass.
func CanonicalizeForMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		c := unicode.ToLower(r)
		if c == '’' || c == '‘' {
			c = '\''
		}
		if c == '–' || c == '—' {
			c = '-'
		}
		if unicode.IsLetter(c) || unicode.IsDigit(c) || isJoiner(c) {
			b.WriteRune(c)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	out := b.String()
	return strings.TrimRight(out, " ")
}

func isJoiner(r rune) bool {
	switch r {
	case '\'', '-', '.', '_', '&':
		return true
	}
	return false
}

// NewLexicon compiles an Aho-Corasick automaton over terms, leftmost-longest
// matching so "machine learning" wins over "machine".
func NewLexicon(terms []string) (*Lexicon, error) {
	l := &Lexicon{termIdx: make(map[string]int)}
	for _, t := range terms {
		key := CanonicalizeForMatch(t)
		if key == "" {
			continue
		}
		if _, exists := l.termIdx[key]; exists {
			continue
		}
		l.termIdx[key] = len(l.terms)
		l.terms = append(l.terms, key)
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(l.terms).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	l.ac = ac
	return l, nil
}

var stopwordChecker = stopwords.MustGet("en")

// Extract runs every pattern pass against content and returns the merged
// candidate list, highest salience first per surface form.
func (e *Extractor) Extract(content string) []Candidate {
	var out []Candidate
	out = append(out, extractRegex(content, handleRe, cortex.EntityPerson, 0.9)...)
	out = append(out, extractRegex(content, walletRe, cortex.EntityWallet, 0.95)...)
	out = append(out, extractRegex(content, tickerRe, cortex.EntityToken, 0.85)...)
	out = append(out, extractProperNouns(content)...)
	if e.Lexicon != nil {
		out = append(out, e.Lexicon.scan(content)...)
	}
	return dedupe(out)
}

func extractRegex(content string, re *regexp.Regexp, kind cortex.EntityKind, salience float64) []Candidate {
	locs := re.FindAllStringIndex(content, -1)
	out := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		surface := content[loc[0]:loc[1]]
		out = append(out, Candidate{
			Kind:        kind,
			Surface:     surface,
			Normalized:  CanonicalizeForMatch(surface),
			Salience:    salience,
			OffsetStart: loc[0],
			OffsetEnd:   loc[1],
		})
	}
	return out
}

// properNounRe finds runs of capitalized words, the raw candidate source
// for the stopword-filtered pass below.
var properNounRe = regexp.MustCompile(`\b([A-Z][a-zA-Z'-]+(?:\s+[A-Z][a-zA-Z'-]+){0,3})\b`)

func extractProperNouns(content string) []Candidate {
	locs := properNounRe.FindAllStringIndex(content, -1)
	out := make([]Candidate, 0, len(locs))
	for _, loc := range locs {
		surface := content[loc[0]:loc[1]]
		norm := CanonicalizeForMatch(surface)
		if norm == "" || stopwordChecker.Contains(norm) {
			continue
		}
		kind := cortex.EntityConcept
		if !strings.Contains(norm, " ") {
			kind = cortex.EntityPerson
		}
		out = append(out, Candidate{
			Kind:        kind,
			Surface:     surface,
			Normalized:  norm,
			Salience:    0.6,
			OffsetStart: loc[0],
			OffsetEnd:   loc[1],
		})
	}
	return out
}

// Concepts returns the distinct normalized lexicon terms found in text,
// used by the ingest pipeline's deterministic concept-classification step
// independently of the full entity-extraction pass (which also runs regex
// and proper-noun passes this step has no use for).
func (l *Lexicon) Concepts(text string) []string {
	cands := l.scan(text)
	seen := make(map[string]bool, len(cands))
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		if seen[c.Normalized] {
			continue
		}
		seen[c.Normalized] = true
		out = append(out, c.Normalized)
	}
	return out
}

func (l *Lexicon) scan(content string) []Candidate {
	if l.ac == nil {
		return nil
	}
	norm := CanonicalizeForMatch(content)
	matches := l.ac.FindAllOverlapping([]byte(norm))
	out := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		if m.Start >= len(norm) || m.End > len(norm) || m.Start >= m.End {
			continue
		}
		term := norm[m.Start:m.End]
		out = append(out, Candidate{
			Kind:        cortex.EntityConcept,
			Surface:     term,
			Normalized:  term,
			Salience:    0.7,
			OffsetStart: m.Start,
			OffsetEnd:   m.End,
		})
	}
	return out
}

func dedupe(cands []Candidate) []Candidate {
	best := make(map[string]Candidate, len(cands))
	order := make([]string, 0, len(cands))
	for _, c := range cands {
		prev, ok := best[c.Normalized]
		if !ok {
			order = append(order, c.Normalized)
			best[c.Normalized] = c
			continue
		}
		if c.Salience > prev.Salience {
			best[c.Normalized] = c
		}
	}
	out := make([]Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	return out
}

// Process resolves each candidate to a stored Entity (creating it on first
// sight), records a Mention, and bumps the pairwise co-occurrence counter
// for every pair of entities found together in this record.
func (e *Extractor) Process(ctx context.Context, r *cortex.Record, cands []Candidate) ([]int64, error) {
	ids := make([]int64, 0, len(cands))
	for _, c := range cands {
		ent, err := e.Storage.GetEntityByName(ctx, c.Normalized)
		if err != nil {
			ent = &cortex.Entity{
				Kind:           c.Kind,
				CanonicalName:  c.Surface,
				NormalizedName: c.Normalized,
				FirstSeen:      r.CreatedAt,
				LastSeen:       r.CreatedAt,
			}
			id, err := e.Storage.UpsertEntity(ctx, ent)
			if err != nil {
				return nil, err
			}
			ent.ID = id
		} else if err := e.Storage.IncrementEntityMention(ctx, ent.ID, r.CreatedAt.Unix()); err != nil {
			return nil, err
		}

		if err := e.Storage.InsertMention(ctx, &cortex.Mention{
			RecordID: r.ID, EntityID: ent.ID, Salience: c.Salience,
			OffsetStart: c.OffsetStart, OffsetEnd: c.OffsetEnd,
		}); err != nil {
			return nil, err
		}
		ids = append(ids, ent.ID)
	}

	if err := e.bumpCoOccurrence(ctx, ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// CoOccurrenceRelationKind is the EntityRelation.Kind stamped on the edges
// bumpCoOccurrence persists, distinguishing them from any explicitly-linked
// relation kind a future caller might add.
const CoOccurrenceRelationKind = "co_occurs"

// bumpCoOccurrence increments the in-process counter for every pair of
// entities mentioned together in one record and persists the running count
// as a symmetric pair of EntityRelation edges, so recall's entity-expansion
// phase can query co-occurrence without depending on this Extractor's
// in-memory state surviving process restarts.
func (e *Extractor) bumpCoOccurrence(ctx context.Context, ids []int64) error {
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if a > b {
				a, b = b, a
			}
			counter, _ := e.coOccur.LoadOrStore(coKey{a, b}, new(int64))
			count := float64(atomic.AddInt64(counter.(*int64), 1))

			if e.Storage == nil {
				continue
			}
			if err := e.Storage.UpsertEntityRelation(ctx, &cortex.EntityRelation{
				SourceID: a, TargetID: b, Kind: CoOccurrenceRelationKind, Strength: count,
			}); err != nil {
				return err
			}
			if err := e.Storage.UpsertEntityRelation(ctx, &cortex.EntityRelation{
				SourceID: b, TargetID: a, Kind: CoOccurrenceRelationKind, Strength: count,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// CoOccurrenceCount returns how many records have mentioned entities a and b
// together so far.
func (e *Extractor) CoOccurrenceCount(a, b int64) int64 {
	if a > b {
		a, b = b, a
	}
	counter, ok := e.coOccur.Load(coKey{a, b})
	if !ok {
		return 0
	}
	return atomic.LoadInt64(counter.(*int64))
}
