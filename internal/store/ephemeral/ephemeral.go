// Package ephemeral is a mutex-guarded in-memory Storage backend. It exists
// for deterministic unit tests and for callers that want Cortex without a
// SQLite file; it implements the full store.Storage contract, including a
// brute-force VectorSearch, so tests exercise the same code paths recall
// runs against the real backend.
package ephemeral

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

type Store struct {
	mu sync.RWMutex

	nextRecordID int64
	records      map[int64]*cortex.Record
	byHash       map[string]int64

	bonds map[cortex.BondKey]*cortex.Bond

	nextEntityID int64
	entities     map[int64]*cortex.Entity
	byNormName   map[string]int64

	mentions  []*cortex.Mention
	relations map[int64][]*cortex.EntityRelation

	nextDreamID int64
	dreamLogs   []*cortex.DreamLog
}

func New() *Store {
	return &Store{
		records:    make(map[int64]*cortex.Record),
		byHash:     make(map[string]int64),
		bonds:      make(map[cortex.BondKey]*cortex.Bond),
		entities:   make(map[int64]*cortex.Entity),
		byNormName: make(map[string]int64),
		relations:  make(map[int64][]*cortex.EntityRelation),
	}
}

func (s *Store) Close() error { return nil }

func clone(r *cortex.Record) *cortex.Record {
	cp := *r
	cp.Tags = append([]string(nil), r.Tags...)
	cp.Concepts = append([]string(nil), r.Concepts...)
	cp.EvidenceIDs = append([]string(nil), r.EvidenceIDs...)
	cp.Embedding = append([]float32(nil), r.Embedding...)
	return &cp
}

func (s *Store) InsertRecord(ctx context.Context, r *cortex.Record) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.byHash[r.HashID]; ok && r.HashID != "" {
		return 0, cortex.ErrWithExistingID("record with this hash already exists", existing)
	}
	s.nextRecordID++
	id := s.nextRecordID
	r.ID = id
	s.records[id] = clone(r)
	if r.HashID != "" {
		s.byHash[r.HashID] = id
	}
	return id, nil
}

func (s *Store) UpdateRecord(ctx context.Context, r *cortex.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[r.ID]; !ok {
		return cortex.NotFoundError("record not found")
	}
	s.records[r.ID] = clone(r)
	return nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*cortex.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, cortex.NotFoundError("record not found")
	}
	return clone(r), nil
}

func (s *Store) GetRecordByHash(ctx context.Context, hashID string) (*cortex.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hashID]
	if !ok {
		return nil, cortex.NotFoundError("record not found")
	}
	return clone(s.records[id]), nil
}

func (s *Store) FetchRecent(ctx context.Context, ownerID string, limit int) ([]*cortex.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.Record
	for _, r := range s.records {
		if ownerID != "" && r.OwnerID != ownerID {
			continue
		}
		out = append(out, clone(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matchesFilter(r *cortex.Record, f store.CandidateFilter) bool {
	// A compacted record retains its id and content but MUST NOT be
	// returned by default recall (spec §3).
	if r.Compacted {
		return false
	}
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.Since > 0 && r.CreatedAt.Unix() < f.Since {
		return false
	}
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if r.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Tags) > 0 && !anyStringOverlap(r.Tags, f.Tags) {
		return false
	}
	if len(f.Concepts) > 0 && !anyStringOverlap(r.Concepts, f.Concepts) {
		return false
	}
	if r.Importance < f.MinImportance {
		return false
	}
	minDecay := f.MinDecay
	if minDecay <= 0 {
		minDecay = store.DefaultMinDecay
	}
	if r.DecayFactor < minDecay {
		return false
	}
	return true
}

func anyStringOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, y := range b {
		if _, ok := set[y]; ok {
			return true
		}
	}
	return false
}

func (s *Store) QueryCandidates(ctx context.Context, f store.CandidateFilter) ([]*cortex.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.Record
	for _, r := range s.records {
		if matchesFilter(r, f) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance != out[j].Importance {
			return out[i].Importance > out[j].Importance
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
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

// VectorSearch does a brute-force scan; fine for the record counts an
// ephemeral/test store deals with, and it exercises the exact ranking
// contract sqlitestore's vec0 query must also honor.
func (s *Store) VectorSearch(ctx context.Context, query []float32, topK int) ([]*cortex.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	type scored struct {
		r *cortex.Record
		d float64
	}
	var all []scored
	for _, r := range s.records {
		if len(r.Embedding) == 0 || r.Compacted {
			continue
		}
		all = append(all, scored{r, cosine(query, r.Embedding)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].d > all[j].d })
	if topK > 0 && len(all) > topK {
		all = all[:topK]
	}
	out := make([]*cortex.Record, len(all))
	for i, sc := range all {
		out[i] = clone(sc.r)
	}
	return out, nil
}

func (s *Store) AllRecords(ctx context.Context, ownerID string) ([]*cortex.Record, error) {
	return s.FetchRecent(ctx, ownerID, 0)
}

func (s *Store) InsertBond(ctx context.Context, b *cortex.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := b.Key()
	if _, ok := s.bonds[k]; ok {
		return cortex.ConflictError("bond already exists", nil)
	}
	cp := *b
	s.bonds[k] = &cp
	return nil
}

func (s *Store) UpdateBond(ctx context.Context, b *cortex.Bond) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := b.Key()
	if _, ok := s.bonds[k]; !ok {
		return cortex.NotFoundError("bond not found")
	}
	cp := *b
	s.bonds[k] = &cp
	return nil
}

func (s *Store) GetBond(ctx context.Context, key cortex.BondKey) (*cortex.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bonds[key]
	if !ok {
		return nil, cortex.NotFoundError("bond not found")
	}
	cp := *b
	return &cp, nil
}

func (s *Store) ListBonds(ctx context.Context, recordID int64) ([]*cortex.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.Bond
	for _, b := range s.bonds {
		if b.SourceID == recordID || b.TargetID == recordID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListAllBonds(ctx context.Context) ([]*cortex.Bond, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*cortex.Bond, 0, len(s.bonds))
	for _, b := range s.bonds {
		cp := *b
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) UpsertEntity(ctx context.Context, e *cortex.Entity) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byNormName[e.NormalizedName]; ok {
		e.ID = id
		s.entities[id] = cloneEntity(e)
		return id, nil
	}
	s.nextEntityID++
	id := s.nextEntityID
	e.ID = id
	s.entities[id] = cloneEntity(e)
	s.byNormName[e.NormalizedName] = id
	return id, nil
}

func cloneEntity(e *cortex.Entity) *cortex.Entity {
	cp := *e
	cp.Aliases = append([]string(nil), e.Aliases...)
	return &cp
}

func (s *Store) GetEntityByName(ctx context.Context, normalizedName string) (*cortex.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byNormName[normalizedName]
	if !ok {
		return nil, cortex.NotFoundError("entity not found")
	}
	return cloneEntity(s.entities[id]), nil
}

func (s *Store) IncrementEntityMention(ctx context.Context, entityID int64, seenAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return cortex.NotFoundError("entity not found")
	}
	e.MentionCount++
	if seenAt > e.LastSeen.Unix() {
		e.LastSeen = unixTime(seenAt)
	}
	return nil
}

func (s *Store) InsertMention(ctx context.Context, m *cortex.Mention) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	s.mentions = append(s.mentions, &cp)
	return nil
}

func (s *Store) ListMentions(ctx context.Context, recordID int64) ([]*cortex.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.Mention
	for _, m := range s.mentions {
		if m.RecordID == recordID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) ListEntityMentions(ctx context.Context, entityID int64) ([]*cortex.Mention, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.Mention
	for _, m := range s.mentions {
		if m.EntityID == entityID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) UpsertEntityRelation(ctx context.Context, rel *cortex.EntityRelation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.relations[rel.SourceID]
	for _, r := range list {
		if r.TargetID == rel.TargetID && r.Kind == rel.Kind {
			r.Strength = rel.Strength
			return nil
		}
	}
	cp := *rel
	s.relations[rel.SourceID] = append(list, &cp)
	return nil
}

func (s *Store) ListEntityRelations(ctx context.Context, entityID int64) ([]*cortex.EntityRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]*cortex.EntityRelation(nil), s.relations[entityID]...)
	return out, nil
}

func (s *Store) InsertDreamLog(ctx context.Context, d *cortex.DreamLog) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextDreamID++
	d.ID = s.nextDreamID
	cp := *d
	s.dreamLogs = append(s.dreamLogs, &cp)
	return d.ID, nil
}

func (s *Store) ListDreamLogs(ctx context.Context, kind cortex.DreamKind, limit int) ([]*cortex.DreamLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*cortex.DreamLog
	for i := len(s.dreamLogs) - 1; i >= 0; i-- {
		d := s.dreamLogs[i]
		if kind != "" && d.Kind != kind {
			continue
		}
		cp := *d
		out = append(out, &cp)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

var _ store.Storage = (*Store)(nil)
