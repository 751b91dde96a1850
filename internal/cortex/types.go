package cortex

import (
	"time"
)

// DefaultEmbeddingDim is the fixed embedding dimension D used when a Record
// does not specify one explicitly.
const DefaultEmbeddingDim = 1024

// Kind is a memory record's category. The four kinds decay at different
// per-day rates (see decay.Rates).
type Kind string

const (
	KindEpisodic   Kind = "episodic"
	KindSemantic   Kind = "semantic"
	KindProcedural Kind = "procedural"
	KindSelfModel  Kind = "self_model"
)

func (k Kind) Valid() bool {
	switch k {
	case KindEpisodic, KindSemantic, KindProcedural, KindSelfModel:
		return true
	}
	return false
}

// BondKind is the type of a directed edge between two memory records.
type BondKind string

const (
	BondSupports    BondKind = "supports"
	BondContradicts BondKind = "contradicts"
	BondElaborates  BondKind = "elaborates"
	BondCauses      BondKind = "causes"
	BondFollows     BondKind = "follows"
	BondRelates     BondKind = "relates"
	BondResolves    BondKind = "resolves"
)

// BondBaseWeight is the base weight table from spec §3.
var BondBaseWeight = map[BondKind]float64{
	BondSupports:    0.9,
	BondContradicts: 0.6,
	BondElaborates:  0.7,
	BondCauses:      1.0,
	BondFollows:     0.3,
	BondRelates:     0.4,
	BondResolves:    0.8,
}

func (k BondKind) Valid() bool {
	_, ok := BondBaseWeight[k]
	return ok
}

// TraversalPriority orders bond kinds for recall phase 6's graph traversal:
// causes > supports > resolves > elaborates > contradicts > relates > follows.
var TraversalPriority = []BondKind{
	BondCauses, BondSupports, BondResolves, BondElaborates,
	BondContradicts, BondRelates, BondFollows,
}

// EntityKind categorizes an extracted entity.
type EntityKind string

const (
	EntityPerson   EntityKind = "person"
	EntityProject  EntityKind = "project"
	EntityConcept  EntityKind = "concept"
	EntityToken    EntityKind = "token"
	EntityWallet   EntityKind = "wallet"
	EntityLocation EntityKind = "location"
	EntityEvent    EntityKind = "event"
)

func (k EntityKind) Valid() bool {
	switch k {
	case EntityPerson, EntityProject, EntityConcept, EntityToken, EntityWallet, EntityLocation, EntityEvent:
		return true
	}
	return false
}

// DreamKind is the session kind of a dream log.
type DreamKind string

const (
	DreamConsolidation DreamKind = "consolidation"
	DreamCompaction    DreamKind = "compaction"
	DreamReflection    DreamKind = "reflection"
	DreamContradiction DreamKind = "contradiction"
	DreamEmergence     DreamKind = "emergence"
)

// Clamp01 restricts v to [0,1]. Exported for components (ingest's
// importance fallback, recall's scoring engine) that compute a value
// outside the Record type itself but still need the same clamp rule.
func Clamp01(v float64) float64 { return clamp(v, 0, 1) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Record is a durable memory record (spec §3). Field names map 1:1 to the
// conceptual `memories` table in spec §6.
type Record struct {
	ID              int64
	HashID          string
	Kind            Kind
	Content         string
	Summary         string
	Tags            []string
	Concepts        []string
	Valence         float64
	Importance      float64
	AccessCount     int64
	Source          string
	SourceID        string
	OwnerID         string
	WalletID        string
	Metadata        map[string]any
	EvidenceIDs     []string
	CommitSignature string
	Compacted       bool
	CompactedInto   string
	Embedding       []float32
	CreatedAt       time.Time
	LastAccessed    time.Time
	DecayFactor     float64
}

const (
	maxContentChars = 5000
	maxSummaryChars = 500
	maxTags         = 20
)

// ClampRanges enforces the range invariants from spec §3: importance,
// valence, and decayFactor are clamped rather than rejected. lastAccessed
// is floored at createdAt. Content/summary are truncated to their stated
// bounds (Ingestor is expected to truncate before this point too; this is
// the last-line defense for records constructed elsewhere, e.g. dream
// synthesis).
func (r *Record) ClampRanges() {
	r.Importance = clamp(r.Importance, 0, 1)
	r.Valence = clamp(r.Valence, -1, 1)
	if r.DecayFactor == 0 {
		r.DecayFactor = 1
	}
	r.DecayFactor = clamp(r.DecayFactor, 0.05, 1)
	if len(r.Content) > maxContentChars {
		r.Content = r.Content[:maxContentChars]
	}
	if len(r.Summary) > maxSummaryChars {
		r.Summary = r.Summary[:maxSummaryChars]
	}
	if len(r.Tags) > maxTags {
		r.Tags = r.Tags[:maxTags]
	}
	if r.LastAccessed.Before(r.CreatedAt) {
		r.LastAccessed = r.CreatedAt
	}
}

// Validate rejects records that cannot be clamped into a valid state:
// an empty Kind, empty content, or a dangling Compacted invariant.
func (r *Record) Validate() error {
	if r.Kind == "" || !r.Kind.Valid() {
		return ValidationError("invalid kind")
	}
	if r.Content == "" {
		return ValidationError("content must not be empty")
	}
	if r.Compacted && r.CompactedInto == "" {
		return ValidationError("compacted record must carry compactedInto")
	}
	return nil
}

// Bond is a directed, typed, weighted edge between two memory records.
type Bond struct {
	SourceID  int64
	TargetID  int64
	Kind      BondKind
	Strength  float64
	CreatedAt time.Time
}

// Key identifies the (sourceId,targetId,kind) uniqueness tuple from spec §3.
func (b Bond) Key() BondKey {
	return BondKey{SourceID: b.SourceID, TargetID: b.TargetID, Kind: b.Kind}
}

type BondKey struct {
	SourceID int64
	TargetID int64
	Kind     BondKind
}

// Entity is a canonical named thing mentioned across records.
type Entity struct {
	ID             int64
	Kind           EntityKind
	CanonicalName  string
	NormalizedName string
	Aliases        []string
	Description    string
	MentionCount   int64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// Mention links a record to an entity with a salience score and offsets.
type Mention struct {
	RecordID    int64
	EntityID    int64
	Salience    float64
	OffsetStart int
	OffsetEnd   int
}

// EntityRelation is a directed edge between two entities derived from
// co-occurrence or explicit linking.
type EntityRelation struct {
	SourceID int64
	TargetID int64
	Kind     string
	Strength float64
}

// DreamLog is an immutable record of one dream-cycle phase.
type DreamLog struct {
	ID             int64
	Kind           DreamKind
	InputMemoryIDs []int64
	Output         string
	NewMemoryIDs   []int64
	CreatedAt      time.Time
}
