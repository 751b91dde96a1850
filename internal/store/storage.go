// Package store defines the persistence boundary for the cortex engine and
// the two backends that satisfy it: an ephemeral in-memory map (tests, quick
// start) and a SQLite-backed store with a vec0 virtual table for genuine
// vector similarity search.
package store

import (
	"context"

	"github.com/cludeai/cortex/internal/cortex"
)

// CandidateFilter narrows queryCandidates: a record must carry at least one
// of the given tags and at least one of the given concepts, and must match
// the owner, one of the kinds, the time window and the importance floor. A
// zero value field is not applied as a filter (MinDecay excepted, below).
type CandidateFilter struct {
	OwnerID       string
	Tags          []string
	Concepts      []string
	Kinds         []cortex.Kind
	Since         int64 // unix seconds, 0 = unbounded
	MinImportance float64
	// MinDecay floors the returned records' decay factor; zero means "use
	// the documented default of 0.1" rather than "unbounded", since 0 is
	// below the engine's own decay floor and would never exclude anything.
	MinDecay float64
	Limit    int
}

// DefaultMinDecay is the decay-factor floor queryCandidates applies when a
// caller leaves CandidateFilter.MinDecay at its zero value.
const DefaultMinDecay = 0.1

// Storage is the persistence boundary every other package in the engine
// depends on through this interface, never through a concrete backend.
type Storage interface {
	// InsertRecord persists a new record and assigns its ID. It returns a
	// Conflict error (carrying the existing row's id, retrievable via
	// cortex.ExistingID) when a record with the same HashID already exists.
	InsertRecord(ctx context.Context, r *cortex.Record) (int64, error)
	UpdateRecord(ctx context.Context, r *cortex.Record) error
	GetRecord(ctx context.Context, id int64) (*cortex.Record, error)
	GetRecordByHash(ctx context.Context, hashID string) (*cortex.Record, error)
	FetchRecent(ctx context.Context, ownerID string, limit int) ([]*cortex.Record, error)
	QueryCandidates(ctx context.Context, f CandidateFilter) ([]*cortex.Record, error)
	// VectorSearch returns the topK records nearest to query by cosine/L2
	// distance over their stored embeddings, nearest first.
	VectorSearch(ctx context.Context, query []float32, topK int) ([]*cortex.Record, error)
	AllRecords(ctx context.Context, ownerID string) ([]*cortex.Record, error)

	InsertBond(ctx context.Context, b *cortex.Bond) error
	UpdateBond(ctx context.Context, b *cortex.Bond) error
	GetBond(ctx context.Context, key cortex.BondKey) (*cortex.Bond, error)
	ListBonds(ctx context.Context, recordID int64) ([]*cortex.Bond, error)
	ListAllBonds(ctx context.Context) ([]*cortex.Bond, error)

	UpsertEntity(ctx context.Context, e *cortex.Entity) (int64, error)
	GetEntityByName(ctx context.Context, normalizedName string) (*cortex.Entity, error)
	IncrementEntityMention(ctx context.Context, entityID int64, seenAt int64) error
	InsertMention(ctx context.Context, m *cortex.Mention) error
	ListMentions(ctx context.Context, recordID int64) ([]*cortex.Mention, error)
	ListEntityMentions(ctx context.Context, entityID int64) ([]*cortex.Mention, error)

	UpsertEntityRelation(ctx context.Context, rel *cortex.EntityRelation) error
	ListEntityRelations(ctx context.Context, entityID int64) ([]*cortex.EntityRelation, error)

	InsertDreamLog(ctx context.Context, d *cortex.DreamLog) (int64, error)
	ListDreamLogs(ctx context.Context, kind cortex.DreamKind, limit int) ([]*cortex.DreamLog, error)

	Close() error
}
