// Package sqlitestore is the SQLite-backed store.Storage implementation.
// It uses ncruces/go-sqlite3's pure-Go database/sql driver together with
// the asg017 sqlite-vec extension's vec0 virtual table for actual vector
// similarity search, rather than a brute-force scan.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	_ "github.com/ncruces/go-sqlite3/driver"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

// EmbeddingDim is the fixed dimension the vec0 virtual table is declared
// with at creation time. A record whose embedding has any other length is
// still stored by InsertRecord/UpdateRecord, but gets no vec0 entry and is
// never returned by VectorSearch; it is not rejected.
const EmbeddingDim = cortex.DefaultEmbeddingDim

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hash_id TEXT UNIQUE,
	kind TEXT NOT NULL,
	content TEXT NOT NULL,
	summary TEXT,
	tags TEXT,
	concepts TEXT,
	valence REAL DEFAULT 0,
	importance REAL DEFAULT 0.5,
	access_count INTEGER DEFAULT 0,
	source TEXT,
	source_id TEXT,
	owner_id TEXT,
	wallet_id TEXT,
	metadata TEXT,
	evidence_ids TEXT,
	commit_signature TEXT,
	compacted INTEGER DEFAULT 0,
	compacted_into TEXT,
	created_at INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL,
	decay_factor REAL DEFAULT 1.0
);
CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner_id);
CREATE INDEX IF NOT EXISTS idx_memories_kind ON memories(kind);
CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);

CREATE TABLE IF NOT EXISTS bonds (
	source_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	strength REAL NOT NULL,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (source_id, target_id, kind)
);
CREATE INDEX IF NOT EXISTS idx_bonds_source ON bonds(source_id);
CREATE INDEX IF NOT EXISTS idx_bonds_target ON bonds(target_id);

CREATE TABLE IF NOT EXISTS entities (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	normalized_name TEXT UNIQUE NOT NULL,
	aliases TEXT,
	description TEXT,
	mention_count INTEGER DEFAULT 0,
	first_seen INTEGER NOT NULL,
	last_seen INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS mentions (
	record_id INTEGER NOT NULL,
	entity_id INTEGER NOT NULL,
	salience REAL NOT NULL,
	offset_start INTEGER,
	offset_end INTEGER
);
CREATE INDEX IF NOT EXISTS idx_mentions_record ON mentions(record_id);
CREATE INDEX IF NOT EXISTS idx_mentions_entity ON mentions(entity_id);

CREATE TABLE IF NOT EXISTS entity_relations (
	source_id INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	kind TEXT NOT NULL,
	strength REAL NOT NULL,
	PRIMARY KEY (source_id, target_id, kind)
);

CREATE TABLE IF NOT EXISTS dream_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	input_memory_ids TEXT,
	output TEXT,
	new_memory_ids TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dream_logs_kind ON dream_logs(kind);
`

// Store is a SQLite-backed store.Storage. The zero value is not usable;
// construct with Open.
type Store struct {
	mu  sync.Mutex
	db  *sql.DB
	vec bool
}

// Open opens (creating if needed) a SQLite database at dsn (":memory:" is
// valid) and ensures the schema, including the vec0 virtual table, exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db}
	s.vec = s.createVecTable() == nil
	return s, nil
}

func (s *Store) createVecTable() error {
	stmt := fmt.Sprintf(
		"CREATE VIRTUAL TABLE IF NOT EXISTS vec_memories USING vec0(embedding float[%d])",
		EmbeddingDim,
	)
	_, err := s.db.Exec(stmt)
	return err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// withRetry retries a write on SQLITE_BUSY with the 100ms/400ms/1600ms
// backoff documented for this store: WAL mode still serializes writers,
// and a concurrent dream-cycle compaction can hold the write lock for a
// sizeable batch.
func withRetry(ctx context.Context, fn func() error) error {
	delays := []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) || attempt >= len(delays) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[attempt]):
		}
	}
}

func isBusy(err error) bool {
	return err != nil && strings.Contains(err.Error(), "SQLITE_BUSY")
}

func joinStrings(ss []string) string { return strings.Join(ss, ",") }

func splitStrings(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalJSON[T any](s string) T {
	var v T
	if s == "" {
		return v
	}
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var errNoRows = errors.New("sqlitestore: no rows")

var _ store.Storage = (*Store)(nil)
