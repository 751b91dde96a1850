package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
	"github.com/cludeai/cortex/internal/store"
)

func (s *Store) InsertRecord(ctx context.Context, r *cortex.Record) (int64, error) {
	var id int64
	err := withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO memories (hash_id, kind, content, summary, tags, concepts, valence,
				importance, access_count, source, source_id, owner_id, wallet_id, metadata,
				evidence_ids, commit_signature, compacted, compacted_into, created_at,
				last_accessed, decay_factor)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`, r.HashID, string(r.Kind), r.Content, r.Summary, joinStrings(r.Tags), joinStrings(r.Concepts),
			r.Valence, r.Importance, r.AccessCount, r.Source, r.SourceID, r.OwnerID, r.WalletID,
			marshalJSON(r.Metadata), joinStrings(r.EvidenceIDs), r.CommitSignature,
			boolToInt(r.Compacted), r.CompactedInto, r.CreatedAt.Unix(), r.LastAccessed.Unix(), r.DecayFactor)
		if err != nil {
			if existingID, ok := s.existingIDForHash(ctx, r.HashID); ok {
				return cortex.ErrWithExistingID("record with this hash already exists", existingID)
			}
			return fmt.Errorf("insert record: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return err
		}
		if len(r.Embedding) == EmbeddingDim && s.vec {
			if _, err := s.db.ExecContext(ctx,
				"INSERT INTO vec_memories(rowid, embedding) VALUES (?, ?)", id, encodeVector(r.Embedding)); err != nil {
				return fmt.Errorf("insert vector: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	r.ID = id
	return id, nil
}

func (s *Store) existingIDForHash(ctx context.Context, hashID string) (int64, bool) {
	if hashID == "" {
		return 0, false
	}
	var id int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM memories WHERE hash_id = ?", hashID).Scan(&id)
	return id, err == nil
}

func (s *Store) UpdateRecord(ctx context.Context, r *cortex.Record) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx, `
			UPDATE memories SET kind=?, content=?, summary=?, tags=?, concepts=?, valence=?,
				importance=?, access_count=?, source=?, source_id=?, owner_id=?, wallet_id=?,
				metadata=?, evidence_ids=?, commit_signature=?, compacted=?, compacted_into=?,
				last_accessed=?, decay_factor=?
			WHERE id=?
		`, string(r.Kind), r.Content, r.Summary, joinStrings(r.Tags), joinStrings(r.Concepts),
			r.Valence, r.Importance, r.AccessCount, r.Source, r.SourceID, r.OwnerID, r.WalletID,
			marshalJSON(r.Metadata), joinStrings(r.EvidenceIDs), r.CommitSignature,
			boolToInt(r.Compacted), r.CompactedInto, r.LastAccessed.Unix(), r.DecayFactor, r.ID)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return cortex.NotFoundError("record not found")
		}
		if len(r.Embedding) == EmbeddingDim && s.vec {
			if _, err := s.db.ExecContext(ctx,
				"INSERT OR REPLACE INTO vec_memories(rowid, embedding) VALUES (?, ?)", r.ID, encodeVector(r.Embedding)); err != nil {
				return fmt.Errorf("update vector: %w", err)
			}
		}
		return nil
	})
}

const recordColumns = `id, hash_id, kind, content, summary, tags, concepts, valence, importance,
	access_count, source, source_id, owner_id, wallet_id, metadata, evidence_ids,
	commit_signature, compacted, compacted_into, created_at, last_accessed, decay_factor`

func scanRecord(row interface{ Scan(...any) error }) (*cortex.Record, error) {
	var r cortex.Record
	var hashID, kind, summary, tags, concepts, source, sourceID, ownerID, walletID sql.NullString
	var metadata, evidenceIDs, commitSig, compactedInto sql.NullString
	var compacted int
	var createdAt, lastAccessed int64
	err := row.Scan(&r.ID, &hashID, &kind, &r.Content, &summary, &tags, &concepts, &r.Valence,
		&r.Importance, &r.AccessCount, &source, &sourceID, &ownerID, &walletID, &metadata,
		&evidenceIDs, &commitSig, &compacted, &compactedInto, &createdAt, &lastAccessed, &r.DecayFactor)
	if err != nil {
		return nil, err
	}
	r.HashID = hashID.String
	r.Kind = cortex.Kind(kind.String)
	r.Summary = summary.String
	r.Tags = splitStrings(tags.String)
	r.Concepts = splitStrings(concepts.String)
	r.Source = source.String
	r.SourceID = sourceID.String
	r.OwnerID = ownerID.String
	r.WalletID = walletID.String
	r.Metadata = unmarshalJSON[map[string]any](metadata.String)
	r.EvidenceIDs = splitStrings(evidenceIDs.String)
	r.CommitSignature = commitSig.String
	r.Compacted = compacted != 0
	r.CompactedInto = compactedInto.String
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.LastAccessed = time.Unix(lastAccessed, 0).UTC()
	return &r, nil
}

func (s *Store) GetRecord(ctx context.Context, id int64) (*cortex.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM memories WHERE id = ?", id)
	r, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cortex.NotFoundError("record not found")
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) GetRecordByHash(ctx context.Context, hashID string) (*cortex.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, "SELECT "+recordColumns+" FROM memories WHERE hash_id = ?", hashID)
	r, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cortex.NotFoundError("record not found")
		}
		return nil, err
	}
	return r, nil
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*cortex.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) FetchRecent(ctx context.Context, ownerID string, limit int) ([]*cortex.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	if ownerID == "" {
		return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM memories ORDER BY created_at DESC LIMIT ?", limit)
	}
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM memories WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?", ownerID, limit)
}

func (s *Store) AllRecords(ctx context.Context, ownerID string) ([]*cortex.Record, error) {
	if ownerID == "" {
		return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM memories ORDER BY created_at DESC")
	}
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM memories WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
}

func (s *Store) QueryCandidates(ctx context.Context, f store.CandidateFilter) ([]*cortex.Record, error) {
	// A compacted record retains its id and content but MUST NOT be
	// returned by default recall (spec §3).
	where := "WHERE compacted = 0"
	var args []any
	if f.OwnerID != "" {
		where += " AND owner_id = ?"
		args = append(args, f.OwnerID)
	}
	if f.Since > 0 {
		where += " AND created_at >= ?"
		args = append(args, f.Since)
	}
	if len(f.Kinds) > 0 {
		where += " AND kind IN (" + placeholders(len(f.Kinds)) + ")"
		for _, k := range f.Kinds {
			args = append(args, string(k))
		}
	}
	for _, set := range []struct {
		column string
		values []string
	}{{"tags", f.Tags}, {"concepts", f.Concepts}} {
		if len(set.values) == 0 {
			continue
		}
		conds := make([]string, len(set.values))
		for i, v := range set.values {
			conds[i] = "(',' || " + set.column + " || ',') LIKE ?"
			args = append(args, "%,"+v+",%")
		}
		where += " AND (" + strings.Join(conds, " OR ") + ")"
	}
	if f.MinImportance > 0 {
		where += " AND importance >= ?"
		args = append(args, f.MinImportance)
	}
	minDecay := f.MinDecay
	if minDecay <= 0 {
		minDecay = store.DefaultMinDecay
	}
	where += " AND decay_factor >= ?"
	args = append(args, minDecay)

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)
	return s.queryRecords(ctx, "SELECT "+recordColumns+" FROM memories "+where+
		" ORDER BY importance DESC, created_at DESC LIMIT ?", args...)
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
