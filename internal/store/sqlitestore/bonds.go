package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
)

func (s *Store) InsertBond(ctx context.Context, b *cortex.Bond) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO bonds (source_id, target_id, kind, strength, created_at) VALUES (?,?,?,?,?)",
			b.SourceID, b.TargetID, string(b.Kind), b.Strength, b.CreatedAt.Unix())
		if err != nil {
			return cortex.ConflictError("bond already exists", err)
		}
		return nil
	})
}

func (s *Store) UpdateBond(ctx context.Context, b *cortex.Bond) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx,
			"UPDATE bonds SET strength = ? WHERE source_id = ? AND target_id = ? AND kind = ?",
			b.Strength, b.SourceID, b.TargetID, string(b.Kind))
		if err != nil {
			return fmt.Errorf("update bond: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return cortex.NotFoundError("bond not found")
		}
		return nil
	})
}

func scanBond(row interface{ Scan(...any) error }) (*cortex.Bond, error) {
	var b cortex.Bond
	var kind string
	var createdAt int64
	if err := row.Scan(&b.SourceID, &b.TargetID, &kind, &b.Strength, &createdAt); err != nil {
		return nil, err
	}
	b.Kind = cortex.BondKind(kind)
	b.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &b, nil
}

func (s *Store) GetBond(ctx context.Context, key cortex.BondKey) (*cortex.Bond, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx,
		"SELECT source_id, target_id, kind, strength, created_at FROM bonds WHERE source_id=? AND target_id=? AND kind=?",
		key.SourceID, key.TargetID, string(key.Kind))
	b, err := scanBond(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cortex.NotFoundError("bond not found")
		}
		return nil, err
	}
	return b, nil
}

func (s *Store) ListBonds(ctx context.Context, recordID int64) ([]*cortex.Bond, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_id, target_id, kind, strength, created_at FROM bonds WHERE source_id=? OR target_id=?",
		recordID, recordID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListAllBonds(ctx context.Context) ([]*cortex.Bond, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, "SELECT source_id, target_id, kind, strength, created_at FROM bonds")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.Bond
	for rows.Next() {
		b, err := scanBond(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
