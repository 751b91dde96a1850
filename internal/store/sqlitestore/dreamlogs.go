package sqlitestore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
)

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []int64 {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (s *Store) InsertDreamLog(ctx context.Context, d *cortex.DreamLog) (int64, error) {
	var id int64
	err := withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO dream_logs (kind, input_memory_ids, output, new_memory_ids, created_at)
			VALUES (?,?,?,?,?)
		`, string(d.Kind), joinIDs(d.InputMemoryIDs), d.Output, joinIDs(d.NewMemoryIDs), d.CreatedAt.Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

func (s *Store) ListDreamLogs(ctx context.Context, kind cortex.DreamKind, limit int) ([]*cortex.DreamLog, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT id, kind, input_memory_ids, output, new_memory_ids, created_at FROM dream_logs"
	var args []any
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(kind))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*cortex.DreamLog
	for rows.Next() {
		var d cortex.DreamLog
		var k, inputIDs, newIDs string
		var createdAt int64
		if err := rows.Scan(&d.ID, &k, &inputIDs, &d.Output, &newIDs, &createdAt); err != nil {
			return nil, err
		}
		d.Kind = cortex.DreamKind(k)
		d.InputMemoryIDs = splitIDs(inputIDs)
		d.NewMemoryIDs = splitIDs(newIDs)
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, &d)
	}
	return out, rows.Err()
}
