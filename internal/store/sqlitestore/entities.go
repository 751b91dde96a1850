package sqlitestore

import (
	"context"
	"database/sql"
	"time"

	"github.com/cludeai/cortex/internal/cortex"
)

func (s *Store) UpsertEntity(ctx context.Context, e *cortex.Entity) (int64, error) {
	var id int64
	err := withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		var existing int64
		err := s.db.QueryRowContext(ctx, "SELECT id FROM entities WHERE normalized_name = ?", e.NormalizedName).Scan(&existing)
		if err == nil {
			id = existing
			_, err = s.db.ExecContext(ctx,
				"UPDATE entities SET canonical_name=?, aliases=?, description=?, last_seen=? WHERE id=?",
				e.CanonicalName, joinStrings(e.Aliases), e.Description, e.LastSeen.Unix(), existing)
			return err
		}
		if err != sql.ErrNoRows {
			return err
		}
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO entities (kind, canonical_name, normalized_name, aliases, description,
				mention_count, first_seen, last_seen) VALUES (?,?,?,?,?,?,?,?)
		`, string(e.Kind), e.CanonicalName, e.NormalizedName, joinStrings(e.Aliases), e.Description,
			e.MentionCount, e.FirstSeen.Unix(), e.LastSeen.Unix())
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	e.ID = id
	return id, nil
}

func scanEntity(row interface{ Scan(...any) error }) (*cortex.Entity, error) {
	var e cortex.Entity
	var kind, aliases, description string
	var firstSeen, lastSeen int64
	if err := row.Scan(&e.ID, &kind, &e.CanonicalName, &e.NormalizedName, &aliases, &description,
		&e.MentionCount, &firstSeen, &lastSeen); err != nil {
		return nil, err
	}
	e.Kind = cortex.EntityKind(kind)
	e.Aliases = splitStrings(aliases)
	e.Description = description
	e.FirstSeen = time.Unix(firstSeen, 0).UTC()
	e.LastSeen = time.Unix(lastSeen, 0).UTC()
	return &e, nil
}

const entityColumns = "id, kind, canonical_name, normalized_name, aliases, description, mention_count, first_seen, last_seen"

func (s *Store) GetEntityByName(ctx context.Context, normalizedName string) (*cortex.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE normalized_name = ?", normalizedName)
	e, err := scanEntity(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, cortex.NotFoundError("entity not found")
		}
		return nil, err
	}
	return e, nil
}

func (s *Store) IncrementEntityMention(ctx context.Context, entityID int64, seenAt int64) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		res, err := s.db.ExecContext(ctx,
			"UPDATE entities SET mention_count = mention_count + 1, last_seen = MAX(last_seen, ?) WHERE id = ?",
			seenAt, entityID)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return cortex.NotFoundError("entity not found")
		}
		return nil
	})
}

func (s *Store) InsertMention(ctx context.Context, m *cortex.Mention) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx,
			"INSERT INTO mentions (record_id, entity_id, salience, offset_start, offset_end) VALUES (?,?,?,?,?)",
			m.RecordID, m.EntityID, m.Salience, m.OffsetStart, m.OffsetEnd)
		return err
	})
}

func scanMention(row interface{ Scan(...any) error }) (*cortex.Mention, error) {
	var m cortex.Mention
	if err := row.Scan(&m.RecordID, &m.EntityID, &m.Salience, &m.OffsetStart, &m.OffsetEnd); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) ListMentions(ctx context.Context, recordID int64) ([]*cortex.Mention, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT record_id, entity_id, salience, offset_start, offset_end FROM mentions WHERE record_id = ?", recordID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListEntityMentions(ctx context.Context, entityID int64) ([]*cortex.Mention, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT record_id, entity_id, salience, offset_start, offset_end FROM mentions WHERE entity_id = ?", entityID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.Mention
	for rows.Next() {
		m, err := scanMention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpsertEntityRelation(ctx context.Context, rel *cortex.EntityRelation) error {
	return withRetry(ctx, func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entity_relations (source_id, target_id, kind, strength) VALUES (?,?,?,?)
			ON CONFLICT(source_id, target_id, kind) DO UPDATE SET strength = excluded.strength
		`, rel.SourceID, rel.TargetID, rel.Kind, rel.Strength)
		return err
	})
}

func (s *Store) ListEntityRelations(ctx context.Context, entityID int64) ([]*cortex.EntityRelation, error) {
	s.mu.Lock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT source_id, target_id, kind, strength FROM entity_relations WHERE source_id = ?", entityID)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*cortex.EntityRelation
	for rows.Next() {
		var r cortex.EntityRelation
		if err := rows.Scan(&r.SourceID, &r.TargetID, &r.Kind, &r.Strength); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
