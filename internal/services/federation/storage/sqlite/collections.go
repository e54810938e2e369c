package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// AddToCollection appends one activity reference to a named collection. The
// insert is blind; the protocol engine guarantees an activity appears in a
// collection at most once.
func (s *Store) AddToCollection(ctx context.Context, collectionID string, activityID string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	collectionID = strings.TrimSpace(collectionID)
	activityID = strings.TrimSpace(activityID)
	if collectionID == "" {
		return fmt.Errorf("collection id is required")
	}
	if activityID == "" {
		return fmt.Errorf("activity id is required")
	}
	if at.IsZero() {
		at = s.now()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO collection_entries (collection_id, activity_id, created_at)
VALUES (?, ?, ?)
`, collectionID, activityID, toMillis(at)); err != nil {
		return fmt.Errorf("add collection entry: %w", err)
	}
	return nil
}

// FindActivityByCollectionAndRef returns the newest activity in the
// collection whose field references refID. The flattened object_refs rows
// carry the raw scalar, every set member, and embedded-object ids, so one
// indexed equality covers all three reference forms.
func (s *Store) FindActivityByCollectionAndRef(ctx context.Context, collectionID string, field storage.RefField, refID string) (storage.ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObjectRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ObjectRecord{}, fmt.Errorf("storage is not configured")
	}
	collectionID = strings.TrimSpace(collectionID)
	refID = strings.TrimSpace(refID)
	if collectionID == "" {
		return storage.ObjectRecord{}, fmt.Errorf("collection id is required")
	}
	if refID == "" {
		return storage.ObjectRecord{}, fmt.Errorf("ref id is required")
	}
	switch field {
	case storage.RefFieldActor, storage.RefFieldObject, storage.RefFieldTarget:
	default:
		return storage.ObjectRecord{}, fmt.Errorf("ref field %q is not valid", field)
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT o.id, o.kind, o.payload_json, o.meta_json, o.username, o.created_at, o.updated_at
FROM collection_entries e
JOIN objects o ON o.id = e.activity_id AND o.kind = ?
WHERE e.collection_id = ?
  AND EXISTS (
    SELECT 1 FROM object_refs r
    WHERE r.object_id = o.id AND r.field = ? AND r.ref = ?
  )
ORDER BY e.created_at DESC, e.id DESC
LIMIT 1
`, storage.ObjectKindActivity, collectionID, field, refID)
	record, err := scanObject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ObjectRecord{}, storage.ErrNotFound
		}
		return storage.ObjectRecord{}, fmt.Errorf("find collection activity: %w", err)
	}
	if err := s.loadObjectRefs(ctx, &record); err != nil {
		return storage.ObjectRecord{}, err
	}
	return record, nil
}

// StreamCollection returns a newest-first page of collection activities.
// Ordering is total over (entry created_at, entry id) so pages stay stable
// under concurrent inserts; the cursor filters by position, never by offset.
func (s *Store) StreamCollection(ctx context.Context, collectionID string, opts storage.StreamOptions) ([]storage.ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return nil, fmt.Errorf("collection id is required")
	}
	// Zero and negative both mean unbounded.
	if opts.Limit < 0 {
		opts.Limit = 0
	}

	query := strings.Builder{}
	query.WriteString(`
SELECT o.id, o.kind, o.payload_json, o.meta_json, o.username, o.created_at, o.updated_at
FROM collection_entries e
JOIN objects o ON o.id = e.activity_id AND o.kind = ?
WHERE e.collection_id = ?
`)
	args := []any{storage.ObjectKindActivity, collectionID}

	if afterID := strings.TrimSpace(opts.AfterActivityID); afterID != "" {
		cursorCreatedAt, cursorEntryID, err := s.collectionCursor(ctx, collectionID, afterID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return []storage.ObjectRecord{}, nil
			}
			return nil, err
		}
		query.WriteString(`  AND (e.created_at < ? OR (e.created_at = ? AND e.id < ?))
`)
		args = append(args, cursorCreatedAt, cursorCreatedAt, cursorEntryID)
	}

	if len(opts.BlockList) > 0 {
		placeholders := make([]string, len(opts.BlockList))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		query.WriteString(`  AND NOT EXISTS (
    SELECT 1 FROM object_refs r
    WHERE r.object_id = o.id AND r.field = ? AND r.ref IN (` + strings.Join(placeholders, ", ") + `)
  )
`)
		args = append(args, storage.RefFieldActor)
		for _, blocked := range opts.BlockList {
			args = append(args, blocked)
		}
	}

	query.WriteString(`ORDER BY e.created_at DESC, e.id DESC
`)
	if opts.Limit > 0 {
		query.WriteString(`LIMIT ?
`)
		args = append(args, opts.Limit)
	}

	rows, err := s.sqlDB.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("stream collection: %w", err)
	}
	defer rows.Close()

	records := make([]storage.ObjectRecord, 0, opts.Limit)
	for rows.Next() {
		record, scanErr := scanObject(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan collection activity: %w", scanErr)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection activities: %w", err)
	}
	for i := range records {
		if err := s.loadObjectRefs(ctx, &records[i]); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// CountCollection returns the total entry count of a collection. Block lists
// are a streaming-only concern and never affect the count.
func (s *Store) CountCollection(ctx context.Context, collectionID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	collectionID = strings.TrimSpace(collectionID)
	if collectionID == "" {
		return 0, fmt.Errorf("collection id is required")
	}

	var count int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1) FROM collection_entries WHERE collection_id = ?
`, collectionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count collection entries: %w", err)
	}
	return count, nil
}

// collectionCursor resolves an after activity id to its entry position within
// the collection. The activity must exist and have an entry here; anything
// unresolvable maps to ErrNotFound, which streaming treats as an empty page.
func (s *Store) collectionCursor(ctx context.Context, collectionID string, activityID string) (int64, int64, error) {
	var exists int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT 1 FROM objects WHERE id = ? AND kind = ?
`, activityID, storage.ObjectKindActivity).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, storage.ErrNotFound
		}
		return 0, 0, fmt.Errorf("resolve cursor activity: %w", err)
	}

	var createdAt int64
	var entryID int64
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT created_at, id
FROM collection_entries
WHERE collection_id = ? AND activity_id = ?
ORDER BY created_at DESC, id DESC
LIMIT 1
`, collectionID, activityID).Scan(&createdAt, &entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, storage.ErrNotFound
		}
		return 0, 0, fmt.Errorf("resolve cursor entry: %w", err)
	}
	return createdAt, entryID, nil
}
