package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// PutObject inserts or replaces one object record and its flattened refs.
func (s *Store) PutObject(ctx context.Context, record storage.ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := s.normalizeObjectRecord(record)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin object write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO objects (id, kind, payload_json, meta_json, username, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	kind = excluded.kind,
	payload_json = excluded.payload_json,
	meta_json = excluded.meta_json,
	username = excluded.username,
	updated_at = excluded.updated_at
`,
		normalized.ID,
		normalized.Kind,
		normalized.PayloadJSON,
		normalized.MetaJSON,
		normalized.Username,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		return fmt.Errorf("put object: %w", err)
	}
	if err := replaceObjectRefs(ctx, tx, normalized); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit object write: %w", err)
	}
	return nil
}

// InsertObject inserts a new object record, failing with ErrAlreadyExists
// when the id is already stored.
func (s *Store) InsertObject(ctx context.Context, record storage.ObjectRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := s.normalizeObjectRecord(record)
	if err != nil {
		return err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin object insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
INSERT INTO objects (id, kind, payload_json, meta_json, username, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.Kind,
		normalized.PayloadJSON,
		normalized.MetaJSON,
		normalized.Username,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	); err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert object: %w", err)
	}
	if err := replaceObjectRefs(ctx, tx, normalized); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit object insert: %w", err)
	}
	return nil
}

// GetObject loads one object record by external id across all kinds.
func (s *Store) GetObject(ctx context.Context, id string) (storage.ObjectRecord, error) {
	return s.getObject(ctx, "", id)
}

// GetObjectByKind loads one object record by kind and external id.
func (s *Store) GetObjectByKind(ctx context.Context, kind storage.ObjectKind, id string) (storage.ObjectRecord, error) {
	if kind == "" {
		return storage.ObjectRecord{}, fmt.Errorf("object kind is required")
	}
	return s.getObject(ctx, kind, id)
}

// DeleteObject removes one object record and its refs.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("object id is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete object rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) getObject(ctx context.Context, kind storage.ObjectKind, id string) (storage.ObjectRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ObjectRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ObjectRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.ObjectRecord{}, fmt.Errorf("object id is required")
	}

	query := `
SELECT id, kind, payload_json, meta_json, username, created_at, updated_at
FROM objects
WHERE id = ?
`
	args := []any{id}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	row := s.sqlDB.QueryRowContext(ctx, query, args...)
	record, err := scanObject(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ObjectRecord{}, storage.ErrNotFound
		}
		return storage.ObjectRecord{}, fmt.Errorf("get object: %w", err)
	}
	if err := s.loadObjectRefs(ctx, &record); err != nil {
		return storage.ObjectRecord{}, err
	}
	return record, nil
}

func (s *Store) loadObjectRefs(ctx context.Context, record *storage.ObjectRecord) error {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT field, ref
FROM object_refs
WHERE object_id = ?
ORDER BY rowid
`, record.ID)
	if err != nil {
		return fmt.Errorf("load object refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var field storage.RefField
		var ref string
		if err := rows.Scan(&field, &ref); err != nil {
			return fmt.Errorf("scan object ref: %w", err)
		}
		switch field {
		case storage.RefFieldActor:
			record.ActorRefs = append(record.ActorRefs, ref)
		case storage.RefFieldObject:
			record.ObjectRefs = append(record.ObjectRefs, ref)
		case storage.RefFieldTarget:
			record.TargetRefs = append(record.TargetRefs, ref)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate object refs: %w", err)
	}
	return nil
}

type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func replaceObjectRefs(ctx context.Context, execer sqlExecer, record storage.ObjectRecord) error {
	if _, err := execer.ExecContext(ctx, `DELETE FROM object_refs WHERE object_id = ?`, record.ID); err != nil {
		return fmt.Errorf("clear object refs: %w", err)
	}
	for field, refs := range map[storage.RefField][]string{
		storage.RefFieldActor:  record.ActorRefs,
		storage.RefFieldObject: record.ObjectRefs,
		storage.RefFieldTarget: record.TargetRefs,
	} {
		for _, ref := range refs {
			if ref == "" {
				continue
			}
			if _, err := execer.ExecContext(ctx, `
INSERT INTO object_refs (object_id, field, ref) VALUES (?, ?, ?)
`, record.ID, field, ref); err != nil {
				return fmt.Errorf("insert object ref: %w", err)
			}
		}
	}
	return nil
}

func (s *Store) normalizeObjectRecord(record storage.ObjectRecord) (storage.ObjectRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.Username = strings.TrimSpace(record.Username)
	if record.ID == "" {
		return storage.ObjectRecord{}, fmt.Errorf("object id is required")
	}
	switch record.Kind {
	case storage.ObjectKindObject, storage.ObjectKindActor, storage.ObjectKindActivity:
	default:
		return storage.ObjectRecord{}, fmt.Errorf("object kind %q is not valid", record.Kind)
	}
	if strings.TrimSpace(record.PayloadJSON) == "" {
		return storage.ObjectRecord{}, fmt.Errorf("object payload is required")
	}
	if strings.TrimSpace(record.MetaJSON) == "" {
		record.MetaJSON = "{}"
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = now
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

type scanner func(dest ...any) error

func scanObject(scan scanner) (storage.ObjectRecord, error) {
	var record storage.ObjectRecord
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.Kind,
		&record.PayloadJSON,
		&record.MetaJSON,
		&record.Username,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.ObjectRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}
