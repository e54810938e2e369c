package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// GetContext loads the most recently cached context document for a source URL.
// Context documents are public protocol metadata, so reads carry no access
// control at all.
func (s *Store) GetContext(ctx context.Context, documentURL string) (storage.ContextRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ContextRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ContextRecord{}, fmt.Errorf("storage is not configured")
	}
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return storage.ContextRecord{}, fmt.Errorf("document url is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT context_url, document_url, document_json, created_at
FROM contexts
WHERE document_url = ?
ORDER BY id DESC
LIMIT 1
`, documentURL)
	var record storage.ContextRecord
	var createdAt int64
	if err := row.Scan(&record.ContextURL, &record.DocumentURL, &record.DocumentJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ContextRecord{}, storage.ErrNotFound
		}
		return storage.ContextRecord{}, fmt.Errorf("get context: %w", err)
	}
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

// SaveContext caches one context document. Inserts are blind; callers avoid
// re-fetching documents they already cached.
func (s *Store) SaveContext(ctx context.Context, record storage.ContextRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	record.ContextURL = strings.TrimSpace(record.ContextURL)
	record.DocumentURL = strings.TrimSpace(record.DocumentURL)
	if record.ContextURL == "" {
		return fmt.Errorf("context url is required")
	}
	if record.DocumentURL == "" {
		return fmt.Errorf("document url is required")
	}
	if strings.TrimSpace(record.DocumentJSON) == "" {
		return fmt.Errorf("document body is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO contexts (context_url, document_url, document_json, created_at)
VALUES (?, ?, ?, ?)
`,
		record.ContextURL,
		record.DocumentURL,
		record.DocumentJSON,
		toMillis(record.CreatedAt),
	); err != nil {
		return fmt.Errorf("save context: %w", err)
	}
	return nil
}
