package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// EnqueueDelivery fans one logical send out to one queue row per address.
// Each row starts at attempt zero, eligible immediately. Rows are enqueued
// independently: a failure partway through leaves earlier rows queued.
func (s *Store) EnqueueDelivery(ctx context.Context, actorID string, body string, addresses []string, signingKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return fmt.Errorf("actor id is required")
	}
	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("delivery body is required")
	}
	if len(addresses) == 0 {
		return fmt.Errorf("at least one address is required")
	}

	now := s.now()
	for _, address := range addresses {
		address = strings.TrimSpace(address)
		if address == "" {
			continue
		}
		if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO deliveries (address, actor_id, signing_key, body, attempt, after, created_at)
VALUES (?, ?, ?, ?, 0, ?, ?)
`, address, actorID, signingKey, body, toMillis(now), toMillis(now)); err != nil {
			return fmt.Errorf("enqueue delivery to %s: %w", address, err)
		}
	}
	return nil
}

// DequeueDelivery removes and returns the eligible row with the smallest
// after value. Selection and removal execute as one statement, so two
// concurrent dispatchers can never both receive the same row. With no
// eligible row but a non-empty queue, the earliest after comes back as a
// waitUntil hint; an empty queue returns zero values.
func (s *Store) DequeueDelivery(ctx context.Context) (*storage.DeliveryRecord, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, time.Time{}, fmt.Errorf("storage is not configured")
	}

	now := s.now()
	row := s.sqlDB.QueryRowContext(ctx, `
DELETE FROM deliveries
WHERE id = (
  SELECT id FROM deliveries
  WHERE after < ?
  ORDER BY after ASC, id ASC
  LIMIT 1
)
RETURNING address, actor_id, signing_key, body, attempt, after, created_at
`, toMillis(now))

	var record storage.DeliveryRecord
	var after int64
	var createdAt int64
	err := row.Scan(
		&record.Address,
		&record.ActorID,
		&record.SigningKey,
		&record.Body,
		&record.Attempt,
		&after,
		&createdAt,
	)
	switch {
	case err == nil:
		record.After = fromMillis(after)
		record.CreatedAt = fromMillis(createdAt)
		return &record, time.Time{}, nil
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, time.Time{}, fmt.Errorf("dequeue delivery: %w", err)
	}

	var earliest sql.NullInt64
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT MIN(after) FROM deliveries`).Scan(&earliest); err != nil {
		return nil, time.Time{}, fmt.Errorf("peek delivery queue: %w", err)
	}
	if !earliest.Valid {
		return nil, time.Time{}, nil
	}
	return nil, fromMillis(earliest.Int64), nil
}

// maxBackoffExponent caps the requeue wait at 10^12 ms. Larger exponents
// overflow time.Duration in nanoseconds.
const maxBackoffExponent = 12

// RequeueDelivery re-inserts a caller-held failed delivery as a fresh row.
// The attempt counter increments and eligibility moves to the original after
// plus 10^attempt milliseconds: attempt one waits 10ms, attempt two 100ms,
// saturating at 10^12ms. Insert failures surface so the caller never drops
// the job silently.
func (s *Store) RequeueDelivery(ctx context.Context, delivery storage.DeliveryRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	delivery.Address = strings.TrimSpace(delivery.Address)
	if delivery.Address == "" {
		return fmt.Errorf("delivery address is required")
	}
	if delivery.After.IsZero() {
		return fmt.Errorf("delivery after is required")
	}

	attempt := delivery.Attempt + 1
	// 10^13 ms overflows time.Duration; saturate so after never goes
	// backwards. Attempt 12 already waits ~31 years.
	exponent := attempt
	if exponent > maxBackoffExponent {
		exponent = maxBackoffExponent
	}
	backoff := time.Duration(math.Pow(10, float64(exponent))) * time.Millisecond
	after := delivery.After.Add(backoff)

	if _, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO deliveries (address, actor_id, signing_key, body, attempt, after, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`,
		delivery.Address,
		delivery.ActorID,
		delivery.SigningKey,
		delivery.Body,
		attempt,
		toMillis(after),
		toMillis(s.now()),
	); err != nil {
		return fmt.Errorf("requeue delivery to %s: %w", delivery.Address, err)
	}
	return nil
}
