package app

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/louisbranch/neso/internal/services/federation/domain"
	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// GetActivity looks an activity up by external id.
func (s *Store) GetActivity(ctx context.Context, activityID string, includeMeta bool) (domain.Payload, error) {
	record, err := s.backend.GetObjectByKind(ctx, storage.ObjectKindActivity, activityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return payloadFromRecord(record, includeMeta)
}

// SaveActivity persists a new activity. It reports true when the id was newly
// stored and false when an activity with that id already exists, in which
// case the stored row is left untouched.
func (s *Store) SaveActivity(ctx context.Context, payload domain.Payload) (bool, error) {
	record, err := s.buildRecord(domain.KindActivity, payload, "")
	if err != nil {
		return false, err
	}
	if err := s.backend.InsertObject(ctx, record); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UpdateObject applies a full or partial field replacement to an existing
// plain object and returns the updated payload. Repeated identical calls are
// idempotent.
func (s *Store) UpdateObject(ctx context.Context, update domain.Payload, fullReplace bool) (domain.Payload, error) {
	return s.updateByKind(ctx, storage.ObjectKindObject, update, fullReplace)
}

// UpdateActivity applies a full or partial field replacement to an existing
// activity and returns the updated payload.
func (s *Store) UpdateActivity(ctx context.Context, update domain.Payload, fullReplace bool) (domain.Payload, error) {
	return s.updateByKind(ctx, storage.ObjectKindActivity, update, fullReplace)
}

func (s *Store) updateByKind(ctx context.Context, kind storage.ObjectKind, update domain.Payload, fullReplace bool) (domain.Payload, error) {
	objectID := update.ID()
	if objectID == "" {
		return nil, fmt.Errorf("payload id is required")
	}

	record, err := s.backend.GetObjectByKind(ctx, kind, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	existing, err := payloadFromRecord(record, false)
	if err != nil {
		return nil, err
	}

	merged := domain.MergePayload(existing, update, fullReplace)
	domainKind := domain.KindObject
	if kind == storage.ObjectKindActivity {
		domainKind = domain.KindActivity
	}
	updated, err := s.buildRecord(domainKind, merged, record.MetaJSON)
	if err != nil {
		return nil, err
	}
	updated.CreatedAt = record.CreatedAt
	if err := s.backend.PutObject(ctx, updated); err != nil {
		return nil, err
	}
	return merged, nil
}

// UpdateActivityMeta adds or removes one internal annotation value under key
// and returns the activity payload with annotations included. Annotations
// are engine-private; they never appear in the wire payload.
func (s *Store) UpdateActivityMeta(ctx context.Context, activityID string, key string, value any, remove bool) (domain.Payload, error) {
	record, err := s.backend.GetObjectByKind(ctx, storage.ObjectKindActivity, activityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("meta key is required")
	}

	meta, err := decodeMeta(record.MetaJSON)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = map[string][]any{}
	}
	if remove {
		kept := meta[key][:0:0]
		for _, existing := range meta[key] {
			if !reflect.DeepEqual(existing, value) {
				kept = append(kept, existing)
			}
		}
		if len(kept) == 0 {
			delete(meta, key)
		} else {
			meta[key] = kept
		}
	} else {
		meta[key] = append(meta[key], value)
	}

	record.MetaJSON, err = encodeMeta(meta)
	if err != nil {
		return nil, err
	}
	record.UpdatedAt = s.now()
	if err := s.backend.PutObject(ctx, record); err != nil {
		return nil, err
	}
	return payloadFromRecord(record, true)
}

// RemoveActivity drops actorID's attribution from an activity, deleting the
// activity outright once no attributed actor remains. Removing from a missing
// activity is a no-op.
func (s *Store) RemoveActivity(ctx context.Context, activityID string, actorID string) error {
	if actorID == "" {
		return fmt.Errorf("actor id is required")
	}
	record, err := s.backend.GetObjectByKind(ctx, storage.ObjectKindActivity, activityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	payload, err := payloadFromRecord(record, false)
	if err != nil {
		return err
	}

	remaining, hasActors := payload.Ref("actor").WithoutID(actorID)
	if !hasActors {
		return s.backend.DeleteObject(ctx, record.ID)
	}
	payload["actor"] = remaining

	updated, err := s.buildRecord(domain.KindActivity, payload, record.MetaJSON)
	if err != nil {
		return err
	}
	updated.CreatedAt = record.CreatedAt
	return s.backend.PutObject(ctx, updated)
}
