package app

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/neso/internal/services/federation/domain"
	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// AddToCollection appends an activity to a named collection at the current
// instant. The engine guarantees an activity enters a collection at most once.
func (s *Store) AddToCollection(ctx context.Context, collectionID string, activityID string) error {
	return s.backend.AddToCollection(ctx, collectionID, activityID, s.now())
}

// FindActivityByCollectionAndObject returns an activity in the collection
// whose object field references objectID, or nil when none does. Used by the
// engine as a duplicate-submission check, so a miss is a meaningful result,
// not an error.
func (s *Store) FindActivityByCollectionAndObject(ctx context.Context, collectionID string, objectID string, includeMeta bool) (domain.Payload, error) {
	return s.findByRef(ctx, collectionID, storage.RefFieldObject, objectID, includeMeta)
}

// FindActivityByCollectionAndActor returns an activity in the collection
// whose actor field references actorID, or nil when none does.
func (s *Store) FindActivityByCollectionAndActor(ctx context.Context, collectionID string, actorID string, includeMeta bool) (domain.Payload, error) {
	return s.findByRef(ctx, collectionID, storage.RefFieldActor, actorID, includeMeta)
}

func (s *Store) findByRef(ctx context.Context, collectionID string, field storage.RefField, refID string, includeMeta bool) (domain.Payload, error) {
	record, err := s.backend.FindActivityByCollectionAndRef(ctx, collectionID, field, refID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return payloadFromRecord(record, includeMeta)
}

// StreamCollection returns one reverse-chronological page of collection
// activities. Limit zero means unbounded; afterID resumes strictly after that
// activity's entry and yields an empty page when unresolvable; blockList
// excludes activities attributed to any listed actor.
func (s *Store) StreamCollection(ctx context.Context, collectionID string, limit int, afterID string, blockList []string) ([]domain.Payload, error) {
	records, err := s.backend.StreamCollection(ctx, collectionID, storage.StreamOptions{
		Limit:           limit,
		AfterActivityID: afterID,
		BlockList:       blockList,
	})
	if err != nil {
		return nil, err
	}
	payloads := make([]domain.Payload, 0, len(records))
	for _, record := range records {
		payload, decodeErr := payloadFromRecord(record, false)
		if decodeErr != nil {
			return nil, decodeErr
		}
		payloads = append(payloads, payload)
	}
	return payloads, nil
}

// CountCollection returns the collection's total entry count. Block lists are
// a streaming concern only and never change the count.
func (s *Store) CountCollection(ctx context.Context, collectionID string) (int, error) {
	return s.backend.CountCollection(ctx, collectionID)
}

// Delivery is one pending outbound send held by a dispatcher between dequeue
// and either completion or requeue.
type Delivery struct {
	Address    string
	ActorID    string
	SigningKey string
	Body       string
	Attempt    int
	After      time.Time
}

// EnqueueDelivery fans one signed activity body out to one queue row per
// address, each independently dequeuable and due immediately.
func (s *Store) EnqueueDelivery(ctx context.Context, actorID string, body string, addresses []string, signingKey string) error {
	return s.backend.EnqueueDelivery(ctx, actorID, body, addresses, signingKey)
}

// DequeueDelivery hands the caller exclusive ownership of the next due
// delivery. With only future work queued it returns the earliest due time as
// a waitUntil hint; an empty queue returns zero values.
func (s *Store) DequeueDelivery(ctx context.Context) (*Delivery, time.Time, error) {
	record, waitUntil, err := s.backend.DequeueDelivery(ctx)
	if err != nil || record == nil {
		return nil, waitUntil, err
	}
	return &Delivery{
		Address:    record.Address,
		ActorID:    record.ActorID,
		SigningKey: record.SigningKey,
		Body:       record.Body,
		Attempt:    record.Attempt,
		After:      record.After,
	}, time.Time{}, nil
}

// RequeueDelivery schedules a failed, caller-held delivery for another
// attempt with exponential backoff. An error means the job was not persisted
// and the caller must not drop it.
func (s *Store) RequeueDelivery(ctx context.Context, delivery Delivery) error {
	return s.backend.RequeueDelivery(ctx, storage.DeliveryRecord{
		Address:    delivery.Address,
		ActorID:    delivery.ActorID,
		SigningKey: delivery.SigningKey,
		Body:       delivery.Body,
		Attempt:    delivery.Attempt,
		After:      delivery.After,
	})
}
