// Package app exposes the federation persistence surface consumed in-process
// by the protocol engine: object save/get with shape classification, lazy
// actor materialization for local identities, collection queries, the context
// cache, and the outbound delivery queue.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/neso/internal/platform/id"
	"github.com/louisbranch/neso/internal/services/federation/domain"
	"github.com/louisbranch/neso/internal/services/federation/storage"
)

// Backend is the durable substrate shared by every component. The SQLite
// store satisfies all four contracts over one database file.
type Backend interface {
	storage.ObjectStore
	storage.CollectionStore
	storage.ContextStore
	storage.DeliveryStore
}

// IdentityDirectory is the protocol engine's identity lookup, consumed for
// lazy actor materialization and node statistics.
type IdentityDirectory interface {
	// LookupUsername returns the local identity for a username, or
	// domain.ErrNotFound when no such identity exists.
	LookupUsername(ctx context.Context, username string) (domain.Identity, error)
	// CountEnabled returns the number of enabled local identities.
	CountEnabled(ctx context.Context) (int, error)
}

// Store is the federation persistence facade.
type Store struct {
	backend    Backend
	identities IdentityDirectory
	addresses  domain.AddressConfig
	newID      func() (string, error)
	clock      func() time.Time
}

// New constructs the federation store facade.
func New(backend Backend, identities IdentityDirectory, addresses domain.AddressConfig) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("storage backend is required")
	}
	if identities == nil {
		return nil, fmt.Errorf("identity directory is required")
	}
	if err := addresses.Validate(); err != nil {
		return nil, fmt.Errorf("address config: %w", err)
	}
	return &Store{
		backend:    backend,
		identities: identities,
		addresses:  addresses,
		newID:      id.NewID,
		clock:      time.Now,
	}, nil
}

func (s *Store) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

// GenerateID produces a globally unique external id component for locally
// originated objects.
func (s *Store) GenerateID() (string, error) {
	return s.newID()
}

// GetObject looks an object up by external id, preferring actors over plain
// objects. A local-identity id with no stored actor materializes one on
// demand: this read may write.
func (s *Store) GetObject(ctx context.Context, objectID string, includeMeta bool) (domain.Payload, error) {
	record, err := s.backend.GetObjectByKind(ctx, storage.ObjectKindActor, objectID)
	if err == nil {
		return payloadFromRecord(record, includeMeta)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if username, ok := s.addresses.UsernameFromID(objectID); ok {
		return s.materializeActor(ctx, username, includeMeta)
	}

	record, err = s.backend.GetObjectByKind(ctx, storage.ObjectKindObject, objectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return payloadFromRecord(record, includeMeta)
}

// SaveObject classifies a payload by shape and persists it under the matching
// record kind. Saves are upserts: repeated saves of the same id replace the
// payload in place.
func (s *Store) SaveObject(ctx context.Context, payload domain.Payload) error {
	kind, err := domain.Classify(payload)
	if err != nil {
		return err
	}
	record, err := s.buildRecord(kind, payload, "")
	if err != nil {
		return err
	}
	return s.backend.PutObject(ctx, record)
}

// UserCount reports the number of enabled local identities for node
// statistics.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	return s.identities.CountEnabled(ctx)
}

// materializeActor bridges "identity exists" to "actor exists": the first
// read of a local identity's actor id constructs and persists the canonical
// Person record, strictly on demand.
func (s *Store) materializeActor(ctx context.Context, username string, includeMeta bool) (domain.Payload, error) {
	identity, err := s.identities.LookupUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	payload := domain.BuildActorPayload(identity, s.addresses.ForUsername(identity.Username))
	record, err := s.buildRecord(domain.KindActor, payload, "")
	if err != nil {
		return nil, err
	}
	if err := s.backend.PutObject(ctx, record); err != nil {
		return nil, fmt.Errorf("materialize actor for %s: %w", username, err)
	}
	return payloadFromRecord(record, includeMeta)
}

// Context is one cached JSON-LD context document.
type Context struct {
	ContextURL   string
	DocumentURL  string
	DocumentJSON string
}

// GetContext reads a cached context document by source URL.
func (s *Store) GetContext(ctx context.Context, documentURL string) (Context, error) {
	record, err := s.backend.GetContext(ctx, documentURL)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Context{}, domain.ErrNotFound
		}
		return Context{}, err
	}
	return Context{
		ContextURL:   record.ContextURL,
		DocumentURL:  record.DocumentURL,
		DocumentJSON: record.DocumentJSON,
	}, nil
}

// SaveContext caches one context document.
func (s *Store) SaveContext(ctx context.Context, document Context) error {
	return s.backend.SaveContext(ctx, storage.ContextRecord{
		ContextURL:   document.ContextURL,
		DocumentURL:  document.DocumentURL,
		DocumentJSON: document.DocumentJSON,
		CreatedAt:    s.now(),
	})
}
