// Package storage defines persistence contracts for federation state: the
// object repository, the collection index, the JSON-LD context cache, and the
// outbound delivery queue.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists indicates a uniqueness-constrained record already exists.
var ErrAlreadyExists = errors.New("record already exists")

// ObjectKind discriminates the stored record families.
type ObjectKind string

const (
	ObjectKindObject   ObjectKind = "object"
	ObjectKindActor    ObjectKind = "actor"
	ObjectKindActivity ObjectKind = "activity"
)

// RefField names the activity reference fields the index can match on.
type RefField string

const (
	RefFieldActor  RefField = "actor"
	RefFieldObject RefField = "object"
	RefFieldTarget RefField = "target"
)

// ObjectRecord stores one protocol object in its wire form plus the flattened
// reference ids used for membership and block-list matching. The ref slices
// carry every id an activity field resolves to, whether the field held a raw
// string, a set, or an embedded sub-object with its own id.
type ObjectRecord struct {
	ID          string
	Kind        ObjectKind
	PayloadJSON string
	MetaJSON    string
	Username    string
	ActorRefs   []string
	ObjectRefs  []string
	TargetRefs  []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StreamOptions configures one collection page.
type StreamOptions struct {
	// Limit caps the page size; zero or negative means unbounded.
	Limit int
	// AfterActivityID resumes strictly after the entry referencing this
	// activity. An id that resolves to no entry yields an empty page.
	AfterActivityID string
	// BlockList excludes entries whose activity actor references any listed id.
	BlockList []string
}

// ObjectStore persists protocol objects keyed by external id.
type ObjectStore interface {
	// PutObject inserts or replaces the record with record.ID.
	PutObject(ctx context.Context, record ObjectRecord) error
	// InsertObject inserts a new record, failing with ErrAlreadyExists when
	// the id is already stored.
	InsertObject(ctx context.Context, record ObjectRecord) error
	GetObject(ctx context.Context, id string) (ObjectRecord, error)
	GetObjectByKind(ctx context.Context, kind ObjectKind, id string) (ObjectRecord, error)
	DeleteObject(ctx context.Context, id string) error
}

// CollectionStore maintains named ordered activity streams. Collections exist
// implicitly on first reference; inserts are blind and entry uniqueness per
// (collection, activity) pair is the caller's contract.
type CollectionStore interface {
	AddToCollection(ctx context.Context, collectionID string, activityID string, at time.Time) error
	// FindActivityByCollectionAndRef returns one activity in the collection
	// whose field references refID; ErrNotFound when no entry matches.
	FindActivityByCollectionAndRef(ctx context.Context, collectionID string, field RefField, refID string) (ObjectRecord, error)
	// StreamCollection returns a newest-first page ordered by entry creation
	// time with entry identity as the tie breaker.
	StreamCollection(ctx context.Context, collectionID string, opts StreamOptions) ([]ObjectRecord, error)
	// CountCollection returns the total entry count, ignoring block lists.
	CountCollection(ctx context.Context, collectionID string) (int, error)
}

// ContextRecord caches one JSON-LD context document.
type ContextRecord struct {
	ContextURL   string
	DocumentURL  string
	DocumentJSON string
	CreatedAt    time.Time
}

// ContextStore is an unbounded cache of context documents keyed by source URL.
// Saves are blind inserts; deduplication is the caller's concern.
type ContextStore interface {
	GetContext(ctx context.Context, documentURL string) (ContextRecord, error)
	SaveContext(ctx context.Context, record ContextRecord) error
}

// DeliveryRecord is one pending outbound send to one remote address.
type DeliveryRecord struct {
	Address    string
	ActorID    string
	SigningKey string
	Body       string
	Attempt    int
	After      time.Time
	CreatedAt  time.Time
}

// DeliveryStore is the durable outbound delivery queue. A dequeue removes the
// returned row atomically, so at most one caller ever holds a given row; a
// failed attempt re-enters the queue as a fresh row via RequeueDelivery.
type DeliveryStore interface {
	// EnqueueDelivery fans one logical send out to one row per address, each
	// at attempt zero and eligible immediately. Rows are independent; a
	// failure mid fan-out leaves earlier rows in place.
	EnqueueDelivery(ctx context.Context, actorID string, body string, addresses []string, signingKey string) error
	// DequeueDelivery removes and returns the eligible row with the smallest
	// after value. When no row is eligible but the queue is non-empty it
	// returns a zero record and the earliest after as waitUntil; an empty
	// queue returns zero values all around.
	DequeueDelivery(ctx context.Context) (*DeliveryRecord, time.Time, error)
	// RequeueDelivery inserts a caller-held failed delivery as a new row with
	// the attempt counter incremented and the next eligibility pushed back
	// exponentially (base 10 in the after field's millisecond unit).
	RequeueDelivery(ctx context.Context, delivery DeliveryRecord) error
}
