// Package storage persists raw captures and their derived, embedded records.
// Two backends implement the same contract: an embedded sqlite database and
// postgres with the pgvector extension.
package storage

import (
	"context"
	"errors"

	"github.com/jordanmatta/recollect/internal/models"
)

var (
	// ErrDuplicateConversation means a raw record with the same
	// (source, source_conversation_id) already exists.
	ErrDuplicateConversation = errors.New("conversation already stored")

	// ErrNotFound means no record matched the given id.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyDerived means a derived record already references the raw id.
	ErrAlreadyDerived = errors.New("raw record already derived")
)

// Distance selects how vector similarity is computed.
type Distance string

const (
	DistanceCosine Distance = "cosine"
	DistanceL2     Distance = "l2"
	DistanceDot    Distance = "dot"
)

// SearchFilter narrows a similarity search. Zero values mean no constraint;
// Threshold excludes candidates whose similarity falls below it before any
// ranking happens.
type SearchFilter struct {
	Limit     int
	Threshold float64
	Source    string
	Project   string
	Topic     string
	Workspace string
}

// ListFilter narrows and pages a derived-record listing. Filters apply
// before limit/offset so every page comes back full.
type ListFilter struct {
	Limit   int
	Offset  int
	Source  string
	Project string
}

// Store is the persistence contract shared by both backends. Raw records are
// append-only: after insert only processed_at, processing_error and
// retry_count may change.
type Store interface {
	// InsertRaw stores one immutable capture. A duplicate
	// (source, source_conversation_id) pair returns ErrDuplicateConversation.
	InsertRaw(ctx context.Context, rec *models.RawRecord) error
	GetRaw(ctx context.Context, id string) (*models.RawRecord, error)

	// PendingRaw returns unprocessed raw records, oldest inserted first.
	PendingRaw(ctx context.Context, limit int) ([]models.RawRecord, error)

	// MarkRawProcessed stamps processed_at. A non-nil procErr records a
	// terminal failure alongside the stamp.
	MarkRawProcessed(ctx context.Context, id string, procErr *string) error

	// RecordRawFailure increments retry_count and stores the failure reason
	// without stamping processed_at, leaving the record pending. Returns the
	// new retry count.
	RecordRawFailure(ctx context.Context, id string, reason string) (int, error)

	// InsertDerived stores the enriched record. A second derived record for
	// the same raw id returns ErrAlreadyDerived.
	InsertDerived(ctx context.Context, rec *models.DerivedRecord) error
	GetDerived(ctx context.Context, id string) (*models.DerivedRecord, error)

	// ListDerived returns derived records newest first, filtered then paged.
	ListDerived(ctx context.Context, filter ListFilter) ([]models.DerivedRecord, error)

	// SearchSimilar returns candidates above filter.Threshold with their
	// similarity populated. Ordering beyond similarity is the ranker's job.
	SearchSimilar(ctx context.Context, embedding []float32, filter SearchFilter) ([]models.SearchResult, error)

	// SearchText is a keyword lookup over titles and content, used by the
	// browser as a cheap filter that needs no embedding call.
	SearchText(ctx context.Context, query string, limit int) ([]models.DerivedRecord, error)

	Stats(ctx context.Context) (*models.StoreStats, error)
	Close() error
}

// Open constructs the backend selected by cfg.Driver.
func Open(cfg *Config) (Store, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgresStore(cfg)
	case "", "sqlite":
		return NewSQLiteStore(cfg)
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}
