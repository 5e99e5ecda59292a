// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"flatbot/internal/model"
)

// ErrNotFound is returned when no listing matches the given identity.
var ErrNotFound = errors.New("listing not found")

// ErrInvalidStage is returned when an operation names an unknown stage.
var ErrInvalidStage = errors.New("invalid stage")

// UpsertOutcome describes what UpsertByURL did with a record.
type UpsertOutcome string

// Possible UpsertByURL outcomes.
const (
	// UpsertCreated means no record existed for the URL and one was inserted.
	UpsertCreated UpsertOutcome = "created"
	// UpsertPromoted means an existing record was refreshed and moved to the
	// target stage.
	UpsertPromoted UpsertOutcome = "promoted"
	// UpsertExists means an existing record was refreshed but was already in
	// the target stage.
	UpsertExists UpsertOutcome = "exists"
)

// Storage is the interface for all persistence operations. Every mutation is
// a single committed transaction; partial writes are never observable.
type Storage interface {
	// CreateListing inserts a new listing, appending it to its stage column.
	// Stage defaults to to_be_communicated and source to manual.
	CreateListing(ctx context.Context, l *model.Listing) error
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	// GetListingByURL finds a listing by exact canonical-URL match.
	GetListingByURL(ctx context.Context, url string) (*model.Listing, error)
	// UpdateListing applies a partial patch; only supplied fields change.
	UpdateListing(ctx context.Context, id int64, patch model.ListingPatch) (*model.Listing, error)
	// UpdateStage moves a listing to the given stage at the caller-supplied
	// position. Unknown stages are rejected with ErrInvalidStage.
	UpdateStage(ctx context.Context, id int64, stage model.Stage, position int) (*model.Listing, error)
	// ReorderColumn rewrites position as the 0-based index within ids, for
	// the ids currently in that stage; others are silently skipped.
	ReorderColumn(ctx context.Context, stage model.Stage, ids []int64) error
	// DeleteListing soft-deletes: the listing moves to the deleted stage.
	DeleteListing(ctx context.Context, id int64) error
	// ListGroupedByStage returns every known stage mapped to its listings,
	// ordered by priority descending then position ascending. Stages with no
	// rows still appear with an empty slice.
	ListGroupedByStage(ctx context.Context) (map[model.Stage][]model.Listing, error)
	// MaxPosition returns the highest position currently used in a stage,
	// zero when the stage is empty.
	MaxPosition(ctx context.Context, stage model.Stage) (int, error)
	// UpsertByURL inserts l. When its URL already has a record, that
	// record's scraped fields are refreshed and it is promoted to target
	// unless it is already there.
	UpsertByURL(ctx context.Context, l *model.Listing, target model.Stage) (*model.Listing, UpsertOutcome, error)
	// FilterUnknownURLs returns the subset of urls with no listing record,
	// preserving order.
	FilterUnknownURLs(ctx context.Context, urls []string) ([]string, error)

	Close() error
}
