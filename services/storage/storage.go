package storage

import (
	"context"
	"time"
)

// Listing is a persisted listing
type Listing struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"external_id"`
	Price       int       `json:"price"`
	Rooms       int       `json:"rooms"`
	Floor       int       `json:"floor"`
	TotalFloors int       `json:"total_floors"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Address     string    `json:"address"`
	Distance    float64   `json:"distance"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Approved    bool      `json:"approved"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store opens one transaction per ingestion iteration
type Store interface {
	// Begin starts a transaction
	Begin(ctx context.Context) (Tx, error)

	// Close releases the store's resources
	Close() error
}

// Tx is a unit of work: existence checks and inserts either all commit or
// none do
type Tx interface {
	// Exists reports whether a listing with externalID is already stored
	Exists(ctx context.Context, externalID string) (bool, error)

	// InsertBatch inserts listings and returns how many were new. Each listing
	// actually inserted gets its ID and CreatedAt set; listings skipped as
	// duplicates keep a zero ID.
	InsertBatch(ctx context.Context, listings []Listing) (int, error)

	// Commit applies the transaction
	Commit(ctx context.Context) error

	// Rollback discards the transaction; it is a no-op after Commit
	Rollback(ctx context.Context) error
}
