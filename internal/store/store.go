// Package store defines the storage interface for the dispatch journal and
// its SQLite implementation.
package store

import (
	"context"

	"eodcloser/internal/domain"
)

// RunStore persists and retrieves dispatch records. It is a journal for
// operators; trigger state is never rebuilt from it.
type RunStore interface {
	// SaveRun inserts a record and sets its ID.
	SaveRun(ctx context.Context, run *domain.RunRecord) error

	// ListRuns returns the most recent records, newest first, up to limit.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)

	// Close releases the underlying resources.
	Close() error
}
