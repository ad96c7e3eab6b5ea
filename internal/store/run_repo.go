package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunRepository keeps summaries of recent runs.
type RunRepository interface {
	// Record inserts or replaces the summary keyed by RunID.
	Record(ctx context.Context, summary crawler.RunSummary) error
	// Get returns one summary or ErrNotFound.
	Get(ctx context.Context, runID string) (crawler.RunSummary, error)
	// List returns summaries newest first, optionally filtered by state.
	List(ctx context.Context, state *crawler.RunState, limit, offset int) ([]crawler.RunSummary, error)
}
