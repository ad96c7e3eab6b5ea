// Package memory provides an in-memory run history.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/store"
)

// DefaultCapacity bounds the history when New is given a non-positive size.
const DefaultCapacity = 100

// RunRepository keeps the most recent runs, evicting the oldest first.
type RunRepository struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	runs     map[string]crawler.RunSummary
}

var _ store.RunRepository = (*RunRepository)(nil)

// New builds a repository holding at most capacity runs.
func New(capacity int) *RunRepository {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RunRepository{capacity: capacity, runs: make(map[string]crawler.RunSummary)}
}

// Record stores summary, replacing an earlier entry with the same RunID.
func (r *RunRepository) Record(_ context.Context, summary crawler.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[summary.RunID]; !ok {
		r.order = append(r.order, summary.RunID)
		if len(r.order) > r.capacity {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.runs, oldest)
		}
	}
	r.runs[summary.RunID] = summary
	return nil
}

// Get returns the summary for runID.
func (r *RunRepository) Get(_ context.Context, runID string) (crawler.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summary, ok := r.runs[runID]
	if !ok {
		return crawler.RunSummary{}, store.ErrNotFound
	}
	return summary, nil
}

// List returns summaries newest first.
func (r *RunRepository) List(_ context.Context, state *crawler.RunState, limit, offset int) ([]crawler.RunSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]crawler.RunSummary, 0, min(limit, len(r.order)))
	skipped := 0
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		summary := r.runs[r.order[i]]
		if state != nil && summary.State != *state {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}
