package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/store/memory"
)

// ExampleRunsHandler_ListRuns shows how to serve the /runs endpoint.
func ExampleRunsHandler_ListRuns() {
	repo := memory.New(10)
	_ = repo.Record(context.Background(), crawler.RunSummary{RunID: "run-1", State: crawler.StatePublished})
	handler := NewRunsHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d\n", len(payload.Runs))
	// Output:
	// returned runs: 1
}
