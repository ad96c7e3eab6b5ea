package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/store/memory"
)

func seededHistory(t *testing.T) *memory.RunRepository {
	t.Helper()
	repo := memory.New(10)
	for _, s := range []crawler.RunSummary{
		{RunID: "r1", State: crawler.StatePublished, Listed: 10, Succeeded: 9},
		{RunID: "r2", State: crawler.StateFailed, Error: "listing empty"},
		{RunID: "r3", State: crawler.StatePublished, Listed: 10, Succeeded: 10},
	} {
		require.NoError(t, repo.Record(context.Background(), s))
	}
	return repo
}

func TestRunsHandlerListRuns(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{History: seededHistory(t)})
	rec := serve(server, http.MethodGet, "/runs?state=published&limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Runs []crawler.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, "r3", body.Runs[0].RunID)
}

func TestRunsHandlerGetRun(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{History: seededHistory(t)})

	rec := serve(server, http.MethodGet, "/runs/r2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"state":"FAILED"`)

	rec = serve(server, http.MethodGet, "/runs/missing", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunsHandlerRejectsBadQuery(t *testing.T) {
	t.Parallel()

	handler := NewRunsHandler(memory.New(1), zap.NewNop())
	for _, target := range []string{"/runs?limit=-1", "/runs?offset=x", "/runs?state=sleeping"} {
		rec := httptest.NewRecorder()
		handler.ListRuns(rec, httptest.NewRequest(http.MethodGet, target, nil))
		require.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestRunsHandlerWithoutHistory(t *testing.T) {
	t.Parallel()

	rec := serve(newTestServer(Options{}), http.MethodGet, "/runs", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
