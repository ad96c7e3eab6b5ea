package publisher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func TestEncodeRunSummary(t *testing.T) {
	t.Parallel()

	summary := &crawler.RunSummary{RunID: "run-1", State: crawler.StatePublished, Listed: 3, Succeeded: 2, Dropped: 1}
	data, attrs, err := Encode(summary)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"run_id": "run-1",
		"state": "PUBLISHED",
		"listing_url": "",
		"started_at": "0001-01-01T00:00:00Z",
		"finished_at": "0001-01-01T00:00:00Z",
		"listed": 3,
		"succeeded": 2,
		"dropped": 1
	}`, string(data))
	require.Equal(t, map[string]string{
		"content_type": "application/json",
		"event":        "run.finished",
		"run_id":       "run-1",
		"state":        "PUBLISHED",
	}, attrs)
}

func TestEncodePlainPayload(t *testing.T) {
	t.Parallel()

	data, attrs, err := Encode(map[string]int{"n": 1})
	require.NoError(t, err)
	require.Equal(t, `{"n":1}`, string(data))
	require.Equal(t, map[string]string{"content_type": "application/json"}, attrs)

	_, _, err = Encode(make(chan int))
	require.Error(t, err)
}
