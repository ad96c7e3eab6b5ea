package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if fetchesTotal == nil || detailsTotal == nil || runsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveFetchAndDetail(t *testing.T) {
	Init()
	before := testutil.ToFloat64(fetchesTotal.WithLabelValues("timeout"))
	ObserveFetch("timeout", 2*time.Second)
	if got := testutil.ToFloat64(fetchesTotal.WithLabelValues("timeout")); got != before+1 {
		t.Errorf("fetch timeout counter = %f; want %f", got, before+1)
	}

	beforeOK := testutil.ToFloat64(detailsTotal.WithLabelValues("ok"))
	ObserveDetail("ok")
	ObserveDetail("ok")
	if got := testutil.ToFloat64(detailsTotal.WithLabelValues("ok")); got != beforeOK+2 {
		t.Errorf("detail ok counter = %f; want %f", got, beforeOK+2)
	}
}

func TestObservePublish(t *testing.T) {
	Init()
	newBefore := testutil.ToFloat64(indexDocumentsTotal.WithLabelValues("memory", "new"))
	failedBefore := testutil.ToFloat64(indexDocumentsTotal.WithLabelValues("memory", "failed"))
	errBefore := testutil.ToFloat64(indexPublishErrorsTotal)

	ObservePublish(crawler.PublishReport{Backend: "memory", Uploaded: 3, Updated: 1, Failed: 2}, nil)
	ObservePublish(crawler.PublishReport{}, errors.New("index down"))

	if got := testutil.ToFloat64(indexDocumentsTotal.WithLabelValues("memory", "new")); got != newBefore+3 {
		t.Errorf("new documents = %f; want %f", got, newBefore+3)
	}
	if got := testutil.ToFloat64(indexDocumentsTotal.WithLabelValues("memory", "failed")); got != failedBefore+2 {
		t.Errorf("failed documents = %f; want %f", got, failedBefore+2)
	}
	if got := testutil.ToFloat64(indexPublishErrorsTotal); got != errBefore+1 {
		t.Errorf("publish errors = %f; want %f", got, errBefore+1)
	}
}

func TestObserveRun(t *testing.T) {
	Init()
	before := testutil.ToFloat64(runsTotal.WithLabelValues("FAILED"))
	ObserveRun("FAILED", time.Second)
	if got := testutil.ToFloat64(runsTotal.WithLabelValues("FAILED")); got != before+1 {
		t.Errorf("failed runs = %f; want %f", got, before+1)
	}
	if n := testutil.CollectAndCount(runDurationSeconds); n != 1 {
		t.Errorf("expected run duration histogram to be collected, got %d", n)
	}
}
