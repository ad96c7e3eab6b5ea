package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/degree-indexer/internal/crawler"
	"github.com/JakeFAU/degree-indexer/internal/index"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewWithPool(mock, "")
	require.NoError(t, err)
	store.now = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	return store, mock
}

func TestNewWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, "docs; DROP TABLE x")
	require.Error(t, err)
	_, err = NewWithPool(nil, "")
	require.Error(t, err)
}

func TestPutUpsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rec := crawler.NewProgramRecord()
	rec.ScrapedDegreeName = "Nursing, BSN"
	rec.ScrapedURL = "https://example.edu/nursing"
	doc := index.NewDocument(rec)
	recordJSON, err := json.Marshal(rec)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO degree_documents").
		WithArgs(doc.ID, "Nursing, BSN", "https://example.edu/nursing", doc.Text, recordJSON, time.Unix(1700000000, 0).UTC()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Put(context.Background(), doc))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAllOverPostgres(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	existing := crawler.NewProgramRecord()
	existing.ScrapedDegreeName = "Nursing, BSN"
	fresh := crawler.NewProgramRecord()
	fresh.ScrapedDegreeName = "Biology, BS"

	mock.ExpectQuery("SELECT id FROM degree_documents").
		WillReturnRows(mock.NewRows([]string{"id"}).AddRow(index.DocumentID("Nursing, BSN")).AddRow("degree_stale"))
	mock.ExpectExec("DELETE FROM degree_documents").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))
	mock.ExpectExec("INSERT INTO degree_documents").
		WithArgs(index.DocumentID("Nursing, BSN"), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO degree_documents").
		WithArgs(index.DocumentID("Biology, BS"), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("value too long"))

	report, err := index.NewPublisher(store, nil).ReplaceAll(context.Background(), []crawler.ProgramRecord{existing, fresh})
	require.NoError(t, err)
	require.Equal(t, "postgres", report.Backend)
	require.Equal(t, 1, report.Updated)
	require.Equal(t, 0, report.Uploaded)
	require.Equal(t, 1, report.Failed)
	require.Contains(t, report.Failures["Biology, BS"], "value too long")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteFailureIsWholesale(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT id FROM degree_documents").WillReturnRows(mock.NewRows([]string{"id"}))
	mock.ExpectExec("DELETE FROM degree_documents").WillReturnError(errors.New("permission denied"))

	_, err := index.NewPublisher(store, nil).ReplaceAll(context.Background(), []crawler.ProgramRecord{crawler.NewProgramRecord()})
	var pubErr *crawler.IndexPublishError
	require.ErrorAs(t, err, &pubErr)
	require.Equal(t, "delete", pubErr.Op)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS degree_documents").
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
