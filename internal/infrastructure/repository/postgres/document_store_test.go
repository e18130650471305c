package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/akozyrev/ragshield/internal/core/domain"
)

func newDocStoreWithMock(t *testing.T) (*DocumentStore, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return NewDocumentStore(db, nil), mock, func() { _ = db.Close() }
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "title", "body", "sensitive", "department", "tags", "author",
		"version", "view_count", "helpful_count", "created_at", "updated_at",
	})
}

func TestGetByIDReturnsDomainNotFound(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title, body, sensitive").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetByID(context.Background(), "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDDecodesTags(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, title, body, sensitive").
		WithArgs("doc-1").
		WillReturnRows(documentRows().AddRow(
			"doc-1", "Budget", "Quarterly numbers", true, "finance",
			[]byte(`["budget","q4"]`), "alice", "v1", int64(7), int64(2), now, now,
		))

	doc, err := store.GetByID(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !doc.Sensitive {
		t.Fatalf("expected sensitive flag to survive the round trip")
	}
	if len(doc.Tags) != 2 || doc.Tags[0] != "budget" {
		t.Fatalf("unexpected tags: %v", doc.Tags)
	}
	if doc.ViewCount != 7 {
		t.Fatalf("expected view count 7, got %d", doc.ViewCount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordViewsIncrementsOnlyOnFreshMarker(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	// doc-a: marker is new, counter moves.
	mock.ExpectExec("INSERT INTO document_views").
		WithArgs("prov-1", "doc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET view_count").
		WithArgs("doc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// doc-b: marker already exists, counter must not move.
	mock.ExpectExec("INSERT INTO document_views").
		WithArgs("prov-1", "doc-b").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.RecordViews(context.Background(), "prov-1", []string{"doc-a", "doc-b"})
	if err != nil {
		t.Fatalf("RecordViews() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordViewsReplayIsANoOp(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_views").
		WithArgs("prov-1", "doc-a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.RecordViews(context.Background(), "prov-1", []string{"doc-a"})
	if err != nil {
		t.Fatalf("RecordViews() replay error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordViewsWrapsStorageFailureAsTemporary(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO document_views").
		WithArgs("prov-1", "doc-a").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := store.RecordViews(context.Background(), "prov-1", []string{"doc-a"})
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected wrapped ErrTemporary, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestIncrementHelpfulUpdatesEachDocument(t *testing.T) {
	store, mock, done := newDocStoreWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents SET helpful_count").
		WithArgs("doc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE documents SET helpful_count").
		WithArgs("doc-b").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := store.IncrementHelpful(context.Background(), []string{"doc-a", "doc-b"}); err != nil {
		t.Fatalf("IncrementHelpful() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
