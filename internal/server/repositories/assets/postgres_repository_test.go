package assets

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

var assetRowCols = []string{"id", "collection", "name", "description", "invoice_type",
	"storage_key", "url", "logo_storage_key", "logo_url", "uploaded_by", "created_at", "updated_at"}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("a-1", now, now)
	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+assets`).
		WithArgs(models.CollectionCAD, "bridge.dwg", "", "", "uploads/k1", "https://store/get/k1", "", "", "a@x.com").
		WillReturnRows(rows)

	a := &models.Asset{
		Collection: models.CollectionCAD,
		Name:       "bridge.dwg",
		StorageKey: "uploads/k1",
		URL:        "https://store/get/k1",
		UploadedBy: "a@x.com",
	}
	got, err := repo.Create(context.Background(), a)
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "a-1" || !got.CreatedAt.Equal(now) {
		t.Fatalf("unexpected asset: %+v", got)
	}
}

func TestCreate_ConsumedHandle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^INSERT\s+INTO\s+assets`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.Asset{
		Collection: models.CollectionInvoice,
		Name:       "inv.pdf",
		StorageKey: "uploads/k1",
		URL:        "u",
		UploadedBy: "a@x.com",
	})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate storage key, got %v", err)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT`).
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "ghost")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListByCollection_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows(assetRowCols).
		AddRow("a-2", "invoice", "inv-2.pdf", "", "incoming", "uploads/k2", "u2", "", "", "b@x.com", now, now).
		AddRow("a-1", "invoice", "inv-1.pdf", "", "outgoing", "uploads/k1", "u1", "", "", "a@x.com", now.Add(-time.Hour), now.Add(-time.Hour))
	mock.ExpectQuery(`(?s)^SELECT\s+.*\s+FROM\s+assets\s+WHERE\s+collection\s*=\s*\$1\s+ORDER\s+BY\s+created_at\s+DESC`).
		WithArgs(models.CollectionInvoice).
		WillReturnRows(rows)

	got, err := repo.ListByCollection(context.Background(), models.CollectionInvoice)
	if err != nil {
		t.Fatalf("ListByCollection error: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a-2" || got[0].InvoiceType != "incoming" {
		t.Fatalf("unexpected list: %+v", got)
	}
}

func TestUpdate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+assets\s+SET`).
		WithArgs("a-1", "New name", "new desc", "uploads/k2", "u2", "", "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), &models.Asset{
		ID:          "a-1",
		Name:        "New name",
		Description: "new desc",
		StorageKey:  "uploads/k2",
		URL:         "u2",
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
}

func TestUpdate_ConsumedHandle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^UPDATE\s+assets\s+SET`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.Update(context.Background(), &models.Asset{
		ID:         "a-1",
		Name:       "Project",
		StorageKey: "uploads/taken",
		URL:        "u",
	})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for duplicate storage key, got %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)^DELETE\s+FROM\s+assets`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), "ghost"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
