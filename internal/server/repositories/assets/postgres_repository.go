package assets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/dbx"
	"github.com/vektorburo/backoffice/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const assetColumns = `id, collection, name, description, invoice_type, storage_key, url,
	logo_storage_key, logo_url, uploaded_by, created_at, updated_at`

func scanAsset(row interface{ Scan(dest ...any) error }, a *models.Asset) error {
	return row.Scan(&a.ID, &a.Collection, &a.Name, &a.Description, &a.InvoiceType,
		&a.StorageKey, &a.URL, &a.LogoStorageKey, &a.LogoURL,
		&a.UploadedBy, &a.CreatedAt, &a.UpdatedAt)
}

func (r *PostgresRepository) Create(ctx context.Context, asset *models.Asset) (*models.Asset, error) {

	query :=
		`INSERT INTO assets (collection, name, description, invoice_type, storage_key, url,
			logo_storage_key, logo_url, uploaded_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		asset.Collection, asset.Name, asset.Description, asset.InvoiceType,
		asset.StorageKey, asset.URL, asset.LogoStorageKey, asset.LogoURL, asset.UploadedBy).
		Scan(&asset.ID, &asset.CreatedAt, &asset.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			// storage handle already registered: the ticket was consumed
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return asset, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE id = $1`

	asset := &models.Asset{}
	err := scanAsset(r.db.QueryRowContext(ctx, query, id), asset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return asset, nil
}

func (r *PostgresRepository) ListByCollection(ctx context.Context, collection models.Collection) ([]*models.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets
		 WHERE collection = $1
		 ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Asset
	for rows.Next() {
		asset := &models.Asset{}
		if err := scanAsset(rows, asset); err != nil {
			return nil, err
		}
		result = append(result, asset)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, asset *models.Asset) error {

	query :=
		`UPDATE assets SET name = $2, description = $3, storage_key = $4, url = $5,
			logo_storage_key = $6, logo_url = $7, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query,
		asset.ID, asset.Name, asset.Description, asset.StorageKey, asset.URL,
		asset.LogoStorageKey, asset.LogoURL)
	if err != nil {
		if isUniqueViolation(err) {
			// the new storage handle already belongs to another record
			return common.ErrAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {

	res, err := r.db.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
