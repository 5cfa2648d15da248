package assets

import (
	"context"

	"github.com/vektorburo/backoffice/internal/server/models"
)

// Repository stores asset records for every collection. Creation is
// append-only; Update and Delete are reachable only for the portfolio
// collection, which the service layer enforces.
type Repository interface {
	Create(ctx context.Context, asset *models.Asset) (*models.Asset, error)
	GetByID(ctx context.Context, id string) (*models.Asset, error)
	ListByCollection(ctx context.Context, collection models.Collection) ([]*models.Asset, error)
	Update(ctx context.Context, asset *models.Asset) error
	Delete(ctx context.Context, id string) error
}
