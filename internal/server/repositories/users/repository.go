package users

import (
	"context"

	"github.com/vektorburo/backoffice/internal/server/models"
)

// Repository is the credential store. It is the only component allowed to
// write identity records.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, email string) error
	List(ctx context.Context) ([]*models.User, error)
}
