// Package repomanager vends repository implementations bound to a database
// handle and exposes the schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/vektorburo/backoffice/internal/dbx"
	"github.com/vektorburo/backoffice/internal/server/repositories/assets"
	"github.com/vektorburo/backoffice/internal/server/repositories/users"
)

// RepositoryManager abstracts repository construction so services can run the
// same code against *sql.DB or a transaction, and tests can swap in fakes.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Assets(db dbx.DBTX) assets.Repository
}
