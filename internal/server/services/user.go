// Package services contains server-side business logic. This file implements
// UserService: credential verification for login and the administrative
// lifecycle of identity records.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/vektorburo/backoffice/internal/common"
	"github.com/vektorburo/backoffice/internal/dbx"
	"github.com/vektorburo/backoffice/internal/server/auth"
	"github.com/vektorburo/backoffice/internal/server/models"
	"github.com/vektorburo/backoffice/internal/server/repositories/repomanager"
)

// UserService owns the credential store:
// - Verify: check a submitted credential set and return an identity claim
// - CreateUser/UpdateUser/DeleteUser/ListUsers: administrative record lifecycle
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
}

// NewUserService constructs a UserService over the given repositories.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager) *UserService {
	return &UserService{db: db, repomanager: m}
}

// decoyHash is verified against when the email is unknown, so a missing
// record costs the same as a password mismatch.
var (
	decoyHashOnce sync.Once
	decoyHash     string
)

func getDecoyHash() string {
	decoyHashOnce.Do(func() {
		h, err := auth.HashPassword("decoy")
		if err != nil {
			panic(err)
		}
		decoyHash = h
	})
	return decoyHash
}

// Verify checks (email, password, claimedRole, claimedName) against the
// credential store. claimedRole and claimedName are only compared when
// non-empty (the name check is the legacy login path).
// Every sub-check runs regardless of earlier failures and all causes
// collapse to common.ErrInvalidCredentials; the returned claim never carries
// the password hash.
func (s *UserService) Verify(ctx context.Context, email, password, claimedRole, claimedName string) (*auth.Claim, error) {

	repo := s.repomanager.Users(s.db)

	found := true
	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrInternal
		}
		found = false
		user = &models.User{PasswordHash: getDecoyHash(), Role: models.RoleUser}
	}

	passwordOK, err := auth.CheckPassword(user.PasswordHash, password)
	if err != nil {
		passwordOK = false
	}

	roleOK := claimedRole == "" ||
		subtle.ConstantTimeCompare([]byte(claimedRole), []byte(user.Role)) == 1
	nameOK := claimedName == "" ||
		subtle.ConstantTimeCompare([]byte(claimedName), []byte(user.Name)) == 1

	if !(found && passwordOK && roleOK && nameOK) {
		return nil, common.ErrInvalidCredentials
	}

	return &auth.Claim{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		AvatarURL: user.AvatarURL,
	}, nil
}

// CreateUser hashes the plaintext password server-side and inserts a new
// identity record. Duplicate emails surface as common.ErrAlreadyExists.
func (s *UserService) CreateUser(ctx context.Context, email, name, role, password, avatarURL string) (*models.User, error) {

	if !models.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrInternal, role)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.ErrInternal
	}

	user := &models.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		AvatarURL:    avatarURL,
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return u, nil
}

// UserPatch lists the mutable identity attributes. Nil fields are left as-is.
type UserPatch struct {
	Name      *string
	Role      *string
	Password  *string
	AvatarURL *string
}

// UpdateUser applies an administrative patch to the record keyed by email.
// A new password is re-hashed before persistence. The read-modify-write runs
// in one transaction so concurrent patches cannot interleave.
func (s *UserService) UpdateUser(ctx context.Context, email string, patch UserPatch) (*models.User, error) {

	var user *models.User
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)

		var err error
		user, err = repo.GetByEmail(ctx, email)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			user.Name = *patch.Name
		}
		if patch.Role != nil {
			if !models.ValidRole(*patch.Role) {
				return fmt.Errorf("%w: unknown role %q", common.ErrInternal, *patch.Role)
			}
			user.Role = *patch.Role
		}
		if patch.AvatarURL != nil {
			user.AvatarURL = *patch.AvatarURL
		}
		if patch.Password != nil {
			hash, err := auth.HashPassword(*patch.Password)
			if err != nil {
				return common.ErrInternal
			}
			user.PasswordHash = hash
		}

		return repo.Update(ctx, user)
	}); err != nil {
		return nil, err
	}
	return user, nil
}

// DeleteUser removes the identity record keyed by email.
func (s *UserService) DeleteUser(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)
	return repo.Delete(ctx, email)
}

// ListUsers returns all identity records.
func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	repo := s.repomanager.Users(s.db)
	return repo.List(ctx)
}
