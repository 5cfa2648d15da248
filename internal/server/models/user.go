// Package models defines server-side data models persisted in the database.
package models

import "time"

// Roles an identity record may carry. The dashboard gate treats everything
// that is not RoleAdmin as a regular user.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ValidRole reports whether role is one of the defined role values.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// User is an identity record. Email is the natural key. PasswordHash is a
// PHC-encoded argon2id hash and must never leave the credential verifier.
type User struct {
	ID           string
	Email        string
	Name         string
	Role         string
	PasswordHash string
	AvatarURL    string
	CreatedAt    time.Time
}
