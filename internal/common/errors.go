// Package common contains sentinel errors shared across the back-office
// components. Handlers and services classify failures with errors.Is.
package common

import "errors"

var (

	// repository specific errors
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	// auth-specific errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionInvalid     = errors.New("session invalid")

	// upload-path errors
	ErrBrokerUnavailable  = errors.New("upload broker unavailable")
	ErrUnresolvableHandle = errors.New("storage handle does not resolve")
	ErrPersistenceFailure = errors.New("persistence failure")

	// service specific errors
	ErrInternal = errors.New("internal error")
)
