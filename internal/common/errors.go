// Package common defines shared constants and sentinel errors used across
// lexivault components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrUserExists = errors.New("user already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal            = errors.New("internal error")
	ErrorUnauthorized        = errors.New("unauthorized")
	ErrServiceNotInitialized = errors.New("auth service not initialized")
	ErrUserDisabled          = errors.New("user disabled")

	// Auth errors (invalid, revoked, expired or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrAlreadyReplaced    = errors.New("refresh token already replaced")
	ErrRefreshTokenReused = errors.New("refresh token reused")
)
