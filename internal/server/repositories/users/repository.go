// Package users stores accounts: a JSON file under the data directory by
// default, or a Postgres table when the token store runs on Postgres.
package users

import (
	"context"

	"github.com/lexivault/lexivault/internal/server/models"
)

// DefaultRoles are granted to self-registered accounts.
var DefaultRoles = []string{"user"}

type Repository interface {
	// FindByUsername returns common.ErrorNotFound when no account matches.
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)

	// Create stores a new account with a fresh UUID. common.ErrUserExists is
	// returned when the username is taken.
	Create(ctx context.Context, username, passwordHash string, roles []string) (*models.User, error)

	SetDisabled(ctx context.Context, userID string, disabled bool) error
	Delete(ctx context.Context, userID string) error
}
