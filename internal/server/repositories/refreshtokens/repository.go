// Package refreshtokens stores refresh token records and their user and
// family indexes. Two families of implementation share one contract:
// AggregateRepository keeps the whole store as a single document behind a
// Backend (file, Redis or S3), PostgresRepository keeps one row per token.
package refreshtokens

import (
	"context"
	"time"

	"github.com/lexivault/lexivault/internal/server/models"
)

// Repository is the token record store used by the rotation engine. Every
// mutation is serialized against concurrent mutations of the same store.
type Repository interface {
	// FindByHash returns a copy of the record with the given token hash, or
	// common.ErrorNotFound.
	FindByHash(ctx context.Context, tokenHash string) (*models.TokenRecord, error)

	// Get returns a copy of the record with the given id, or common.ErrorNotFound.
	Get(ctx context.Context, tokenID string) (*models.TokenRecord, error)

	// Family returns copies of every record in the family.
	Family(ctx context.Context, familyID string) ([]*models.TokenRecord, error)

	// AddToken inserts a record expiring at now+ttl and indexes it by user and
	// family. prevTokenID is "" for the first token of a family.
	AddToken(ctx context.Context, tokenID, userID, tokenHash, familyID, prevTokenID string, ttl time.Duration) error

	// MarkReplaced links tokenID to its successor. No-op when the record is
	// absent or already has a successor.
	MarkReplaced(ctx context.Context, tokenID, newTokenID string) error

	// RevokeToken stamps revokedAt on a single record if not already revoked.
	RevokeToken(ctx context.Context, tokenID string) error

	// RevokeFamily revokes every not yet revoked record of the family and
	// returns how many changed.
	RevokeFamily(ctx context.Context, familyID string) (int, error)

	// RevokeUser revokes every not yet revoked record owned by userID.
	RevokeUser(ctx context.Context, userID string) (int, error)

	// UpdateLastUsed stamps lastUsedAt.
	UpdateLastUsed(ctx context.Context, tokenID string) error

	// Rotate adds newTokenID to the family of oldTokenID, marks the old record
	// replaced and stamps its lastUsedAt, all in one critical section. It
	// returns a copy of the old record as it was before rotation.
	//
	// Errors: common.ErrorNotFound if the old record is gone,
	// common.ErrAlreadyReplaced if it already has a successor,
	// common.ErrInvalidToken if it is revoked or expired.
	Rotate(ctx context.Context, oldTokenID, newTokenID, newTokenHash string, ttl time.Duration) (*models.TokenRecord, error)

	// CleanupExpired removes records whose expiresAt is before now and
	// returns how many were removed.
	CleanupExpired(ctx context.Context) (int, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error
}
