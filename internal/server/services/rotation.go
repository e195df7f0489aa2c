// Package services contains the server-side auth logic: the refresh token
// rotation engine and the AuthService facade that transports call.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/cryptox"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/auth"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/models"
	"github.com/lexivault/lexivault/internal/server/repositories/refreshtokens"
)

// UserFinder looks accounts up. Both lookups return common.ErrorNotFound for
// unknown users.
type UserFinder interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, userID string) (*models.User, error)
}

// PasswordVerifier checks a plain password against a stored hash.
type PasswordVerifier interface {
	Verify(password, encoded string) bool
}

// TokenPair is what a successful login or rotation hands back. RefreshToken
// is the raw secret; only its hash is stored.
type TokenPair struct {
	UserID          string
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}

// RefreshOutcome tags the result of a refresh attempt.
type RefreshOutcome int

const (
	RefreshInvalid RefreshOutcome = iota
	RefreshRotated
	RefreshReplayed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshRotated:
		return "rotated"
	case RefreshReplayed:
		return "replayed"
	default:
		return "invalid"
	}
}

// RefreshResult carries Tokens only when Outcome is RefreshRotated.
type RefreshResult struct {
	Outcome RefreshOutcome
	Tokens  *TokenPair
}

// EngineConfig holds the refresh token parameters.
type EngineConfig struct {
	RefreshSalt string
	RefreshTTL  time.Duration
}

// RotationEngine issues refresh token families and rotates them. A secret
// can be rotated once; presenting it again revokes its whole family.
type RotationEngine struct {
	tokens    refreshtokens.Repository
	codec     *auth.Codec
	users     UserFinder
	passwords PasswordVerifier
	dummyHash string
	cfg       EngineConfig
	logger    logging.Logger
	audit     logging.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewRotationEngine(
	tokens refreshtokens.Repository,
	codec *auth.Codec,
	users UserFinder,
	passwords PasswordVerifier,
	cfg EngineConfig,
	l logging.Logger,
	m *metrics.Metrics,
) *RotationEngine {
	return &RotationEngine{
		tokens:    tokens,
		codec:     codec,
		users:     users,
		passwords: passwords,
		dummyHash: newDummyHash(passwords),
		cfg:       cfg,
		logger:    l.With("module", "rotation"),
		audit:     l.With("module", "audit"),
		metrics:   m,
		now:       time.Now,
	}
}

// newDummyHash returns a hash that unknown usernames are checked against, so
// a failed login costs the same whether or not the account exists.
func newDummyHash(v PasswordVerifier) string {
	h, ok := v.(PasswordHasher)
	if !ok {
		return ""
	}
	encoded, err := h.Hash("lexivault-unknown-user")
	if err != nil {
		return ""
	}
	return encoded
}

// Login checks the credentials and starts a new token family. ok is false
// for unknown users, wrong passwords and disabled accounts alike.
func (e *RotationEngine) Login(ctx context.Context, username, password string) (*TokenPair, bool, error) {
	user, err := e.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		e.metrics.LoginAttempt("error")
		return nil, false, fmt.Errorf("find user: %w", err)
	}
	hash := e.dummyHash
	if user != nil {
		hash = user.PasswordHash
	}
	if !e.passwords.Verify(password, hash) || user == nil {
		e.metrics.LoginAttempt("failure")
		e.audit.Warn(ctx, "login failed", "event", "user.login", "username", username, "result", "failure")
		return nil, false, nil
	}
	if user.Disabled {
		e.metrics.LoginAttempt("failure")
		e.audit.Warn(ctx, "login attempt on disabled user", "event", "user.login", "user_id", user.ID, "result", "disabled")
		return nil, false, nil
	}

	familyID, err := cryptox.NewFamilyID()
	if err != nil {
		return nil, false, err
	}
	pair, tokenID, err := e.issue(ctx, user.ID, func(tokenID, hash string) error {
		return e.tokens.AddToken(ctx, tokenID, user.ID, hash, familyID, "", e.cfg.RefreshTTL)
	})
	if err != nil {
		e.metrics.LoginAttempt("error")
		return nil, false, err
	}

	e.metrics.LoginAttempt("success")
	e.audit.Info(ctx, "user logged in", "event", "user.login", "user_id", user.ID, "token_id", tokenID, "family_id", familyID, "result", "success")
	return pair, true, nil
}

// Refresh consumes raw and, if it is the live head of its family, returns a
// new pair. The checks run in a fixed order: unknown, expired, already
// rotated (replay), revoked. The store re-checks inside its critical section
// so two concurrent refreshes of one secret cannot both rotate.
func (e *RotationEngine) Refresh(ctx context.Context, raw string) (RefreshResult, error) {
	res, err := e.refresh(ctx, raw)
	if err != nil {
		e.metrics.RefreshOutcome("error")
		return res, err
	}
	e.metrics.RefreshOutcome(res.Outcome.String())
	return res, nil
}

func (e *RotationEngine) refresh(ctx context.Context, raw string) (RefreshResult, error) {
	invalid := RefreshResult{Outcome: RefreshInvalid}
	rec, err := e.find(ctx, raw)
	if err != nil || rec == nil {
		if rec == nil && err == nil {
			e.logger.Warn(ctx, "refresh token not found")
		}
		return invalid, err
	}

	now := e.now()
	switch {
	case rec.IsExpired(now):
		e.logger.Warn(ctx, "refresh with expired token", "token_id", rec.ID)
		return invalid, nil
	case rec.IsReplaced():
		return e.replayed(ctx, rec)
	case rec.IsRevoked():
		e.logger.Warn(ctx, "refresh with revoked token", "token_id", rec.ID)
		return invalid, nil
	}

	user, err := e.users.FindByID(ctx, rec.UserID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return invalid, fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.Disabled {
		n, err := e.tokens.RevokeFamily(ctx, rec.FamilyID)
		if err != nil {
			return invalid, fmt.Errorf("revoke family: %w", err)
		}
		e.logger.Warn(ctx, "refresh for missing or disabled user, family revoked",
			"user_id", rec.UserID, "family_id", rec.FamilyID, "revoked", n)
		return invalid, nil
	}

	pair, newID, err := e.issue(ctx, rec.UserID, func(tokenID, hash string) error {
		_, err := e.tokens.Rotate(ctx, rec.ID, tokenID, hash, e.cfg.RefreshTTL)
		return err
	})
	switch {
	case errors.Is(err, common.ErrAlreadyReplaced):
		// Lost the race against a concurrent refresh of the same secret.
		return e.replayed(ctx, rec)
	case errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrorNotFound):
		return invalid, nil
	case err != nil:
		return invalid, err
	}

	e.logger.Info(ctx, "token rotated", "user_id", rec.UserID, "old_token_id", rec.ID, "new_token_id", newID)
	return RefreshResult{Outcome: RefreshRotated, Tokens: pair}, nil
}

func (e *RotationEngine) replayed(ctx context.Context, rec *models.TokenRecord) (RefreshResult, error) {
	n, err := e.tokens.RevokeFamily(ctx, rec.FamilyID)
	if err != nil {
		return RefreshResult{Outcome: RefreshReplayed}, fmt.Errorf("revoke family: %w", err)
	}
	e.logger.Error(ctx, "refresh token replay detected, family revoked",
		"token_id", rec.ID, "family_id", rec.FamilyID, "user_id", rec.UserID, "revoked", n)
	e.audit.Error(ctx, "refresh token replay", "event", "token.replay",
		"user_id", rec.UserID, "family_id", rec.FamilyID, "token_id", rec.ID)
	return RefreshResult{Outcome: RefreshReplayed}, nil
}

// Logout revokes the single record behind raw, leaving other tokens of the
// family alone. It reports whether raw matched a record.
func (e *RotationEngine) Logout(ctx context.Context, raw string) (bool, error) {
	rec, err := e.find(ctx, raw)
	if err != nil {
		e.metrics.Logout("error")
		return false, err
	}
	if rec == nil {
		e.metrics.Logout("unknown")
		return false, nil
	}
	if err := e.tokens.RevokeToken(ctx, rec.ID); err != nil {
		e.metrics.Logout("error")
		return false, fmt.Errorf("revoke token: %w", err)
	}
	e.metrics.Logout("revoked")
	e.audit.Info(ctx, "user logged out", "event", "user.logout", "user_id", rec.UserID, "token_id", rec.ID)
	return true, nil
}

// LogoutAll revokes every token of every family the user owns.
func (e *RotationEngine) LogoutAll(ctx context.Context, userID string) (int, error) {
	n, err := e.tokens.RevokeUser(ctx, userID)
	if err != nil {
		e.metrics.Logout("error")
		return 0, fmt.Errorf("revoke user tokens: %w", err)
	}
	e.metrics.Logout("all")
	e.audit.Info(ctx, "user logged out everywhere", "event", "user.logout_all", "user_id", userID, "revoked", n)
	return n, nil
}

// HasActiveRefreshToken reports whether raw is known, unrevoked and
// unexpired. It never rotates or touches the record.
func (e *RotationEngine) HasActiveRefreshToken(ctx context.Context, raw string) (bool, error) {
	rec, err := e.find(ctx, raw)
	if err != nil || rec == nil {
		return false, err
	}
	return !rec.IsRevoked() && !rec.IsExpired(e.now()), nil
}

// find returns (nil, nil) for empty or unknown secrets.
func (e *RotationEngine) find(ctx context.Context, raw string) (*models.TokenRecord, error) {
	if raw == "" {
		return nil, nil
	}
	rec, err := e.tokens.FindByHash(ctx, cryptox.HashRefreshToken(raw, e.cfg.RefreshSalt))
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return rec, nil
}

// issue mints an access token and a refresh secret and hands the new token
// id and hash to store.
func (e *RotationEngine) issue(ctx context.Context, userID string, store func(tokenID, hash string) error) (*TokenPair, string, error) {
	access, expiresAt, err := e.codec.CreateAccessToken(userID, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create access token: %w", err)
	}
	secret, err := cryptox.NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}
	tokenID, err := cryptox.NewTokenID()
	if err != nil {
		return nil, "", err
	}
	if err := store(tokenID, cryptox.HashRefreshToken(secret, e.cfg.RefreshSalt)); err != nil {
		return nil, "", err
	}
	return &TokenPair{
		UserID:          userID,
		AccessToken:     access,
		RefreshToken:    secret,
		AccessExpiresAt: expiresAt,
	}, tokenID, nil
}
