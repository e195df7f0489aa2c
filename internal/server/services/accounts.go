package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/models"
)

// ErrInvalidCredentials is returned by Register for empty usernames or
// passwords.
var ErrInvalidCredentials = errors.New("username and password are required")

// AccountStore is the part of the users repository AccountService needs.
type AccountStore interface {
	UserFinder
	Create(ctx context.Context, username, passwordHash string, roles []string) (*models.User, error)
	SetDisabled(ctx context.Context, userID string, disabled bool) error
	Delete(ctx context.Context, userID string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

// AccountService creates, disables and deletes accounts. Disabling and
// deleting also end every session of the account.
type AccountService struct {
	users  AccountStore
	hasher PasswordHasher
	engine *RotationEngine
	audit  logging.Logger
}

func NewAccountService(users AccountStore, hasher PasswordHasher, engine *RotationEngine, l logging.Logger) *AccountService {
	return &AccountService{users: users, hasher: hasher, engine: engine, audit: l.With("module", "audit")}
}

// Register stores a new account. common.ErrUserExists is returned when the
// username is taken.
func (s *AccountService) Register(ctx context.Context, username, password string, roles []string) (*models.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, username, hash, roles)
	if err != nil {
		if errors.Is(err, common.ErrUserExists) {
			s.audit.Warn(ctx, "registration failed", "event", "user.register", "username", username, "result", "exists")
		}
		return nil, err
	}
	s.audit.Info(ctx, "user registered", "event", "user.register", "user_id", u.ID, "username", u.Username, "result", "success")
	return u, nil
}

// Disable marks the account disabled and revokes all of its refresh tokens.
// It returns how many tokens were revoked.
func (s *AccountService) Disable(ctx context.Context, userID string) (int, error) {
	if err := s.users.SetDisabled(ctx, userID, true); err != nil {
		return 0, err
	}
	n, err := s.engine.LogoutAll(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit.Info(ctx, "user disabled", "event", "user.disable", "user_id", userID, "revoked", n)
	return n, nil
}

func (s *AccountService) Enable(ctx context.Context, userID string) error {
	if err := s.users.SetDisabled(ctx, userID, false); err != nil {
		return err
	}
	s.audit.Info(ctx, "user enabled", "event", "user.enable", "user_id", userID)
	return nil
}

// Delete revokes every refresh token of the account and then removes it.
// Access tokens already issued stop working because the subject no longer
// resolves to an account.
func (s *AccountService) Delete(ctx context.Context, userID string) error {
	n, err := s.engine.LogoutAll(ctx, userID)
	if err == nil {
		err = s.users.Delete(ctx, userID)
	}
	if err != nil {
		s.audit.Error(ctx, "user delete failed", "event", "user.delete", "user_id", userID, "result", "failure", "error_code", "DELETE_FAILED", "error", err)
		return err
	}
	s.audit.Info(ctx, "user deleted", "event", "user.delete", "user_id", userID, "revoked", n, "result", "success")
	return nil
}
