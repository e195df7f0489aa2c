package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/server/auth"
	"github.com/lexivault/lexivault/internal/server/models"
)

// AuthStatus answers "is this session usable" without consuming anything.
// CanRefresh is derived from the refresh token alone.
type AuthStatus struct {
	Authenticated bool
	CanRefresh    bool
	UserID        string
}

// AuthService is the facade transports call. It holds no state of its own,
// so several instances over the same engine and codec are interchangeable.
type AuthService struct {
	engine *RotationEngine
	codec  *auth.Codec
	users  UserFinder
}

func NewAuthService(engine *RotationEngine, codec *auth.Codec, users UserFinder) *AuthService {
	return &AuthService{engine: engine, codec: codec, users: users}
}

// Login returns common.ErrorUnauthorized for any credential failure.
func (s *AuthService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	if s == nil {
		return nil, common.ErrServiceNotInitialized
	}
	pair, ok, err := s.engine.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	if !ok {
		return nil, common.ErrorUnauthorized
	}
	return pair, nil
}

// Refresh rotates raw. Unknown, expired and revoked tokens give
// common.ErrInvalidToken; a replay gives common.ErrRefreshTokenReused after
// the family has been revoked.
func (s *AuthService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	if s == nil {
		return nil, common.ErrServiceNotInitialized
	}
	res, err := s.engine.Refresh(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrorInternal, err)
	}
	switch res.Outcome {
	case RefreshRotated:
		return res.Tokens, nil
	case RefreshReplayed:
		return nil, common.ErrRefreshTokenReused
	default:
		return nil, common.ErrInvalidToken
	}
}

func (s *AuthService) Logout(ctx context.Context, raw string) (bool, error) {
	if s == nil {
		return false, common.ErrServiceNotInitialized
	}
	return s.engine.Logout(ctx, raw)
}

func (s *AuthService) LogoutAll(ctx context.Context, userID string) (int, error) {
	if s == nil {
		return 0, common.ErrServiceNotInitialized
	}
	return s.engine.LogoutAll(ctx, userID)
}

func (s *AuthService) HasActiveRefreshToken(ctx context.Context, raw string) (bool, error) {
	if s == nil {
		return false, common.ErrServiceNotInitialized
	}
	return s.engine.HasActiveRefreshToken(ctx, raw)
}

// VerifyAccessToken returns the subject of a valid access token.
func (s *AuthService) VerifyAccessToken(token string) (string, bool) {
	if s == nil {
		return "", false
	}
	claims, ok := s.codec.VerifyAccessToken(strings.TrimSpace(token))
	if !ok || claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

func (s *AuthService) EvaluateAuthStatus(ctx context.Context, accessToken, refreshToken string) (AuthStatus, error) {
	if s == nil {
		return AuthStatus{}, common.ErrServiceNotInitialized
	}
	var st AuthStatus
	canRefresh, err := s.engine.HasActiveRefreshToken(ctx, refreshToken)
	if err != nil {
		return st, err
	}
	st.CanRefresh = canRefresh

	if accessToken == "" {
		return st, nil
	}
	if userID, ok := s.VerifyAccessToken(accessToken); ok {
		st.Authenticated = true
		st.UserID = userID
	}
	return st, nil
}

// CurrentUser resolves the subject of a verified access token to an enabled
// account. Missing and disabled accounts give common.ErrUserDisabled.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*models.User, error) {
	if s == nil {
		return nil, common.ErrServiceNotInitialized
	}
	u, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, common.ErrUserDisabled
	}
	if err != nil {
		return nil, err
	}
	if u.Disabled {
		return nil, common.ErrUserDisabled
	}
	return u, nil
}
