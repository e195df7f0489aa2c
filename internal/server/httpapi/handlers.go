package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/services"
)

type AuthHandler struct {
	auth     *services.AuthService
	accounts *services.AccountService
	cookies  CookieConfig
	logger   logging.Logger
}

func NewAuthHandler(auth *services.AuthService, accounts *services.AccountService, cookies CookieConfig, l logging.Logger) *AuthHandler {
	return &AuthHandler{
		auth:     auth,
		accounts: accounts,
		cookies:  cookies,
		logger:   l.With("module", "http_auth"),
	}
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required,max=255"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	OK          bool   `json:"ok"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

type registerResponse struct {
	OK       bool   `json:"ok"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type meResponse struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

type statusResponse struct {
	OK            bool   `json:"ok"`
	Authenticated bool   `json:"authenticated"`
	CanRefresh    bool   `json:"canRefresh"`
	UserID        string `json:"userId,omitempty"`
	Username      string `json:"username,omitempty"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type logoutAllResponse struct {
	OK      bool `json:"ok"`
	Revoked int  `json:"revoked"`
}

// Register creates an account with the default roles.
func (h *AuthHandler) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeValidation, "username and password are required")
		return
	}

	if h.accounts == nil {
		abortWithError(c, http.StatusInternalServerError, CodeNotInitialized, common.ErrServiceNotInitialized.Error())
		return
	}

	u, err := h.accounts.Register(c.Request.Context(), req.Username, req.Password, nil)
	switch {
	case errors.Is(err, common.ErrUserExists):
		abortWithError(c, http.StatusBadRequest, CodeUserExists, "user already exists")
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		abortWithError(c, http.StatusBadRequest, CodeValidation, err.Error())
		return
	case err != nil:
		h.logger.Error(c.Request.Context(), "register failed", "error", err, "request_id", c.GetString(requestIDKey))
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error")
		return
	}

	c.JSON(http.StatusCreated, registerResponse{OK: true, UserID: u.ID, Username: u.Username})
}

// Login returns the access token in the body and the refresh secret in an
// HttpOnly cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, CodeValidation, "username and password are required")
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		abortWithError(c, http.StatusUnauthorized, CodeAuthInvalid, "invalid username or password")
		return
	case err != nil:
		h.internalError(c, "login failed", err)
		return
	}

	h.cookies.setRefresh(c, pair.RefreshToken)
	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Refresh rotates the refresh cookie. Invalid and replayed secrets clear it.
func (h *AuthHandler) Refresh(c *gin.Context) {
	raw := refreshCookie(c)
	if raw == "" {
		abortWithError(c, http.StatusUnauthorized, CodeRefreshMissing, "refresh token missing")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), raw)
	switch {
	case errors.Is(err, common.ErrRefreshTokenReused):
		h.cookies.clearRefresh(c)
		abortWithError(c, http.StatusUnauthorized, CodeRefreshReused, "refresh token reuse detected, please log in again")
		return
	case errors.Is(err, common.ErrInvalidToken):
		h.cookies.clearRefresh(c)
		abortWithError(c, http.StatusUnauthorized, CodeRefreshInvalid, "refresh token invalid or expired")
		return
	case err != nil:
		h.internalError(c, "refresh failed", err)
		return
	}

	h.cookies.setRefresh(c, pair.RefreshToken)
	c.JSON(http.StatusOK, newTokenResponse(pair))
}

// Logout revokes the refresh cookie, if any, and clears it.
func (h *AuthHandler) Logout(c *gin.Context) {
	if raw := refreshCookie(c); raw != "" {
		if _, err := h.auth.Logout(c.Request.Context(), raw); err != nil {
			h.internalError(c, "logout failed", err)
			return
		}
	}
	h.cookies.clearRefresh(c)
	c.JSON(http.StatusOK, okResponse{OK: true})
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	u, _ := CurrentUser(c)
	n, err := h.auth.LogoutAll(c.Request.Context(), u.ID)
	if err != nil {
		h.internalError(c, "logout-all failed", err)
		return
	}
	h.cookies.clearRefresh(c)
	c.JSON(http.StatusOK, logoutAllResponse{OK: true, Revoked: n})
}

func (h *AuthHandler) Me(c *gin.Context) {
	u, _ := CurrentUser(c)
	c.JSON(http.StatusOK, meResponse{UserID: u.ID, Username: u.Username, Roles: u.Roles})
}

// DeleteMe ends the caller's sessions and removes the account.
func (h *AuthHandler) DeleteMe(c *gin.Context) {
	u, _ := CurrentUser(c)
	if h.accounts == nil {
		abortWithError(c, http.StatusInternalServerError, CodeNotInitialized, common.ErrServiceNotInitialized.Error())
		return
	}

	if raw := refreshCookie(c); raw != "" {
		if _, err := h.auth.Logout(c.Request.Context(), raw); err != nil {
			h.logger.Warn(c.Request.Context(), "revoking refresh cookie before delete", "error", err, "request_id", c.GetString(requestIDKey))
		}
	}
	h.cookies.clearRefresh(c)

	if err := h.accounts.Delete(c.Request.Context(), u.ID); err != nil {
		h.logger.Error(c.Request.Context(), "delete account failed", "error", err, "request_id", c.GetString(requestIDKey))
		abortWithError(c, http.StatusInternalServerError, CodeDeleteFailed, "failed to delete account")
		return
	}
	c.JSON(http.StatusOK, okResponse{OK: true})
}

// Status never answers 401; any failure reads as a guest.
func (h *AuthHandler) Status(c *gin.Context) {
	guest := statusResponse{OK: true}
	if h.auth == nil {
		c.JSON(http.StatusOK, guest)
		return
	}

	access, _ := bearerToken(c.GetHeader(common.AuthorizationHeaderName))
	st, err := h.auth.EvaluateAuthStatus(c.Request.Context(), access, refreshCookie(c))
	if err != nil {
		h.logger.Error(c.Request.Context(), "status evaluation failed", "error", err, "request_id", c.GetString(requestIDKey))
		c.JSON(http.StatusOK, guest)
		return
	}

	resp := statusResponse{
		OK:            true,
		Authenticated: st.Authenticated,
		CanRefresh:    st.CanRefresh,
		UserID:        st.UserID,
	}
	if st.Authenticated {
		if u, err := h.auth.CurrentUser(c.Request.Context(), st.UserID); err == nil {
			resp.Username = u.Username
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) internalError(c *gin.Context, msg string, err error) {
	if errors.Is(err, common.ErrServiceNotInitialized) {
		abortWithError(c, http.StatusInternalServerError, CodeNotInitialized, err.Error())
		return
	}
	h.logger.Error(c.Request.Context(), msg, "error", err, "request_id", c.GetString(requestIDKey))
	abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error")
}

func newTokenResponse(pair *services.TokenPair) tokenResponse {
	expiresIn := int(time.Until(pair.AccessExpiresAt) / time.Second)
	if expiresIn < 0 {
		expiresIn = 0
	}
	return tokenResponse{
		OK:          true,
		AccessToken: pair.AccessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}
}
