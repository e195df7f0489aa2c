package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/models"
	"github.com/lexivault/lexivault/internal/server/services"
)

const (
	requestIDHeader = "X-Request-ID"

	requestIDKey = "requestID"
	userKey      = "user"
)

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one line per request once the handler chain is done.
func AccessLog(l logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		l.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", c.GetString(requestIDKey),
		)
	}
}

// Metrics records request count, duration and in-flight requests. Routes
// are labelled by their pattern, unmatched requests by "unknown".
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		done := m.RequestStarted()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}
		done(c.Request.Method, endpoint, c.Writer.Status())
	}
}

// RequireAuth admits requests carrying a valid Bearer access token whose
// subject is an enabled account. The account is available to handlers
// through CurrentUser.
func RequireAuth(svc *services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(common.AuthorizationHeaderName)
		if header == "" {
			abortWithError(c, http.StatusUnauthorized, CodeAuthRequired, "authorization header required")
			return
		}

		token, ok := bearerToken(header)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, CodeAuthInvalid, "invalid authorization header format")
			return
		}

		if svc == nil {
			abortWithError(c, http.StatusInternalServerError, CodeNotInitialized, "auth service not initialized")
			return
		}

		userID, ok := svc.VerifyAccessToken(token)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, CodeAuthExpired, "invalid or expired token")
			return
		}

		user, err := svc.CurrentUser(c.Request.Context(), userID)
		switch {
		case errors.Is(err, common.ErrUserDisabled):
			abortWithError(c, http.StatusUnauthorized, CodeUserDisabled, "user is disabled")
			return
		case err != nil:
			abortWithError(c, http.StatusInternalServerError, CodeInternal, "internal error")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// CurrentUser returns the account admitted by RequireAuth.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return nil, false
	}
	u, ok := v.(*models.User)
	return u, ok
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// matched case-insensitively.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
