package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexivault/lexivault/internal/common"
)

// CookieConfig controls the refresh token cookie. The cookie is always
// HttpOnly and scoped to "/".
type CookieConfig struct {
	Secure   bool
	SameSite http.SameSite
	Domain   string
	MaxAge   time.Duration
}

// ParseSameSite maps "lax", "strict" and "none" to http.SameSite. Anything
// else is treated as lax.
func ParseSameSite(s string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

func (cc CookieConfig) setRefresh(c *gin.Context, value string) {
	c.SetSameSite(cc.SameSite)
	c.SetCookie(common.RefreshTokenCookieName, value, int(cc.MaxAge/time.Second), "/", cc.Domain, cc.Secure, true)
}

func (cc CookieConfig) clearRefresh(c *gin.Context) {
	c.SetSameSite(cc.SameSite)
	c.SetCookie(common.RefreshTokenCookieName, "", -1, "/", cc.Domain, cc.Secure, true)
}

func refreshCookie(c *gin.Context) string {
	v, err := c.Cookie(common.RefreshTokenCookieName)
	if err != nil {
		return ""
	}
	return v
}
