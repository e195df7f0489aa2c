// Package httpapi is the gin transport for the auth endpoints: register,
// login, refresh, logout, status and the current user (read or delete), plus /healthz and
// /metrics.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/services"
)

// Pinger reports whether the token store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth     *services.AuthService
	Accounts *services.AccountService
	Cookies  CookieConfig
	Health   Pinger
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), Metrics(d.Metrics), AccessLog(d.Logger.With("module", "http")))

	r.GET("/healthz", healthz(d.Health))
	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	h := NewAuthHandler(d.Auth, d.Accounts, d.Cookies, d.Logger)
	api := r.Group("/api/auth")
	{
		api.POST("/register", h.Register)
		api.POST("/login", h.Login)
		api.POST("/refresh", h.Refresh)
		api.GET("/status", h.Status)

		authed := api.Group("", RequireAuth(d.Auth))
		authed.POST("/logout", h.Logout)
		authed.POST("/logout-all", h.LogoutAll)
		authed.GET("/me", h.Me)
		authed.DELETE("/me", h.DeleteMe)
	}
	return r
}

func healthz(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := p.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

type Server struct {
	address string
	handler http.Handler
	logger  logging.Logger
}

func NewServer(address string, h http.Handler, l logging.Logger) *Server {
	return &Server{address: address, handler: h, logger: l.With("module", "http_server")}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
