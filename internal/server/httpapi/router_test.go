package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/cryptox"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/auth"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/repositories/refreshtokens"
	"github.com/lexivault/lexivault/internal/server/repositories/users"
	"github.com/lexivault/lexivault/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refreshTTL = 30 * 24 * time.Hour

type env struct {
	router   *gin.Engine
	svc      *services.AuthService
	accounts *services.AccountService
	engine   *services.RotationEngine
	users    *users.FileRepository
	metrics  *metrics.Metrics
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	backend, err := refreshtokens.NewFileBackend(dir)
	require.NoError(t, err)
	tokens := refreshtokens.NewAggregateRepository(backend, logging.Nop{})

	userRepo, err := users.NewFileRepository(dir)
	require.NoError(t, err)

	codec, err := auth.NewCodec("http-test-secret", 15*time.Minute)
	require.NoError(t, err)

	hasher := cryptox.NewPasswordHasher("").WithParams(cryptox.Argon2Params{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	m := metrics.New()
	engine := services.NewRotationEngine(tokens, codec, userRepo, hasher,
		services.EngineConfig{RefreshSalt: "salt", RefreshTTL: refreshTTL}, logging.Nop{}, m)

	e := &env{
		svc:      services.NewAuthService(engine, codec, userRepo),
		accounts: services.NewAccountService(userRepo, hasher, engine, logging.Nop{}),
		engine:   engine,
		users:    userRepo,
		metrics:  m,
	}
	e.router = NewRouter(Deps{
		Auth:     e.svc,
		Accounts: e.accounts,
		Cookies:  CookieConfig{SameSite: http.SameSiteLaxMode, MaxAge: refreshTTL},
		Health:   tokens,
		Metrics:  m,
		Logger:   logging.Nop{},
	})
	return e
}

type reqOpt func(*http.Request)

func withBearer(token string) reqOpt {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withHeader(k, v string) reqOpt {
	return func(r *http.Request) { r.Header.Set(k, v) }
}

func withRefresh(raw string) reqOpt {
	return func(r *http.Request) { r.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: raw}) }
}

func (e *env) do(method, path, body string, opts ...reqOpt) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func refreshCookieOf(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.RefreshTokenCookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", common.RefreshTokenCookieName)
	return nil
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.ErrorCode
}

func (e *env) register(t *testing.T, username, password string) string {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/register", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var body registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.UserID
}

// login returns the access token and the refresh secret.
func (e *env) login(t *testing.T, username, password string) (string, string) {
	t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/login", `{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.AccessToken, refreshCookieOf(t, rec).Value
}

func TestRegister(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodPost, "/api/auth/register", `{"username":"alice","password":"pw1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	var body registerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "alice", body.Username)
	assert.NotEmpty(t, body.UserID)

	rec = e.do(http.MethodPost, "/api/auth/register", `{"username":"alice","password":"other"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeUserExists, errorCode(t, rec))

	for _, bad := range []string{`{"username":"bob"}`, `{"password":"x"}`, `not json`} {
		rec = e.do(http.MethodPost, "/api/auth/register", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, CodeValidation, errorCode(t, rec), bad)
	}
}

func TestLogin_SetsRefreshCookie(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")

	rec := e.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.OK)
	assert.Equal(t, "Bearer", body.TokenType)
	assert.NotEmpty(t, body.AccessToken)
	assert.InDelta(t, 900, body.ExpiresIn, 5)

	c := refreshCookieOf(t, rec)
	assert.Len(t, c.Value, 43)
	assert.True(t, c.HttpOnly)
	assert.False(t, c.Secure)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, int(refreshTTL/time.Second), c.MaxAge)
	assert.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestLogin_Failures(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")

	rec := e.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAuthInvalid, errorCode(t, rec))
	assert.Empty(t, rec.Result().Cookies())

	rec = e.do(http.MethodPost, "/api/auth/login", `{"username":"nobody","password":"pw1"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeAuthInvalid, errorCode(t, rec))

	rec = e.do(http.MethodPost, "/api/auth/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh_RotationAndReplay(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	_, r1 := e.login(t, "alice", "pw1")

	rec := e.do(http.MethodPost, "/api/auth/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeRefreshMissing, errorCode(t, rec))

	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(r1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r2 := refreshCookieOf(t, rec).Value
	assert.NotEqual(t, r1, r2)

	// r1 was already rotated: the family is revoked and the cookie cleared.
	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(r1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeRefreshReused, errorCode(t, rec))
	assert.Less(t, refreshCookieOf(t, rec).MaxAge, 0)

	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(r2))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeRefreshInvalid, errorCode(t, rec))
	assert.Less(t, refreshCookieOf(t, rec).MaxAge, 0)
}

func TestRequireAuth(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "alice", "pw1")
	access, _ := e.login(t, "alice", "pw1")

	rec := e.do(http.MethodGet, "/api/auth/me", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	var me meResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, meResponse{UserID: userID, Username: "alice", Roles: []string{"user"}}, me)

	tests := []struct {
		name string
		opts []reqOpt
		code string
	}{
		{"no header", nil, CodeAuthRequired},
		{"wrong scheme", []reqOpt{withHeader("Authorization", "Token "+access)}, CodeAuthInvalid},
		{"too many parts", []reqOpt{withHeader("Authorization", "Bearer a b")}, CodeAuthInvalid},
		{"garbage token", []reqOpt{withBearer("not-a-jwt")}, CodeAuthExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/auth/me", "", tt.opts...)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, tt.code, errorCode(t, rec))
		})
	}

	_, err := e.accounts.Disable(context.Background(), userID)
	require.NoError(t, err)
	rec = e.do(http.MethodGet, "/api/auth/me", "", withBearer(access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUserDisabled, errorCode(t, rec))
}

func TestRequireAuth_NilService(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", RequireAuth(nil), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer whatever")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestLogout(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	access, r1 := e.login(t, "alice", "pw1")

	rec := e.do(http.MethodPost, "/api/auth/logout", "", withRefresh(r1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "logout requires an access token")

	rec = e.do(http.MethodPost, "/api/auth/logout", "", withBearer(access), withRefresh(r1))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Less(t, refreshCookieOf(t, rec).MaxAge, 0)

	// Revoked, not replayed.
	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(r1))
	assert.Equal(t, CodeRefreshInvalid, errorCode(t, rec))

	// No cookie at all is still a successful logout.
	rec = e.do(http.MethodPost, "/api/auth/logout", "", withBearer(access))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogoutAll(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	access, r1 := e.login(t, "alice", "pw1")
	_, r2 := e.login(t, "alice", "pw1")

	rec := e.do(http.MethodPost, "/api/auth/logout-all", "", withBearer(access))
	require.Equal(t, http.StatusOK, rec.Code)
	var body logoutAllResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Revoked)

	for _, raw := range []string{r1, r2} {
		rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(raw))
		assert.Equal(t, CodeRefreshInvalid, errorCode(t, rec))
	}
}

func TestDeleteMe(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	access, r1 := e.login(t, "alice", "pw1")
	_, r2 := e.login(t, "alice", "pw1")

	rec := e.do(http.MethodDelete, "/api/auth/me", "", withRefresh(r1))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "delete requires an access token")

	rec = e.do(http.MethodDelete, "/api/auth/me", "", withBearer(access), withRefresh(r1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	assert.Less(t, refreshCookieOf(t, rec).MaxAge, 0)

	for _, raw := range []string{r1, r2} {
		rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(raw))
		assert.Equal(t, CodeRefreshInvalid, errorCode(t, rec))
	}

	rec = e.do(http.MethodGet, "/api/auth/me", "", withBearer(access))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, CodeUserDisabled, errorCode(t, rec))

	rec = e.do(http.MethodPost, "/api/auth/login", `{"username":"alice","password":"pw1"}`)
	assert.Equal(t, CodeAuthInvalid, errorCode(t, rec))

	// The name is free again.
	e.register(t, "alice", "pw2")
}

type failingDeleteStore struct {
	*users.FileRepository
}

func (failingDeleteStore) Delete(context.Context, string) error { return errors.New("disk full") }

func TestDeleteMe_StoreFailure(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	access, r1 := e.login(t, "alice", "pw1")

	r := NewRouter(Deps{
		Auth:     e.svc,
		Accounts: services.NewAccountService(failingDeleteStore{e.users}, nil, e.engine, logging.Nop{}),
		Cookies:  CookieConfig{SameSite: http.SameSiteLaxMode, MaxAge: refreshTTL},
		Metrics:  e.metrics,
		Logger:   logging.Nop{},
	})
	req := httptest.NewRequest(http.MethodDelete, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: r1})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeDeleteFailed, errorCode(t, rec))

	// The account survives; its sessions do not.
	rec = e.do(http.MethodGet, "/api/auth/me", "", withBearer(access))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = e.do(http.MethodPost, "/api/auth/refresh", "", withRefresh(r1))
	assert.Equal(t, CodeRefreshInvalid, errorCode(t, rec))
}

func TestStatus(t *testing.T) {
	e := newEnv(t)
	userID := e.register(t, "alice", "pw1")
	access, r1 := e.login(t, "alice", "pw1")

	tests := []struct {
		name string
		opts []reqOpt
		want statusResponse
	}{
		{"guest", nil, statusResponse{OK: true}},
		{"refresh only", []reqOpt{withRefresh(r1)}, statusResponse{OK: true, CanRefresh: true}},
		{"bad access", []reqOpt{withBearer("junk"), withRefresh(r1)}, statusResponse{OK: true, CanRefresh: true}},
		{"unknown refresh", []reqOpt{withRefresh("nope")}, statusResponse{OK: true}},
		{"both", []reqOpt{withBearer(access), withRefresh(r1)}, statusResponse{OK: true, Authenticated: true, CanRefresh: true, UserID: userID, Username: "alice"}},
		{"access only", []reqOpt{withBearer(access)}, statusResponse{OK: true, Authenticated: true, UserID: userID, Username: "alice"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodGet, "/api/auth/status", "", tt.opts...)
			require.Equal(t, http.StatusOK, rec.Code)
			var got statusResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_NilServiceIsGuest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(Deps{Logger: logging.Nop{}})

	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"authenticated":false,"canRefresh":false}`, rec.Body.String())
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := NewRouter(Deps{Logger: logging.Nop{}, Health: pingerFunc(func(context.Context) error { return nil })})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	r = NewRouter(Deps{Logger: logging.Nop{}, Health: pingerFunc(func(context.Context) error { return errors.New("down") })})
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t)
	e.register(t, "alice", "pw1")
	e.login(t, "alice", "pw1")

	rec := e.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{endpoint="/api/auth/login",method="POST",status="200"} 1`)
	assert.Contains(t, body, `auth_login_total{result="success"} 1`)
}

func TestRequestID(t *testing.T) {
	e := newEnv(t)

	rec := e.do(http.MethodGet, "/api/auth/status", "", withHeader("X-Request-ID", "req-42"))
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))

	rec = e.do(http.MethodGet, "/api/auth/status", "")
	assert.Len(t, rec.Header().Get("X-Request-ID"), 36)
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer("127.0.0.1:0", NewRouter(Deps{Logger: logging.Nop{}}), logging.Nop{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestServer_RunBadAddress(t *testing.T) {
	srv := NewServer("127.0.0.1:99999", http.NotFoundHandler(), logging.Nop{})
	if err := srv.Run(context.Background()); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}

func TestParseSameSite(t *testing.T) {
	assert.Equal(t, http.SameSiteStrictMode, ParseSameSite("Strict"))
	assert.Equal(t, http.SameSiteNoneMode, ParseSameSite("none"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite("lax"))
	assert.Equal(t, http.SameSiteLaxMode, ParseSameSite(""))
}
