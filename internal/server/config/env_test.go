package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestApplyEnv(t *testing.T) {
	var c Config
	c.LoadDefaults()

	err := applyEnv(&c, lookupFrom(map[string]string{
		"VOCAB_DATA_DIR":                 "/srv/vocab",
		"VOCAB_JWT_SECRET_KEY":           "env-secret",
		"VOCAB_REFRESH_TOKEN_SALT":       "env-salt",
		"VOCAB_ACCESS_TOKEN_TTL_MINUTES": "30",
		"VOCAB_REFRESH_TOKEN_TTL_DAYS":   "7",
		"VOCAB_COOKIE_SECURE":            "true",
		"VOCAB_COOKIE_SAMESITE":          "Strict",
		"VOCAB_PASSWORD_PEPPER":          "pep",
		"VOCAB_SWEEP_INTERVAL_SECONDS":   "60",
		"VOCAB_LOG_LEVEL":                "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/srv/vocab", c.DataDir)
	assert.Equal(t, "env-secret", c.JWTSecret)
	assert.Equal(t, "env-salt", c.RefreshSalt)
	assert.Equal(t, 30*time.Minute, c.AccessTokenTTL)
	assert.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	assert.True(t, c.CookieSecure)
	assert.Equal(t, "Strict", c.CookieSameSite)
	assert.Equal(t, "pep", c.PasswordPepper)
	assert.Equal(t, time.Minute, c.SweepInterval)
	assert.Equal(t, "info", c.LogLevel, "empty values are ignored")
}

func TestApplyEnv_Malformed(t *testing.T) {
	var c Config
	assert.Error(t, applyEnv(&c, lookupFrom(map[string]string{"VOCAB_COOKIE_SECURE": "maybe"})))
	assert.Error(t, applyEnv(&c, lookupFrom(map[string]string{"VOCAB_REFRESH_TOKEN_TTL_DAYS": "a week"})))
}

func TestParseEnv_DotenvFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	envFile := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("VOCAB_GRPC_ADDR=:6000\nVOCAB_JWT_ISSUER=from-dotenv\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("VOCAB_GRPC_ADDR")
		os.Unsetenv("VOCAB_JWT_ISSUER")
	})
	// Real environment wins over the file.
	t.Setenv("VOCAB_JWT_ISSUER", "from-env")

	os.Args = []string{"testbin", "-env-file", envFile}
	var c Config
	c.LoadDefaults()
	parseEnv(&c)

	assert.Equal(t, ":6000", c.GRPCAddr)
	assert.Equal(t, "from-env", c.JWTIssuer)
}

func TestParseEnv_MissingNamedFilePanics(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	os.Args = []string{"testbin", "-env-file", filepath.Join(t.TempDir(), "absent.env")}
	assert.Panics(t, func() { parseEnv(&Config{}) })
}
