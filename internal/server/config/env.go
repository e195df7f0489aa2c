package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/lexivault/lexivault/internal/flagx"
)

// EnvPrefix starts every environment variable the server reads.
const EnvPrefix = "VOCAB_"

// parseEnv loads a dotenv file (the one named by -env-file, else ./.env if
// present) without overriding variables already set, then applies VOCAB_*
// variables to config. Malformed values panic.
func parseEnv(config *Config) {
	if path := flagx.EnvFilePath(os.Args[1:]); path != "" {
		if err := godotenv.Load(path); err != nil {
			panic(err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if err := applyEnv(config, os.LookupEnv); err != nil {
		panic(err)
	}
}

func applyEnv(config *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}

	str("HTTP_ADDR", &config.HTTPAddr)
	str("GRPC_ADDR", &config.GRPCAddr)
	str("DATA_DIR", &config.DataDir)
	str("STORE_BACKEND", &config.StoreBackend)
	str("DATABASE_DSN", &config.DatabaseDSN)
	str("REDIS_URL", &config.RedisURL)
	str("REDIS_KEY", &config.RedisKey)
	str("S3_BUCKET", &config.S3Bucket)
	str("S3_KEY", &config.S3Key)
	str("S3_REGION", &config.S3Region)
	str("S3_ENDPOINT", &config.S3BaseEndpoint)
	str("S3_ACCESS_KEY", &config.S3AccessKey)
	str("S3_SECRET_KEY", &config.S3SecretKey)
	str("JWT_SECRET_KEY", &config.JWTSecret)
	str("JWT_ALGORITHM", &config.JWTAlgorithm)
	str("JWT_ISSUER", &config.JWTIssuer)
	str("REFRESH_TOKEN_SALT", &config.RefreshSalt)
	str("PASSWORD_PEPPER", &config.PasswordPepper)
	str("COOKIE_SAMESITE", &config.CookieSameSite)
	str("COOKIE_DOMAIN", &config.CookieDomain)
	str("LOG_FORMAT", &config.LogFormat)
	str("LOG_LEVEL", &config.LogLevel)

	if v, ok := lookup(EnvPrefix + "COOKIE_SECURE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sCOOKIE_SECURE: %w", EnvPrefix, err)
		}
		config.CookieSecure = b
	}

	units := []struct {
		name string
		unit time.Duration
		dst  *time.Duration
	}{
		{"ACCESS_TOKEN_TTL_MINUTES", time.Minute, &config.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL_DAYS", 24 * time.Hour, &config.RefreshTokenTTL},
		{"SWEEP_INTERVAL_SECONDS", time.Second, &config.SweepInterval},
	}
	for _, u := range units {
		v, ok := lookup(EnvPrefix + u.name)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, u.name, err)
		}
		*u.dst = time.Duration(n) * u.unit
	}
	return nil
}
