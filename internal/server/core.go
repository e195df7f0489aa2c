package server

import (
	"context"
	"fmt"

	"github.com/lexivault/lexivault/internal/cryptox"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/auth"
	"github.com/lexivault/lexivault/internal/server/config"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/repositories/refreshtokens"
	"github.com/lexivault/lexivault/internal/server/repositories/repomanager"
	"github.com/lexivault/lexivault/internal/server/services"
	"github.com/lexivault/lexivault/internal/server/sweeper"
)

// Core is the transport-independent part of the server: storage, the
// rotation engine and the services built on it. cmd/tokenctl uses it
// directly.
type Core struct {
	Repos    repomanager.RepositoryManager
	Codec    *auth.Codec
	Engine   *services.RotationEngine
	Auth     *services.AuthService
	Accounts *services.AccountService
	Sweeper  *sweeper.Sweeper
}

func NewCore(ctx context.Context, c *config.Config, l logging.Logger, m *metrics.Metrics) (*Core, error) {
	repos, err := repomanager.New(ctx, RepositoryOptions(c), l, m)
	if err != nil {
		return nil, fmt.Errorf("storage init error: %w", err)
	}

	codec, err := auth.NewCodec(c.JWTSecret, c.AccessTokenTTL,
		auth.WithAlgorithm(c.JWTAlgorithm),
		auth.WithIssuer(c.JWTIssuer),
	)
	if err != nil {
		_ = repos.Close()
		return nil, fmt.Errorf("jwt init error: %w", err)
	}

	hasher := cryptox.NewPasswordHasher(c.PasswordPepper)
	engine := services.NewRotationEngine(repos.RefreshTokens(), codec, repos.Users(), hasher,
		services.EngineConfig{RefreshSalt: c.RefreshSalt, RefreshTTL: c.RefreshTokenTTL}, l, m)

	return &Core{
		Repos:    repos,
		Codec:    codec,
		Engine:   engine,
		Auth:     services.NewAuthService(engine, codec, repos.Users()),
		Accounts: services.NewAccountService(repos.Users(), hasher, engine, l),
		Sweeper:  sweeper.New(repos.RefreshTokens(), c.SweepInterval, l, m),
	}, nil
}

func (c *Core) Close() error {
	return c.Repos.Close()
}

// RepositoryOptions maps the storage settings of c onto repomanager.Options.
func RepositoryOptions(c *config.Config) repomanager.Options {
	return repomanager.Options{
		Backend:  c.StoreBackend,
		DataDir:  c.DataDir,
		RedisURL: c.RedisURL,
		RedisKey: c.RedisKey,
		S3: refreshtokens.S3Config{
			Region:       c.S3Region,
			BaseEndpoint: c.S3BaseEndpoint,
			AccessKey:    c.S3AccessKey,
			SecretKey:    c.S3SecretKey,
		},
		S3Bucket:    c.S3Bucket,
		S3Key:       c.S3Key,
		DatabaseDSN: c.DatabaseDSN,
	}
}
