// Package repomanager builds the token and user repositories for the
// configured storage backend and owns their connections.
package repomanager

import (
	"context"
	"fmt"

	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/repositories/refreshtokens"
	"github.com/lexivault/lexivault/internal/server/repositories/users"
)

const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendS3       = "s3"
	BackendPostgres = "postgres"
)

type RepositoryManager interface {
	RefreshTokens() refreshtokens.Repository
	Users() users.Repository
	Close() error
}

// Options selects and configures the storage backend.
type Options struct {
	Backend string
	DataDir string

	RedisURL string
	RedisKey string

	S3       refreshtokens.S3Config
	S3Bucket string
	S3Key    string

	DatabaseDSN string
}

// New connects to the backend named in opts. Postgres databases are
// migrated before use.
func New(ctx context.Context, opts Options, l logging.Logger, m *metrics.Metrics) (RepositoryManager, error) {
	switch opts.Backend {
	case BackendPostgres:
		pm, err := NewPostgresRepositoryManager(ctx, opts.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		if err := pm.RunMigrations(ctx); err != nil {
			_ = pm.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return pm, nil
	case BackendFile, "":
		b, err := refreshtokens.NewFileBackend(opts.DataDir)
		if err != nil {
			return nil, err
		}
		return newAggregateManager(b, opts.DataDir, l, m, nil)
	case BackendRedis:
		client, err := refreshtokens.NewRedisClient(ctx, opts.RedisURL)
		if err != nil {
			return nil, err
		}
		return newAggregateManager(refreshtokens.NewRedisBackend(client, opts.RedisKey), opts.DataDir, l, m, client.Close)
	case BackendS3:
		client, err := refreshtokens.NewS3Client(ctx, opts.S3)
		if err != nil {
			return nil, err
		}
		return newAggregateManager(refreshtokens.NewS3Backend(client, opts.S3Bucket, opts.S3Key), opts.DataDir, l, m, nil)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
