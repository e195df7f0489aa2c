package repomanager

import (
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/repositories/refreshtokens"
	"github.com/lexivault/lexivault/internal/server/repositories/users"
)

// AggregateRepositoryManager pairs a single-document token store with the
// file-backed account repository.
type AggregateRepositoryManager struct {
	tokens *refreshtokens.AggregateRepository
	users  *users.FileRepository
	closer func() error
}

func newAggregateManager(b refreshtokens.Backend, dataDir string, l logging.Logger, m *metrics.Metrics, closer func() error) (*AggregateRepositoryManager, error) {
	u, err := users.NewFileRepository(dataDir)
	if err != nil {
		if closer != nil {
			_ = closer()
		}
		return nil, err
	}
	return &AggregateRepositoryManager{
		tokens: refreshtokens.NewAggregateRepository(b, l, refreshtokens.WithMetrics(m)),
		users:  u,
		closer: closer,
	}, nil
}

func (m *AggregateRepositoryManager) RefreshTokens() refreshtokens.Repository { return m.tokens }

func (m *AggregateRepositoryManager) Users() users.Repository { return m.users }

func (m *AggregateRepositoryManager) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer()
}
