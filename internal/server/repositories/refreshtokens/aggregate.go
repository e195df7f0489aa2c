package refreshtokens

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/logging"
	"github.com/lexivault/lexivault/internal/server/metrics"
	"github.com/lexivault/lexivault/internal/server/models"
)

// Backend persists the serialized aggregate. Implementations decide how the
// critical section is enforced: a mutex, an optimistic transaction or a
// conditional write.
type Backend interface {
	// Name labels logs and metrics ("file", "redis", "s3").
	Name() string

	// Read returns the stored document, or nil when nothing is stored yet.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the stored document unconditionally.
	Write(ctx context.Context, data []byte) error

	// Update runs fn on the current document and stores its result, with no
	// other Update interleaving. A nil result means "nothing changed". fn may
	// run more than once when the backend retries.
	Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error

	// Preserve stores a copy of an undecodable document next to the live one.
	Preserve(ctx context.Context, data []byte) (string, error)

	Ping(ctx context.Context) error
}

// Option configures an AggregateRepository.
type Option func(*AggregateRepository)

// WithMetrics counts degraded loads.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *AggregateRepository) { r.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *AggregateRepository) { r.now = now }
}

// AggregateRepository implements Repository by reading, mutating and writing
// the whole RefreshStore as one unit.
type AggregateRepository struct {
	backend Backend
	logger  logging.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

var _ Repository = (*AggregateRepository)(nil)

func NewAggregateRepository(b Backend, l logging.Logger, opts ...Option) *AggregateRepository {
	r := &AggregateRepository{
		backend: b,
		logger:  l.With("module", "token_store", "backend", b.Name()),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load returns the current aggregate. A missing document yields an empty
// store; an unreadable or corrupt one is logged, counted and also yields an
// empty store so callers keep working.
func (r *AggregateRepository) Load(ctx context.Context) *models.RefreshStore {
	raw, err := r.backend.Read(ctx)
	if err != nil {
		r.logger.Error(ctx, "token store unreadable, continuing with empty store", "error", err)
		r.metrics.DegradedLoad(r.backend.Name())
		return models.NewRefreshStore()
	}
	store, _ := r.decode(ctx, raw)
	return store
}

// Save replaces the stored aggregate with s and stamps its UpdatedAt.
func (r *AggregateRepository) Save(ctx context.Context, s *models.RefreshStore) error {
	s.UpdatedAt = r.now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token store: %w", err)
	}
	if err := r.backend.Write(ctx, data); err != nil {
		return fmt.Errorf("save token store: %w", err)
	}
	return nil
}

// decode parses raw. The second result reports corruption.
func (r *AggregateRepository) decode(ctx context.Context, raw []byte) (*models.RefreshStore, bool) {
	if len(raw) == 0 {
		return models.NewRefreshStore(), false
	}
	var s models.RefreshStore
	if err := json.Unmarshal(raw, &s); err != nil {
		r.logger.Error(ctx, "token store corrupt, continuing with empty store", "error", err, "bytes", len(raw))
		r.metrics.DegradedLoad(r.backend.Name())
		return models.NewRefreshStore(), true
	}
	s.Normalize()
	return &s, false
}

// mutate runs fn inside the backend's critical section. fn reports whether
// it changed the store; unchanged stores are not written back.
func (r *AggregateRepository) mutate(ctx context.Context, fn func(s *models.RefreshStore, now time.Time) (bool, error)) error {
	preserved := false
	return r.backend.Update(ctx, func(raw []byte) ([]byte, error) {
		store, corrupt := r.decode(ctx, raw)
		if corrupt && !preserved {
			where, err := r.backend.Preserve(ctx, raw)
			if err != nil {
				return nil, fmt.Errorf("preserve corrupt token store: %w", err)
			}
			preserved = true
			r.logger.Warn(ctx, "corrupt token store preserved before overwrite", "copy", where)
		}

		now := r.now().UTC()
		changed, err := fn(store, now)
		if err != nil || !changed {
			return nil, err
		}

		store.UpdatedAt = now
		data, err := json.MarshalIndent(store, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encode token store: %w", err)
		}
		return data, nil
	})
}

func (r *AggregateRepository) FindByHash(ctx context.Context, tokenHash string) (*models.TokenRecord, error) {
	rec, ok := r.Load(ctx).FindByHash(tokenHash)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *AggregateRepository) Get(ctx context.Context, tokenID string) (*models.TokenRecord, error) {
	rec, ok := r.Load(ctx).Tokens[tokenID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return rec.Clone(), nil
}

func (r *AggregateRepository) Family(ctx context.Context, familyID string) ([]*models.TokenRecord, error) {
	recs := r.Load(ctx).Family(familyID)
	out := make([]*models.TokenRecord, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (r *AggregateRepository) AddToken(ctx context.Context, tokenID, userID, tokenHash, familyID, prevTokenID string, ttl time.Duration) error {
	return r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		if _, exists := s.Tokens[tokenID]; exists {
			return false, fmt.Errorf("token %s already exists", tokenID)
		}
		s.Insert(newRecord(tokenID, userID, tokenHash, familyID, prevTokenID, now, ttl))
		return true, nil
	})
}

func (r *AggregateRepository) MarkReplaced(ctx context.Context, tokenID, newTokenID string) error {
	return r.mutate(ctx, func(s *models.RefreshStore, _ time.Time) (bool, error) {
		rec, ok := s.Tokens[tokenID]
		if !ok {
			return false, nil
		}
		return rec.MarkReplaced(newTokenID), nil
	})
}

func (r *AggregateRepository) RevokeToken(ctx context.Context, tokenID string) error {
	return r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		rec, ok := s.Tokens[tokenID]
		if !ok {
			return false, nil
		}
		return rec.Revoke(now), nil
	})
}

func (r *AggregateRepository) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	var n int
	err := r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		n = revokeAll(s.Family(familyID), now)
		return n > 0, nil
	})
	return n, err
}

func (r *AggregateRepository) RevokeUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		n = revokeAll(s.UserTokens(userID), now)
		return n > 0, nil
	})
	return n, err
}

func (r *AggregateRepository) UpdateLastUsed(ctx context.Context, tokenID string) error {
	return r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		rec, ok := s.Tokens[tokenID]
		if !ok {
			return false, nil
		}
		rec.Touch(now)
		return true, nil
	})
}

func (r *AggregateRepository) Rotate(ctx context.Context, oldTokenID, newTokenID, newTokenHash string, ttl time.Duration) (*models.TokenRecord, error) {
	var before *models.TokenRecord
	err := r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		old, ok := s.Tokens[oldTokenID]
		if !ok {
			return false, common.ErrorNotFound
		}
		before = old.Clone()
		if err := rotatable(old, now); err != nil {
			return false, err
		}

		s.Insert(newRecord(newTokenID, old.UserID, newTokenHash, old.FamilyID, old.ID, now, ttl))
		old.MarkReplaced(newTokenID)
		old.Touch(now)
		return true, nil
	})
	return before, err
}

func (r *AggregateRepository) CleanupExpired(ctx context.Context) (int, error) {
	var n int
	err := r.mutate(ctx, func(s *models.RefreshStore, now time.Time) (bool, error) {
		n = 0
		for id, rec := range s.Tokens {
			if rec.IsExpired(now) {
				s.Delete(id)
				n++
			}
		}
		return n > 0, nil
	})
	return n, err
}

func (r *AggregateRepository) Ping(ctx context.Context) error {
	return r.backend.Ping(ctx)
}

func newRecord(tokenID, userID, tokenHash, familyID, prevTokenID string, now time.Time, ttl time.Duration) *models.TokenRecord {
	return &models.TokenRecord{
		ID:          tokenID,
		UserID:      userID,
		TokenHash:   tokenHash,
		FamilyID:    familyID,
		PrevTokenID: prevTokenID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

// rotatable applies the refresh decision order to the stored record: expired
// and revoked records are invalid, a record with a successor is a replay.
func rotatable(rec *models.TokenRecord, now time.Time) error {
	switch {
	case rec.IsExpired(now):
		return common.ErrInvalidToken
	case rec.IsReplaced():
		return common.ErrAlreadyReplaced
	case rec.IsRevoked():
		return common.ErrInvalidToken
	default:
		return nil
	}
}

func revokeAll(recs []*models.TokenRecord, now time.Time) int {
	n := 0
	for _, rec := range recs {
		if rec.Revoke(now) {
			n++
		}
	}
	return n
}
