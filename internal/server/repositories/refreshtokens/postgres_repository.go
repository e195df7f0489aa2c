package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/dbx"
	"github.com/lexivault/lexivault/internal/server/models"
)

const tokenColumns = `id, user_id, token_hash, family_id, prev_token_id, issued_at, expires_at, revoked_at, replaced_by_token_id, last_used_at`

// PostgresRepository stores one row per token; the user and family indexes
// are real indexes. Single-row changes are single statements and Rotate runs
// in a transaction holding a row lock on the old token, so unrelated users
// never serialize against each other.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.TokenRecord, error) {
	var (
		rec        models.TokenRecord
		prev       sql.NullString
		replacedBy sql.NullString
		revokedAt  sql.NullTime
		lastUsedAt sql.NullTime
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.FamilyID, &prev,
		&rec.IssuedAt, &rec.ExpiresAt, &revokedAt, &replacedBy, &lastUsedAt); err != nil {
		return nil, err
	}
	rec.PrevTokenID = prev.String
	rec.ReplacedByTokenID = replacedBy.String
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	if lastUsedAt.Valid {
		t := lastUsedAt.Time
		rec.LastUsedAt = &t
	}
	return &rec, nil
}

func queryOne(ctx context.Context, q dbx.DBTX, query string, args ...any) (*models.TokenRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, tokenHash string) (*models.TokenRecord, error) {
	return queryOne(ctx, r.db, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
}

func (r *PostgresRepository) Get(ctx context.Context, tokenID string) (*models.TokenRecord, error) {
	return queryOne(ctx, r.db, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE id = $1`, tokenID)
}

func (r *PostgresRepository) Family(ctx context.Context, familyID string) ([]*models.TokenRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE family_id = $1 ORDER BY issued_at, id`, familyID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []*models.TokenRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) AddToken(ctx context.Context, tokenID, userID, tokenHash, familyID, prevTokenID string, ttl time.Duration) error {
	return insertToken(ctx, r.db, tokenID, userID, tokenHash, familyID, prevTokenID, r.now().UTC(), ttl)
}

func insertToken(ctx context.Context, q dbx.DBTX, tokenID, userID, tokenHash, familyID, prevTokenID string, now time.Time, ttl time.Duration) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, family_id, prev_token_id, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	prev := sql.NullString{String: prevTokenID, Valid: prevTokenID != ""}
	if _, err := q.ExecContext(ctx, query, tokenID, userID, tokenHash, familyID, prev, now, now.Add(ttl)); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) MarkReplaced(ctx context.Context, tokenID, newTokenID string) error {
	_, err := r.exec(ctx, `UPDATE refresh_tokens SET replaced_by_token_id = $2 WHERE id = $1 AND replaced_by_token_id IS NULL`, tokenID, newTokenID)
	return err
}

func (r *PostgresRepository) RevokeToken(ctx context.Context, tokenID string) error {
	_, err := r.exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE id = $1 AND revoked_at IS NULL`, tokenID, r.now().UTC())
	return err
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, familyID string) (int, error) {
	return r.exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE family_id = $1 AND revoked_at IS NULL`, familyID, r.now().UTC())
}

func (r *PostgresRepository) RevokeUser(ctx context.Context, userID string) (int, error) {
	return r.exec(ctx, `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, r.now().UTC())
}

func (r *PostgresRepository) UpdateLastUsed(ctx context.Context, tokenID string) error {
	_, err := r.exec(ctx, `UPDATE refresh_tokens SET last_used_at = $2 WHERE id = $1`, tokenID, r.now().UTC())
	return err
}

func (r *PostgresRepository) Rotate(ctx context.Context, oldTokenID, newTokenID, newTokenHash string, ttl time.Duration) (*models.TokenRecord, error) {
	var before *models.TokenRecord
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		old, err := queryOne(ctx, tx, `SELECT `+tokenColumns+` FROM refresh_tokens WHERE id = $1 FOR UPDATE`, oldTokenID)
		if err != nil {
			return err
		}
		before = old

		now := r.now().UTC()
		if err := rotatable(old, now); err != nil {
			return err
		}
		if err := insertToken(ctx, tx, newTokenID, old.UserID, newTokenHash, old.FamilyID, old.ID, now, ttl); err != nil {
			return err
		}
		query := `UPDATE refresh_tokens SET replaced_by_token_id = $2, last_used_at = $3 WHERE id = $1`
		if _, err := tx.ExecContext(ctx, query, old.ID, newTokenID, now); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	return before, err
}

func (r *PostgresRepository) CleanupExpired(ctx context.Context) (int, error) {
	return r.exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, r.now().UTC())
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(n), nil
}
