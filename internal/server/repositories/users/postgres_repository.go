package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lexivault/lexivault/internal/common"
	"github.com/lexivault/lexivault/internal/dbx"
	"github.com/lexivault/lexivault/internal/server/models"
)

const uniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, username, passwordHash string, roles []string) (*models.User, error) {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        append([]string(nil), roles...),
	}

	query :=
		`INSERT INTO users (id, username, password_hash, roles)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, strings.Join(user.Roles, ",")).Scan(&user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrUserExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, roles, created_at, disabled FROM users WHERE username = $1`, username)
}

func (r *PostgresRepository) FindByID(ctx context.Context, userID string) (*models.User, error) {
	return r.findOne(ctx, `SELECT id, username, password_hash, roles, created_at, disabled FROM users WHERE id = $1`, userID)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, arg string) (*models.User, error) {
	user := &models.User{}
	var roles string
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &roles, &user.CreatedAt, &user.Disabled)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if roles != "" {
		user.Roles = strings.Split(roles, ",")
	}
	return user, nil
}

func (r *PostgresRepository) SetDisabled(ctx context.Context, userID string, disabled bool) error {
	return r.execOne(ctx, `UPDATE users SET disabled = $2 WHERE id = $1`, userID, disabled)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID string) error {
	return r.execOne(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
