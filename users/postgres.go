package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// PostgresStore keeps users in the `users` table.
type PostgresStore struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore creates a PostgresStore on top of an existing pool.
func NewPostgresStore(db *pgxpool.Pool, c clock.Clock) *PostgresStore {
	return &PostgresStore{db: db, clock: c}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return apperror.NewInternalError("failed to generate user id", err)
		}
		user.ID = id.String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock.NowUtc()
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id, name, email, password, created_at) VALUES ($1, $2, $3, $4, $5)`,
		user.ID, user.Name, user.Email, user.Password, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apperror.NewConflictError(MsgUserExists, nil)
		}
		return apperror.NewDatabaseError("failed to create user", pkgerrors.Wrap(err, "inserting user failed"))
	}
	return nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getOne(ctx, `SELECT id, name, email, password, created_at FROM users WHERE email = $1`, email)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*User, error) {
	// Subjects of external tokens are not UUIDs; they can never match a row.
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperror.NewNotFoundError(MsgUserNotFound, nil)
	}
	return s.getOne(ctx, `SELECT id, name, email, password, created_at FROM users WHERE id = $1`, id)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, arg string) (*User, error) {
	var user User
	var id uuid.UUID
	err := s.db.QueryRow(ctx, query, arg).Scan(&id, &user.Name, &user.Email, &user.Password, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFoundError(MsgUserNotFound, nil)
		}
		return nil, apperror.NewDatabaseError("failed to get user", pkgerrors.Wrap(err, "selecting user failed"))
	}
	user.ID = id.String()
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}
