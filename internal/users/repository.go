package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository defines data access for user accounts.
type Repository interface {
	Insert(ctx context.Context, u User) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByAPIKey(ctx context.Context, apiKey string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	UpdateAPIKey(ctx context.Context, id int64, apiKey string) error
}

var (
	errUserMissing = errors.New("users: not found")
	errEmailTaken  = errors.New("users: email already registered")
)

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const userColumns = `id, email, name, password_hash, api_key, created_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.APIKey, &u.CreatedAt)
	return u, err
}

func (r *repository) Insert(ctx context.Context, u User) (User, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, api_key)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns, u.Email, u.Name, u.PasswordHash, u.APIKey)
	created, err := scanUser(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return User{}, errEmailTaken
		}
		return User{}, err
	}
	return created, nil
}

func (r *repository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.get(ctx, `email = $1`, email)
}

func (r *repository) GetByAPIKey(ctx context.Context, apiKey string) (User, error) {
	return r.get(ctx, `api_key = $1`, apiKey)
}

func (r *repository) GetByID(ctx context.Context, id int64) (User, error) {
	return r.get(ctx, `id = $1`, id)
}

func (r *repository) get(ctx context.Context, clause string, arg any) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+clause, arg)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, errUserMissing
		}
		return User{}, err
	}
	return u, nil
}

func (r *repository) UpdateAPIKey(ctx context.Context, id int64, apiKey string) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE users SET api_key = $2 WHERE id = $1`, id, apiKey)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errUserMissing
	}
	return nil
}
