package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/civictrack/apiserver/types"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id int) (types.User, error) {
	const query = `
		SELECT id, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (types.User, error) {
	const query = `
		SELECT id, email, role, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (email, role, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		user.Email,
		user.Role,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID); err != nil {
		if isUniqueViolation(err) {
			return types.User{}, ErrDuplicate
		}
		return types.User{}, err
	}
	return user, nil
}

// UpdateRole sets the role of a single user in one statement.
func (r *UserRepository) UpdateRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	const query = `
		UPDATE users
		SET role = $1,
			updated_at = $2
		WHERE id = $3
		RETURNING id, email, role, password_hash, created_at, updated_at`
	return scanUser(r.db.QueryRowContext(ctx, query, role, time.Now(), id))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT id, email, role, password_hash, created_at, updated_at
		FROM users
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Role,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}
