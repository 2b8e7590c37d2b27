package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civictrack/apiserver/internal/auth"
	"github.com/civictrack/apiserver/internal/store"
	"github.com/civictrack/apiserver/types"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	UpdateRole(ctx context.Context, id int, role types.Role) (types.User, error)
	List(ctx context.Context) ([]types.User, error)
}

// UserService encapsulates account use-cases.
type UserService struct {
	repo UserRepository
}

func NewUserService(repo UserRepository) *UserService {
	return &UserService{repo: repo}
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// CreateUser registers a regular user.
func (s *UserService) CreateUser(ctx context.Context, email, password string) (types.User, error) {
	return s.CreateUserWithRole(ctx, email, password, types.RoleUser)
}

// CreateUserWithRole registers a user with an explicit role. The email must
// not already be registered.
func (s *UserService) CreateUserWithRole(ctx context.Context, email, password string, role types.Role) (types.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return types.User{}, NewValidationError("email", "email is required")
	}
	if password == "" {
		return types.User{}, NewValidationError("password", "password is required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return types.User{}, NewValidationError("password", auth.ErrPasswordTooLong.Error())
	}
	if !role.Valid() {
		return types.User{}, NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}

	_, err := s.repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return types.User{}, ErrDuplicateEmail
	case !errors.Is(err, store.ErrNotFound):
		return types.User{}, fmt.Errorf("looking up %s: %w", email, err)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return types.User{}, err
	}

	user, err := s.repo.Create(ctx, types.User{Email: email, PasswordHash: hash, Role: role})
	if err != nil {
		// The unique index catches signups racing past the pre-check.
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateEmail
		}
		return types.User{}, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// VerifyCredentials returns the user for a matching email and password.
func (s *UserService) VerifyCredentials(ctx context.Context, email, password string) (types.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("looking up %s: %w", email, err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrPasswordMismatch) {
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, err
	}
	return user, nil
}

// SetRole changes a user's role.
func (s *UserService) SetRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	if !role.Valid() {
		return types.User{}, NewValidationError("role", fmt.Sprintf("unknown role %q", role))
	}
	return s.repo.UpdateRole(ctx, id, role)
}

func (s *UserService) ListUsers(ctx context.Context) ([]types.User, error) {
	return s.repo.List(ctx)
}
