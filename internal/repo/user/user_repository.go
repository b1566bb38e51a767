package user

import (
	"context"
	"iter"

	"github.com/mkrupp/userreg/internal/domain"
)

// Repository defines the interface for user data persistence.
type Repository interface {
	// InitializeSchema ensures the users table exists.
	// It is idempotent and never touches existing rows.
	InitializeSchema(ctx context.Context) error

	// CreateUser adds a new user to the repository.
	// Returns ErrUserAlreadyExists if the username is already taken;
	// the repository is left unchanged in that case.
	CreateUser(ctx context.Context, user domain.User) error

	// GetUserByUsername retrieves a user by their exact username.
	// Returns the user object and true if found.
	// Returns ErrUserNotFound if no user has that username.
	GetUserByUsername(ctx context.Context, username string) (*domain.User, bool, error)

	// ListUsers lazily yields every user in storage order.
	// A non-nil error is yielded at most once and ends the sequence.
	ListUsers(ctx context.Context) iter.Seq2[domain.User, error]

	// Close releases any resources held by the repository.
	// Returns an error if cleanup fails.
	Close() error
}

// RepositoryFactory is a function that creates a new Repository instance.
// Returns an error if initialization fails.
type RepositoryFactory func(ctx context.Context) (Repository, error)
