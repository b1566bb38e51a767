package usersvc

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/mkrupp/userreg/internal/domain"
	"github.com/mkrupp/userreg/internal/infra/logging"
	"github.com/mkrupp/userreg/internal/repo/user"
)

// UserService provides user registration, authentication and listing on top
// of a user.Repository.
type UserService struct {
	UserRepo user.Repository
	Log      logging.Logger
}

// NewUserService creates a new UserService backed by the repository returned from repoFactory.
// Returns an error if the user repository cannot be created.
func NewUserService(ctx context.Context, repoFactory user.RepositoryFactory) (*UserService, error) {
	log := logging.GetLogger("svc.usersvc.user_service")

	userRepo, err := repoFactory(ctx)
	if err != nil {
		return nil, fmt.Errorf("new user repo: %w", err)
	}

	return &UserService{
		UserRepo: userRepo,
		Log:      log,
	}, nil
}

// InitializeStore ensures the backing store has its schema.
// Safe to call any number of times.
func (s *UserService) InitializeStore(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			s.Log.ErrorContext(ctx, "initialize store failed", "error", err)
		} else {
			s.Log.DebugContext(ctx, "store initialized")
		}
	}()

	if err := s.UserRepo.InitializeSchema(ctx); err != nil {
		return fmt.Errorf("initialize schema: %w", err)
	}

	return nil
}

// RegisterUser stores a new user with the given username, email and password.
// Returns domain.ErrInvalidUser if username or email is empty and
// domain.ErrUserAlreadyExists if the username is taken.
func (s *UserService) RegisterUser(ctx context.Context, username, email, password string) (err error) {
	log := s.Log.With(logging.Group("user", "username", username, "email", email))

	defer func() {
		switch {
		case errors.Is(err, domain.ErrUserAlreadyExists), errors.Is(err, domain.ErrInvalidUser):
			log.WarnContext(ctx, "register user rejected", "error", err)
		case err != nil:
			log.ErrorContext(ctx, "register user failed", "error", err)
		default:
			log.DebugContext(ctx, "user registered")
		}
	}()

	if username == "" {
		return fmt.Errorf("%w: empty username", domain.ErrInvalidUser)
	}

	if email == "" {
		return fmt.Errorf("%w: empty email", domain.ErrInvalidUser)
	}

	// Stored as plaintext. Insecure, kept for compatibility with existing stores.
	if err := s.UserRepo.CreateUser(ctx, domain.User{
		Username: username,
		Email:    email,
		Password: password,
	}); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	return nil
}

// Authenticate checks the given password against the one stored for username.
// Returns nil on an exact match and domain.ErrInvalidCredentials if the user
// does not exist or the password differs.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (err error) {
	log := s.Log.With(logging.Group("user", "username", username))

	defer func() {
		switch {
		case errors.Is(err, domain.ErrInvalidCredentials):
			log.WarnContext(ctx, "authentication rejected", "error", err)
		case err != nil:
			log.ErrorContext(ctx, "authentication failed", "error", err)
		default:
			log.DebugContext(ctx, "user authenticated")
		}
	}()

	user, ok, err := s.UserRepo.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return errors.Join(domain.ErrInvalidCredentials, err)
		}

		return fmt.Errorf("get user: %w", err)
	} else if !ok {
		return domain.ErrInvalidCredentials
	}

	// Plain equality on the stored value; constant time only to avoid leaking
	// the matching prefix length.
	if subtle.ConstantTimeCompare([]byte(user.Password), []byte(password)) != 1 {
		return domain.ErrInvalidCredentials
	}

	return nil
}

// ListUsers lazily yields every registered user in storage order.
func (s *UserService) ListUsers(ctx context.Context) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		for user, err := range s.UserRepo.ListUsers(ctx) {
			if err != nil {
				s.Log.ErrorContext(ctx, "list users failed", "error", err)
				yield(domain.User{}, fmt.Errorf("list users: %w", err))

				return
			}

			if !yield(user, nil) {
				return
			}
		}
	}
}

// DisplayUsers writes one "username, email" line per registered user to w.
// Returns the number of users written.
func (s *UserService) DisplayUsers(ctx context.Context, w io.Writer) (n int, err error) {
	for user, err := range s.ListUsers(ctx) {
		if err != nil {
			return n, err
		}

		if _, err := fmt.Fprintf(w, "%s, %s\n", user.Username, user.Email); err != nil {
			return n, fmt.Errorf("write user: %w", err)
		}

		n++
	}

	s.Log.DebugContext(ctx, "users displayed", "count", n)

	return n, nil
}

// Close releases resources held by the service, such as database connections.
// Returns an error if cleanup fails.
func (s *UserService) Close() error {
	if err := s.UserRepo.Close(); err != nil {
		return fmt.Errorf("close user repo: %w", err)
	}

	return nil
}
