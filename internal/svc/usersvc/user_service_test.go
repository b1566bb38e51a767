package usersvc_test

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"sync"
	"testing"

	"github.com/mkrupp/userreg/internal/domain"
	"github.com/mkrupp/userreg/internal/infra/logging"
	"github.com/mkrupp/userreg/internal/repo/user"
	"github.com/mkrupp/userreg/internal/svc/usersvc"
)

// mockUserRepository implements user.Repository for testing.
type mockUserRepository struct {
	users       []domain.User
	err         error
	initialized int
	closed      bool
	m           sync.Mutex
}

var _ user.Repository = (*mockUserRepository)(nil)

func (m *mockUserRepository) InitializeSchema(_ context.Context) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	m.initialized++

	return nil
}

func (m *mockUserRepository) CreateUser(_ context.Context, u domain.User) error {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return m.err
	}

	for _, existing := range m.users {
		if existing.Username == u.Username {
			return domain.ErrUserAlreadyExists
		}
	}

	m.users = append(m.users, u)

	return nil
}

func (m *mockUserRepository) GetUserByUsername(_ context.Context, username string) (*domain.User, bool, error) {
	m.m.Lock()
	defer m.m.Unlock()

	if m.err != nil {
		return nil, false, m.err
	}

	for _, existing := range m.users {
		if existing.Username == username {
			u := existing

			return &u, true, nil
		}
	}

	return nil, false, domain.ErrUserNotFound
}

func (m *mockUserRepository) ListUsers(_ context.Context) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		m.m.Lock()
		users, err := append([]domain.User(nil), m.users...), m.err
		m.m.Unlock()

		if err != nil {
			yield(domain.User{}, err)

			return
		}

		for _, u := range users {
			if !yield(u, nil) {
				return
			}
		}
	}
}

func (m *mockUserRepository) Close() error {
	m.closed = true

	return m.err
}

var ErrRepoError = errors.New("repository error")

func setupTestService(t *testing.T) (*usersvc.UserService, *mockUserRepository) {
	t.Helper()

	mockRepo := &mockUserRepository{}

	svc := &usersvc.UserService{
		UserRepo: mockRepo,
		Log:      logging.GetLogger("test.usersvc"),
	}

	return svc, mockRepo
}

func TestNewUserService(t *testing.T) {
	t.Parallel()

	mockRepo := &mockUserRepository{}

	svc, err := usersvc.NewUserService(context.Background(), func(context.Context) (user.Repository, error) {
		return mockRepo, nil
	})
	if err != nil {
		t.Fatalf("NewUserService() error = %v", err)
	}

	if err := svc.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}

	if !mockRepo.closed {
		t.Error("Close() did not close the repository")
	}

	_, err = usersvc.NewUserService(context.Background(), func(context.Context) (user.Repository, error) {
		return nil, ErrRepoError
	})
	if !errors.Is(err, ErrRepoError) {
		t.Errorf("NewUserService() error = %v, wantErr %v", err, ErrRepoError)
	}
}

func TestUserService_InitializeStore(t *testing.T) {
	t.Parallel()

	svc, mockRepo := setupTestService(t)
	ctx := context.Background()

	for range 2 {
		if err := svc.InitializeStore(ctx); err != nil {
			t.Fatalf("InitializeStore() error = %v", err)
		}
	}

	if mockRepo.initialized != 2 {
		t.Errorf("InitializeSchema called %d times, want 2", mockRepo.initialized)
	}

	mockRepo.err = ErrRepoError

	if err := svc.InitializeStore(ctx); !errors.Is(err, ErrRepoError) {
		t.Errorf("InitializeStore() error = %v, wantErr %v", err, ErrRepoError)
	}
}

//nolint:paralleltest
func TestUserService_RegisterUser(t *testing.T) {
	svc, mockRepo := setupTestService(t)

	tests := []struct {
		name     string
		username string
		email    string
		password string
		repoErr  error
		wantErr  error
	}{
		{
			name:     "successful registration",
			username: "newuser",
			email:    "newuser@example.com",
			password: "password123",
			wantErr:  nil,
		},
		{
			name:     "duplicate username",
			username: "existinguser",
			email:    "other@example.com",
			password: "password123",
			wantErr:  domain.ErrUserAlreadyExists,
		},
		{
			name:     "empty username",
			username: "",
			email:    "nobody@example.com",
			password: "password123",
			wantErr:  domain.ErrInvalidUser,
		},
		{
			name:     "empty email",
			username: "noemail",
			email:    "",
			password: "password123",
			wantErr:  domain.ErrInvalidUser,
		},
		{
			name:     "empty password accepted",
			username: "nopass",
			email:    "nopass@example.com",
			password: "",
			wantErr:  nil,
		},
		{
			name:     "repository error",
			username: "erroruser",
			email:    "erroruser@example.com",
			password: "password123",
			repoErr:  ErrRepoError,
			wantErr:  ErrRepoError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.name == "duplicate username" {
				_ = svc.RegisterUser(context.Background(), tt.username, "existing@example.com", "oldpass")
			}
			mockRepo.err = tt.repoErr

			err := svc.RegisterUser(context.Background(), tt.username, tt.email, tt.password)

			if (err != nil) != (tt.wantErr != nil) {
				t.Errorf("RegisterUser() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("RegisterUser() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	mockRepo.err = nil

	stored, ok, err := mockRepo.GetUserByUsername(context.Background(), "existinguser")
	if err != nil || !ok {
		t.Fatalf("GetUserByUsername() = %v, %v, %v", stored, ok, err)
	}

	if stored.Email != "existing@example.com" || stored.Password != "oldpass" {
		t.Errorf("duplicate registration modified stored user: %+v", stored)
	}
}

func TestUserService_Authenticate(t *testing.T) {
	t.Parallel()

	svc, mockRepo := setupTestService(t)

	mockRepo.users = []domain.User{
		{Username: "testuser", Email: "testuser@example.com", Password: "password123"},
	}

	tests := []struct {
		name     string
		username string
		password string
		repoErr  error
		wantErr  error
	}{
		{
			name:     "successful authentication",
			username: "testuser",
			password: "password123",
			wantErr:  nil,
		},
		{
			name:     "wrong password",
			username: "testuser",
			password: "pass123",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "password prefix",
			username: "testuser",
			password: "password12",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "username is case-sensitive",
			username: "TestUser",
			password: "password123",
			wantErr:  domain.ErrInvalidCredentials,
		},
		{
			name:     "user not found",
			username: "absent_user",
			password: "password123",
			wantErr:  domain.ErrInvalidCredentials,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := svc.Authenticate(context.Background(), tt.username, tt.password)

			if (err != nil) != (tt.wantErr != nil) {
				t.Errorf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Authenticate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestUserService_Authenticate_RepositoryError(t *testing.T) {
	t.Parallel()

	svc, mockRepo := setupTestService(t)
	mockRepo.err = ErrRepoError

	err := svc.Authenticate(context.Background(), "testuser", "password123")
	if !errors.Is(err, ErrRepoError) {
		t.Errorf("Authenticate() error = %v, wantErr %v", err, ErrRepoError)
	}

	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("Authenticate() error = %v, must not report invalid credentials", err)
	}
}

func TestUserService_ListUsers(t *testing.T) {
	t.Parallel()

	svc, _ := setupTestService(t)
	ctx := context.Background()

	registered := []domain.User{
		{Username: "alice", Email: "a@x.com", Password: "pw1"},
		{Username: "bob", Email: "b@x.com", Password: "pw2"},
	}

	for _, u := range registered {
		if err := svc.RegisterUser(ctx, u.Username, u.Email, u.Password); err != nil {
			t.Fatalf("RegisterUser() error = %v", err)
		}
	}

	// Duplicate must not produce a second entry.
	_ = svc.RegisterUser(ctx, "alice", "a2@x.com", "pw3")

	var got []domain.User

	for u, err := range svc.ListUsers(ctx) {
		if err != nil {
			t.Fatalf("ListUsers() error = %v", err)
		}

		got = append(got, u)
	}

	if len(got) != len(registered) {
		t.Fatalf("ListUsers() returned %d users, want %d", len(got), len(registered))
	}

	for i := range registered {
		if got[i] != registered[i] {
			t.Errorf("ListUsers()[%d] = %+v, want %+v", i, got[i], registered[i])
		}
	}
}

func TestUserService_DisplayUsers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		users   []domain.User
		repoErr error
		want    string
		wantN   int
		wantErr error
	}{
		{
			name:  "no users",
			want:  "",
			wantN: 0,
		},
		{
			name: "users in storage order",
			users: []domain.User{
				{Username: "testuser", Email: "testuser@example.com", Password: "password123"},
				{Username: "alice", Email: "a@x.com", Password: "pw1"},
			},
			want:  "testuser, testuser@example.com\nalice, a@x.com\n",
			wantN: 2,
		},
		{
			name:    "repository error",
			repoErr: ErrRepoError,
			wantErr: ErrRepoError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc, mockRepo := setupTestService(t)
			mockRepo.users = tt.users
			mockRepo.err = tt.repoErr

			var buf bytes.Buffer

			n, err := svc.DisplayUsers(context.Background(), &buf)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("DisplayUsers() error = %v, wantErr %v", err, tt.wantErr)
			}

			if n != tt.wantN {
				t.Errorf("DisplayUsers() n = %d, want %d", n, tt.wantN)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("DisplayUsers() output = %q, want %q", got, tt.want)
			}
		})
	}
}
