package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mkrupp/userreg/internal/domain"
	"github.com/mkrupp/userreg/internal/infra/logging"
)

const driverName = "sqlite"

// SQLiteUserRepositoryConfig holds configuration for the SQLite user repository.
type SQLiteUserRepositoryConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"users.db"`

	// BusyTimeout is how long in milliseconds a statement waits for a lock
	// held by another process before failing
	BusyTimeout int64 `env:"BUSY_TIMEOUT" default:"5000"`
}

// DSN returns the driver data source name for the configured database file.
func (cfg SQLiteUserRepositoryConfig) DSN() string {
	sep := "?"
	if strings.Contains(cfg.DatabasePath, "?") {
		sep = "&"
	}

	return cfg.DatabasePath + sep + "_pragma=busy_timeout(" + strconv.FormatInt(cfg.BusyTimeout, 10) + ")"
}

// SQLiteUserRepository implements Repository using SQLite as the storage backend.
type SQLiteUserRepository struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Repository = (*SQLiteUserRepository)(nil)

// SQLiteUserRepositoryFactory creates a factory function that returns a new SQLiteUserRepository.
// The factory function implements the RepositoryFactory type.
func SQLiteUserRepositoryFactory(cfg SQLiteUserRepositoryConfig) RepositoryFactory {
	return func(ctx context.Context) (Repository, error) {
		return NewSQLiteUserRepository(ctx, cfg)
	}
}

// NewSQLiteUserRepository opens the database file named by cfg and creates the
// users table if needed. The caller owns the returned handle and must Close it.
func NewSQLiteUserRepository(ctx context.Context, cfg SQLiteUserRepositoryConfig) (*SQLiteUserRepository, error) {
	log := logging.GetLogger("repo.user.sqlite_user_repository").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open(driverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("ping db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	repo := &SQLiteUserRepository{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}

	if err := repo.InitializeSchema(ctx); err != nil {
		db.Close()

		return nil, fmt.Errorf("initialize db: %w", err)
	}

	log.DebugContext(ctx, "store opened")

	return repo, nil
}

// InitializeSchema implements Repository.InitializeSchema using SQLite.
func (r *SQLiteUserRepository) InitializeSchema(ctx context.Context) error {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			username TEXT UNIQUE,
			email    TEXT,
			password TEXT
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// CreateUser implements Repository.CreateUser using SQLite.
func (r *SQLiteUserRepository) CreateUser(ctx context.Context, user domain.User) (err error) {
	r.writeLock.Lock()
	defer r.writeLock.Unlock()

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO users (username, email, password) VALUES (?, ?, ?)",
		user.Username,
		user.Email,
		user.Password,
	)
	if err != nil {
		if isUniqueViolation(err) {
			err = errors.Join(domain.ErrUserAlreadyExists, err)
		}

		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return false
	}

	switch liteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}

// GetUserByUsername implements Repository.GetUserByUsername using SQLite.
func (r *SQLiteUserRepository) GetUserByUsername(ctx context.Context, username string) (*domain.User, bool, error) {
	var row userRow

	err := r.db.QueryRowContext(ctx,
		"SELECT username, email, password FROM users WHERE username = ?",
		username,
	).Scan(row.dest()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = errors.Join(domain.ErrUserNotFound, err)
		}

		return nil, false, fmt.Errorf("query user: %w", err)
	}

	user := row.user()

	return &user, true, nil
}

// ListUsers implements Repository.ListUsers using SQLite.
// Rows are streamed in insertion order; the result set is closed as soon as
// the consumer stops iterating. Rows without a username are skipped.
func (r *SQLiteUserRepository) ListUsers(ctx context.Context) iter.Seq2[domain.User, error] {
	return func(yield func(domain.User, error) bool) {
		rows, err := r.db.QueryContext(ctx, "SELECT username, email, password FROM users ORDER BY rowid")
		if err != nil {
			yield(domain.User{}, fmt.Errorf("query users: %w", err))

			return
		}
		defer rows.Close()

		for rows.Next() {
			var row userRow

			if err := rows.Scan(row.dest()...); err != nil {
				yield(domain.User{}, fmt.Errorf("scan user: %w", err))

				return
			}

			if !row.Username.Valid {
				r.log.WarnContext(ctx, "skipping user row without username")

				continue
			}

			if !yield(row.user(), nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(domain.User{}, fmt.Errorf("iterate users: %w", err))
		}
	}
}

// userRow holds one scanned users row. The columns carry no NOT NULL
// constraint, so stores written by other tools may hold NULLs.
type userRow struct {
	Username sql.NullString
	Email    sql.NullString
	Password sql.NullString
}

func (u *userRow) dest() []any {
	return []any{&u.Username, &u.Email, &u.Password}
}

// user maps NULL columns to empty strings.
func (u *userRow) user() domain.User {
	return domain.User{
		Username: u.Username.String,
		Email:    u.Email.String,
		Password: u.Password.String,
	}
}

// Close implements Repository.Close by closing the database connection.
func (r *SQLiteUserRepository) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
