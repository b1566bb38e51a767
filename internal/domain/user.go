package domain

import "errors"

var (
	// ErrUserAlreadyExists is returned when registering a username that is already stored.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrUserNotFound is returned when looking up a username that is not stored.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the username/password combination is incorrect.
	// An unknown username and a wrong password both surface as this error.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidUser is returned when a user is missing its username or email.
	ErrInvalidUser = errors.New("invalid user")
)

// User is a registered account as kept in the users table.
//
// Password is stored verbatim. This is insecure and kept only for
// compatibility with stores written by earlier tooling.
type User struct {
	Username string // Unique login name, compared case-sensitively
	Email    string // Contact address
	Password string // Plaintext password
}
