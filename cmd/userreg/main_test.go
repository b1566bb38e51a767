package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mkrupp/userreg/internal/domain"
)

func TestRun_ConfigFailure(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "invalid busy timeout",
			env:     map[string]string{"USERREG_USER_BUSY_TIMEOUT": "abc"},
			wantErr: "BusyTimeout",
		},
		{
			name: "unwritable log file",
			env: map[string]string{
				"USERREG_LOG_OUTPUT": filepath.Join(t.TempDir(), "missing", "userreg.log"),
			},
			wantErr: "open log file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("USERREG_USER_DATABASE_PATH", filepath.Join(t.TempDir(), "users.db"))

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			var stdout, stderr bytes.Buffer

			code := run(context.Background(), []string{"list"}, strings.NewReader(""), &stdout, &stderr)

			if code != exitConfig {
				t.Errorf("run() = %d, want %d (stderr %q)", code, exitConfig, stderr.String())
			}

			if !strings.HasPrefix(stderr.String(), "error: ") || !strings.Contains(stderr.String(), tt.wantErr) {
				t.Errorf("stderr = %q, want error mentioning %q", stderr.String(), tt.wantErr)
			}

			if stdout.Len() != 0 {
				t.Errorf("stdout = %q, want empty", stdout.String())
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	t.Parallel()

	errDriver := errors.New("disk I/O error")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "duplicate user",
			err:  fmt.Errorf("register user: %w", errors.Join(domain.ErrUserAlreadyExists, errDriver)),
			want: "user already exists",
		},
		{
			name: "unknown user",
			err:  fmt.Errorf("authenticate: %w", errors.Join(domain.ErrInvalidCredentials, domain.ErrUserNotFound)),
			want: "invalid credentials",
		},
		{
			name: "wrong password",
			err:  fmt.Errorf("authenticate: %w", domain.ErrInvalidCredentials),
			want: "invalid credentials",
		},
		{
			name: "other error",
			err:  fmt.Errorf("register user: %w", fmt.Errorf("%w: empty username", domain.ErrInvalidUser)),
			want: "register user: invalid user: empty username",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := userMessage(tt.err); got != tt.want {
				t.Errorf("userMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
