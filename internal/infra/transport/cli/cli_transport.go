package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	context_ "github.com/mkrupp/userreg/internal/infra/context"
	"github.com/mkrupp/userreg/internal/infra/logging"
)

// ErrPanic is returned when a command panics.
var ErrPanic = errors.New("command panicked")

// RunFunc is the signature of a cobra command body.
type RunFunc = func(cmd *cobra.Command, args []string) error

// CLITransport is implemented by services that expose their operations as
// a tree of cobra commands.
type CLITransport interface {
	// Command returns the root command of the service.
	Command() *cobra.Command
}

// ExecuteOptions overrides the process streams a command tree uses.
// Nil fields keep cobra's defaults.
type ExecuteOptions struct {
	Args   []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Execute runs the command tree of transport with args.
// Every command body is wrapped with tracing, logging and panic recovery.
// Returns the error of the executed command unwrapped, so it can be shown to
// the operator as is.
func Execute(ctx context.Context, transport CLITransport, opts ExecuteOptions) error {
	log := logging.GetLogger("infra.transport.cli")

	root := transport.Command()
	root.SilenceUsage = true
	root.SilenceErrors = true

	Wrap(root, log)

	if opts.Args != nil {
		root.SetArgs(opts.Args)
	}

	if opts.Stdin != nil {
		root.SetIn(opts.Stdin)
	}

	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}

	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}

	//nolint:wrapcheck
	return root.ExecuteContext(ctx)
}

// Wrap installs the standard middleware on cmd and all of its subcommands.
func Wrap(cmd *cobra.Command, log logging.Logger) {
	if cmd.RunE != nil {
		run := cmd.RunE
		run = RescueingMiddleware(run, log)
		run = LoggingMiddleware(run, log)
		run = TracingMiddleware(run)
		cmd.RunE = run
	}

	for _, sub := range cmd.Commands() {
		Wrap(sub, log)
	}
}

// TracingMiddleware attaches a trace ID to the command context unless one is
// already present. The ID is a UUIDv7, so IDs sort by invocation time.
func TracingMiddleware(next RunFunc) RunFunc {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if _, ok := context_.TraceIDFromContext(ctx); !ok {
			ctx = context_.WithTraceID(ctx, newTraceID())
		}

		cmd.SetContext(ctx)

		return next(cmd, args)
	}
}

func newTraceID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}

	return id.String()
}

// LoggingMiddleware logs the start and the outcome of a command at DEBUG level.
// Failures are returned to the caller and logged by the services that raised
// them, so they are not repeated here at a higher level.
func LoggingMiddleware(next RunFunc, log logging.Logger) RunFunc {
	return func(cmd *cobra.Command, args []string) (err error) {
		ctx := cmd.Context()
		group := slog.Group("cmd", "path", cmd.CommandPath(), "args", len(args))

		log.DebugContext(ctx, "command", group)

		defer func() {
			if err != nil {
				log.DebugContext(ctx, "command failed", group, "error", err)
			} else {
				log.DebugContext(ctx, "command done", group)
			}
		}()

		return next(cmd, args)
	}
}

// RescueingMiddleware recovers from panics in a command body.
// The panic and stack trace are logged and ErrPanic is returned instead.
func RescueingMiddleware(next RunFunc, log logging.Logger) RunFunc {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if p := recover(); p != nil {
				log.ErrorContext(cmd.Context(), "command panic", slog.Group("cmd",
					"path", cmd.CommandPath(),
				), slog.Group("error",
					"panic", p,
					"stack", string(debug.Stack()),
				))

				err = fmt.Errorf("%w: %v", ErrPanic, p)
			}
		}()

		return next(cmd, args)
	}
}
