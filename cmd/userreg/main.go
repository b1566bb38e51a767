package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mkrupp/userreg/internal/domain"
	"github.com/mkrupp/userreg/internal/infra/config"
	"github.com/mkrupp/userreg/internal/infra/logging"
	"github.com/mkrupp/userreg/internal/infra/transport/cli"
	"github.com/mkrupp/userreg/internal/repo/user"
	"github.com/mkrupp/userreg/internal/svc/usersvc"
)

const (
	appName = "userreg"
)

// Process exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitConfig  = 2
)

type Config struct {
	config.EnvConfig

	Log  logging.LoggerConfig            `envPrefix:"LOG_"`
	CLI  usersvc.CLITransportConfig      `envPrefix:"CLI_"`
	User user.SQLiteUserRepositoryConfig `envPrefix:"USER_"`
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run parses the configuration, runs the command named by args and reports
// failures on stderr. It returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		cfg Config

		configPrefix = strings.ToUpper(appName)
	)

	if err := config.Parse(ctx, &cfg, configPrefix); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return exitConfig
	}

	switch cfg.Log.Output {
	case "stdout":
		cfg.Log.OutputHandle = stdout
	case "stderr":
		cfg.Log.OutputHandle = stderr
	}

	if err := logging.Configure(ctx, cfg.Log, appName); err != nil {
		fmt.Fprintln(stderr, "error:", err)

		return exitConfig
	}

	opts := cli.ExecuteOptions{
		Args:   args,
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	}

	if err := execute(ctx, cfg, opts); err != nil {
		fmt.Fprintln(stderr, "error:", userMessage(err))

		return exitFailure
	}

	return exitOK
}

func execute(ctx context.Context, cfg Config, opts cli.ExecuteOptions) (err error) {
	log := logging.GetLogger("cmd.userreg")

	defer func() {
		if err != nil {
			log.DebugContext(ctx, "error", "err", err)
		}
	}()

	userSvc, err := usersvc.NewUserService(ctx, user.SQLiteUserRepositoryFactory(cfg.User))
	if err != nil {
		return fmt.Errorf("new user service: %w", err)
	}

	defer func() {
		if cerr := userSvc.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()

	transport := usersvc.NewCLITransport(userSvc, cfg.CLI)

	return cli.Execute(ctx, transport, opts)
}

// userMessage shortens well-known domain errors to their sentinel text.
// An unknown user and a wrong password must print the same message.
func userMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrUserAlreadyExists,
		domain.ErrInvalidCredentials,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}

	return err.Error()
}
