package usersvc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mkrupp/userreg/internal/infra/logging"
	"github.com/mkrupp/userreg/internal/infra/transport/cli"
)

// ErrNoPassword is returned when no password was given and none could be read.
var ErrNoPassword = errors.New("no password")

const passwordFlag = "password"

// CLITransportConfig contains configuration parameters for the command line transport.
type CLITransportConfig struct {
	// Name is the root command name shown in usage output
	Name string `env:"NAME" default:"userreg"`
}

// CLITransport exposes the UserService as cobra commands:
// - init: create the users table if needed
// - register <username> <email>: register a new user
// - authenticate <username>: check a user's password
// - list: print every user as "username, email".
type CLITransport struct {
	userSvc *UserService
	log     logging.Logger
	cfg     CLITransportConfig
}

var _ cli.CLITransport = (*CLITransport)(nil)

// NewCLITransport creates a new CLITransport instance with the given configuration.
func NewCLITransport(userSvc *UserService, cfg CLITransportConfig) *CLITransport {
	return &CLITransport{
		userSvc: userSvc,
		log:     logging.GetLogger("svc.usersvc.cli_transport"),
		cfg:     cfg,
	}
}

// Command implements cli.CLITransport.
func (ct *CLITransport) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   ct.cfg.Name,
		Short: "Manage a local user registration store",
		Long: `Register users, authenticate them and list them from a file-backed store.

Passwords are stored and compared as plaintext. Do not reuse real passwords.`,
	}

	root.AddCommand(
		ct.initCommand(),
		ct.registerCommand(),
		ct.authenticateCommand(),
		ct.listCommand(),
	)

	return root
}

func (ct *CLITransport) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the users table if it does not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ct.userSvc.InitializeStore(cmd.Context()); err != nil {
				return fmt.Errorf("initialize store: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "store initialized")

			return nil
		},
	}
}

func (ct *CLITransport) registerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register <username> <email>",
		Short: "Register a new user",
		Long: `Register a new user. Fails if the username is already taken.
The password is prompted for when --password is not given.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := ct.password(cmd)
			if err != nil {
				return err
			}

			if err := ct.userSvc.RegisterUser(cmd.Context(), args[0], args[1], password); err != nil {
				return fmt.Errorf("register user: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "user registered")

			return nil
		},
	}

	cmd.Flags().String(passwordFlag, "", "password (prompted when omitted)")

	return cmd
}

func (ct *CLITransport) authenticateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "authenticate <username>",
		Aliases: []string{"auth", "login"},
		Short:   "Check a user's password",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := ct.password(cmd)
			if err != nil {
				return err
			}

			if err := ct.userSvc.Authenticate(cmd.Context(), args[0], password); err != nil {
				return fmt.Errorf("authenticate: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "authenticated")

			return nil
		},
	}

	cmd.Flags().String(passwordFlag, "", "password (prompted when omitted)")

	return cmd
}

func (ct *CLITransport) listCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered users",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := ct.userSvc.DisplayUsers(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return fmt.Errorf("display users: %w", err)
			}

			if n == 0 {
				ct.log.InfoContext(cmd.Context(), "no users registered")
			}

			return nil
		},
	}
}

// password returns the --password flag if set. Otherwise it prompts on stderr
// and reads without echo from a terminal, or reads one line from a non-terminal stdin.
func (ct *CLITransport) password(cmd *cobra.Command) (string, error) {
	if flag := cmd.Flags().Lookup(passwordFlag); flag != nil && flag.Changed {
		return flag.Value.String(), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")

	in := cmd.InOrStdin()

	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		pw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())

		if err != nil {
			return "", errors.Join(ErrNoPassword, err)
		}

		return string(pw), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", errors.Join(ErrNoPassword, err)
	}

	return strings.TrimRight(line, "\r\n"), nil
}
