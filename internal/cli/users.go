package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/okra/internal/auth"
)

// UserOptions holds flags for the user administration commands.
type UserOptions struct {
	*RootOptions
	Username string
	Password string
	Cost     int
}

// NewAddUserCommand creates the add-user command.
func NewAddUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add-user <users-db>",
		Short: "Insert a new user into the users database",
		Long: `Insert a new user into the users database.

The password is stored as a bcrypt hash. Usernames are 1-64 characters of
letters, digits, '_', '.' and '-'.

Example:
  okra add-user data/users.sqlite -u bob -p secret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAddUser(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "username (required)")
	cmd.Flags().StringVarP(&opts.Password, "password", "p", "", "password (required)")
	cmd.Flags().IntVar(&opts.Cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runAddUser(opts *UserOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	logger, err := opts.diagnosticLogger()
	if err != nil {
		return formatter.Fail("failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := ensureParentDir(path); err != nil {
		return formatter.Fail("failed to prepare users database", err)
	}

	ctx := commandContext(cmd)
	a, err := auth.Open(ctx, path, auth.WithLogger(logger), auth.WithCost(opts.Cost))
	if err != nil {
		return formatter.Fail("failed to open users database", err)
	}
	defer a.Close()

	if err := a.Enroll(ctx, opts.Username, opts.Password); err != nil {
		return formatter.Fail("failed to add user", err)
	}

	return formatter.Render(map[string]string{"username": opts.Username}, func(w io.Writer) {
		fmt.Fprintf(w, "added user %s\n", opts.Username)
	})
}

// NewRemoveUserCommand creates the remove-user command.
func NewRemoveUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remove-user <users-db>",
		Short: "Delete a user from the users database",
		Long: `Delete a user from the users database.

The user's ledger file is left in place. Session cookies already issued
stay valid until they expire.

Example:
  okra remove-user data/users.sqlite -u bob`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRemoveUser(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Username, "username", "u", "", "username (required)")
	_ = cmd.MarkFlagRequired("username")

	return cmd
}

func runRemoveUser(opts *UserOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	if err := requireFile(path); err != nil {
		return formatter.Fail("users database not found", err)
	}

	ctx := commandContext(cmd)
	a, err := auth.Open(ctx, path)
	if err != nil {
		return formatter.Fail("failed to open users database", err)
	}
	defer a.Close()

	if err := a.Remove(ctx, opts.Username); err != nil {
		return formatter.Fail("failed to remove user", err)
	}

	return formatter.Render(map[string]string{"username": opts.Username}, func(w io.Writer) {
		fmt.Fprintf(w, "removed user %s\n", opts.Username)
	})
}

// commandContext returns the command's context, or Background when run
// outside ExecuteContext.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// ensureParentDir creates the directory that will hold path.
func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}

// requireFile fails for paths that do not exist, so read commands do not
// silently create empty databases.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	return nil
}
