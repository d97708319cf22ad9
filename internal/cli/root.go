package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// Logger overrides the logger built from --verbose (for testing).
	Logger *zap.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the okra CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "okra",
		Short: "okra - personal activity ledger",
		Long: `okra records what you did and when.

Actions are named tasks ("run", "read"), activities are timestamped
occurrences of an action, and notes annotate activities. Every user gets
an isolated ledger file; the HTTP server fronts them behind session cookies.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewAddUserCommand(opts))
	cmd.AddCommand(NewRemoveUserCommand(opts))
	cmd.AddCommand(NewCreateActionCommand(opts))
	cmd.AddCommand(NewLinkActionCommand(opts))
	cmd.AddCommand(NewActionsCommand(opts))
	cmd.AddCommand(NewLogCommand(opts))
	cmd.AddCommand(NewNotateCommand(opts))
	cmd.AddCommand(NewNotesCommand(opts))
	cmd.AddCommand(NewActivitiesCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// logger returns the injected logger, or builds one: development output at
// debug level with --verbose, production JSON at info level otherwise.
func (o *RootOptions) logger() (*zap.Logger, error) {
	if o.Logger != nil {
		return o.Logger, nil
	}
	if o.Verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// diagnosticLogger is logger for one-shot commands: silent unless --verbose.
func (o *RootOptions) diagnosticLogger() (*zap.Logger, error) {
	if o.Logger == nil && !o.Verbose {
		return zap.NewNop(), nil
	}
	return o.logger()
}
