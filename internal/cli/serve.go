package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/roach88/okra/internal/api"
	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/config"
	"github.com/roach88/okra/internal/tenant"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config  string
	Listen  string
	DataDir string
	UsersDB string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the okra HTTP server.

Settings come from the YAML config file; --listen, --data-dir and --users-db
override the file. The server stops gracefully on SIGINT or SIGTERM.

Example:
  okra serve --config okra.yaml
  okra serve --config okra.yaml --listen 127.0.0.1:9000 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "path to YAML config (required)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address, overrides config")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "per-user ledger directory, overrides config")
	cmd.Flags().StringVar(&opts.UsersDB, "users-db", "", "users database, overrides config")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := loadServeConfig(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	cookieKey, err := cfg.CookieKeyBytes()
	if err != nil {
		_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	logger, err := opts.logger()
	if err != nil {
		return formatter.Fail("failed to build logger", err)
	}
	defer func() { _ = logger.Sync() }()

	// Use command's context if available (for testing), otherwise create one
	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	authOpts := []auth.Option{
		auth.WithLogger(logger.Named("auth")),
		auth.WithLifetime(cfg.Session.Lifetime),
		auth.WithCost(cfg.Session.BcryptCost),
	}
	if cfg.Session.SigningKey != "" {
		authOpts = append(authOpts, auth.WithSigningKey([]byte(cfg.Session.SigningKey)))
	}

	logger.Info("opening users database", zap.String("path", cfg.UsersDB))
	if err := ensureParentDir(cfg.UsersDB); err != nil {
		return formatter.Fail("failed to prepare users database", err)
	}
	authn, err := auth.Open(ctx, cfg.UsersDB, authOpts...)
	if err != nil {
		return formatter.Fail("failed to open users database", err)
	}
	defer func() {
		if closeErr := authn.Close(); closeErr != nil {
			logger.Error("error closing users database", zap.Error(closeErr))
		}
	}()

	tenants, err := tenant.NewRegistry(cfg.DataDir, logger.Named("tenant"))
	if err != nil {
		return formatter.Fail("failed to prepare data directory", err)
	}

	srv, err := api.NewServer(api.Options{
		Auth:       authn,
		Tenants:    tenants,
		CookieKey:  cookieKey,
		LoginRate:  rate.Limit(cfg.LoginRate.PerSecond),
		LoginBurst: cfg.LoginRate.Burst,
		Logger:     logger.Named("http"),
	})
	if err != nil {
		return formatter.Fail("failed to build server", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, cfg.Listen)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		return nil
	})

	logger.Info("server starting",
		zap.String("listen", cfg.Listen),
		zap.String("data_dir", tenants.Dir()),
		zap.Duration("session_lifetime", cfg.Session.Lifetime),
		zap.Bool("signed_tokens", cfg.Session.SigningKey != ""))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return formatter.Fail("server error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}

func loadServeConfig(opts *ServeOptions) (config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return config.Config{}, err
	}

	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.UsersDB != "" {
		cfg.UsersDB = opts.UsersDB
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
