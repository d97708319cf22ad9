// Package api serves the okra ledger over HTTP.
//
// Sessions travel in an "auth" cookie holding a session token sealed with
// AES-256-GCM. Every ledger route resolves the cookie to an identity and
// opens that identity's ledger for the duration of the request.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roach88/okra/internal/auth"
	"github.com/roach88/okra/internal/tenant"
)

// Options configures a Server. Auth, Tenants and CookieKey are required.
type Options struct {
	Auth      *auth.Authenticator
	Tenants   *tenant.Registry
	CookieKey []byte

	// LoginRate and LoginBurst throttle POST /users/login per client
	// address. A zero LoginRate disables throttling.
	LoginRate  rate.Limit
	LoginBurst int

	Logger  *zap.Logger
	IDs     RequestIDGenerator
	Metrics *Metrics
}

// Server is the HTTP front end.
type Server struct {
	auth    *auth.Authenticator
	tenants *tenant.Registry
	sealer  *Sealer
	limiter *loginLimiter
	logger  *zap.Logger
	metrics *Metrics
	engine  *gin.Engine
}

// NewServer builds the router and its middleware chain.
func NewServer(opts Options) (*Server, error) {
	if opts.Auth == nil || opts.Tenants == nil {
		return nil, errors.New("api: authenticator and tenant registry are required")
	}
	sealer, err := NewSealer(opts.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("api: %w", err)
	}

	s := &Server{
		auth:    opts.Auth,
		tenants: opts.Tenants,
		sealer:  sealer,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if opts.LoginRate > 0 {
		burst := opts.LoginBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = newLoginLimiter(opts.LoginRate, burst)
	}
	ids := opts.IDs
	if ids == nil {
		ids = UUIDGenerator{}
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(ids), accessLog(s.logger), s.metrics.middleware(), cors())

	r.POST("/users/login", s.login)
	r.GET("/users/logout", s.logout)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	ledgerRoutes := r.Group("/", s.requireSession())
	{
		ledgerRoutes.GET("/action/get/:max/:last", s.getActions)
		ledgerRoutes.GET("/action/get_name/:id", s.getActionName)
		ledgerRoutes.POST("/action/create", s.createAction)
		ledgerRoutes.GET("/action/children/:parent/:last/:max", s.getChildActions)
		ledgerRoutes.GET("/activity/log/:action", s.logActivity)
		ledgerRoutes.GET("/activity/notate/:activity/:notes", s.notateActivity)
		ledgerRoutes.GET("/activity/range/:from/:to/:max", s.activityRange)
		ledgerRoutes.GET("/activity/notations/:activity/:last/:max", s.getNotations)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found", "request_id": RequestID(c)})
	})

	s.engine = r
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully, waiting up to five seconds for in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}
