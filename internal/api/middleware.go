package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/roach88/okra/internal/ledger"
)

const (
	// AuthCookie names the cookie carrying the sealed session token.
	AuthCookie = "auth"

	// RequestIDHeader carries the request ID back to the client.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "okra_request_id"
	identityKey  = "okra_identity"
	ledgerKey    = "okra_ledger"
)

// RequestIDGenerator produces request IDs.
type RequestIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUIDv4 request IDs.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

func requestID(ids RequestIDGenerator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := ids.Generate()
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// RequestID returns the ID assigned to the current request.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("request_id", RequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if user := Identity(c); user != "" {
			fields = append(fields, zap.String("user", user))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// cors allows any origin with credentials, echoing the caller's Origin since
// browsers refuse a wildcard when credentials are included.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Accept, Content-Type")
			h.Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requireSession resolves the sealed session cookie to an identity and opens
// that identity's ledger for the rest of the request.
func (s *Server) requireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		sealed, err := c.Cookie(AuthCookie)
		if err != nil || sealed == "" {
			abortWithError(c, errNoSession)
			return
		}

		token, err := s.sealer.Open(sealed)
		if err != nil {
			abortWithError(c, err)
			return
		}

		user, err := s.auth.Validate(token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		l, err := s.tenants.Open(c.Request.Context(), user)
		if err != nil {
			abortWithError(c, err)
			return
		}
		defer func() {
			if err := l.Close(); err != nil {
				s.logger.Warn("close ledger", zap.String("user", user), zap.Error(err))
			}
		}()

		c.Set(identityKey, user)
		c.Set(ledgerKey, l)
		c.Next()
	}
}

// Identity returns the authenticated username, or "" outside a session.
func Identity(c *gin.Context) string {
	return c.GetString(identityKey)
}

func ledgerFrom(c *gin.Context) *ledger.Ledger {
	if v, ok := c.Get(ledgerKey); ok {
		if l, ok := v.(*ledger.Ledger); ok {
			return l
		}
	}
	return nil
}

var errThrottled = errors.New("too many login attempts")

// maxTrackedClients bounds the limiter map; it is reset when exceeded.
const maxTrackedClients = 10000

// loginLimiter keeps one token bucket per client address.
type loginLimiter struct {
	mu      sync.Mutex
	every   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
}

func newLoginLimiter(every rate.Limit, burst int) *loginLimiter {
	return &loginLimiter{every: every, burst: burst, clients: make(map[string]*rate.Limiter)}
}

func (l *loginLimiter) allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.clients[client]
	if !ok {
		if len(l.clients) >= maxTrackedClients {
			l.clients = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.every, l.burst)
		l.clients[client] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}
