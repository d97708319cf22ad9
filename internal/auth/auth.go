package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/okra/internal/clock"
	"github.com/roach88/okra/internal/store"
)

// DefaultSessionLifetime is how long a minted token stays valid.
const DefaultSessionLifetime = 7 * 24 * time.Hour

// SchemaVersion is the user_version a users database is stamped with.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS users (username TEXT UNIQUE, secret TEXT);
CREATE INDEX IF NOT EXISTS idx_username ON users (username);
`

// Authenticator enrolls users, checks passwords and mints and validates
// session tokens. Identity records live in a users table; secrets are bcrypt
// hashes.
type Authenticator struct {
	db       *store.DB
	owned    bool
	clock    clock.Clock
	logger   *zap.Logger
	lifetime time.Duration
	cost     int
	key      []byte
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithClock overrides the clock used for minting and expiry checks.
func WithClock(c clock.Clock) Option {
	return func(a *Authenticator) { a.clock = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(a *Authenticator) { a.logger = l }
}

// WithLifetime sets the session lifetime of minted tokens.
func WithLifetime(d time.Duration) Option {
	return func(a *Authenticator) { a.lifetime = d }
}

// WithCost sets the bcrypt cost used by Enroll.
func WithCost(cost int) Option {
	return func(a *Authenticator) { a.cost = cost }
}

// WithSigningKey makes minted tokens carry an HMAC-SHA256 field and makes
// Validate reject tokens without a valid one. An empty key leaves tokens
// unsigned.
func WithSigningKey(key []byte) Option {
	return func(a *Authenticator) { a.key = key }
}

// Open opens (creating if needed) the users database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Authenticator, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open users: %w", err)
	}

	a, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.owned = true
	return a, nil
}

// New builds an Authenticator on an open database, creating the users table
// if needed. The caller keeps ownership of db.
func New(ctx context.Context, db *store.DB, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		db:       db,
		clock:    clock.System{},
		logger:   zap.NewNop(),
		lifetime: DefaultSessionLifetime,
		cost:     bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.lifetime <= 0 {
		return nil, fmt.Errorf("session lifetime must be positive, got %s", a.lifetime)
	}
	if a.cost < bcrypt.MinCost || a.cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", a.cost, bcrypt.MinCost, bcrypt.MaxCost)
	}

	if _, err := db.SQL().ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create users table: %w", store.Classify(err))
	}
	if err := db.StampSchema(ctx, SchemaVersion); err != nil {
		return nil, fmt.Errorf("users database: %w", err)
	}
	return a, nil
}

// Close releases the database if the Authenticator opened it.
func (a *Authenticator) Close() error {
	if !a.owned {
		return nil
	}
	return a.db.Close()
}

// Lifetime returns the configured session lifetime.
func (a *Authenticator) Lifetime() time.Duration {
	return a.lifetime
}

// Enroll stores a new identity with a bcrypt hash of password.
func (a *Authenticator) Enroll(ctx context.Context, username, password string) error {
	if err := CheckUsername(username); err != nil {
		return err
	}
	if password == "" {
		return fmt.Errorf("enroll %s: %w: empty password", username, ErrInvalidCredentials)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return fmt.Errorf("enroll %s: %w: %w", username, ErrInvalidCredentials, err)
		}
		return fmt.Errorf("enroll %s: hash password: %w", username, err)
	}

	_, err = a.db.SQL().ExecContext(ctx,
		"INSERT INTO users (username, secret) VALUES (?, ?)", username, string(hash))
	if err != nil {
		err = store.Classify(err)
		if errors.Is(err, store.ErrDuplicateKey) {
			return fmt.Errorf("enroll %s: %w", username, ErrDuplicateUser)
		}
		return fmt.Errorf("enroll %s: %w", username, err)
	}

	a.logger.Info("user enrolled", zap.String("username", username))
	return nil
}

// Login checks username and password and mints a session token.
func (a *Authenticator) Login(ctx context.Context, username, password string) (Token, error) {
	var secret string
	err := a.db.SQL().QueryRowContext(ctx,
		"SELECT secret FROM users WHERE username = ?", username).Scan(&secret)
	if errors.Is(err, sql.ErrNoRows) {
		a.logger.Warn("login for unknown user", zap.String("username", username))
		return Token{}, fmt.Errorf("login %s: %w", username, ErrUnknownUser)
	}
	if err != nil {
		return Token{}, fmt.Errorf("login %s: %w", username, store.Classify(err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(secret), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			a.logger.Warn("login with wrong password", zap.String("username", username))
			return Token{}, fmt.Errorf("login %s: %w", username, ErrInvalidCredentials)
		}
		a.logger.Error("stored secret unusable", zap.String("username", username), zap.Error(err))
		return Token{}, fmt.Errorf("login %s: %w", username, err)
	}

	tok := a.Mint(username)
	a.logger.Debug("session minted", zap.String("username", username), zap.Int64("expiry", tok.Expiry))
	return tok, nil
}

// Mint issues a token for username expiring one session lifetime from now.
// It does not consult the users table.
func (a *Authenticator) Mint(username string) Token {
	tok := Token{
		Username: username,
		Expiry:   clock.Millis(a.clock.Now().Add(a.lifetime)),
	}
	if len(a.key) > 0 {
		tok.mac = sign(a.key, tok.payload())
	}
	return tok
}

// Validate parses a wire token and returns the username it carries.
// It fails with ErrMalformed when the token does not parse or its signature
// does not verify, and with ErrExpired once the clock reaches the expiry.
func (a *Authenticator) Validate(token string) (string, error) {
	tok, err := parseToken(token, len(a.key) > 0)
	if err != nil {
		return "", err
	}
	if len(a.key) > 0 && !verify(a.key, tok) {
		return "", fmt.Errorf("%w: bad signature", ErrMalformed)
	}

	if clock.Millis(a.clock.Now()) >= tok.Expiry {
		return "", fmt.Errorf("%w: at %d", ErrExpired, tok.Expiry)
	}
	return tok.Username, nil
}

// Remove deletes an identity record. Tokens already minted for the user stay
// valid until they expire.
func (a *Authenticator) Remove(ctx context.Context, username string) error {
	res, err := a.db.SQL().ExecContext(ctx, "DELETE FROM users WHERE username = ?", username)
	if err != nil {
		return fmt.Errorf("remove %s: %w", username, store.Classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove %s: %w", username, store.Classify(err))
	}
	if n == 0 {
		return fmt.Errorf("remove %s: %w", username, ErrUnknownUser)
	}

	a.logger.Info("user removed", zap.String("username", username))
	return nil
}
