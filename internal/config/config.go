// Package config loads the okra server configuration from YAML.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Config holds the entire configuration for the okra server.
type Config struct {
	Listen    string          `yaml:"listen" validate:"required,hostname_port"`
	DataDir   string          `yaml:"data_dir" validate:"required"`
	UsersDB   string          `yaml:"users_db" validate:"required"`
	Session   SessionConfig   `yaml:"session"`
	LoginRate LoginRateConfig `yaml:"login_rate"`
}

// SessionConfig controls token minting and the session cookie.
type SessionConfig struct {
	Lifetime   time.Duration `yaml:"lifetime" validate:"min=1m"`
	CookieKey  string        `yaml:"cookie_key" validate:"required,hexadecimal,len=64"` // AES-256 key, hex
	SigningKey string        `yaml:"signing_key" validate:"omitempty,min=16"`           // optional HMAC key
	BcryptCost int           `yaml:"bcrypt_cost" validate:"min=4,max=31"`
}

// LoginRateConfig throttles POST /users/login per client address.
type LoginRateConfig struct {
	PerSecond float64 `yaml:"per_second" validate:"gt=0"`
	Burst     int     `yaml:"burst" validate:"min=1"`
}

// Default returns the configuration used for keys the file leaves out.
// CookieKey has no default and must be supplied.
func Default() Config {
	return Config{
		Listen:  ":8000",
		DataDir: "data",
		UsersDB: "data/users.sqlite",
		Session: SessionConfig{
			Lifetime:   7 * 24 * time.Hour,
			BcryptCost: bcrypt.DefaultCost,
		},
		LoginRate: LoginRateConfig{
			PerSecond: 1,
			Burst:     5,
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the YAML file at path over the defaults and validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks every field constraint and reports all violations at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}
	msgs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Errorf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), redact(fe)))
	}
	return fmt.Errorf("invalid config: %w", errors.Join(msgs...))
}

// CookieKeyBytes decodes the session cookie key.
func (c Config) CookieKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.Session.CookieKey)
	if err != nil {
		return nil, fmt.Errorf("cookie key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("cookie key: want 32 bytes, got %d", len(key))
	}
	return key, nil
}

func redact(fe validator.FieldError) any {
	switch fe.Field() {
	case "CookieKey", "SigningKey":
		return "<redacted>"
	}
	return fe.Value()
}
