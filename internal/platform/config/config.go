// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values. A local '.env' file is
merged into the environment first when present.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, services) via constructors.
  - Zero Hidden State: No global variables are used to store config.
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Supported session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreMongo    = "mongo"
)

// # Configuration Schema

// Config holds all runtime configuration for the idgate gateway and its services.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL) holding users and provider records
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Session persistence. Mongo settings are only read when SessionStore is "mongo".
	SessionStore  string `env:"SESSION_STORE"  envDefault:"postgres"`
	MongoURL      string `env:"MONGO_URL"`
	MongoDatabase string `env:"MONGO_DATABASE" envDefault:"idgate_auth"`

	// Optional RabbitMQ broker. When empty, email is sent in-process.
	AMQPURL   string `env:"AMQP_URL"`
	MailQueue string `env:"MAIL_QUEUE" envDefault:"mail.outbound"`

	Session      SessionConfig
	Verification TokenConfig `envPrefix:"EMAIL_VERIFICATION_"`
	Reset        TokenConfig `envPrefix:"PASSWORD_RESET_"`
	Mail         MailConfig
	OAuth        OAuthConfig

	// InternalToken is the shared secret companion callers send on /internal routes.
	InternalToken string `env:"INTERNAL_API_TOKEN,required"`

	// CompanionTimeout bounds every Auth <-> Users call.
	CompanionTimeout time.Duration `env:"COMPANION_TIMEOUT" envDefault:"5s"`

	// Public base URLs used to build links inside emails.
	PublicAPIURL string `env:"PUBLIC_API_URL" envDefault:"http://localhost:8080/api/v1"`
	PublicWebURL string `env:"PUBLIC_WEB_URL" envDefault:"http://localhost:3000"`

	// Cross-Origin Resource Sharing
	AllowedOriginSuffix string `env:"ALLOWED_ORIGIN_SUFFIX"`
}

// SessionConfig controls session token signing and housekeeping.
type SessionConfig struct {
	Secret           string        `env:"AUTH_JWT_SECRET,required"`
	Issuer           string        `env:"AUTH_JWT_ISSUER"            envDefault:"idgate.auth"`
	Audience         string        `env:"AUTH_JWT_AUDIENCE"          envDefault:"idgate.gateway"`
	TokenTTL         time.Duration `env:"AUTH_TOKEN_EXPIRATION"      envDefault:"24h"`
	InactivityPeriod time.Duration `env:"AUTH_SESSION_INACTIVITY_PERIOD" envDefault:"720h"`
	SweepInterval    time.Duration `env:"AUTH_SESSION_SWEEP_INTERVAL"    envDefault:"1h"`
}

// TokenConfig describes one single-purpose signed token family.
type TokenConfig struct {
	Secret string        `env:"SECRET,required"`
	TTL    time.Duration `env:"TTL" envDefault:"24h"`
}

// MailConfig holds the outbound email settings. Without Postmark tokens the
// log sender is used.
type MailConfig struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL"  envDefault:"no-reply@idgate.local"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@idgate.local"`
}

// OAuthConfig holds the federated provider client settings. A provider with an
// empty client ID is disabled.
type OAuthConfig struct {
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GitHubClientID     string `env:"GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"GITHUB_CLIENT_SECRET"`
	// CallbackBaseURL is suffixed with "/{provider}/callback".
	CallbackBaseURL string `env:"OAUTH_CALLBACK_BASE_URL" envDefault:"http://localhost:8080/api/v1/auth/external"`
}

// # Configuration Loading

// Load merges an optional .env file into the environment and parses it into a [Config].
func Load() (*Config, error) {

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: failed to read .env file: %w", err)
	}

	return Parse()
}

// Parse maps the current environment onto a [Config] and validates cross-field rules.
func Parse() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.SessionStore {
	case SessionStorePostgres:
	case SessionStoreMongo:
		if c.MongoURL == "" {
			return fmt.Errorf("config: MONGO_URL is required when SESSION_STORE=%s", SessionStoreMongo)
		}
	default:
		return fmt.Errorf("config: unsupported SESSION_STORE %q", c.SessionStore)
	}

	// Reusing a secret would let one token family be replayed as another.
	if c.Verification.Secret == c.Reset.Secret {
		return errors.New("config: EMAIL_VERIFICATION_SECRET and PASSWORD_RESET_SECRET must differ")
	}
	if c.Session.Secret == c.Reset.Secret || c.Session.Secret == c.Verification.Secret {
		return errors.New("config: AUTH_JWT_SECRET must differ from the email token secrets")
	}
	if c.InternalToken == c.Session.Secret {
		return errors.New("config: INTERNAL_API_TOKEN must differ from AUTH_JWT_SECRET")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
