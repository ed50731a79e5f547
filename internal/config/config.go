// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// ErrMissingJWTSecret is returned when no signing secret is configured for a
// non-local deployment.
var ErrMissingJWTSecret = errors.New("jwt secret is required when not running on localhost")

var configPath = "config.toml"

var configFile = altsrc.NewStringPtrSourcer(&configPath)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server    ServerConfig
	Log       LogConfig
	Database  DatabaseConfig
	Auth      AuthConfig
	SMTP      SMTPConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Broker    BrokerConfig
	Storage   StorageConfig
	Jobs      JobsConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	FrontendURL string // Links in notices point here
	MaxBodySize int    // in MB
	TLSCertFile string // TLS is terminated upstream when empty
	TLSKeyFile  string
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	JWTSecret         string
	SessionTTL        time.Duration
	VerificationTTL   time.Duration
	ResetTTL          time.Duration
	BcryptCost        int
	PasswordMinLength int
	// AutoVerify marks new accounts verified at registration. Demo use only.
	AutoVerify    bool
	AdminEmail    string
	AdminPassword string
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host      string
	Port      int
	Username  string
	Password  string
	From      string
	FromName  string
	TLS       bool
	Workers   int
	QueueSize int
}

// Enabled reports whether outgoing mail is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	Prefix         string
}

type BrokerConfig struct {
	URL   string // AMQP URL, publishing is disabled when empty
	Queue string
}

type StorageConfig struct {
	UploadDir     string
	MaxUploadSize int // in MB
}

type JobsConfig struct {
	TokenPurgeSchedule string // cron spec, empty disables the job
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			FrontendURL: cmd.String("frontend-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
			TLSCertFile: cmd.String("tls-cert"),
			TLSKeyFile:  cmd.String("tls-key"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			JWTSecret:         cmd.String("jwt-secret"),
			SessionTTL:        cmd.Duration("session-ttl"),
			VerificationTTL:   cmd.Duration("verification-ttl"),
			ResetTTL:          cmd.Duration("reset-ttl"),
			BcryptCost:        int(cmd.Int("bcrypt-cost")),
			PasswordMinLength: int(cmd.Int("password-min-length")),
			AutoVerify:        cmd.Bool("auto-verify"),
			AdminEmail:        cmd.String("admin-email"),
			AdminPassword:     cmd.String("admin-password"),
		},
		SMTP: SMTPConfig{
			Host:      cmd.String("smtp-host"),
			Port:      int(cmd.Int("smtp-port")),
			Username:  cmd.String("smtp-username"),
			Password:  cmd.String("smtp-password"),
			From:      cmd.String("smtp-from"),
			FromName:  cmd.String("smtp-from-name"),
			TLS:       cmd.Bool("smtp-tls"),
			Workers:   int(cmd.Int("smtp-workers")),
			QueueSize: int(cmd.Int("smtp-queue-size")),
		},
		Redis: RedisConfig{
			Addr:     cmd.String("redis-addr"),
			Password: cmd.String("redis-password"),
			DB:       int(cmd.Int("redis-db")),
		},
		RateLimit: RateLimitConfig{
			Enabled:        cmd.Bool("rate-limit"),
			Capacity:       int(cmd.Int("rate-limit-capacity")),
			RefillTokens:   int(cmd.Int("rate-limit-refill-tokens")),
			RefillInterval: cmd.Duration("rate-limit-refill-interval"),
			TTL:            cmd.Duration("rate-limit-ttl"),
			Prefix:         cmd.String("rate-limit-prefix"),
		},
		Broker: BrokerConfig{
			URL:   cmd.String("amqp-url"),
			Queue: cmd.String("amqp-queue"),
		},
		Storage: StorageConfig{
			UploadDir:     cmd.String("upload-dir"),
			MaxUploadSize: int(cmd.Int("max-upload-size")),
		},
		Jobs: JobsConfig{
			TokenPurgeSchedule: cmd.String("token-purge-schedule"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	if cfg.Server.FrontendURL == "" {
		cfg.Server.FrontendURL = cfg.Server.BaseURL
	}

	return cfg
}

// ResolveJWTSecret generates a throwaway signing secret on localhost when none
// is configured. It reports whether a secret was generated.
func (c *Config) ResolveJWTSecret() (bool, error) {
	if c.Auth.JWTSecret != "" {
		return false, nil
	}
	if !IsLocalhost(c.Server.Host) {
		return false, ErrMissingJWTSecret
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return false, fmt.Errorf("generating jwt secret: %w", err)
	}
	c.Auth.JWTSecret = hex.EncodeToString(buf)
	return true, nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port

	// TLS is terminated by the reverse proxy outside of localhost.
	scheme := "https"
	if IsLocalhost(host) {
		scheme = "http"
	}

	// Hide default ports in URL
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	// Check for *.localhost subdomains (e.g., app.localhost)
	return strings.HasSuffix(host, ".localhost")
}

func sources(envKey, tomlKey string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(envKey), toml.TOML(tomlKey, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		// Server
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: sources("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: sources("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Base URL of the API",
			Sources: sources("BASE_URL", "server.base_url"),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Base URL of the web frontend used in email links (defaults to base-url)",
			Sources: sources("FRONTEND_URL", "server.frontend_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum JSON request body size in MB",
			Sources: sources("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.StringFlag{
			Name:    "tls-cert",
			Usage:   "TLS certificate file (PEM); serve plain HTTP when empty",
			Sources: sources("TLS_CERT", "server.tls_cert"),
		},
		&cli.StringFlag{
			Name:    "tls-key",
			Usage:   "TLS private key file (PEM)",
			Sources: sources("TLS_KEY", "server.tls_key"),
		},
		// Logging
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: sources("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: sources("LOG_FORMAT", "log.format"),
		},
		// Database
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/portal.db",
			Usage:   "Database DSN",
			Sources: sources("DATABASE_DSN", "database.dsn"),
		},
		// Auth
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Secret for signing session tokens (auto-generated if empty on localhost)",
			Sources: sources("JWT_SECRET", "auth.jwt_secret"),
		},
		&cli.DurationFlag{
			Name:    "session-ttl",
			Value:   12 * time.Hour,
			Usage:   "Lifetime of session tokens",
			Sources: sources("SESSION_TTL", "auth.session_ttl"),
		},
		&cli.DurationFlag{
			Name:    "verification-ttl",
			Value:   24 * time.Hour,
			Usage:   "Lifetime of email verification tokens",
			Sources: sources("VERIFICATION_TTL", "auth.verification_ttl"),
		},
		&cli.DurationFlag{
			Name:    "reset-ttl",
			Value:   2 * time.Hour,
			Usage:   "Lifetime of password reset tokens",
			Sources: sources("RESET_TTL", "auth.reset_ttl"),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   10,
			Usage:   "bcrypt cost factor",
			Sources: sources("BCRYPT_COST", "auth.bcrypt_cost"),
		},
		&cli.IntFlag{
			Name:    "password-min-length",
			Value:   8,
			Usage:   "Minimum password length accepted at registration",
			Sources: sources("PASSWORD_MIN_LENGTH", "auth.password_min_length"),
		},
		&cli.BoolFlag{
			Name:    "auto-verify",
			Usage:   "Mark new accounts as verified without email confirmation (demo only)",
			Sources: sources("AUTO_VERIFY", "auth.auto_verify"),
		},
		&cli.StringFlag{
			Name:    "admin-email",
			Usage:   "Email of the bootstrap admin account",
			Sources: sources("ADMIN_EMAIL", "auth.admin_email"),
		},
		&cli.StringFlag{
			Name:    "admin-password",
			Usage:   "Password of the bootstrap admin account",
			Sources: sources("ADMIN_PASSWORD", "auth.admin_password"),
		},
		// SMTP
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (notices are only logged when empty)",
			Sources: sources("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: sources("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: sources("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: sources("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address",
			Sources: sources("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Kantama",
			Usage:   "Sender display name",
			Sources: sources("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: sources("SMTP_TLS", "smtp.tls"),
		},
		&cli.IntFlag{
			Name:    "smtp-workers",
			Value:   2,
			Usage:   "Number of background mail workers",
			Sources: sources("SMTP_WORKERS", "smtp.workers"),
		},
		&cli.IntFlag{
			Name:    "smtp-queue-size",
			Value:   100,
			Usage:   "Pending notices kept in memory before new ones are dropped",
			Sources: sources("SMTP_QUEUE_SIZE", "smtp.queue_size"),
		},
		// Redis / rate limiting
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address for rate limiting (host:port)",
			Sources: sources("REDIS_ADDR", "redis.addr"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			Sources: sources("REDIS_PASSWORD", "redis.password"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			Sources: sources("REDIS_DB", "redis.db"),
		},
		&cli.BoolFlag{
			Name:    "rate-limit",
			Value:   true,
			Usage:   "Rate limit authentication endpoints (requires redis-addr)",
			Sources: sources("RATE_LIMIT", "rate_limit.enabled"),
		},
		&cli.IntFlag{
			Name:    "rate-limit-capacity",
			Value:   10,
			Usage:   "Token bucket capacity per client",
			Sources: sources("RATE_LIMIT_CAPACITY", "rate_limit.capacity"),
		},
		&cli.IntFlag{
			Name:    "rate-limit-refill-tokens",
			Value:   1,
			Usage:   "Tokens added per refill interval",
			Sources: sources("RATE_LIMIT_REFILL_TOKENS", "rate_limit.refill_tokens"),
		},
		&cli.DurationFlag{
			Name:    "rate-limit-refill-interval",
			Value:   6 * time.Second,
			Usage:   "Token bucket refill interval",
			Sources: sources("RATE_LIMIT_REFILL_INTERVAL", "rate_limit.refill_interval"),
		},
		&cli.DurationFlag{
			Name:    "rate-limit-ttl",
			Value:   10 * time.Minute,
			Usage:   "Expiry of idle buckets",
			Sources: sources("RATE_LIMIT_TTL", "rate_limit.ttl"),
		},
		&cli.StringFlag{
			Name:    "rate-limit-prefix",
			Value:   "portal:rl",
			Usage:   "Redis key prefix for buckets",
			Sources: sources("RATE_LIMIT_PREFIX", "rate_limit.prefix"),
		},
		// Broker
		&cli.StringFlag{
			Name:    "amqp-url",
			Usage:   "AMQP URL for status change events (disabled when empty)",
			Sources: sources("AMQP_URL", "broker.url"),
		},
		&cli.StringFlag{
			Name:    "amqp-queue",
			Value:   "applications.status_changed",
			Usage:   "Queue receiving status change events",
			Sources: sources("AMQP_QUEUE", "broker.queue"),
		},
		// Storage
		&cli.StringFlag{
			Name:    "upload-dir",
			Value:   "./data/uploads",
			Usage:   "Directory for uploaded attachments",
			Sources: sources("UPLOAD_DIR", "storage.upload_dir"),
		},
		&cli.IntFlag{
			Name:    "max-upload-size",
			Value:   20,
			Usage:   "Maximum attachment size in MB",
			Sources: sources("MAX_UPLOAD_SIZE", "storage.max_upload_size"),
		},
		// Jobs
		&cli.StringFlag{
			Name:    "token-purge-schedule",
			Value:   "@hourly",
			Usage:   "Cron schedule for purging expired tokens (empty disables)",
			Sources: sources("TOKEN_PURGE_SCHEDULE", "jobs.token_purge_schedule"),
		},
	}
}
