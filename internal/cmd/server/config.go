// Package server parses payments server configuration and runs the HTTP
// runtime with its replay worker.
package server

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/goliatone/go-payments/core"
)

// Config holds payments server command configuration.
type Config struct {
	Addr            string        `env:"PAYMENTS_ADDR" envDefault:":8080"`
	ServiceName     string        `env:"PAYMENTS_SERVICE_NAME" envDefault:"payments"`
	DBDriver        string        `env:"PAYMENTS_DB_DRIVER" envDefault:"sqlite3"`
	DBDSN           string        `env:"PAYMENTS_DB_DSN" envDefault:"file:data/payments.db?cache=shared&_foreign_keys=on"`
	DBDebug         bool          `env:"PAYMENTS_DB_DEBUG"`
	ShutdownTimeout time.Duration `env:"PAYMENTS_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"PAYMENTS_LOG_LEVEL" envDefault:"info"`
	OtelEndpoint    string        `env:"PAYMENTS_OTEL_ENDPOINT"`
	RequeueBatch    int           `env:"PAYMENTS_REQUEUE_BATCH" envDefault:"100"`
	QueueBuffer     int           `env:"PAYMENTS_QUEUE_BUFFER" envDefault:"256"`
	// QueueBackend is memory or sql; empty picks sql on postgres, memory otherwise.
	QueueBackend string `env:"PAYMENTS_QUEUE_BACKEND"`

	WebhookSecret       string        `env:"PAYMENTS_WEBHOOK_SECRET"`
	WebhookTolerance    time.Duration `env:"PAYMENTS_WEBHOOK_TOLERANCE" envDefault:"5m"`
	WebhookMaxBodyBytes int64         `env:"PAYMENTS_WEBHOOK_MAX_BODY_BYTES" envDefault:"65536"`
	WebhookClaimLease   time.Duration `env:"PAYMENTS_WEBHOOK_CLAIM_LEASE" envDefault:"30s"`
	WebhookMaxAttempts  int           `env:"PAYMENTS_WEBHOOK_MAX_ATTEMPTS" envDefault:"8"`
	IgnoreUnhandled     bool          `env:"PAYMENTS_WEBHOOK_IGNORE_UNHANDLED"`

	StripeSecretKey     string `env:"PAYMENTS_STRIPE_SECRET_KEY"`
	CheckoutMode        string `env:"PAYMENTS_CHECKOUT_MODE" envDefault:"payment"`
	CheckoutSuccessURL  string `env:"PAYMENTS_CHECKOUT_SUCCESS_URL"`
	CheckoutCancelURL   string `env:"PAYMENTS_CHECKOUT_CANCEL_URL"`
	AllowPromotionCodes bool   `env:"PAYMENTS_CHECKOUT_ALLOW_PROMOTION_CODES"`
	CancelRedirectURL   string `env:"PAYMENTS_CANCEL_REDIRECT_URL" envDefault:"/"`

	SessionSecret    string `env:"PAYMENTS_SESSION_SECRET"`
	SessionPublicKey string `env:"PAYMENTS_SESSION_PUBLIC_KEY"`
	SessionIssuer    string `env:"PAYMENTS_SESSION_ISSUER"`
	SessionAudience  string `env:"PAYMENTS_SESSION_AUDIENCE"`
	SessionCookie    string `env:"PAYMENTS_SESSION_COOKIE" envDefault:"__session"`
	// DevUserID trusts the X-User-Id header when no session key is set. Local only.
	DevUserID bool `env:"PAYMENTS_DEV_USER_HEADER"`

	CacheTTL time.Duration `env:"PAYMENTS_CACHE_TTL" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Database driver (sqlite3 or postgres)")
	fs.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "Database connection string")
	fs.BoolVar(&cfg.DBDebug, "db-debug", cfg.DBDebug, "Log SQL queries")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.OtelEndpoint, "otel-endpoint", cfg.OtelEndpoint, "OTLP HTTP traces endpoint; empty disables tracing")
	fs.IntVar(&cfg.WebhookMaxAttempts, "webhook-max-attempts", cfg.WebhookMaxAttempts, "Maximum webhook processing attempts before dead")
	fs.StringVar(&cfg.QueueBackend, "queue-backend", cfg.QueueBackend, "Replay queue backend (memory or sql)")
	fs.BoolVar(&cfg.DevUserID, "dev-user-header", cfg.DevUserID, "Trust the X-User-Id header when no session key is configured")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.DBDriver = normalizeDriver(cfg.DBDriver)
	backend, err := resolveQueueBackend(cfg.QueueBackend, cfg.DBDriver)
	if err != nil {
		return Config{}, err
	}
	cfg.QueueBackend = backend
	if strings.TrimSpace(cfg.DBDSN) == "" {
		return Config{}, fmt.Errorf("server: database dsn is required")
	}
	return cfg, nil
}

// normalizeDriver maps driver aliases onto the names registered by the sql
// drivers linked into the binary.
func normalizeDriver(driver string) string {
	driver = strings.TrimSpace(strings.ToLower(driver))
	switch driver {
	case "postgresql", "pg":
		return "postgres"
	case "sqlite":
		return "sqlite3"
	}
	return driver
}

const (
	QueueBackendMemory = "memory"
	QueueBackendSQL    = "sql"
)

func resolveQueueBackend(backend string, driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(backend)) {
	case "":
		if driver == "postgres" {
			return QueueBackendSQL, nil
		}
		return QueueBackendMemory, nil
	case QueueBackendMemory:
		return QueueBackendMemory, nil
	case QueueBackendSQL, "gojob":
		return QueueBackendSQL, nil
	}
	return "", fmt.Errorf("server: unknown queue backend %q", backend)
}

// ServiceConfig projects the command configuration onto the service config.
func (c Config) ServiceConfig() core.Config {
	cfg := core.DefaultConfig()
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		cfg.ServiceName = name
	}
	cfg.Webhook = core.WebhookConfig{
		Secret:          c.WebhookSecret,
		Tolerance:       c.WebhookTolerance,
		MaxBodyBytes:    c.WebhookMaxBodyBytes,
		ClaimLease:      c.WebhookClaimLease,
		MaxAttempts:     c.WebhookMaxAttempts,
		IgnoreUnhandled: c.IgnoreUnhandled,
	}
	cfg.Checkout.SecretKey = c.StripeSecretKey
	cfg.Checkout.Mode = c.CheckoutMode
	cfg.Checkout.SuccessURL = c.CheckoutSuccessURL
	cfg.Checkout.CancelURL = c.CheckoutCancelURL
	cfg.Checkout.AllowPromotionCodes = c.AllowPromotionCodes
	cfg.Orders.CancelRedirectURL = c.CancelRedirectURL
	cfg.Identity = core.IdentityConfig{
		SessionSecret:    c.SessionSecret,
		SessionPublicKey: c.SessionPublicKey,
		Issuer:           c.SessionIssuer,
		Audience:         c.SessionAudience,
		CookieName:       c.SessionCookie,
	}
	cfg.Cache.TTL = c.CacheTTL
	return cfg
}
