package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultWebhookTolerance     = 5 * time.Minute
	DefaultWebhookMaxBodyBytes  = int64(65536)
	DefaultWebhookClaimLease    = 30 * time.Second
	DefaultWebhookMaxAttempts   = 8
	DefaultCheckoutMode         = "payment"
	DefaultCheckoutPricePrefix  = "price_"
	DefaultIdentityCookieName   = "__session"
	DefaultPaymentEventCacheTTL = time.Minute
	MaxCheckoutQuantity         = 99
)

type WebhookConfig struct {
	Secret          string        `koanf:"secret" mapstructure:"secret"`
	Tolerance       time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
	MaxBodyBytes    int64         `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	ClaimLease      time.Duration `koanf:"claim_lease" mapstructure:"claim_lease"`
	MaxAttempts     int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	IgnoreUnhandled bool          `koanf:"ignore_unhandled" mapstructure:"ignore_unhandled"`
}

type CheckoutConfig struct {
	SecretKey           string `koanf:"secret_key" mapstructure:"secret_key"`
	Mode                string `koanf:"mode" mapstructure:"mode"`
	SuccessURL          string `koanf:"success_url" mapstructure:"success_url"`
	CancelURL           string `koanf:"cancel_url" mapstructure:"cancel_url"`
	PricePrefix         string `koanf:"price_prefix" mapstructure:"price_prefix"`
	AllowPromotionCodes bool   `koanf:"allow_promotion_codes" mapstructure:"allow_promotion_codes"`
}

type OrdersConfig struct {
	CancelRedirectURL string `koanf:"cancel_redirect_url" mapstructure:"cancel_redirect_url"`
}

type IdentityConfig struct {
	SessionSecret    string `koanf:"session_secret" mapstructure:"session_secret"`
	SessionPublicKey string `koanf:"session_public_key" mapstructure:"session_public_key"`
	Issuer           string `koanf:"issuer" mapstructure:"issuer"`
	Audience         string `koanf:"audience" mapstructure:"audience"`
	CookieName       string `koanf:"cookie_name" mapstructure:"cookie_name"`
}

type CacheConfig struct {
	TTL time.Duration `koanf:"ttl" mapstructure:"ttl"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig  `koanf:"webhook" mapstructure:"webhook"`
	Checkout    CheckoutConfig `koanf:"checkout" mapstructure:"checkout"`
	Orders      OrdersConfig   `koanf:"orders" mapstructure:"orders"`
	Identity    IdentityConfig `koanf:"identity" mapstructure:"identity"`
	Cache       CacheConfig    `koanf:"cache" mapstructure:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "payments",
		Webhook: WebhookConfig{
			Tolerance:    DefaultWebhookTolerance,
			MaxBodyBytes: DefaultWebhookMaxBodyBytes,
			ClaimLease:   DefaultWebhookClaimLease,
			MaxAttempts:  DefaultWebhookMaxAttempts,
		},
		Checkout: CheckoutConfig{
			Mode:        DefaultCheckoutMode,
			PricePrefix: DefaultCheckoutPricePrefix,
		},
		Orders: OrdersConfig{
			CancelRedirectURL: "/",
		},
		Identity: IdentityConfig{
			CookieName: DefaultIdentityCookieName,
		},
		Cache: CacheConfig{
			TTL: DefaultPaymentEventCacheTTL,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.Tolerance < 0 {
		return fmt.Errorf("core: webhook.tolerance must be positive")
	}
	if c.Webhook.MaxBodyBytes < 0 {
		return fmt.Errorf("core: webhook.max_body_bytes must be positive")
	}
	if c.Webhook.ClaimLease < 0 {
		return fmt.Errorf("core: webhook.claim_lease must be positive")
	}
	if c.Webhook.MaxAttempts < 0 {
		return fmt.Errorf("core: webhook.max_attempts must be positive")
	}
	switch strings.TrimSpace(strings.ToLower(c.Checkout.Mode)) {
	case "", "payment", "subscription", "setup":
	default:
		return fmt.Errorf("core: checkout.mode %q is invalid", c.Checkout.Mode)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("core: cache.ttl must be positive")
	}
	return nil
}

// withFallbacks fills zero values left behind by partial runtime configs.
func (c Config) withFallbacks() Config {
	defaults := DefaultConfig()
	if c.Webhook.Tolerance == 0 {
		c.Webhook.Tolerance = defaults.Webhook.Tolerance
	}
	if c.Webhook.MaxBodyBytes == 0 {
		c.Webhook.MaxBodyBytes = defaults.Webhook.MaxBodyBytes
	}
	if c.Webhook.ClaimLease == 0 {
		c.Webhook.ClaimLease = defaults.Webhook.ClaimLease
	}
	if c.Webhook.MaxAttempts == 0 {
		c.Webhook.MaxAttempts = defaults.Webhook.MaxAttempts
	}
	if strings.TrimSpace(c.Checkout.Mode) == "" {
		c.Checkout.Mode = defaults.Checkout.Mode
	}
	if strings.TrimSpace(c.Checkout.PricePrefix) == "" {
		c.Checkout.PricePrefix = defaults.Checkout.PricePrefix
	}
	if strings.TrimSpace(c.Orders.CancelRedirectURL) == "" {
		c.Orders.CancelRedirectURL = defaults.Orders.CancelRedirectURL
	}
	if strings.TrimSpace(c.Identity.CookieName) == "" {
		c.Identity.CookieName = defaults.Identity.CookieName
	}
	if c.Cache.TTL == 0 {
		c.Cache.TTL = defaults.Cache.TTL
	}
	return c
}
