package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
	"github.com/stripe/stripe-go/v82/webhook"
)

const ProviderID = core.ProviderStripe

const (
	HeaderSignature = "Stripe-Signature"

	defaultWebhookTolerance = 5 * time.Minute
)

type WebhookConfig struct {
	Secret          string
	Tolerance       time.Duration
	IgnoreUnhandled bool
}

func DefaultWebhookConfig(secret string) WebhookConfig {
	return WebhookConfig{
		Secret:    strings.TrimSpace(secret),
		Tolerance: defaultWebhookTolerance,
	}
}

// WebhookConfigFrom projects the service webhook settings onto the provider.
func WebhookConfigFrom(cfg core.WebhookConfig) WebhookConfig {
	return WebhookConfig{
		Secret:          strings.TrimSpace(cfg.Secret),
		Tolerance:       cfg.Tolerance,
		IgnoreUnhandled: cfg.IgnoreUnhandled,
	}
}

func NewWebhookTemplate(cfg WebhookConfig) webhooks.ProviderWebhookTemplate {
	return webhooks.ProviderWebhookTemplate{
		ProviderID: ProviderID,
		Verifier: SignatureVerifier{
			Secret:    strings.TrimSpace(cfg.Secret),
			Tolerance: cfg.Tolerance,
		},
		Extractor: ExtractEventID,
		Decoder: EventClassifier{
			IgnoreUnhandled: cfg.IgnoreUnhandled,
		},
	}
}

// SignatureVerifier checks the Stripe-Signature header against the endpoint
// secret. Timestamps older than Tolerance are rejected.
type SignatureVerifier struct {
	Secret    string
	Tolerance time.Duration
}

func (v SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return ErrWebhookSecretMissing
	}
	header := headerValue(req.Headers, HeaderSignature)
	if header == "" {
		return fmt.Errorf("providers/stripe: %s header is required", HeaderSignature)
	}
	tolerance := v.Tolerance
	if tolerance <= 0 {
		tolerance = defaultWebhookTolerance
	}
	if err := webhook.ValidatePayloadWithTolerance(req.Body, header, secret, tolerance); err != nil {
		return fmt.Errorf("providers/stripe: %w", err)
	}
	return nil
}

// ExtractEventID uses the event id as the delivery id: Stripe resends the
// same event id on every retry of a delivery.
func ExtractEventID(req core.InboundRequest) (string, error) {
	return webhooks.JSONFieldDeliveryIDExtractor("id")(req)
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
