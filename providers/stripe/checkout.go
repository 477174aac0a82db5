package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	stripego "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

type CheckoutConfig struct {
	SecretKey string
	// Backends overrides the Stripe API endpoints. Nil uses the defaults.
	Backends *stripego.Backends
}

// CheckoutGateway opens hosted Stripe Checkout sessions for pending orders.
type CheckoutGateway struct {
	api *client.API
}

func NewCheckoutGateway(cfg CheckoutConfig) (*CheckoutGateway, error) {
	key := strings.TrimSpace(cfg.SecretKey)
	if key == "" {
		return nil, ErrSecretKeyMissing
	}
	return &CheckoutGateway{api: client.New(key, cfg.Backends)}, nil
}

// NewTestBackends points every Stripe backend at url.
func NewTestBackends(url string) *stripego.Backends {
	backend := stripego.GetBackendWithConfig(stripego.APIBackend, &stripego.BackendConfig{
		URL:               stripego.String(strings.TrimRight(url, "/")),
		MaxNetworkRetries: stripego.Int64(0),
		LeveledLogger:     &stripego.LeveledLogger{Level: stripego.LevelNull},
	})
	return &stripego.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	}
}

func (g *CheckoutGateway) CreateSession(ctx context.Context, req core.CheckoutSessionRequest) (core.CheckoutSession, error) {
	if g == nil || g.api == nil {
		return core.CheckoutSession{}, ErrSecretKeyMissing
	}
	mode := strings.TrimSpace(req.Mode)
	if mode == "" {
		mode = core.DefaultCheckoutMode
	}

	params := &stripego.CheckoutSessionParams{
		Mode: stripego.String(mode),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				Price:    stripego.String(strings.TrimSpace(req.PriceID)),
				Quantity: stripego.Int64(int64(req.Quantity)),
			},
		},
		ClientReferenceID: stripego.String(strings.TrimSpace(req.UserID)),
	}
	if successURL := strings.TrimSpace(req.SuccessURL); successURL != "" {
		params.SuccessURL = stripego.String(successURL)
	}
	if cancelURL := strings.TrimSpace(req.CancelURL); cancelURL != "" {
		params.CancelURL = stripego.String(cancelURL)
	}
	if req.AllowPromotionCodes {
		params.AllowPromotionCodes = stripego.Bool(true)
	}
	params.AddMetadata("user_id", strings.TrimSpace(req.UserID))
	params.AddMetadata("order_id", strings.TrimSpace(req.OrderID))
	params.Context = ctx
	if orderID := strings.TrimSpace(req.OrderID); orderID != "" {
		params.SetIdempotencyKey("checkout:" + orderID)
	}

	session, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return core.CheckoutSession{}, fmt.Errorf("providers/stripe: create checkout session: %w", err)
	}
	return core.CheckoutSession{
		OrderID:   req.OrderID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}

var _ core.CheckoutGateway = (*CheckoutGateway)(nil)
