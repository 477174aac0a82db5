package inbound

import (
	"net/http"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/identity"
)

const (
	RouteStripeWebhook  = "/api/stripe/webhook"
	RouteCheckout       = "/api/checkout"
	RouteOrderCancelled = "/api/order/cancelled"
	RouteHealth         = "/healthz"
)

type RouterDeps struct {
	Processor WebhookProcessor
	Service   interface {
		CheckoutService
		OrderService
	}
	Users  identity.UserResolver
	Config core.Config
	Logger core.Logger
}

// NewRouter mounts the payment routes on a fresh mux.
func NewRouter(deps RouterDeps) *http.ServeMux {
	webhook := NewWebhookHandler(deps.Processor, core.ProviderStripe, deps.Config.Webhook.MaxBodyBytes)
	webhook.Logger = deps.Logger

	checkout := NewCheckoutHandler(deps.Service, deps.Users)
	checkout.Logger = deps.Logger

	cancelled := NewOrderCancelledHandler(deps.Service, deps.Config.Orders.CancelRedirectURL)
	cancelled.Logger = deps.Logger

	mux := http.NewServeMux()
	mux.Handle("POST "+RouteStripeWebhook, webhook)
	mux.Handle("POST "+RouteCheckout, checkout)
	mux.Handle("GET "+RouteOrderCancelled, cancelled)
	mux.Handle("POST "+RouteOrderCancelled, cancelled)
	mux.HandleFunc("GET "+RouteHealth, func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ok")
	})
	return mux
}
