package inbound

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

type OrderService interface {
	CancelOrder(ctx context.Context, orderID string) (core.Order, error)
}

// OrderCancelledHandler is the checkout cancel_url target. It cancels the
// pending order and sends the browser back to the shop.
type OrderCancelledHandler struct {
	Service     OrderService
	RedirectURL string
	Logger      core.Logger
}

func NewOrderCancelledHandler(service OrderService, redirectURL string) *OrderCancelledHandler {
	return &OrderCancelledHandler{Service: service, RedirectURL: redirectURL}
}

func (h *OrderCancelledHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := glog.Ensure(h.Logger)
	if h.Service == nil {
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if orderID == "" && r.Method == http.MethodPost {
		orderID = strings.TrimSpace(r.PostFormValue("orderId"))
	}
	if orderID == "" {
		status, mapped := statusFor(inboundBadInput(nil, "inbound: orderId is required", nil), 0)
		writeText(w, status, publicMessage(status, mapped))
		return
	}

	order, err := h.Service.CancelOrder(r.Context(), orderID)
	if err != nil {
		status, mapped := statusFor(err, 0)
		if status >= http.StatusInternalServerError {
			logger.Error("order cancel failed", "order_id", orderID, "error", err.Error())
		}
		writeText(w, status, publicMessage(status, mapped))
		return
	}
	logger.Info("order cancel handled", "order_id", order.ID, "status", string(order.Status))

	http.Redirect(w, r, cancelRedirectTarget(h.RedirectURL, orderID), http.StatusSeeOther)
}

func cancelRedirectTarget(base string, orderID string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		base = "/"
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return base
	}
	query := parsed.Query()
	query.Set("orderId", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
