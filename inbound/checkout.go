package inbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/identity"
)

const maxCheckoutBodyBytes = int64(1 << 16)

type CheckoutService interface {
	CreateCheckout(ctx context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error)
}

type checkoutRequest struct {
	PriceID  string `json:"priceId"`
	Quantity int    `json:"quantity"`
}

type checkoutResponse struct {
	URL string `json:"url"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// CheckoutHandler opens a hosted checkout for the signed in user.
type CheckoutHandler struct {
	Service CheckoutService
	Users   identity.UserResolver
	Logger  core.Logger
}

func NewCheckoutHandler(service CheckoutService, users identity.UserResolver) *CheckoutHandler {
	return &CheckoutHandler{Service: service, Users: users}
}

func (h *CheckoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := glog.Ensure(h.Logger)
	if h.Service == nil {
		h.writeError(w, inboundInternal(nil, "inbound: checkout service is not configured"))
		return
	}

	var userID string
	if h.Users != nil {
		resolved, err := h.Users.ResolveUserID(r)
		if err != nil {
			logger.Error("checkout user resolution failed", "error", err.Error())
			h.writeError(w, inboundInternal(err, "inbound: user resolution failed"))
			return
		}
		userID = resolved
	}

	var body checkoutRequest
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCheckoutBodyBytes))
	if err != nil {
		h.writeError(w, readBodyError(err, maxCheckoutBodyBytes))
		return
	}
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			h.writeError(w, inboundBadInput(err, "inbound: checkout body must be a JSON object", nil))
			return
		}
	}

	// user check happens in the service so the 401 path is the same for every caller
	session, err := h.Service.CreateCheckout(r.Context(), core.CreateCheckoutRequest{
		UserID:   userID,
		PriceID:  body.PriceID,
		Quantity: body.Quantity,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkoutResponse{URL: session.URL})
}

func (h *CheckoutHandler) writeError(w http.ResponseWriter, err error) {
	status, mapped := statusFor(err, 0)
	if status >= http.StatusInternalServerError {
		glog.Ensure(h.Logger).Error("checkout failed", "text_code", mapped.TextCode, "error", err.Error())
	}
	writeJSON(w, status, errorResponse{
		Error: publicMessage(status, mapped),
		Code:  mapped.TextCode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
