package inbound

import (
	"context"
	"io"
	"net/http"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

type WebhookProcessor interface {
	Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

// WebhookHandler feeds provider webhook calls into the delivery pipeline.
type WebhookHandler struct {
	Processor    WebhookProcessor
	ProviderID   string
	MaxBodyBytes int64
	Logger       core.Logger
}

func NewWebhookHandler(processor WebhookProcessor, providerID string, maxBodyBytes int64) *WebhookHandler {
	return &WebhookHandler{
		Processor:    processor,
		ProviderID:   providerID,
		MaxBodyBytes: maxBodyBytes,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := glog.Ensure(h.Logger)
	if h.Processor == nil {
		writeText(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = core.DefaultWebhookMaxBodyBytes
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		status, mapped := statusFor(readBodyError(err, limit), 0)
		logger.Warn("webhook body rejected", "provider_id", h.ProviderID, "error", err.Error())
		writeText(w, status, publicMessage(status, mapped))
		return
	}

	result, err := h.Processor.Process(r.Context(), core.InboundRequest{
		ProviderID: h.ProviderID,
		Surface:    "webhook",
		Headers:    flattenHeaders(r.Header),
		Body:       body,
		Metadata: map[string]any{
			"remote_addr": r.RemoteAddr,
		},
	})
	if err != nil {
		status, mapped := statusFor(err, result.StatusCode)
		fields := []any{
			"provider_id", h.ProviderID,
			"status", status,
			"text_code", mapped.TextCode,
			"error", err.Error(),
		}
		if status >= http.StatusInternalServerError {
			logger.Error("webhook delivery failed", fields...)
		} else {
			logger.Warn("webhook delivery rejected", fields...)
		}
		writeText(w, status, publicMessage(status, mapped))
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	writeText(w, status, "ok")
}

func flattenHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(header))
	for key, values := range header {
		if len(values) == 0 {
			continue
		}
		out[key] = strings.TrimSpace(values[0])
	}
	return out
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}
