package inbound

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-payments/core"
	stripeprovider "github.com/goliatone/go-payments/providers/stripe"
	"github.com/goliatone/go-payments/webhooks"
	"github.com/stripe/stripe-go/v82/webhook"
)

const testWebhookSecret = "whsec_inbound_test"

func newStripeRouter(svc *recordingService) (*http.ServeMux, *webhooks.MemoryDeliveryLedger) {
	ledger := webhooks.NewMemoryDeliveryLedger()
	processor := webhooks.NewTemplateProcessor(
		stripeprovider.NewWebhookTemplate(stripeprovider.DefaultWebhookConfig(testWebhookSecret)),
		ledger,
		svc,
	)
	cfg := core.DefaultConfig()
	cfg.Orders.CancelRedirectURL = "https://shop.test/cart"
	return NewRouter(RouterDeps{Processor: processor, Service: svc, Config: cfg}), ledger
}

func signedWebhookRequest(body []byte, secret string) *http.Request {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, RouteStripeWebhook, bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookRoute_CreatesThenPatches(t *testing.T) {
	svc := newRecordingService()
	router, _ := newStripeRouter(svc)
	body := []byte(`{"id":"evt_http_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","status":"succeeded"}}}`)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, signedWebhookRequest(body, testWebhookSecret))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: expected 200, got %d (%s)", i+1, rec.Code, rec.Body.String())
		}
		if rec.Body.String() != "ok" {
			t.Fatalf("expected plain ok body, got %q", rec.Body.String())
		}
		if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
			t.Fatalf("expected text/plain, got %q", rec.Header().Get("Content-Type"))
		}
	}
	if svc.eventCount() != 1 {
		t.Fatalf("expected one stored event, got %d", svc.eventCount())
	}
	if svc.events["evt_http_1"].Deliveries != 2 {
		t.Fatalf("expected redelivery to patch, got %+v", svc.events["evt_http_1"])
	}
}

func TestWebhookRoute_InvalidSignatureWritesNothing(t *testing.T) {
	svc := newRecordingService()
	router, ledger := newStripeRouter(svc)
	body := []byte(`{"id":"evt_forged","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhookRequest(body, "whsec_attacker"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a plain-text error body")
	}
	if svc.eventCount() != 0 {
		t.Fatalf("expected no event write on bad signature")
	}
	if _, err := ledger.Get(t.Context(), core.ProviderStripe, "evt_forged"); err == nil {
		t.Fatalf("expected no ledger row on bad signature")
	}
}

func TestWebhookRoute_MissingSignatureHeader(t *testing.T) {
	svc := newRecordingService()
	router, _ := newStripeRouter(svc)
	req := httptest.NewRequest(http.MethodPost, RouteStripeWebhook, strings.NewReader(`{"id":"evt_1"}`))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestWebhookRoute_RecorderFailureIs500(t *testing.T) {
	svc := newRecordingService()
	svc.recordErr = errors.New("database is closed")
	router, ledger := newStripeRouter(svc)
	body := []byte(`{"id":"evt_down","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, signedWebhookRequest(body, testWebhookSecret))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "database") {
		t.Fatalf("expected internal details to stay hidden, got %q", rec.Body.String())
	}
	delivery, err := ledger.Get(t.Context(), core.ProviderStripe, "evt_down")
	if err != nil {
		t.Fatalf("get delivery: %v", err)
	}
	if delivery.Status != webhooks.DeliveryStatusRetryReady {
		t.Fatalf("expected retry_ready delivery, got %q", delivery.Status)
	}
}

func TestWebhookHandler_BodyLimit(t *testing.T) {
	processor := &stubProcessor{result: core.InboundResult{Accepted: true, StatusCode: http.StatusOK}}
	handler := NewWebhookHandler(processor, core.ProviderStripe, 16)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, RouteStripeWebhook, strings.NewReader(strings.Repeat("x", 64))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized body, got %d", rec.Code)
	}
	if processor.last.ProviderID != "" {
		t.Fatalf("expected processor not to run for oversized body")
	}
}

func TestWebhookHandler_PassesHeadersAndConflictStatus(t *testing.T) {
	processor := &stubProcessor{
		result: core.InboundResult{StatusCode: http.StatusConflict},
		err:    errors.New("webhooks: delivery stripe/evt_1 is in flight"),
	}
	handler := NewWebhookHandler(processor, core.ProviderStripe, 0)
	req := httptest.NewRequest(http.MethodPost, RouteStripeWebhook, strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if processor.last.Headers["Stripe-Signature"] != "t=1,v1=abc" {
		t.Fatalf("expected signature header to reach the processor, got %#v", processor.last.Headers)
	}
	if string(processor.last.Body) != `{"id":"evt_1"}` {
		t.Fatalf("expected raw body to reach the processor, got %q", processor.last.Body)
	}
}

func TestRouter_RejectsWrongMethod(t *testing.T) {
	router, _ := newStripeRouter(newRecordingService())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteStripeWebhook, nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
