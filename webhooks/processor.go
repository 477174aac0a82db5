package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

const (
	DeliveryStatusProcessing = "processing"
	DeliveryStatusProcessed  = "processed"
	DeliveryStatusRetryReady = "retry_ready"
	DeliveryStatusDead       = "dead"
)

const (
	defaultClaimLease  = 30 * time.Second
	defaultMaxAttempts = 8
)

type DeliveryRecord struct {
	ID             string
	ClaimID        string
	ProviderID     string
	DeliveryID     string
	Status         string
	Attempts       int
	LeaseExpiresAt *time.Time
	NextAttemptAt  *time.Time
	LastError      string
	Payload        []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryLedger tracks one row per provider delivery. Claim hands out a
// lease; a delivery that is processing under an unexpired lease cannot be
// claimed again, every other state is re-claimed with attempts incremented.
type DeliveryLedger interface {
	Claim(
		ctx context.Context,
		providerID string,
		deliveryID string,
		payload []byte,
		lease time.Duration,
	) (DeliveryRecord, bool, error)
	Get(ctx context.Context, providerID string, deliveryID string) (DeliveryRecord, error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, nextAttemptAt time.Time, maxAttempts int) error
}

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

type DeliveryIDExtractor func(req core.InboundRequest) (string, error)

type RetryPolicy interface {
	NextDelay(attempt int) time.Duration
}

type Handler interface {
	Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error)
}

type ExponentialRetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

func (p ExponentialRetryPolicy) NextDelay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	maximum := p.Max
	if maximum <= 0 {
		maximum = 30 * time.Second
	}
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maximum {
			return maximum
		}
	}
	if delay > maximum {
		return maximum
	}
	return delay
}

type Processor struct {
	Verifier    Verifier
	Ledger      DeliveryLedger
	Handler     Handler
	ExtractID   DeliveryIDExtractor
	RetryPolicy RetryPolicy
	// Enqueuer receives a replay job for every retryable failure. Optional.
	Enqueuer    core.JobEnqueuer
	Logger      core.Logger
	ClaimLease  time.Duration
	MaxAttempts int
	Now         func() time.Time
}

func NewProcessor(verifier Verifier, ledger DeliveryLedger, handler Handler) *Processor {
	return &Processor{
		Verifier:    verifier,
		Ledger:      ledger,
		Handler:     handler,
		ExtractID:   DefaultDeliveryIDExtractor,
		RetryPolicy: ExponentialRetryPolicy{},
		ClaimLease:  defaultClaimLease,
		MaxAttempts: defaultMaxAttempts,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NewTemplateProcessor wires a processor from a provider template, recording
// decoded events through recorder.
func NewTemplateProcessor(template ProviderWebhookTemplate, ledger DeliveryLedger, recorder Recorder) *Processor {
	processor := NewProcessor(template.Verifier, ledger, NewEventHandler(template.Decoder, recorder))
	if template.Extractor != nil {
		processor.ExtractID = template.Extractor
	}
	return processor
}

func (p *Processor) Process(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return rejectedResult("", http.StatusInternalServerError),
			internalError(fmt.Errorf("webhooks: processor requires handler and ledger"))
	}

	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		return rejectedResult("", http.StatusBadRequest), badInputError("webhooks: provider id is required")
	}
	req.ProviderID = providerID

	if p.Verifier != nil {
		if err := p.Verifier.Verify(ctx, req); err != nil {
			return rejectedResult(providerID, http.StatusBadRequest), signatureError(err)
		}
	}

	extractor := p.ExtractID
	if extractor == nil {
		extractor = DefaultDeliveryIDExtractor
	}
	deliveryID, err := extractor(req)
	if err != nil {
		return rejectedResult(providerID, http.StatusBadRequest), badInputError(err.Error())
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, req.Body, p.claimLease())
	if err != nil {
		return rejectedResult(providerID, http.StatusInternalServerError), internalError(err)
	}
	if !claimed {
		result := rejectedResult(providerID, http.StatusConflict)
		result.Metadata["delivery_id"] = deliveryID
		result.Metadata["status"] = delivery.Status
		return result, conflictError(providerID, deliveryID)
	}

	return p.run(ctx, req, delivery)
}

// Replay reprocesses a stored delivery payload. The signature was checked when
// the payload was first accepted, so verification is skipped here.
func (p *Processor) Replay(ctx context.Context, providerID string, deliveryID string) (core.InboundResult, error) {
	if p == nil || p.Handler == nil || p.Ledger == nil {
		return rejectedResult("", http.StatusInternalServerError),
			internalError(fmt.Errorf("webhooks: processor requires handler and ledger"))
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return rejectedResult(providerID, http.StatusBadRequest),
			badInputError("webhooks: provider id and delivery id are required")
	}

	record, err := p.Ledger.Get(ctx, providerID, deliveryID)
	if err != nil {
		return rejectedResult(providerID, http.StatusNotFound), notFoundError(err)
	}
	if record.Status == DeliveryStatusProcessed {
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata: map[string]any{
				"provider_id": providerID,
				"delivery_id": deliveryID,
				"deduped":     true,
			},
		}, nil
	}

	delivery, claimed, err := p.Ledger.Claim(ctx, providerID, deliveryID, nil, p.claimLease())
	if err != nil {
		return rejectedResult(providerID, http.StatusInternalServerError), internalError(err)
	}
	if !claimed {
		return rejectedResult(providerID, http.StatusConflict), conflictError(providerID, deliveryID)
	}

	return p.run(ctx, core.InboundRequest{
		ProviderID: providerID,
		Body:       record.Payload,
		Metadata: map[string]any{
			"delivery_id": deliveryID,
			"replay":      true,
		},
	}, delivery)
}

func (p *Processor) run(ctx context.Context, req core.InboundRequest, delivery DeliveryRecord) (core.InboundResult, error) {
	result, err := p.Handler.Handle(ctx, req)
	if err != nil {
		mapped := core.MapError(err)
		status := mapped.Code
		if status < http.StatusInternalServerError {
			// rejected payloads will not get better on retry
			p.failDelivery(ctx, delivery, err, p.now(), delivery.Attempts, false)
		} else {
			nextAttemptAt := p.now().Add(p.retryPolicy().NextDelay(delivery.Attempts))
			p.failDelivery(ctx, delivery, err, nextAttemptAt, p.maxAttempts(), true)
		}
		failed := rejectedResult(req.ProviderID, status)
		failed.Metadata["delivery_id"] = delivery.DeliveryID
		failed.Metadata["attempts"] = delivery.Attempts
		return failed, mapped
	}

	if err := p.Ledger.Complete(ctx, delivery.ClaimID); err != nil {
		return rejectedResult(req.ProviderID, http.StatusInternalServerError), internalError(err)
	}
	result.Metadata = ensureMetadata(result.Metadata)
	result.Metadata["provider_id"] = req.ProviderID
	result.Metadata["delivery_id"] = delivery.DeliveryID
	result.Metadata["attempts"] = delivery.Attempts
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	return result, nil
}

func (p *Processor) failDelivery(
	ctx context.Context,
	delivery DeliveryRecord,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
	retryable bool,
) {
	logger := p.logger()
	if err := p.Ledger.Fail(ctx, delivery.ClaimID, cause, nextAttemptAt, maxAttempts); err != nil {
		logger.Error("webhook delivery fail transition failed",
			"provider_id", delivery.ProviderID,
			"delivery_id", delivery.DeliveryID,
			"error", err.Error(),
		)
	}
	if !retryable || p.Enqueuer == nil || delivery.Attempts >= maxAttempts {
		return
	}
	msg := NewReplayJobMessage(delivery.ProviderID, delivery.DeliveryID, delivery.Attempts, nextAttemptAt)
	if err := p.Enqueuer.Enqueue(ctx, msg); err != nil {
		logger.Warn("webhook replay enqueue failed",
			"provider_id", delivery.ProviderID,
			"delivery_id", delivery.DeliveryID,
			"error", err.Error(),
		)
	}
}

func DefaultDeliveryIDExtractor(req core.InboundRequest) (string, error) {
	if req.Metadata != nil {
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["delivery_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
		if value := strings.TrimSpace(fmt.Sprint(req.Metadata["event_id"])); value != "" && value != "<nil>" {
			return value, nil
		}
	}
	if req.Headers != nil {
		if value := headerValue(req.Headers, "x-delivery-id"); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
}

func (p *Processor) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Processor) retryPolicy() RetryPolicy {
	if p != nil && p.RetryPolicy != nil {
		return p.RetryPolicy
	}
	return ExponentialRetryPolicy{}
}

func (p *Processor) claimLease() time.Duration {
	if p != nil && p.ClaimLease > 0 {
		return p.ClaimLease
	}
	return defaultClaimLease
}

func (p *Processor) maxAttempts() int {
	if p != nil && p.MaxAttempts > 0 {
		return p.MaxAttempts
	}
	return defaultMaxAttempts
}

func (p *Processor) logger() core.Logger {
	if p == nil {
		return glog.Nop()
	}
	return glog.Ensure(p.Logger)
}

func rejectedResult(providerID string, status int) core.InboundResult {
	return core.InboundResult{
		Accepted:   false,
		StatusCode: status,
		Metadata: map[string]any{
			"provider_id": providerID,
			"rejected":    true,
		},
	}
}

func ensureMetadata(metadata map[string]any) map[string]any {
	if len(metadata) == 0 {
		return map[string]any{}
	}
	return metadata
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
