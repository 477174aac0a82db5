package webhooks

import (
	"context"
	"errors"
	"sync"

	"github.com/goliatone/go-payments/core"
)

type stubVerifier struct {
	err error
}

func (v stubVerifier) Verify(context.Context, core.InboundRequest) error {
	return v.err
}

type stubWebhookHandler struct {
	mu     sync.Mutex
	result core.InboundResult
	err    error
	calls  int
	block  chan struct{}
}

func (h *stubWebhookHandler) Handle(context.Context, core.InboundRequest) (core.InboundResult, error) {
	h.mu.Lock()
	h.calls++
	block := h.block
	h.mu.Unlock()
	if block != nil {
		<-block
	}
	return h.result, h.err
}

func (h *stubWebhookHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type recordingRecorder struct {
	mu     sync.Mutex
	events map[string]core.PaymentEvent
	err    error
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{events: map[string]core.PaymentEvent{}}
}

func (r *recordingRecorder) RecordPaymentEvent(_ context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return core.RecordPaymentEventResult{}, r.err
	}
	existing, ok := r.events[in.EventID]
	if ok {
		existing.Status = in.Status
		existing.Deliveries++
		r.events[in.EventID] = existing
		return core.RecordPaymentEventResult{Event: existing}, nil
	}
	event := core.PaymentEvent{EventID: in.EventID, Type: in.Type, Status: in.Status, Deliveries: 1}
	r.events[in.EventID] = event
	return core.RecordPaymentEventResult{Event: event, Created: true}, nil
}

func (r *recordingRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

var errStoreDown = errors.New("database is closed")

func jsonDecoder() Decoder {
	return DecoderFunc(func(_ context.Context, req core.InboundRequest) (core.RecordPaymentEventInput, error) {
		id, err := JSONFieldDeliveryIDExtractor("id")(req)
		if err != nil {
			return core.RecordPaymentEventInput{}, err
		}
		typ, err := JSONFieldDeliveryIDExtractor("type")(req)
		if err != nil {
			return core.RecordPaymentEventInput{}, err
		}
		if typ == "ignored.event" {
			return core.RecordPaymentEventInput{}, ErrEventIgnored
		}
		return core.RecordPaymentEventInput{EventID: id, Type: typ, RawPayload: req.Body}, nil
	})
}

type captureHook struct {
	mu       sync.Mutex
	starts   int
	success  int
	failures int
	retries  int
}

func (h *captureHook) OnStart(context.Context, core.JobWorkerEvent) {
	h.mu.Lock()
	h.starts++
	h.mu.Unlock()
}

func (h *captureHook) OnSuccess(context.Context, core.JobWorkerEvent) {
	h.mu.Lock()
	h.success++
	h.mu.Unlock()
}

func (h *captureHook) OnFailure(context.Context, core.JobWorkerEvent) {
	h.mu.Lock()
	h.failures++
	h.mu.Unlock()
}

func (h *captureHook) OnRetry(context.Context, core.JobWorkerEvent) {
	h.mu.Lock()
	h.retries++
	h.mu.Unlock()
}
