package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-payments/core"
)

// Decoder turns a verified provider payload into a payment event. Decoders
// return ErrEventIgnored for event types that should be acknowledged only.
type Decoder interface {
	Decode(ctx context.Context, req core.InboundRequest) (core.RecordPaymentEventInput, error)
}

type DecoderFunc func(ctx context.Context, req core.InboundRequest) (core.RecordPaymentEventInput, error)

func (f DecoderFunc) Decode(ctx context.Context, req core.InboundRequest) (core.RecordPaymentEventInput, error) {
	return f(ctx, req)
}

type Recorder interface {
	RecordPaymentEvent(ctx context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error)
}

type EventHandler struct {
	Decoder  Decoder
	Recorder Recorder
}

func NewEventHandler(decoder Decoder, recorder Recorder) *EventHandler {
	return &EventHandler{Decoder: decoder, Recorder: recorder}
}

func (h *EventHandler) Handle(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if h == nil || h.Decoder == nil || h.Recorder == nil {
		return core.InboundResult{}, internalError(fmt.Errorf("webhooks: event handler requires decoder and recorder"))
	}

	in, err := h.Decoder.Decode(ctx, req)
	if err != nil {
		if errors.Is(err, ErrEventIgnored) {
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata: map[string]any{
					"ignored": true,
				},
			}, nil
		}
		return core.InboundResult{}, decodeError(err)
	}

	recorded, err := h.Recorder.RecordPaymentEvent(ctx, in)
	if err != nil {
		return core.InboundResult{}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata: map[string]any{
			"event_id":   recorded.Event.EventID,
			"event_type": recorded.Event.Type,
			"created":    recorded.Created,
			"deliveries": recorded.Event.Deliveries,
			"deduped":    false,
		},
	}, nil
}
