package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
	stripego "github.com/stripe/stripe-go/v82"
)

// EventClassifier decodes a verified Stripe event envelope into a payment
// event. Checkout completions and succeeded payment intents get dedicated
// field mapping; everything else is recorded generically unless
// IgnoreUnhandled is set.
type EventClassifier struct {
	IgnoreUnhandled bool
}

func (c EventClassifier) Decode(_ context.Context, req core.InboundRequest) (core.RecordPaymentEventInput, error) {
	var event stripego.Event
	if err := json.Unmarshal(req.Body, &event); err != nil {
		return core.RecordPaymentEventInput{}, fmt.Errorf("providers/stripe: decode event: %w", err)
	}
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		return core.RecordPaymentEventInput{}, fmt.Errorf("providers/stripe: event id is required")
	}
	eventType := strings.TrimSpace(string(event.Type))
	if eventType == "" {
		return core.RecordPaymentEventInput{}, fmt.Errorf("providers/stripe: event type is required")
	}

	in := core.RecordPaymentEventInput{
		EventID:    eventID,
		Type:       eventType,
		RawPayload: append([]byte(nil), req.Body...),
		Livemode:   event.Livemode,
	}

	switch stripego.EventType(eventType) {
	case stripego.EventTypeCheckoutSessionCompleted:
		object, err := eventObject(event)
		if err != nil {
			return core.RecordPaymentEventInput{}, err
		}
		in.SessionID = stringField(object, "id")
		in.PaymentIntentID = expandableID(object["payment_intent"])
		in.CustomerID = expandableID(object["customer"])
		in.Status = firstNonEmpty(stringField(object, "payment_status"), stringField(object, "status"))
		in.Metadata = objectMetadata(object)
		if reference := stringField(object, "client_reference_id"); reference != "" {
			in.Metadata["client_reference_id"] = reference
		}
	case stripego.EventTypePaymentIntentSucceeded:
		object, err := eventObject(event)
		if err != nil {
			return core.RecordPaymentEventInput{}, err
		}
		in.PaymentIntentID = stringField(object, "id")
		in.CustomerID = expandableID(object["customer"])
		in.Status = stringField(object, "status")
		in.Metadata = objectMetadata(object)
		if amount, ok := object["amount"]; ok && amount != nil {
			in.Metadata["amount"] = amount
		}
		if currency := stringField(object, "currency"); currency != "" {
			in.Metadata["currency"] = currency
		}
	default:
		if c.IgnoreUnhandled {
			return core.RecordPaymentEventInput{}, webhooks.ErrEventIgnored
		}
		in.Metadata = map[string]any{}
		if event.Data == nil || event.Data.Object == nil {
			break
		}
		object := event.Data.Object
		if objectID := stringField(object, "id"); objectID != "" {
			in.Metadata["object_id"] = objectID
		}
		if objectType := stringField(object, "object"); objectType != "" {
			in.Metadata["object"] = objectType
		}
		in.CustomerID = expandableID(object["customer"])
		in.Status = stringField(object, "status")
	}
	return in, nil
}

func eventObject(event stripego.Event) (map[string]any, error) {
	if event.Data == nil || len(event.Data.Object) == 0 {
		return nil, ErrEventDataMissing
	}
	return event.Data.Object, nil
}

func objectMetadata(object map[string]any) map[string]any {
	out := map[string]any{}
	raw, ok := object["metadata"].(map[string]any)
	if !ok {
		return out
	}
	for key, value := range raw {
		key = strings.TrimSpace(key)
		if key == "" || value == nil {
			continue
		}
		out[key] = value
	}
	return out
}

// expandableID resolves a field that Stripe sends either as an id string or
// as the expanded object.
func expandableID(value any) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case map[string]any:
		return stringField(typed, "id")
	default:
		return ""
	}
}

func stringField(object map[string]any, key string) string {
	if len(object) == 0 {
		return ""
	}
	value, ok := object[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ webhooks.Decoder = EventClassifier{}
