package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

func newPaymentEventRecord(in core.RecordPaymentEventInput, now time.Time) *paymentEventRecord {
	return &paymentEventRecord{
		EventID:         in.EventID,
		EventType:       in.Type,
		SessionID:       in.SessionID,
		PaymentIntentID: in.PaymentIntentID,
		CustomerID:      in.CustomerID,
		Status:          in.Status,
		Metadata:        core.RedactSensitiveMap(in.Metadata),
		RawPayload:      append([]byte(nil), in.RawPayload...),
		Livemode:        in.Livemode,
		Deliveries:      1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// patch applies a redelivered event on top of the stored row. Empty fields in
// the redelivery keep the stored value; metadata keys are merged.
func (r *paymentEventRecord) patch(in core.RecordPaymentEventInput, now time.Time) {
	r.EventType = in.Type
	r.SessionID = keepIfEmpty(in.SessionID, r.SessionID)
	r.PaymentIntentID = keepIfEmpty(in.PaymentIntentID, r.PaymentIntentID)
	r.CustomerID = keepIfEmpty(in.CustomerID, r.CustomerID)
	r.Status = keepIfEmpty(in.Status, r.Status)
	merged := copyAnyMap(r.Metadata)
	for key, value := range core.RedactSensitiveMap(in.Metadata) {
		merged[key] = value
	}
	r.Metadata = merged
	if len(in.RawPayload) > 0 {
		r.RawPayload = append([]byte(nil), in.RawPayload...)
	}
	r.Livemode = in.Livemode
	r.Deliveries++
	r.UpdatedAt = now
}

func (r *paymentEventRecord) toDomain() core.PaymentEvent {
	if r == nil {
		return core.PaymentEvent{}
	}
	return core.PaymentEvent{
		ID:              r.ID,
		EventID:         r.EventID,
		Type:            r.EventType,
		SessionID:       r.SessionID,
		PaymentIntentID: r.PaymentIntentID,
		CustomerID:      r.CustomerID,
		Status:          r.Status,
		Metadata:        copyAnyMap(r.Metadata),
		RawPayload:      append([]byte(nil), r.RawPayload...),
		Livemode:        r.Livemode,
		Deliveries:      r.Deliveries,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func newOrderRecord(in core.CreateOrderInput, now time.Time) *orderRecord {
	return &orderRecord{
		UserID:    strings.TrimSpace(in.UserID),
		PriceID:   strings.TrimSpace(in.PriceID),
		Quantity:  in.Quantity,
		Status:    string(core.OrderStatusPending),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *orderRecord) toDomain() core.Order {
	if r == nil {
		return core.Order{}
	}
	return core.Order{
		ID:                r.ID,
		UserID:            r.UserID,
		PriceID:           r.PriceID,
		Quantity:          r.Quantity,
		Status:            core.OrderStatus(r.Status),
		CheckoutSessionID: r.CheckoutSessionID,
		CheckoutURL:       r.CheckoutURL,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func (r *webhookDeliveryRecord) toDomain() webhooks.DeliveryRecord {
	if r == nil {
		return webhooks.DeliveryRecord{}
	}
	return webhooks.DeliveryRecord{
		ID:             r.ID,
		ClaimID:        r.ClaimID,
		ProviderID:     r.ProviderID,
		DeliveryID:     r.DeliveryID,
		Status:         r.Status,
		Attempts:       r.Attempts,
		LeaseExpiresAt: cloneTimePointer(r.LeaseExpiresAt),
		NextAttemptAt:  cloneTimePointer(r.NextAttemptAt),
		LastError:      r.LastError,
		Payload:        append([]byte(nil), r.Payload...),
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func keepIfEmpty(next string, current string) string {
	if strings.TrimSpace(next) == "" {
		return current
	}
	return strings.TrimSpace(next)
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
