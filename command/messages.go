package command

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeRecordPaymentEvent = "payments.command.payment_event.record"
	TypeCreateCheckout     = "payments.command.checkout.create"
	TypeCancelOrder        = "payments.command.order.cancel"
)

type RecordPaymentEventMessage struct {
	Input core.RecordPaymentEventInput
}

func (RecordPaymentEventMessage) Type() string { return TypeRecordPaymentEvent }

func (m RecordPaymentEventMessage) Validate() error {
	if strings.TrimSpace(m.Input.EventID) == "" {
		return commandValidationError("event_id", "event id is required")
	}
	if strings.TrimSpace(m.Input.Type) == "" {
		return commandValidationError("type", "event type is required")
	}
	return nil
}

type CreateCheckoutMessage struct {
	Request core.CreateCheckoutRequest
}

func (CreateCheckoutMessage) Type() string { return TypeCreateCheckout }

// Validate only checks shape; the user id check stays in the service so an
// anonymous caller still gets the unauthorized envelope.
func (m CreateCheckoutMessage) Validate() error {
	if strings.TrimSpace(m.Request.PriceID) == "" {
		return commandValidationError("price_id", "price id is required")
	}
	if m.Request.Quantity < 0 {
		return commandValidationError("quantity", "quantity must be >= 0")
	}
	return nil
}

type CancelOrderMessage struct {
	OrderID string
}

func (CancelOrderMessage) Type() string { return TypeCancelOrder }

func (m CancelOrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return commandValidationError("order_id", "order id is required")
	}
	return nil
}
