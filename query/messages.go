package query

import (
	"strings"

	"github.com/goliatone/go-payments/core"
)

const (
	TypeGetPaymentEvent   = "payments.query.payment_event.get"
	TypeListPaymentEvents = "payments.query.payment_event.list"
	TypeGetOrder          = "payments.query.order.get"
)

type GetPaymentEventMessage struct {
	EventID string
}

func (GetPaymentEventMessage) Type() string { return TypeGetPaymentEvent }

func (m GetPaymentEventMessage) Validate() error {
	if strings.TrimSpace(m.EventID) == "" {
		return queryValidationError("event_id", "event id is required")
	}
	return nil
}

type ListPaymentEventsMessage struct {
	Filter core.PaymentEventFilter
}

func (ListPaymentEventsMessage) Type() string { return TypeListPaymentEvents }

func (m ListPaymentEventsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return queryValidationError("page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 {
		return queryValidationError("per_page", "per_page must be >= 0")
	}
	return nil
}

type GetOrderMessage struct {
	OrderID string
}

func (GetOrderMessage) Type() string { return TypeGetOrder }

func (m GetOrderMessage) Validate() error {
	if strings.TrimSpace(m.OrderID) == "" {
		return queryValidationError("order_id", "order id is required")
	}
	return nil
}
