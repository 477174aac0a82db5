package query

import (
	"context"

	"github.com/goliatone/go-payments/core"
)

type PaymentEventReader interface {
	GetPaymentEvent(ctx context.Context, eventID string) (core.PaymentEvent, error)
	ListPaymentEvents(ctx context.Context, filter core.PaymentEventFilter) (core.PaymentEventPage, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (core.Order, error)
}

type GetPaymentEventQuery struct {
	reader PaymentEventReader
}

func NewGetPaymentEventQuery(reader PaymentEventReader) *GetPaymentEventQuery {
	return &GetPaymentEventQuery{reader: reader}
}

func (q *GetPaymentEventQuery) Query(ctx context.Context, msg GetPaymentEventMessage) (core.PaymentEvent, error) {
	if q == nil || q.reader == nil {
		return core.PaymentEvent{}, queryDependencyError("query: payment event reader is required")
	}
	return q.reader.GetPaymentEvent(ctx, msg.EventID)
}

type ListPaymentEventsQuery struct {
	reader PaymentEventReader
}

func NewListPaymentEventsQuery(reader PaymentEventReader) *ListPaymentEventsQuery {
	return &ListPaymentEventsQuery{reader: reader}
}

func (q *ListPaymentEventsQuery) Query(
	ctx context.Context,
	msg ListPaymentEventsMessage,
) (core.PaymentEventPage, error) {
	if q == nil || q.reader == nil {
		return core.PaymentEventPage{}, queryDependencyError("query: payment event reader is required")
	}
	return q.reader.ListPaymentEvents(ctx, msg.Filter)
}

type GetOrderQuery struct {
	reader OrderReader
}

func NewGetOrderQuery(reader OrderReader) *GetOrderQuery {
	return &GetOrderQuery{reader: reader}
}

func (q *GetOrderQuery) Query(ctx context.Context, msg GetOrderMessage) (core.Order, error) {
	if q == nil || q.reader == nil {
		return core.Order{}, queryDependencyError("query: order reader is required")
	}
	return q.reader.GetOrder(ctx, msg.OrderID)
}
