package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

var (
	_ gocmd.Querier[GetPaymentEventMessage, core.PaymentEvent]       = (*GetPaymentEventQuery)(nil)
	_ gocmd.Querier[ListPaymentEventsMessage, core.PaymentEventPage] = (*ListPaymentEventsQuery)(nil)
	_ gocmd.Querier[GetOrderMessage, core.Order]                     = (*GetOrderQuery)(nil)
)
