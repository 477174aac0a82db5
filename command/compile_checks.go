package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RecordPaymentEventMessage] = (*RecordPaymentEventCommand)(nil)
	_ gocmd.Commander[CreateCheckoutMessage]     = (*CreateCheckoutCommand)(nil)
	_ gocmd.Commander[CancelOrderMessage]        = (*CancelOrderCommand)(nil)
)
