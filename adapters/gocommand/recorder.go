package gocommand

import (
	"context"
	"errors"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	goerrors "github.com/goliatone/go-errors"
	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

const dispatcherErrorCode = "DISPATCHER_ERROR"

// DispatchRecorder records verified webhook events by dispatching the record
// command on the global bus. RegisterPayments must have subscribed it first.
type DispatchRecorder struct{}

func NewDispatchRecorder() DispatchRecorder {
	return DispatchRecorder{}
}

// RecordPaymentEvent fails when the subscribed handler returns without storing
// a result.
func (DispatchRecorder) RecordPaymentEvent(ctx context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error) {
	out, err := commanddispatcher.DispatchWithResult[paymentscommand.RecordPaymentEventMessage, core.RecordPaymentEventResult](
		ctx,
		paymentscommand.RecordPaymentEventMessage{Input: in},
	)
	if err != nil {
		return core.RecordPaymentEventResult{}, dispatchCause(err)
	}
	return out, nil
}

// dispatchCause strips the dispatcher envelope so the handler's own error
// category decides the webhook status.
func dispatchCause(err error) error {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != dispatcherErrorCode {
		return err
	}
	if cause := errors.Unwrap(rich); cause != nil {
		return cause
	}
	return err
}

var _ webhooks.Recorder = DispatchRecorder{}
