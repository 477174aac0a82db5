package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-payments/core"
)

type MutatingService interface {
	RecordPaymentEvent(ctx context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error)
	CreateCheckout(ctx context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error)
	CancelOrder(ctx context.Context, orderID string) (core.Order, error)
}

type RecordPaymentEventCommand struct {
	service MutatingService
}

func NewRecordPaymentEventCommand(service MutatingService) *RecordPaymentEventCommand {
	return &RecordPaymentEventCommand{service: service}
}

func (c *RecordPaymentEventCommand) Execute(ctx context.Context, msg RecordPaymentEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment event service is required")
	}
	out, err := c.service.RecordPaymentEvent(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreateCheckoutCommand struct {
	service MutatingService
}

func NewCreateCheckoutCommand(service MutatingService) *CreateCheckoutCommand {
	return &CreateCheckoutCommand{service: service}
}

func (c *CreateCheckoutCommand) Execute(ctx context.Context, msg CreateCheckoutMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: checkout service is required")
	}
	out, err := c.service.CreateCheckout(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CancelOrderCommand struct {
	service MutatingService
}

func NewCancelOrderCommand(service MutatingService) *CancelOrderCommand {
	return &CancelOrderCommand{service: service}
}

func (c *CancelOrderCommand) Execute(ctx context.Context, msg CancelOrderMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: order service is required")
	}
	out, err := c.service.CancelOrder(ctx, msg.OrderID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
