package command

import (
	"context"
	"errors"
	"testing"

	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

type stubMutatingService struct {
	recordFn   func(ctx context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error)
	checkoutFn func(ctx context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error)
	cancelFn   func(ctx context.Context, orderID string) (core.Order, error)
}

func (s stubMutatingService) RecordPaymentEvent(ctx context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error) {
	if s.recordFn == nil {
		return core.RecordPaymentEventResult{}, nil
	}
	return s.recordFn(ctx, in)
}

func (s stubMutatingService) CreateCheckout(ctx context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error) {
	if s.checkoutFn == nil {
		return core.CheckoutSession{}, nil
	}
	return s.checkoutFn(ctx, req)
}

func (s stubMutatingService) CancelOrder(ctx context.Context, orderID string) (core.Order, error) {
	if s.cancelFn == nil {
		return core.Order{}, nil
	}
	return s.cancelFn(ctx, orderID)
}

func TestCreateCheckoutCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.CheckoutSession{OrderID: "ord_1", SessionID: "cs_1", URL: "https://checkout.stripe.test/cs_1"}
	svc := stubMutatingService{
		checkoutFn: func(_ context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error) {
			if req.UserID != "usr_1" || req.PriceID != "price_123" {
				t.Fatalf("unexpected checkout request %#v", req)
			}
			return expected, nil
		},
	}

	cmd := NewCreateCheckoutCommand(svc)
	collector := gocmd.NewResult[core.CheckoutSession]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, CreateCheckoutMessage{Request: core.CreateCheckoutRequest{UserID: "usr_1", PriceID: "price_123"}}); err != nil {
		t.Fatalf("execute checkout: %v", err)
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result != expected {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestMutationCommands_DelegateToService(t *testing.T) {
	t.Run("record payment event", func(t *testing.T) {
		svc := stubMutatingService{
			recordFn: func(_ context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error) {
				return core.RecordPaymentEventResult{Event: core.PaymentEvent{EventID: in.EventID, Deliveries: 1}, Created: true}, nil
			},
		}
		collector := gocmd.NewResult[core.RecordPaymentEventResult]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		err := NewRecordPaymentEventCommand(svc).Execute(ctx, RecordPaymentEventMessage{
			Input: core.RecordPaymentEventInput{EventID: "evt_1", Type: "payment_intent.succeeded"},
		})
		if err != nil {
			t.Fatalf("execute record: %v", err)
		}
		result, ok := collector.Load()
		if !ok || !result.Created || result.Event.EventID != "evt_1" {
			t.Fatalf("unexpected record result %#v", result)
		}
	})

	t.Run("cancel order", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			cancelFn: func(_ context.Context, orderID string) (core.Order, error) {
				called = true
				if orderID != "ord_1" {
					t.Fatalf("unexpected order id %q", orderID)
				}
				return core.Order{ID: orderID, Status: core.OrderStatusCancelled}, nil
			},
		}
		if err := NewCancelOrderCommand(svc).Execute(context.Background(), CancelOrderMessage{OrderID: "ord_1"}); err != nil {
			t.Fatalf("execute cancel: %v", err)
		}
		if !called {
			t.Fatalf("expected cancel invocation")
		}
	})

	t.Run("service errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		svc := stubMutatingService{
			cancelFn: func(context.Context, string) (core.Order, error) { return core.Order{}, boom },
		}
		if err := NewCancelOrderCommand(svc).Execute(context.Background(), CancelOrderMessage{OrderID: "ord_1"}); !errors.Is(err, boom) {
			t.Fatalf("expected service error, got %v", err)
		}
	})
}

func TestMessages_ValidateReturnsRichError(t *testing.T) {
	for name, err := range map[string]error{
		"record":   (RecordPaymentEventMessage{}).Validate(),
		"checkout": (CreateCheckoutMessage{}).Validate(),
		"cancel":   (CancelOrderMessage{}).Validate(),
	} {
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("%s: expected go-errors envelope, got %T", name, err)
		}
		if rich.Category != goerrors.CategoryValidation {
			t.Fatalf("%s: expected validation category, got %q", name, rich.Category)
		}
		if rich.TextCode != core.ServiceErrorBadInput {
			t.Fatalf("%s: expected %q text code, got %q", name, core.ServiceErrorBadInput, rich.TextCode)
		}
	}
	if err := (CreateCheckoutMessage{Request: core.CreateCheckoutRequest{PriceID: "price_1"}}).Validate(); err != nil {
		t.Fatalf("expected anonymous checkout message to pass shape validation, got %v", err)
	}
}

func TestCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *CancelOrderCommand
	err := cmd.Execute(context.Background(), CancelOrderMessage{OrderID: "ord_1"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
