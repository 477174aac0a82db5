package core

import (
	"context"
	"net/http"
	"strings"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestRecordPaymentEvent_CreatesOnceThenPatches(t *testing.T) {
	ctx := context.Background()
	svc, events, _, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	in := RecordPaymentEventInput{
		EventID:         "evt_1",
		Type:            EventTypePaymentIntentSucceeded,
		PaymentIntentID: "pi_1",
		Status:          "processing",
	}
	first, err := svc.RecordPaymentEvent(ctx, in)
	if err != nil {
		t.Fatalf("record first: %v", err)
	}
	if !first.Created {
		t.Fatalf("expected first sighting to create")
	}

	in.Status = "succeeded"
	second, err := svc.RecordPaymentEvent(ctx, in)
	if err != nil {
		t.Fatalf("record replay: %v", err)
	}
	if second.Created {
		t.Fatalf("expected replay to patch, not create")
	}
	if second.Event.ID != first.Event.ID {
		t.Fatalf("expected same record id, got %q and %q", first.Event.ID, second.Event.ID)
	}
	if second.Event.Deliveries != 2 {
		t.Fatalf("expected deliveries=2, got %d", second.Event.Deliveries)
	}
	if second.Event.Status != "succeeded" {
		t.Fatalf("expected patched status, got %q", second.Event.Status)
	}
	if events.count() != 1 {
		t.Fatalf("expected exactly one stored event, got %d", events.count())
	}
}

func TestRecordPaymentEvent_RejectsMissingEventID(t *testing.T) {
	svc, events, _, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.RecordPaymentEvent(context.Background(), RecordPaymentEventInput{Type: "charge.refunded"})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %v", err)
	}
	if events.count() != 0 {
		t.Fatalf("expected no write on invalid input")
	}
}

func TestRecordPaymentEvent_MarksOrderPaidOnCheckoutCompletion(t *testing.T) {
	ctx := context.Background()
	svc, _, orders, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	orders.put(Order{ID: "ord_42", UserID: "usr_1", Status: OrderStatusPending})

	_, err = svc.RecordPaymentEvent(ctx, RecordPaymentEventInput{
		EventID:   "evt_checkout",
		Type:      EventTypeCheckoutSessionCompleted,
		SessionID: "cs_1",
		Metadata:  map[string]any{"order_id": "ord_42"},
	})
	if err != nil {
		t.Fatalf("record checkout completion: %v", err)
	}
	order, err := svc.GetOrder(ctx, "ord_42")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != OrderStatusPaid {
		t.Fatalf("expected order paid, got %q", order.Status)
	}
}

func TestRecordPaymentEvent_UnknownOrderIsNotAnError(t *testing.T) {
	svc, events, _, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.RecordPaymentEvent(context.Background(), RecordPaymentEventInput{
		EventID:  "evt_orphan",
		Type:     EventTypeCheckoutSessionCompleted,
		Metadata: map[string]any{"order_id": "ord_missing"},
	})
	if err != nil {
		t.Fatalf("expected orphan checkout completion to be recorded, got %v", err)
	}
	if events.count() != 1 {
		t.Fatalf("expected event to be stored")
	}
}

func TestCreateCheckout_WithoutUserMakesNoGatewayCall(t *testing.T) {
	svc, _, orders, gateway, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.CreateCheckout(context.Background(), CreateCheckoutRequest{PriceID: "price_123", Quantity: 1})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if gateway.calls() != 0 {
		t.Fatalf("expected no checkout session creation, got %d calls", gateway.calls())
	}
	if orders.count() != 0 {
		t.Fatalf("expected no order to be created")
	}
}

func TestCreateCheckout_ValidatesPriceAndQuantity(t *testing.T) {
	svc, _, _, gateway, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()
	for _, req := range []CreateCheckoutRequest{
		{UserID: "usr_1", PriceID: "prod_123"},
		{UserID: "usr_1", PriceID: "price_"},
		{UserID: "usr_1", PriceID: "price_123", Quantity: 100},
		{UserID: "usr_1", PriceID: "price_123", Quantity: -1},
	} {
		_, err := svc.CreateCheckout(ctx, req)
		var richErr *goerrors.Error
		if !goerrors.As(err, &richErr) || richErr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %+v, got %v", req, err)
		}
	}
	if gateway.calls() != 0 {
		t.Fatalf("expected no gateway calls on invalid input")
	}
}

func TestCreateCheckout_CreatesPendingOrderAndSession(t *testing.T) {
	ctx := context.Background()
	svc, _, orders, gateway, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	session, err := svc.CreateCheckout(ctx, CreateCheckoutRequest{UserID: "usr_1", PriceID: "price_123"})
	if err != nil {
		t.Fatalf("create checkout: %v", err)
	}
	if session.URL == "" || session.SessionID == "" || session.OrderID == "" {
		t.Fatalf("expected populated checkout session, got %+v", session)
	}
	if gateway.calls() != 1 {
		t.Fatalf("expected one gateway call, got %d", gateway.calls())
	}
	req := gateway.requests[0]
	if req.Quantity != 1 {
		t.Fatalf("expected quantity default of 1, got %d", req.Quantity)
	}
	if req.Mode != DefaultCheckoutMode {
		t.Fatalf("expected default mode, got %q", req.Mode)
	}
	if !strings.Contains(req.CancelURL, "orderId="+session.OrderID) {
		t.Fatalf("expected cancel url to carry the order id, got %q", req.CancelURL)
	}

	order, err := orders.Get(ctx, session.OrderID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != OrderStatusPending {
		t.Fatalf("expected pending order, got %q", order.Status)
	}
	if order.CheckoutSessionID != session.SessionID || order.CheckoutURL != session.URL {
		t.Fatalf("expected session attached to order, got %+v", order)
	}
}

func TestCreateCheckout_GatewayFailureLeavesOrderPending(t *testing.T) {
	ctx := context.Background()
	svc, _, orders, gateway, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	gateway.err = errGatewayDown

	_, err = svc.CreateCheckout(ctx, CreateCheckoutRequest{UserID: "usr_1", PriceID: "price_123", Quantity: 2})
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode != ServiceErrorProviderFailed || richErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected provider failure 500, got %q/%d", richErr.TextCode, richErr.Code)
	}
	order, err := orders.Get(ctx, "ord_1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.Status != OrderStatusPending {
		t.Fatalf("expected order to stay pending, got %q", order.Status)
	}
}

func TestCancelOrder_CancelsPendingAndKeepsPaid(t *testing.T) {
	ctx := context.Background()
	svc, _, orders, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	orders.put(Order{ID: "ord_pending", Status: OrderStatusPending})
	orders.put(Order{ID: "ord_paid", Status: OrderStatusPaid})

	cancelled, err := svc.CancelOrder(ctx, "ord_pending")
	if err != nil {
		t.Fatalf("cancel pending: %v", err)
	}
	if cancelled.Status != OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %q", cancelled.Status)
	}

	again, err := svc.CancelOrder(ctx, "ord_pending")
	if err != nil {
		t.Fatalf("cancel twice: %v", err)
	}
	if again.Status != OrderStatusCancelled {
		t.Fatalf("expected idempotent cancel, got %q", again.Status)
	}

	paid, err := svc.CancelOrder(ctx, "ord_paid")
	if err != nil {
		t.Fatalf("cancel paid: %v", err)
	}
	if paid.Status != OrderStatusPaid {
		t.Fatalf("expected paid order to stay paid, got %q", paid.Status)
	}
}

func TestListPaymentEvents_NormalizesPaging(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _, err := newTestService()
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	for _, id := range []string{"evt_a", "evt_b"} {
		if _, err := svc.RecordPaymentEvent(ctx, RecordPaymentEventInput{EventID: id, Type: "charge.refunded"}); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	page, err := svc.ListPaymentEvents(ctx, PaymentEventFilter{Type: "CHARGE.REFUNDED", PerPage: 1000})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("expected 2 events, got %d", page.Total)
	}
	if page.Page != 1 || page.PerPage != maxPaymentEventPerPage {
		t.Fatalf("expected normalized paging, got page=%d per_page=%d", page.Page, page.PerPage)
	}

	event, err := svc.GetPaymentEvent(ctx, "evt_a")
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if event.EventID != "evt_a" {
		t.Fatalf("expected evt_a, got %q", event.EventID)
	}
	if _, err := svc.GetPaymentEvent(ctx, "evt_missing"); err == nil {
		t.Fatalf("expected not found error")
	}
}

func TestResolveCancelURL(t *testing.T) {
	if got := resolveCancelURL("https://shop.example/cancel/{ORDER_ID}", "ord_1"); got != "https://shop.example/cancel/ord_1" {
		t.Fatalf("expected placeholder substitution, got %q", got)
	}
	if got := resolveCancelURL("https://shop.example/api/order/cancelled?src=checkout", "ord_1"); got != "https://shop.example/api/order/cancelled?orderId=ord_1&src=checkout" {
		t.Fatalf("expected orderId query param, got %q", got)
	}
	if got := resolveCancelURL("", "ord_1"); got != "" {
		t.Fatalf("expected empty template to stay empty, got %q", got)
	}
}
