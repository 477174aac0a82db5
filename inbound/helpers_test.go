package inbound

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-payments/core"
)

type recordingService struct {
	mu          sync.Mutex
	events      map[string]core.PaymentEvent
	orders      map[string]core.Order
	checkouts   []core.CreateCheckoutRequest
	checkoutErr error
	recordErr   error
}

func newRecordingService() *recordingService {
	return &recordingService{
		events: map[string]core.PaymentEvent{},
		orders: map[string]core.Order{},
	}
}

func (s *recordingService) RecordPaymentEvent(_ context.Context, in core.RecordPaymentEventInput) (core.RecordPaymentEventResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordErr != nil {
		return core.RecordPaymentEventResult{}, s.recordErr
	}
	existing, ok := s.events[in.EventID]
	if ok {
		existing.Deliveries++
		existing.Status = in.Status
		s.events[in.EventID] = existing
		return core.RecordPaymentEventResult{Event: existing}, nil
	}
	event := core.PaymentEvent{EventID: in.EventID, Type: in.Type, Status: in.Status, Deliveries: 1}
	s.events[in.EventID] = event
	return core.RecordPaymentEventResult{Event: event, Created: true}, nil
}

func (s *recordingService) CreateCheckout(_ context.Context, req core.CreateCheckoutRequest) (core.CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkouts = append(s.checkouts, req)
	if s.checkoutErr != nil {
		return core.CheckoutSession{}, s.checkoutErr
	}
	return core.CheckoutSession{
		OrderID:   "ord_1",
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.test/c/pay/cs_test_1",
	}, nil
}

func (s *recordingService) CancelOrder(_ context.Context, orderID string) (core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return core.Order{}, fmt.Errorf("%w: id %q", core.ErrOrderNotFound, orderID)
	}
	if order.Status == core.OrderStatusPending {
		order.Status = core.OrderStatusCancelled
		s.orders[orderID] = order
	}
	return order, nil
}

func (s *recordingService) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingService) checkoutCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checkouts)
}

type stubProcessor struct {
	result core.InboundResult
	err    error
	last   core.InboundRequest
}

func (p *stubProcessor) Process(_ context.Context, req core.InboundRequest) (core.InboundResult, error) {
	p.last = req
	return p.result, p.err
}
