package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type memoryPaymentEventStore struct {
	mu      sync.Mutex
	nextID  int
	records map[string]PaymentEvent
	err     error
}

func newMemoryPaymentEventStore() *memoryPaymentEventStore {
	return &memoryPaymentEventStore{records: map[string]PaymentEvent{}}
}

func (s *memoryPaymentEventStore) Upsert(_ context.Context, in RecordPaymentEventInput) (PaymentEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return PaymentEvent{}, false, s.err
	}
	now := time.Now().UTC()
	existing, ok := s.records[in.EventID]
	if ok {
		existing.Type = in.Type
		existing.SessionID = in.SessionID
		existing.PaymentIntentID = in.PaymentIntentID
		existing.CustomerID = in.CustomerID
		existing.Status = in.Status
		existing.Metadata = cloneFields(in.Metadata)
		existing.RawPayload = append([]byte(nil), in.RawPayload...)
		existing.Livemode = in.Livemode
		existing.Deliveries++
		existing.UpdatedAt = now
		s.records[in.EventID] = existing
		return existing, false, nil
	}
	s.nextID++
	record := PaymentEvent{
		ID:              fmt.Sprintf("pe_%d", s.nextID),
		EventID:         in.EventID,
		Type:            in.Type,
		SessionID:       in.SessionID,
		PaymentIntentID: in.PaymentIntentID,
		CustomerID:      in.CustomerID,
		Status:          in.Status,
		Metadata:        cloneFields(in.Metadata),
		RawPayload:      append([]byte(nil), in.RawPayload...),
		Livemode:        in.Livemode,
		Deliveries:      1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.records[in.EventID] = record
	return record, true, nil
}

func (s *memoryPaymentEventStore) GetByEventID(_ context.Context, eventID string) (PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[eventID]
	if !ok {
		return PaymentEvent{}, ErrPaymentEventNotFound
	}
	return record, nil
}

func (s *memoryPaymentEventStore) List(_ context.Context, filter PaymentEventFilter) (PaymentEventPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]PaymentEvent, 0, len(s.records))
	for _, record := range s.records {
		if filter.Type != "" && record.Type != filter.Type {
			continue
		}
		if filter.CustomerID != "" && record.CustomerID != filter.CustomerID {
			continue
		}
		items = append(items, record)
	}
	return PaymentEventPage{Items: items, Total: len(items)}, nil
}

func (s *memoryPaymentEventStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type memoryOrderStore struct {
	mu     sync.Mutex
	nextID int
	orders map[string]Order
}

func newMemoryOrderStore() *memoryOrderStore {
	return &memoryOrderStore{orders: map[string]Order{}}
}

func (s *memoryOrderStore) Create(_ context.Context, in CreateOrderInput) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	now := time.Now().UTC()
	order := Order{
		ID:        fmt.Sprintf("ord_%d", s.nextID),
		UserID:    in.UserID,
		PriceID:   in.PriceID,
		Quantity:  in.Quantity,
		Status:    OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.orders[order.ID] = order
	return order, nil
}

func (s *memoryOrderStore) Get(_ context.Context, id string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

func (s *memoryOrderStore) AttachCheckoutSession(_ context.Context, id string, sessionID string, url string) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	order.CheckoutSessionID = sessionID
	order.CheckoutURL = url
	s.orders[id] = order
	return order, nil
}

func (s *memoryOrderStore) UpdateStatus(_ context.Context, id string, status OrderStatus) (Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return Order{}, ErrOrderNotFound
	}
	if err := ValidateOrderStatusTransition(order.Status, status); err != nil {
		return Order{}, err
	}
	order.Status = status
	s.orders[id] = order
	return order, nil
}

func (s *memoryOrderStore) put(order Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[order.ID] = order
}

func (s *memoryOrderStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

type stubCheckoutGateway struct {
	mu       sync.Mutex
	requests []CheckoutSessionRequest
	err      error
}

func (g *stubCheckoutGateway) CreateSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return CheckoutSession{}, g.err
	}
	return CheckoutSession{
		OrderID:   req.OrderID,
		SessionID: "cs_test_" + req.OrderID,
		URL:       "https://checkout.stripe.test/c/pay/cs_test_" + req.OrderID,
	}, nil
}

func (g *stubCheckoutGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

var errGatewayDown = errors.New("stripe: connection refused")

type stubStoreProvider struct {
	events *memoryPaymentEventStore
	orders *memoryOrderStore
}

func (p stubStoreProvider) PaymentEventStore() PaymentEventStore { return p.events }

func (p stubStoreProvider) OrderStore() OrderStore { return p.orders }

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func newTestService(opts ...Option) (*Service, *memoryPaymentEventStore, *memoryOrderStore, *stubCheckoutGateway, error) {
	events := newMemoryPaymentEventStore()
	orders := newMemoryOrderStore()
	gateway := &stubCheckoutGateway{}
	cfg := DefaultConfig()
	cfg.Checkout.SuccessURL = "https://shop.example/success?session_id={CHECKOUT_SESSION_ID}"
	cfg.Checkout.CancelURL = "https://shop.example/api/order/cancelled"
	base := []Option{
		WithPaymentEventStore(events),
		WithOrderStore(orders),
		WithCheckoutGateway(gateway),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	return svc, events, orders, gateway, err
}
