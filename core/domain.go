package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrPaymentEventNotFound         = errors.New("core: payment event not found")
	ErrOrderNotFound                = errors.New("core: order not found")
	ErrInvalidOrderStatusTransition = errors.New("core: invalid order status transition")
	ErrOrderStatusConflict          = errors.New("core: order status changed concurrently")
)

const ProviderStripe = "stripe"

const (
	EventTypeCheckoutSessionCompleted = "checkout.session.completed"
	EventTypePaymentIntentSucceeded   = "payment_intent.succeeded"
)

type PaymentEvent struct {
	ID              string
	EventID         string
	Type            string
	SessionID       string
	PaymentIntentID string
	CustomerID      string
	Status          string
	Metadata        map[string]any
	RawPayload      []byte
	Livemode        bool
	Deliveries      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type RecordPaymentEventInput struct {
	EventID         string
	Type            string
	SessionID       string
	PaymentIntentID string
	CustomerID      string
	Status          string
	Metadata        map[string]any
	RawPayload      []byte
	Livemode        bool
}

func (in RecordPaymentEventInput) Normalize() RecordPaymentEventInput {
	in.EventID = strings.TrimSpace(in.EventID)
	in.Type = strings.TrimSpace(strings.ToLower(in.Type))
	in.SessionID = strings.TrimSpace(in.SessionID)
	in.PaymentIntentID = strings.TrimSpace(in.PaymentIntentID)
	in.CustomerID = strings.TrimSpace(in.CustomerID)
	in.Status = strings.TrimSpace(in.Status)
	in.Metadata = cloneFields(in.Metadata)
	in.RawPayload = append([]byte(nil), in.RawPayload...)
	return in
}

func (in RecordPaymentEventInput) Validate() error {
	if strings.TrimSpace(in.EventID) == "" {
		return fmt.Errorf("core: event id is required")
	}
	if strings.TrimSpace(in.Type) == "" {
		return fmt.Errorf("core: event type is required")
	}
	return nil
}

// OrderID returns the order reference carried in the event metadata, if any.
func (in RecordPaymentEventInput) OrderID() string {
	if len(in.Metadata) == 0 {
		return ""
	}
	for _, key := range []string{"order_id", "orderId"} {
		value := strings.TrimSpace(fmt.Sprint(in.Metadata[key]))
		if value != "" && value != "<nil>" {
			return value
		}
	}
	return ""
}

type RecordPaymentEventResult struct {
	Event   PaymentEvent
	Created bool
}

type PaymentEventFilter struct {
	Type       string
	CustomerID string
	SessionID  string
	Page       int
	PerPage    int
}

type PaymentEventPage struct {
	Items   []PaymentEvent
	Total   int
	Page    int
	PerPage int
}

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

type Order struct {
	ID                string
	UserID            string
	PriceID           string
	Quantity          int
	Status            OrderStatus
	CheckoutSessionID string
	CheckoutURL       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CreateOrderInput struct {
	UserID   string
	PriceID  string
	Quantity int
}

func ValidateOrderStatusTransition(from OrderStatus, to OrderStatus) error {
	if from == to {
		return nil
	}
	switch from {
	case OrderStatusPending:
		if to == OrderStatusPaid || to == OrderStatusCancelled {
			return nil
		}
	case OrderStatusCancelled:
		// a late checkout completion still wins over an abandoned cancel
		if to == OrderStatusPaid {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidOrderStatusTransition, from, to)
}

type CreateCheckoutRequest struct {
	UserID   string
	PriceID  string
	Quantity int
}

type CheckoutSessionRequest struct {
	OrderID  string
	UserID   string
	PriceID  string
	Quantity int
	Mode     string
	// SuccessURL and CancelURL are already resolved for the order.
	SuccessURL          string
	CancelURL           string
	AllowPromotionCodes bool
}

type CheckoutSession struct {
	OrderID   string
	SessionID string
	URL       string
}
