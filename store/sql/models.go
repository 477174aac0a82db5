package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type paymentEventRecord struct {
	bun.BaseModel `bun:"table:payment_events,alias:pe"`

	ID              string         `bun:"id,pk"`
	EventID         string         `bun:"event_id,notnull"`
	EventType       string         `bun:"event_type,notnull"`
	SessionID       string         `bun:"session_id,notnull"`
	PaymentIntentID string         `bun:"payment_intent_id,notnull"`
	CustomerID      string         `bun:"customer_id,notnull"`
	Status          string         `bun:"status,notnull"`
	Metadata        map[string]any `bun:"metadata,type:jsonb,notnull"`
	RawPayload      []byte         `bun:"raw_payload"`
	Livemode        bool           `bun:"livemode,notnull"`
	Deliveries      int            `bun:"deliveries,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderRecord struct {
	bun.BaseModel `bun:"table:payment_orders,alias:po"`

	ID                string    `bun:"id,pk"`
	UserID            string    `bun:"user_id,notnull"`
	PriceID           string    `bun:"price_id,notnull"`
	Quantity          int       `bun:"quantity,notnull"`
	Status            string    `bun:"status,notnull"`
	CheckoutSessionID string    `bun:"checkout_session_id,notnull"`
	CheckoutURL       string    `bun:"checkout_url,notnull"`
	CreatedAt         time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:payment_webhook_deliveries,alias:pwd"`

	ID             string     `bun:"id,pk"`
	ClaimID        string     `bun:"claim_id,notnull"`
	ProviderID     string     `bun:"provider_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	Payload        []byte     `bun:"payload"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
