package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type InboundRequest struct {
	ProviderID string
	Surface    string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

type PaymentEventStore interface {
	Upsert(ctx context.Context, in RecordPaymentEventInput) (PaymentEvent, bool, error)
	GetByEventID(ctx context.Context, eventID string) (PaymentEvent, error)
	List(ctx context.Context, filter PaymentEventFilter) (PaymentEventPage, error)
}

type OrderStore interface {
	Create(ctx context.Context, in CreateOrderInput) (Order, error)
	Get(ctx context.Context, id string) (Order, error)
	AttachCheckoutSession(ctx context.Context, id string, sessionID string, url string) (Order, error)
	UpdateStatus(ctx context.Context, id string, status OrderStatus) (Order, error)
}

type CheckoutGateway interface {
	CreateSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
}

type StoreProvider interface {
	PaymentEventStore() PaymentEventStore
	OrderStore() OrderStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type PaymentService interface {
	RecordPaymentEvent(ctx context.Context, in RecordPaymentEventInput) (RecordPaymentEventResult, error)
	CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (CheckoutSession, error)
	CancelOrder(ctx context.Context, orderID string) (Order, error)
	GetPaymentEvent(ctx context.Context, eventID string) (PaymentEvent, error)
	ListPaymentEvents(ctx context.Context, filter PaymentEventFilter) (PaymentEventPage, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}
