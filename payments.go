// Package payments wires the payment event pipeline, checkout and order
// lifecycle behind a single service and a go-command facade.
package payments

import "github.com/goliatone/go-payments/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type PaymentEvent = core.PaymentEvent

type RecordPaymentEventInput = core.RecordPaymentEventInput

type PaymentEventFilter = core.PaymentEventFilter

type Order = core.Order

type CreateCheckoutRequest = core.CreateCheckoutRequest

type CheckoutSession = core.CheckoutSession

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithTracer            = core.WithTracer
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithPaymentEventStore = core.WithPaymentEventStore
	WithOrderStore        = core.WithOrderStore
	WithCheckoutGateway   = core.WithCheckoutGateway
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
