package payments

import (
	"fmt"

	paymentscommand "github.com/goliatone/go-payments/command"
	paymentsquery "github.com/goliatone/go-payments/query"
)

type CommandQueryService interface {
	paymentscommand.MutatingService
	paymentsquery.PaymentEventReader
	paymentsquery.OrderReader
}

type Commands struct {
	RecordPaymentEvent *paymentscommand.RecordPaymentEventCommand
	CreateCheckout     *paymentscommand.CreateCheckoutCommand
	CancelOrder        *paymentscommand.CancelOrderCommand
}

type Queries struct {
	GetPaymentEvent   *paymentsquery.GetPaymentEventQuery
	ListPaymentEvents *paymentsquery.ListPaymentEventsQuery
	GetOrder          *paymentsquery.GetOrderQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	eventReader paymentsquery.PaymentEventReader
}

// WithPaymentEventReader serves event queries from reader instead of the
// service, e.g. a read replica.
func WithPaymentEventReader(reader paymentsquery.PaymentEventReader) FacadeOption {
	return func(options *facadeOptions) {
		options.eventReader = reader
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("payments: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	eventReader := cfg.eventReader
	if eventReader == nil {
		eventReader = service
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		RecordPaymentEvent: paymentscommand.NewRecordPaymentEventCommand(service),
		CreateCheckout:     paymentscommand.NewCreateCheckoutCommand(service),
		CancelOrder:        paymentscommand.NewCancelOrderCommand(service),
	}
	facade.queries = Queries{
		GetPaymentEvent:   paymentsquery.NewGetPaymentEventQuery(eventReader),
		ListPaymentEvents: paymentsquery.NewListPaymentEventsQuery(eventReader),
		GetOrder:          paymentsquery.NewGetOrderQuery(service),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}
