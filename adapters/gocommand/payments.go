package gocommand

import (
	"fmt"

	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	payments "github.com/goliatone/go-payments"
	paymentscommand "github.com/goliatone/go-payments/command"
	"github.com/goliatone/go-payments/core"
	paymentsquery "github.com/goliatone/go-payments/query"
)

// RegisterPayments registers every facade command and query with the adapter
// registry and subscribes them to the global dispatcher. On failure the
// subscriptions made so far are released.
func RegisterPayments(
	adapter *RegistryAdapter,
	facade *payments.Facade,
	runnerOpts ...runner.Option,
) (subscriptions []commanddispatcher.Subscription, err error) {
	if facade == nil {
		return nil, fmt.Errorf("gocommand: payments facade is required")
	}
	defer func() {
		if err == nil {
			return
		}
		for _, subscription := range subscriptions {
			if subscription != nil {
				subscription.Unsubscribe()
			}
		}
		subscriptions = nil
	}()

	add := func(subscription commanddispatcher.Subscription, registerErr error) error {
		if registerErr != nil {
			return registerErr
		}
		subscriptions = append(subscriptions, subscription)
		return nil
	}

	commands := facade.Commands()
	if err = add(RegisterAndSubscribe[paymentscommand.RecordPaymentEventMessage](adapter, commands.RecordPaymentEvent, runnerOpts...)); err != nil {
		return subscriptions, err
	}
	if err = add(RegisterAndSubscribe[paymentscommand.CreateCheckoutMessage](adapter, commands.CreateCheckout, runnerOpts...)); err != nil {
		return subscriptions, err
	}
	if err = add(RegisterAndSubscribe[paymentscommand.CancelOrderMessage](adapter, commands.CancelOrder, runnerOpts...)); err != nil {
		return subscriptions, err
	}

	queries := facade.Queries()
	if err = add(RegisterAndSubscribeQuery[paymentsquery.GetPaymentEventMessage, core.PaymentEvent](adapter, queries.GetPaymentEvent, runnerOpts...)); err != nil {
		return subscriptions, err
	}
	if err = add(RegisterAndSubscribeQuery[paymentsquery.ListPaymentEventsMessage, core.PaymentEventPage](adapter, queries.ListPaymentEvents, runnerOpts...)); err != nil {
		return subscriptions, err
	}
	if err = add(RegisterAndSubscribeQuery[paymentsquery.GetOrderMessage, core.Order](adapter, queries.GetOrder, runnerOpts...)); err != nil {
		return subscriptions, err
	}
	return subscriptions, nil
}
