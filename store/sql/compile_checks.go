package sqlstore

import (
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

var (
	_ core.PaymentEventStore      = (*PaymentEventStore)(nil)
	_ core.PaymentEventStore      = (*CachedPaymentEventStore)(nil)
	_ core.OrderStore             = (*OrderStore)(nil)
	_ webhooks.DeliveryLedger     = (*WebhookDeliveryStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
