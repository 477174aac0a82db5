package sqlstore

import (
	"fmt"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db     *bun.DB
	cache  repositorycache.CacheService
	logger glog.Logger

	paymentEventStore    core.PaymentEventStore
	orderStore           *OrderStore
	webhookDeliveryStore *WebhookDeliveryStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// WithCache puts payment event reads behind the cache service. It must be set
// before BuildStores.
func (f *RepositoryFactory) WithCache(cacheService repositorycache.CacheService) *RepositoryFactory {
	if f != nil {
		f.cache = cacheService
	}
	return f
}

// WithLogger sets the logger handed to stores that report non-fatal
// failures. It must be set before BuildStores.
func (f *RepositoryFactory) WithLogger(logger glog.Logger) *RepositoryFactory {
	if f != nil {
		f.logger = logger
	}
	return f
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.paymentEventStore != nil && f.orderStore != nil && f.webhookDeliveryStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) PaymentEventStore() core.PaymentEventStore {
	if f == nil {
		return nil
	}
	return f.paymentEventStore
}

func (f *RepositoryFactory) OrderStore() core.OrderStore {
	if f == nil || f.orderStore == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.webhookDeliveryStore
}

// DeliveryLedger exposes the SQL delivery store as a webhooks ledger.
func (f *RepositoryFactory) DeliveryLedger() webhooks.DeliveryLedger {
	if f == nil || f.webhookDeliveryStore == nil {
		return nil
	}
	return f.webhookDeliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	paymentEventStore, err := NewPaymentEventStore(f.db)
	if err != nil {
		return err
	}
	f.paymentEventStore = paymentEventStore
	if f.cache != nil {
		cached, cacheErr := NewCachedPaymentEventStore(paymentEventStore, f.cache)
		if cacheErr != nil {
			return cacheErr
		}
		cached.Logger = f.logger
		f.paymentEventStore = cached
	}

	orderStore, err := NewOrderStore(f.db)
	if err != nil {
		return err
	}
	f.orderStore = orderStore

	webhookDeliveryStore, err := NewWebhookDeliveryStore(f.db)
	if err != nil {
		return err
	}
	f.webhookDeliveryStore = webhookDeliveryStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
