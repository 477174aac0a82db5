package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-payments/core"
)

const paymentEventCacheKeyPrefix = "go-payments::payment_event::v1"

// CachedPaymentEventStore serves event lookups through a read-through cache.
// Writes go to the base store and drop the cached entry for the event id.
type CachedPaymentEventStore struct {
	base  core.PaymentEventStore
	cache repositorycache.CacheService

	Logger glog.Logger
}

func NewCachedPaymentEventStore(
	base core.PaymentEventStore,
	cacheService repositorycache.CacheService,
) (*CachedPaymentEventStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base payment event store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: payment event cache service is required")
	}
	return &CachedPaymentEventStore{base: base, cache: cacheService}, nil
}

// PaymentEventCacheKey returns go-payments::payment_event::v1::<event_id> with
// the event id URL-path escaped.
func PaymentEventCacheKey(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return "", fmt.Errorf("sqlstore: event id is required")
	}
	return paymentEventCacheKeyPrefix + "::" + url.PathEscape(eventID), nil
}

func (s *CachedPaymentEventStore) Upsert(
	ctx context.Context,
	in core.RecordPaymentEventInput,
) (core.PaymentEvent, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PaymentEvent{}, false, fmt.Errorf("sqlstore: cached payment event store is not configured")
	}
	event, created, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.PaymentEvent{}, false, err
	}
	// the write is committed; a stale entry expires with its TTL
	cacheKey, err := PaymentEventCacheKey(event.EventID)
	if err == nil {
		err = s.cache.Delete(ctx, cacheKey)
	}
	if err != nil {
		glog.Ensure(s.Logger).Warn("payment event cache invalidation failed",
			"event_id", event.EventID,
			"error", err.Error(),
		)
	}
	return event, created, nil
}

func (s *CachedPaymentEventStore) GetByEventID(ctx context.Context, eventID string) (core.PaymentEvent, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PaymentEvent{}, fmt.Errorf("sqlstore: cached payment event store is not configured")
	}
	cacheKey, err := PaymentEventCacheKey(eventID)
	if err != nil {
		return core.PaymentEvent{}, err
	}
	event, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.PaymentEvent, error) {
		return s.base.GetByEventID(ctx, strings.TrimSpace(eventID))
	})
	if err != nil {
		return core.PaymentEvent{}, err
	}
	return clonePaymentEvent(event), nil
}

func (s *CachedPaymentEventStore) List(ctx context.Context, filter core.PaymentEventFilter) (core.PaymentEventPage, error) {
	if s == nil || s.base == nil {
		return core.PaymentEventPage{}, fmt.Errorf("sqlstore: cached payment event store is not configured")
	}
	return s.base.List(ctx, filter)
}

func clonePaymentEvent(event core.PaymentEvent) core.PaymentEvent {
	cloned := event
	cloned.Metadata = copyAnyMap(event.Metadata)
	cloned.RawPayload = append([]byte(nil), event.RawPayload...)
	return cloned
}
