package sqlstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-payments/core"
)

type stubPaymentEventStore struct {
	mu          sync.Mutex
	events      map[string]core.PaymentEvent
	getCalls    int
	upsertCalls int
	listCalls   int
}

func newStubPaymentEventStore() *stubPaymentEventStore {
	return &stubPaymentEventStore{events: map[string]core.PaymentEvent{}}
}

func (s *stubPaymentEventStore) Upsert(_ context.Context, in core.RecordPaymentEventInput) (core.PaymentEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	existing, ok := s.events[in.EventID]
	if !ok {
		existing = core.PaymentEvent{ID: "pe_" + in.EventID, EventID: in.EventID}
	}
	existing.Type = in.Type
	existing.Status = in.Status
	existing.Deliveries++
	s.events[in.EventID] = existing
	return existing, !ok, nil
}

func (s *stubPaymentEventStore) GetByEventID(_ context.Context, eventID string) (core.PaymentEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCalls++
	event, ok := s.events[eventID]
	if !ok {
		return core.PaymentEvent{}, fmt.Errorf("%w: %s", core.ErrPaymentEventNotFound, eventID)
	}
	return event, nil
}

func (s *stubPaymentEventStore) List(_ context.Context, _ core.PaymentEventFilter) (core.PaymentEventPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return core.PaymentEventPage{Total: len(s.events)}, nil
}

func TestCachedPaymentEventStore_GetMissFetchThenHit(t *testing.T) {
	ctx := context.Background()
	base := newStubPaymentEventStore()
	base.events["evt_1"] = core.PaymentEvent{ID: "pe_1", EventID: "evt_1", Status: "succeeded", Deliveries: 1}

	store, err := NewCachedPaymentEventStore(base, newTestPaymentEventCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if _, err := store.GetByEventID(ctx, "evt_1"); err != nil {
		t.Fatalf("first get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected first get to hit the base store once, got %d", base.getCalls)
	}
	event, err := store.GetByEventID(ctx, " evt_1 ")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if base.getCalls != 1 {
		t.Fatalf("expected second get to be a cache hit, base get calls=%d", base.getCalls)
	}
	if event.Status != "succeeded" {
		t.Fatalf("expected cached event, got %+v", event)
	}
}

func TestCachedPaymentEventStore_UpsertInvalidatesCachedKey(t *testing.T) {
	ctx := context.Background()
	base := newStubPaymentEventStore()
	store, err := NewCachedPaymentEventStore(base, newTestPaymentEventCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	if _, _, err := store.Upsert(ctx, core.RecordPaymentEventInput{EventID: "evt_2", Type: "charge.refunded", Status: "pending"}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if _, err := store.GetByEventID(ctx, "evt_2"); err != nil {
		t.Fatalf("prime cache: %v", err)
	}
	if _, _, err := store.Upsert(ctx, core.RecordPaymentEventInput{EventID: "evt_2", Type: "charge.refunded", Status: "succeeded"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	event, err := store.GetByEventID(ctx, "evt_2")
	if err != nil {
		t.Fatalf("get after invalidation: %v", err)
	}
	if base.getCalls != 2 {
		t.Fatalf("expected invalidated key to force a second base read, got %d", base.getCalls)
	}
	if event.Status != "succeeded" || event.Deliveries != 2 {
		t.Fatalf("expected refreshed event, got %+v", event)
	}
}

func TestCachedPaymentEventStore_ListPassesThrough(t *testing.T) {
	base := newStubPaymentEventStore()
	store, err := NewCachedPaymentEventStore(base, newTestPaymentEventCacheService(t))
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := store.List(context.Background(), core.PaymentEventFilter{}); err != nil {
			t.Fatalf("list: %v", err)
		}
	}
	if base.listCalls != 2 {
		t.Fatalf("expected list to bypass the cache, got %d base calls", base.listCalls)
	}
}

func TestPaymentEventCacheKey_Contract(t *testing.T) {
	key, err := PaymentEventCacheKey(" evt/1 2 ")
	if err != nil {
		t.Fatalf("cache key: %v", err)
	}
	if key != "go-payments::payment_event::v1::evt%2F1%202" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if _, err := PaymentEventCacheKey("  "); err == nil {
		t.Fatalf("expected empty event id to be rejected")
	}
}

func TestNewCachedPaymentEventStore_RequiresDependencies(t *testing.T) {
	if _, err := NewCachedPaymentEventStore(nil, newTestPaymentEventCacheService(t)); err == nil {
		t.Fatalf("expected missing base store error")
	}
	if _, err := NewCachedPaymentEventStore(newStubPaymentEventStore(), nil); err == nil {
		t.Fatalf("expected missing cache service error")
	}
}

func newTestPaymentEventCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

type failingDeleteCache struct {
	repositorycache.CacheService
	deletes int
}

func (c *failingDeleteCache) Delete(context.Context, string) error {
	c.deletes++
	return errors.New("cache backend unavailable")
}

func TestCachedPaymentEventStore_UpsertLogsFailedInvalidation(t *testing.T) {
	ctx := context.Background()
	base := newStubPaymentEventStore()
	cache := &failingDeleteCache{CacheService: newTestPaymentEventCacheService(t)}
	store, err := NewCachedPaymentEventStore(base, cache)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}
	var buf bytes.Buffer
	store.Logger = glog.NewLogger(glog.WithWriter(&buf), glog.WithLevel("debug"), glog.WithLoggerTypeJSON())

	event, created, err := store.Upsert(ctx, core.RecordPaymentEventInput{EventID: "evt_cache_down", Type: "charge.refunded"})
	if err != nil {
		t.Fatalf("expected committed upsert to succeed despite cache failure, got %v", err)
	}
	if !created || event.EventID != "evt_cache_down" {
		t.Fatalf("unexpected upsert result %+v created=%v", event, created)
	}
	if cache.deletes != 1 || base.upsertCalls != 1 {
		t.Fatalf("expected one write and one invalidation, got deletes=%d upserts=%d", cache.deletes, base.upsertCalls)
	}
	out := buf.String()
	for _, want := range []string{"payment event cache invalidation failed", "evt_cache_down", "cache backend unavailable"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in log output, got %s", want, out)
		}
	}
}

func TestRepositoryFactory_WithCacheWrapsPaymentEventStore(t *testing.T) {
	db := newMigratedSQLiteDB(t)
	logger := glog.Nop()
	factory := NewRepositoryFactory().
		WithCache(newTestPaymentEventCacheService(t)).
		WithLogger(logger)
	if _, err := factory.BuildStores(db); err != nil {
		t.Fatalf("build stores: %v", err)
	}
	cached, ok := factory.PaymentEventStore().(*CachedPaymentEventStore)
	if !ok {
		t.Fatalf("expected cached payment event store, got %T", factory.PaymentEventStore())
	}
	if cached.Logger != logger {
		t.Fatalf("expected factory logger on the cached store")
	}
}
