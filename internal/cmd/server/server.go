package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	payments "github.com/goliatone/go-payments"
	"github.com/goliatone/go-payments/adapters/gocommand"
	"github.com/goliatone/go-payments/adapters/gologger"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/identity"
	"github.com/goliatone/go-payments/inbound"
	"github.com/goliatone/go-payments/providers/stripe"
	sqlstore "github.com/goliatone/go-payments/store/sql"
	"github.com/goliatone/go-payments/webhooks"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

// Runtime is an assembled payments server: HTTP handler, replay worker and
// the resources they share.
type Runtime struct {
	Handler   http.Handler
	Service   *core.Service
	Facade    *payments.Facade
	Processor *webhooks.Processor
	Queue     ReplayQueue
	Worker    *webhooks.ReplayWorker
	Ledger    *sqlstore.WebhookDeliveryStore
	Logger    glog.Logger

	client        *persistence.Client
	subscriptions []commanddispatcher.Subscription
	// durableQueue is set when replay jobs live in the database.
	durableQueue bool
}

// Build wires storage, service, webhook processing and routes from cfg.
func Build(ctx context.Context, cfg Config, provider glog.LoggerProvider) (*Runtime, error) {
	if provider == nil {
		provider = newLoggerProvider(os.Stderr, cfg.LogLevel)
	}
	logger := gologger.ResolveComponent("", provider, nil)
	serviceConfig := cfg.ServiceConfig()

	client, err := openPersistence(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &Runtime{client: client, Logger: logger}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	factory := sqlstore.NewRepositoryFactory().
		WithLogger(gologger.ResolveComponent(gologger.ComponentStore, provider, nil))
	if serviceConfig.Cache.TTL > 0 {
		cacheConfig := repositorycache.DefaultConfig()
		cacheConfig.TTL = serviceConfig.Cache.TTL
		cacheService, cacheErr := repositorycache.NewCacheService(cacheConfig)
		if cacheErr != nil {
			return fail(fmt.Errorf("server: cache service: %w", cacheErr))
		}
		factory.WithCache(cacheService)
	}
	if _, err := factory.BuildStores(client); err != nil {
		return fail(err)
	}

	opts := []core.Option{
		core.WithLoggerProvider(provider),
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
	}
	if strings.TrimSpace(serviceConfig.Checkout.SecretKey) != "" {
		gateway, gatewayErr := stripe.NewCheckoutGateway(stripe.CheckoutConfig{SecretKey: serviceConfig.Checkout.SecretKey})
		if gatewayErr != nil {
			return fail(gatewayErr)
		}
		opts = append(opts, core.WithCheckoutGateway(gateway))
	} else {
		logger.Warn("stripe secret key not set, checkout is disabled")
	}
	service, err := core.NewService(serviceConfig, opts...)
	if err != nil {
		return fail(err)
	}
	rt.Service = service
	serviceConfig = service.Config()

	facade, err := payments.NewFacade(service)
	if err != nil {
		return fail(err)
	}
	rt.Facade = facade
	rt.subscriptions, err = gocommand.RegisterPayments(gocommand.NewRegistryAdapter(command.NewRegistry()), facade)
	if err != nil {
		return fail(err)
	}

	if strings.TrimSpace(serviceConfig.Webhook.Secret) == "" {
		return fail(fmt.Errorf("server: webhook secret is required"))
	}
	ledger := factory.WebhookDeliveryStore()
	// verified events are recorded through the command bus
	processor := webhooks.NewTemplateProcessor(
		stripe.NewWebhookTemplate(stripe.WebhookConfigFrom(serviceConfig.Webhook)),
		ledger,
		gocommand.NewDispatchRecorder(),
	)
	processor.ClaimLease = serviceConfig.Webhook.ClaimLease
	processor.MaxAttempts = serviceConfig.Webhook.MaxAttempts
	processor.Logger = gologger.ResolveComponent(gologger.ComponentWebhooks, provider, nil)

	replayLogger := gologger.ResolveComponent(gologger.ComponentReplay, provider, nil)
	queue, replayWorker, durable, err := newReplayPipeline(ctx, cfg, client, processor, serviceConfig.Webhook.MaxAttempts, replayLogger)
	if err != nil {
		return fail(err)
	}
	processor.Enqueuer = queue
	replayWorker.Logger = replayLogger

	users, err := newUserResolver(cfg, serviceConfig.Identity)
	if err != nil {
		return fail(err)
	}

	rt.Ledger = ledger
	rt.Queue = queue
	rt.durableQueue = durable
	rt.Processor = processor
	rt.Worker = replayWorker
	rt.Handler = inbound.NewRouter(inbound.RouterDeps{
		Processor: processor,
		Service:   service,
		Users:     users,
		Config:    serviceConfig,
		Logger:    gologger.ResolveComponent(gologger.ComponentInbound, provider, nil),
	})
	return rt, nil
}

// RequeueDue enqueues replay jobs for deliveries whose retry is due, so work
// scheduled before a restart is not lost with the in-memory queue. Durable
// queues keep their jobs and are not rescanned at startup.
func (rt *Runtime) RequeueDue(ctx context.Context, limit int) (int, error) {
	if rt == nil || rt.Ledger == nil || rt.Queue == nil {
		return 0, fmt.Errorf("server: runtime is not built")
	}
	due, err := rt.Ledger.ListRetryReady(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, err
	}
	enqueued := 0
	for _, record := range due {
		notBefore := record.UpdatedAt
		if record.NextAttemptAt != nil {
			notBefore = *record.NextAttemptAt
		}
		msg := webhooks.NewReplayJobMessage(record.ProviderID, record.DeliveryID, record.Attempts, notBefore)
		if err := rt.Queue.Enqueue(ctx, msg); err != nil {
			rt.Logger.Warn("webhook requeue failed",
				"provider_id", record.ProviderID,
				"delivery_id", record.DeliveryID,
				"error", err.Error(),
			)
			continue
		}
		enqueued++
	}
	return enqueued, nil
}

func (rt *Runtime) Close() error {
	if rt == nil {
		return nil
	}
	for _, subscription := range rt.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	rt.subscriptions = nil
	if rt.client == nil {
		return nil
	}
	err := rt.client.Close()
	rt.client = nil
	return err
}

// Run builds the runtime, serves HTTP and drains replay jobs until ctx is
// cancelled, then shuts down gracefully.
func Run(ctx context.Context, cfg Config) error {
	provider := newLoggerProvider(os.Stderr, cfg.LogLevel)
	shutdownTracing, err := setupTracing(ctx, cfg.ServiceName, cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("server: tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	rt, err := Build(ctx, cfg, provider)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.Logger

	if !rt.durableQueue {
		if requeued, err := rt.RequeueDue(ctx, cfg.RequeueBatch); err != nil {
			logger.Warn("webhook requeue scan failed", "error", err.Error())
		} else if requeued > 0 {
			logger.Info("webhook deliveries requeued", "count", requeued)
		}
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- rt.Worker.Run(workerCtx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("payments server listening", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			stopWorker()
			<-workerDone
			return fmt.Errorf("server: listen: %w", err)
		}
	}

	logger.Info("payments server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	stopWorker()
	if err := <-workerDone; err != nil {
		logger.Error("replay worker stopped", "error", err.Error())
	}
	return shutdownErr
}

func newUserResolver(cfg Config, identityConfig core.IdentityConfig) (identity.UserResolver, error) {
	sessionConfig, err := identity.SessionConfigFrom(identityConfig)
	if err != nil {
		return nil, err
	}
	resolver, err := identity.NewSessionTokenResolver(sessionConfig)
	if err == nil {
		return resolver, nil
	}
	if !errors.Is(err, identity.ErrSessionVerifierNotConfigured) {
		return nil, err
	}
	if cfg.DevUserID {
		return identity.StaticUserResolver{Header: identity.HeaderUserID}, nil
	}
	// no verifier: every checkout is anonymous and answered with 401
	return identity.UserResolverFunc(func(*http.Request) (string, error) { return "", nil }), nil
}
