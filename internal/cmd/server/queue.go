package server

import (
	"context"
	"fmt"

	"github.com/goliatone/go-job/queue/worker"
	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-payments/adapters/gojob"
	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"
)

// ReplayQueue carries webhook replay jobs from the processor to the worker.
type ReplayQueue interface {
	core.JobEnqueuer
	core.JobDequeuer
}

// newReplayPipeline picks the replay queue backend and builds the worker that
// drains it. The sql backend stores jobs in the payments database through
// go-job, so they outlive the process.
func newReplayPipeline(
	ctx context.Context,
	cfg Config,
	client *persistence.Client,
	processor *webhooks.Processor,
	maxAttempts int,
	logger glog.Logger,
) (ReplayQueue, *webhooks.ReplayWorker, bool, error) {
	switch cfg.QueueBackend {
	case QueueBackendSQL:
		policy := gojob.DefaultReplayRetryPolicy(maxAttempts)
		q, err := gojob.NewSQLQueue(ctx, client.DB().DB, gojob.SQLQueueConfig{
			Driver:            cfg.DBDriver,
			VisibilityTimeout: 2 * cfg.WebhookClaimLease,
			Policy:            policy,
		})
		if err != nil {
			return nil, nil, false, fmt.Errorf("server: replay queue: %w", err)
		}
		replay := gojob.NewReplayWorker(processor, q.Source(), policy, replayHook(logger))
		return q, replay, true, nil
	case QueueBackendMemory, "":
		q := webhooks.NewMemoryJobQueue(cfg.QueueBuffer)
		return q, webhooks.NewReplayWorker(processor, q), false, nil
	}
	return nil, nil, false, fmt.Errorf("server: unknown queue backend %q", cfg.QueueBackend)
}

func replayHook(logger glog.Logger) worker.Hook {
	logger = glog.Ensure(logger)
	return worker.HookFuncs{
		OnRetryFunc: func(_ context.Context, event worker.Event) {
			logger.Debug("webhook replay deferred", replayEventArgs(event)...)
		},
		OnFailureFunc: func(_ context.Context, event worker.Event) {
			logger.Warn("webhook replay job failed", replayEventArgs(event)...)
		},
	}
}

func replayEventArgs(event worker.Event) []any {
	args := []any{"attempt", event.Attempt, "delay", event.Delay.String()}
	if event.Message != nil {
		args = append(args, "idempotency_key", event.Message.IdempotencyKey)
	}
	if event.Err != nil {
		args = append(args, "error", event.Err.Error())
	}
	return args
}
