package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-payments/core"
)

const (
	ReplayJobID      = "payments.webhook.replay"
	ReplayScriptPath = "payments/webhooks/replay"
	ReplayDedupDrop  = "drop"
)

type ReplayJob struct {
	ProviderID string
	DeliveryID string
	Attempt    int
	NotBefore  time.Time
}

func NewReplayJobMessage(providerID string, deliveryID string, attempt int, notBefore time.Time) *core.JobExecutionMessage {
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	return &core.JobExecutionMessage{
		JobID:      ReplayJobID,
		ScriptPath: ReplayScriptPath,
		Parameters: map[string]any{
			"provider_id": providerID,
			"delivery_id": deliveryID,
			"attempt":     attempt,
			"not_before":  notBefore.UTC().Format(time.RFC3339Nano),
		},
		IdempotencyKey: fmt.Sprintf("%s:%s:%d", providerID, deliveryID, attempt),
		DedupPolicy:    ReplayDedupDrop,
	}
}

func ParseReplayJobMessage(msg *core.JobExecutionMessage) (ReplayJob, error) {
	if msg == nil {
		return ReplayJob{}, fmt.Errorf("webhooks: replay job message is required")
	}
	if strings.TrimSpace(msg.JobID) != ReplayJobID {
		return ReplayJob{}, fmt.Errorf("webhooks: unexpected job id %q", msg.JobID)
	}
	job := ReplayJob{
		ProviderID: paramString(msg.Parameters, "provider_id"),
		DeliveryID: paramString(msg.Parameters, "delivery_id"),
	}
	if job.ProviderID == "" || job.DeliveryID == "" {
		return ReplayJob{}, fmt.Errorf("webhooks: replay job requires provider_id and delivery_id")
	}
	if raw := paramString(msg.Parameters, "attempt"); raw != "" {
		attempt, err := strconv.Atoi(raw)
		if err != nil {
			return ReplayJob{}, fmt.Errorf("webhooks: replay job attempt %q is invalid", raw)
		}
		job.Attempt = attempt
	}
	if raw := paramString(msg.Parameters, "not_before"); raw != "" {
		notBefore, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return ReplayJob{}, fmt.Errorf("webhooks: replay job not_before %q is invalid", raw)
		}
		job.NotBefore = notBefore.UTC()
	}
	return job, nil
}

type Replayer interface {
	Replay(ctx context.Context, providerID string, deliveryID string) (core.InboundResult, error)
}

// ReplayWorker drains replay jobs and re-runs the stored deliveries.
type ReplayWorker struct {
	Replayer  Replayer
	Dequeuer  core.JobDequeuer
	Hook      core.JobWorkerHook
	Logger    core.Logger
	Backoff   time.Duration
	IdleDelay time.Duration
	Now       func() time.Time
}

func NewReplayWorker(replayer Replayer, dequeuer core.JobDequeuer) *ReplayWorker {
	return &ReplayWorker{
		Replayer:  replayer,
		Dequeuer:  dequeuer,
		Backoff:   defaultClaimLease,
		IdleDelay: 250 * time.Millisecond,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run blocks until ctx is cancelled.
func (w *ReplayWorker) Run(ctx context.Context) error {
	if w == nil || w.Replayer == nil || w.Dequeuer == nil {
		return fmt.Errorf("webhooks: replay worker requires replayer and dequeuer")
	}
	logger := w.logger()
	for {
		if ctx.Err() != nil {
			return nil
		}
		delivery, err := w.Dequeuer.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Warn("webhook replay dequeue failed", "error", err.Error())
			if !sleepContext(ctx, w.idleDelay()) {
				return nil
			}
			continue
		}
		if delivery == nil {
			// polling dequeuers report an empty queue with a nil delivery
			if !sleepContext(ctx, w.idleDelay()) {
				return nil
			}
			continue
		}
		if err := w.HandleDelivery(ctx, delivery); err != nil {
			logger.Error("webhook replay failed", "error", err.Error())
		}
	}
}

func (w *ReplayWorker) HandleDelivery(ctx context.Context, delivery core.JobDelivery) error {
	msg := delivery.Message()
	job, err := ParseReplayJobMessage(msg)
	if err != nil {
		if nackErr := delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: err.Error()}); nackErr != nil {
			return nackErr
		}
		return err
	}

	startedAt := w.now()
	event := core.JobWorkerEvent{Message: msg, Attempt: job.Attempt, StartedAt: startedAt}
	if wait := job.NotBefore.Sub(startedAt); wait > 0 {
		event.Delay = wait
		w.onRetry(ctx, event)
		return delivery.Nack(ctx, core.JobNackOptions{Delay: wait, Requeue: true, Reason: "not due"})
	}

	w.onStart(ctx, event)
	_, replayErr := w.Replayer.Replay(ctx, job.ProviderID, job.DeliveryID)
	event.Duration = w.now().Sub(startedAt)
	if replayErr == nil {
		w.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = replayErr
	if core.MapError(replayErr).Code == http.StatusConflict {
		event.Delay = w.backoff()
		w.onRetry(ctx, event)
		return delivery.Nack(ctx, core.JobNackOptions{Delay: event.Delay, Requeue: true, Reason: replayErr.Error()})
	}
	// the processor already rescheduled or dead-lettered the delivery
	w.onFailure(ctx, event)
	if ackErr := delivery.Ack(ctx); ackErr != nil {
		return ackErr
	}
	return replayErr
}

func (w *ReplayWorker) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnStart(ctx, event)
	}
}

func (w *ReplayWorker) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnSuccess(ctx, event)
	}
}

func (w *ReplayWorker) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *ReplayWorker) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if w.Hook != nil {
		w.Hook.OnRetry(ctx, event)
	}
}

func (w *ReplayWorker) now() time.Time {
	if w != nil && w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func (w *ReplayWorker) backoff() time.Duration {
	if w != nil && w.Backoff > 0 {
		return w.Backoff
	}
	return defaultClaimLease
}

func (w *ReplayWorker) idleDelay() time.Duration {
	if w != nil && w.IdleDelay > 0 {
		return w.IdleDelay
	}
	return 250 * time.Millisecond
}

func (w *ReplayWorker) logger() core.Logger {
	if w == nil {
		return glog.Nop()
	}
	return glog.Ensure(w.Logger)
}

func sleepContext(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func paramString(params map[string]any, key string) string {
	if len(params) == 0 {
		return ""
	}
	value, ok := params[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}
