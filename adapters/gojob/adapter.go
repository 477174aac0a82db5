package gojob

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payments/core"
	"github.com/goliatone/go-payments/webhooks"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const JobIDWebhookReplay = webhooks.ReplayJobID

// DefaultReplayRetryPolicy bounds queue level retries of webhook replay jobs.
// The delivery ledger owns the attempt budget, so the queue only dead letters
// once the same budget is spent.
func DefaultReplayRetryPolicy(maxAttempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     maxAttempts,
		MaxDelay:        5 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// NewReplayWorker drives a webhook replay worker from a go-job dequeuer.
func NewReplayWorker(replayer webhooks.Replayer, dequeuer queue.Dequeuer, policy RetryPolicy, hook worker.Hook) *webhooks.ReplayWorker {
	replay := webhooks.NewReplayWorker(replayer, NewDequeuerAdapter(dequeuer, policy))
	if hook != nil {
		replay.Hook = &jobHookBridge{hook: hook}
	}
	return replay
}

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	if out.DeadLetter {
		out.Requeue = false
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Requeue = false
		if p.DeadLetterOnMax || out.DeadLetter {
			out.DeadLetter = true
		}
	}
	if !out.Requeue && !out.DeadLetter {
		out.Requeue = true
	}
	return out
}

// ToExecutionMessage maps a payments runtime message to go-job.
func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	return &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
}

// FromExecutionMessage maps a go-job message into the payments contract.
func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	return &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		Parameters:     copyAnyMap(msg.Parameters),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
}

// ToNackOptions maps payments nack options onto a go-job disposition.
func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	out := queue.NackOptions{
		Delay:  opts.Delay,
		Reason: strings.TrimSpace(opts.Reason),
	}
	switch {
	case opts.DeadLetter:
		out.Disposition = queue.NackDispositionDeadLetter
		out.Delay = 0
	case opts.Requeue:
		out.Disposition = queue.NackDispositionRetry
		if out.Delay < 0 {
			out.Delay = 0
		}
	default:
		out.Disposition = queue.NackDispositionFailed
		out.Delay = 0
	}
	return out
}

type EnqueuerAdapter struct {
	enqueuer queue.Enqueuer
	now      func() time.Time
}

func NewEnqueuerAdapter(enqueuer queue.Enqueuer) *EnqueuerAdapter {
	return &EnqueuerAdapter{enqueuer: enqueuer, now: time.Now}
}

// Enqueue hands the message to go-job. Messages carrying a future not_before
// parameter are scheduled when the enqueuer supports it, so the worker does
// not lease them early.
func (a *EnqueuerAdapter) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if a == nil || a.enqueuer == nil {
		return fmt.Errorf("gojob: enqueuer is not configured")
	}
	if msg == nil {
		return fmt.Errorf("gojob: execution message is required")
	}
	mapped := ToExecutionMessage(msg)
	if scheduler, ok := a.enqueuer.(queue.ScheduledEnqueuer); ok {
		if at, ok := notBefore(msg.Parameters); ok && at.After(a.clock()) {
			_, err := scheduler.EnqueueAt(ctx, mapped, at)
			return err
		}
	}
	_, err := a.enqueuer.Enqueue(ctx, mapped)
	return err
}

func (a *EnqueuerAdapter) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

func notBefore(params map[string]any) (time.Time, bool) {
	raw, ok := params["not_before"].(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return time.Time{}, false
	}
	at, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, false
	}
	return at, true
}

type DeliveryAdapter struct {
	delivery queue.Delivery
	policy   RetryPolicy
}

func NewDeliveryAdapter(delivery queue.Delivery, policy RetryPolicy) *DeliveryAdapter {
	return &DeliveryAdapter{delivery: delivery, policy: policy}
}

func (d *DeliveryAdapter) Message() *core.JobExecutionMessage {
	if d == nil || d.delivery == nil {
		return nil
	}
	return FromExecutionMessage(d.delivery.Message())
}

func (d *DeliveryAdapter) Ack(ctx context.Context) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	return d.delivery.Ack(ctx)
}

// Nack applies the retry policy using the attempt count go-job tracked for the
// lease, when the delivery exposes one.
func (d *DeliveryAdapter) Nack(ctx context.Context, opts core.JobNackOptions) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	attempt := 0
	if counted, ok := d.delivery.(interface{ Attempts() int }); ok {
		attempt = counted.Attempts()
	}
	return d.NackForAttempt(ctx, opts, attempt)
}

func (d *DeliveryAdapter) NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error {
	if d == nil || d.delivery == nil {
		return fmt.Errorf("gojob: delivery is not configured")
	}
	normalized := d.policy.NormalizeAttempt(opts, attempt)
	return d.delivery.Nack(ctx, ToNackOptions(normalized))
}

type DequeuerAdapter struct {
	dequeuer queue.Dequeuer
	policy   RetryPolicy
}

func NewDequeuerAdapter(dequeuer queue.Dequeuer, policy RetryPolicy) *DequeuerAdapter {
	return &DequeuerAdapter{dequeuer: dequeuer, policy: policy}
}

func (a *DequeuerAdapter) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if a == nil || a.dequeuer == nil {
		return nil, fmt.Errorf("gojob: dequeuer is not configured")
	}
	delivery, err := a.dequeuer.Dequeue(ctx)
	if err != nil {
		return nil, err
	}
	if delivery == nil {
		// empty poll
		return nil, nil
	}
	return NewDeliveryAdapter(delivery, a.policy), nil
}

// jobHookBridge lets go-job worker hooks observe the replay worker.
type jobHookBridge struct {
	hook worker.Hook
}

func (b *jobHookBridge) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	b.hook.OnStart(ctx, toWorkerEvent(event))
}

func (b *jobHookBridge) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	b.hook.OnSuccess(ctx, toWorkerEvent(event))
}

func (b *jobHookBridge) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	b.hook.OnFailure(ctx, toWorkerEvent(event))
}

func (b *jobHookBridge) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	b.hook.OnRetry(ctx, toWorkerEvent(event))
}

func toWorkerEvent(event core.JobWorkerEvent) worker.Event {
	return worker.Event{
		Message:   ToExecutionMessage(event.Message),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.JobEnqueuer   = (*EnqueuerAdapter)(nil)
	_ core.JobDelivery   = (*DeliveryAdapter)(nil)
	_ core.JobDequeuer   = (*DequeuerAdapter)(nil)
	_ core.JobWorkerHook = (*jobHookBridge)(nil)
)
