package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-payments/core"
)

const defaultQueueBuffer = 256

// MemoryJobQueue is an in-process job queue for single-node deployments and
// tests. Messages with the drop dedup policy are ignored while an earlier
// message with the same idempotency key is still pending.
type MemoryJobQueue struct {
	ch chan *core.JobExecutionMessage

	mu          sync.Mutex
	pending     map[string]struct{}
	deadLetters []*core.JobExecutionMessage
}

func NewMemoryJobQueue(buffer int) *MemoryJobQueue {
	if buffer <= 0 {
		buffer = defaultQueueBuffer
	}
	return &MemoryJobQueue{
		ch:      make(chan *core.JobExecutionMessage, buffer),
		pending: map[string]struct{}{},
	}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("webhooks: job queue is not configured")
	}
	if msg == nil {
		return fmt.Errorf("webhooks: execution message is required")
	}
	key := strings.TrimSpace(msg.IdempotencyKey)
	if key != "" && strings.EqualFold(strings.TrimSpace(msg.DedupPolicy), ReplayDedupDrop) {
		q.mu.Lock()
		_, exists := q.pending[key]
		if !exists {
			q.pending[key] = struct{}{}
		}
		q.mu.Unlock()
		if exists {
			return nil
		}
	}
	select {
	case q.ch <- cloneJobMessage(msg):
		return nil
	case <-ctx.Done():
		q.release(key)
		return ctx.Err()
	default:
		q.release(key)
		return fmt.Errorf("webhooks: job queue is full")
	}
}

func (q *MemoryJobQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("webhooks: job queue is not configured")
	}
	select {
	case msg := <-q.ch:
		return &memoryJobDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *MemoryJobQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *MemoryJobQueue) DeadLetters() []*core.JobExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*core.JobExecutionMessage, 0, len(q.deadLetters))
	for _, msg := range q.deadLetters {
		out = append(out, cloneJobMessage(msg))
	}
	return out
}

func (q *MemoryJobQueue) requeue(msg *core.JobExecutionMessage, delay time.Duration) {
	push := func() {
		select {
		case q.ch <- msg:
		default:
			q.deadLetter(msg)
		}
	}
	if delay <= 0 {
		push()
		return
	}
	time.AfterFunc(delay, push)
}

func (q *MemoryJobQueue) deadLetter(msg *core.JobExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, msg)
	delete(q.pending, strings.TrimSpace(msg.IdempotencyKey))
}

func (q *MemoryJobQueue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

type memoryJobDelivery struct {
	queue *MemoryJobQueue
	msg   *core.JobExecutionMessage
	once  sync.Once
}

func (d *memoryJobDelivery) Message() *core.JobExecutionMessage {
	return cloneJobMessage(d.msg)
}

func (d *memoryJobDelivery) Ack(context.Context) error {
	d.once.Do(func() {
		d.queue.release(strings.TrimSpace(d.msg.IdempotencyKey))
	})
	return nil
}

func (d *memoryJobDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.once.Do(func() {
		if opts.DeadLetter || !opts.Requeue {
			d.queue.deadLetter(d.msg)
			return
		}
		d.queue.requeue(d.msg, opts.Delay)
	})
	return nil
}

func cloneJobMessage(msg *core.JobExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := *msg
	if msg.Parameters != nil {
		out.Parameters = make(map[string]any, len(msg.Parameters))
		for key, value := range msg.Parameters {
			out.Parameters[key] = value
		}
	}
	return &out
}

var (
	_ core.JobEnqueuer = (*MemoryJobQueue)(nil)
	_ core.JobDequeuer = (*MemoryJobQueue)(nil)
	_ core.JobDelivery = (*memoryJobDelivery)(nil)
)
