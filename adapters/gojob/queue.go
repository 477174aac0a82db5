package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-job/queue"
	sqlqueue "github.com/goliatone/go-job/queue/adapters/postgres"
	"github.com/goliatone/go-payments/core"
)

const (
	ReplayQueueTable       = "payments_replay_jobs"
	ReplayQueueDLQTable    = "payments_replay_jobs_dlq"
	ReplayQueueStatusTable = "payments_replay_job_status"
)

type SQLQueueConfig struct {
	// Driver is the database/sql driver name the db was opened with.
	Driver            string
	VisibilityTimeout time.Duration
	Policy            RetryPolicy
	Now               func() time.Time
}

// SQLQueue is a durable replay queue backed by go-job's SQL storage. Jobs
// survive restarts and are leased with a visibility timeout, so a worker that
// dies mid replay releases its job back to the queue.
type SQLQueue struct {
	storage  *sqlqueue.Storage
	adapter  *sqlqueue.Adapter
	enqueuer *EnqueuerAdapter
	dequeuer *DequeuerAdapter
}

// NewSQLQueue builds the queue on db and creates its tables.
func NewSQLQueue(ctx context.Context, db *sql.DB, cfg SQLQueueConfig) (*SQLQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: sql queue requires a database")
	}
	opts := []sqlqueue.Option{
		sqlqueue.WithTableName(ReplayQueueTable),
		sqlqueue.WithDLQTableName(ReplayQueueDLQTable),
		sqlqueue.WithStatusTableName(ReplayQueueStatusTable),
	}
	switch strings.TrimSpace(strings.ToLower(cfg.Driver)) {
	case "postgres", "pgx":
		opts = append(opts, sqlqueue.WithDialect(sqlqueue.DialectPostgres))
	case "sqlite3", "sqlite":
		opts = append(opts,
			sqlqueue.WithDialect(sqlqueue.DialectSQLite),
			sqlqueue.WithUseSkipLocked(false),
		)
	default:
		return nil, fmt.Errorf("gojob: unsupported sql queue driver %q", cfg.Driver)
	}
	if cfg.VisibilityTimeout > 0 {
		opts = append(opts, sqlqueue.WithVisibilityTimeout(cfg.VisibilityTimeout))
	}
	if cfg.Now != nil {
		opts = append(opts, sqlqueue.WithClock(cfg.Now))
	}

	storage := sqlqueue.NewStorage(db, opts...)
	if err := storage.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("gojob: migrate sql queue: %w", err)
	}
	adapter := sqlqueue.NewAdapter(storage)
	enqueuer := NewEnqueuerAdapter(adapter)
	if cfg.Now != nil {
		enqueuer.now = cfg.Now
	}
	return &SQLQueue{
		storage:  storage,
		adapter:  adapter,
		enqueuer: enqueuer,
		dequeuer: NewDequeuerAdapter(adapter, cfg.Policy),
	}, nil
}

func (q *SQLQueue) Enqueue(ctx context.Context, msg *core.JobExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: sql queue is not configured")
	}
	return q.enqueuer.Enqueue(ctx, msg)
}

// Dequeue leases the next due job. It returns a nil delivery when nothing is
// due; callers poll.
func (q *SQLQueue) Dequeue(ctx context.Context) (core.JobDelivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: sql queue is not configured")
	}
	return q.dequeuer.Dequeue(ctx)
}

// Source exposes the go-job dequeuer for workers built with NewReplayWorker.
func (q *SQLQueue) Source() queue.Dequeuer {
	if q == nil {
		return nil
	}
	return q.adapter
}

var (
	_ core.JobEnqueuer = (*SQLQueue)(nil)
	_ core.JobDequeuer = (*SQLQueue)(nil)
)
