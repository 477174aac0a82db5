package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-payments/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type PaymentEventStore struct {
	db   *bun.DB
	repo repository.Repository[*paymentEventRecord]
	// lookup reads the stored row inside the upsert transaction; nil uses
	// findByEventIDTx.
	lookup func(ctx context.Context, tx bun.Tx, eventID string) (*paymentEventRecord, error)
}

func NewPaymentEventStore(db *bun.DB) (*PaymentEventStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*paymentEventRecord](db, paymentEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment event repository wiring: %w", err)
		}
	}
	return &PaymentEventStore{db: db, repo: repo}, nil
}

// Upsert inserts the first sighting of an event id and patches the stored row
// on every later delivery. A concurrent first insert that loses the unique
// index race is retried as a patch.
func (s *PaymentEventStore) Upsert(ctx context.Context, in core.RecordPaymentEventInput) (core.PaymentEvent, bool, error) {
	if s == nil || s.db == nil {
		return core.PaymentEvent{}, false, fmt.Errorf("sqlstore: payment event store is not configured")
	}
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.PaymentEvent{}, false, err
	}

	event, created, err := s.upsertOnce(ctx, in)
	if err != nil && isUniqueViolation(err) {
		event, created, err = s.upsertOnce(ctx, in)
	}
	if err != nil {
		return core.PaymentEvent{}, false, err
	}
	return event, created, nil
}

func (s *PaymentEventStore) upsertOnce(ctx context.Context, in core.RecordPaymentEventInput) (core.PaymentEvent, bool, error) {
	now := time.Now().UTC()
	var (
		out     core.PaymentEvent
		created bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.lookupTx(ctx, tx, in.EventID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := newPaymentEventRecord(in, now)
			record.ID = uuid.NewString()
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			created = true
			return nil
		}

		existing.patch(in, now)
		if _, updateErr := tx.NewUpdate().
			Model(existing).
			Where("id = ?", existing.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		out = existing.toDomain()
		return nil
	})
	if err != nil {
		return core.PaymentEvent{}, false, err
	}
	return out, created, nil
}

func (s *PaymentEventStore) GetByEventID(ctx context.Context, eventID string) (core.PaymentEvent, error) {
	if s == nil || s.db == nil {
		return core.PaymentEvent{}, fmt.Errorf("sqlstore: payment event store is not configured")
	}
	record := &paymentEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PaymentEvent{}, fmt.Errorf("%w: event id %q", core.ErrPaymentEventNotFound, eventID)
		}
		return core.PaymentEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *PaymentEventStore) List(ctx context.Context, filter core.PaymentEventFilter) (core.PaymentEventPage, error) {
	if s == nil || s.repo == nil {
		return core.PaymentEventPage{}, fmt.Errorf("sqlstore: payment event store is not configured")
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = 25
	}

	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(filter.PerPage, filter.Offset()),
	}
	if eventType := strings.TrimSpace(filter.Type); eventType != "" {
		selectors = append(selectors, repository.SelectBy("event_type", "=", eventType))
	}
	if customerID := strings.TrimSpace(filter.CustomerID); customerID != "" {
		selectors = append(selectors, repository.SelectBy("customer_id", "=", customerID))
	}
	if sessionID := strings.TrimSpace(filter.SessionID); sessionID != "" {
		selectors = append(selectors, repository.SelectBy("session_id", "=", sessionID))
	}

	records, total, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return core.PaymentEventPage{}, err
	}
	items := make([]core.PaymentEvent, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.PaymentEventPage{
		Items:   items,
		Total:   total,
		Page:    filter.Page,
		PerPage: filter.PerPage,
	}, nil
}

func (s *PaymentEventStore) lookupTx(ctx context.Context, tx bun.Tx, eventID string) (*paymentEventRecord, error) {
	if s.lookup != nil {
		return s.lookup(ctx, tx, eventID)
	}
	return s.findByEventIDTx(ctx, tx, eventID)
}

func (s *PaymentEventStore) findByEventIDTx(ctx context.Context, tx bun.Tx, eventID string) (*paymentEventRecord, error) {
	record := &paymentEventRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.event_id = ?", strings.TrimSpace(eventID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(strings.TrimSpace(err.Error()))
	return strings.Contains(message, "unique constraint failed") ||
		strings.Contains(message, "duplicate key value violates unique constraint")
}
