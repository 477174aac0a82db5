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

type OrderStore struct {
	db   *bun.DB
	repo repository.Repository[*orderRecord]
	// readTx loads the row UpdateStatus transitions from; nil uses findTx.
	readTx func(ctx context.Context, tx bun.Tx, id string) (*orderRecord, error)
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*orderRecord](db, orderHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid order repository wiring: %w", err)
		}
	}
	return &OrderStore{db: db, repo: repo}, nil
}

func (s *OrderStore) Create(ctx context.Context, in core.CreateOrderInput) (core.Order, error) {
	if s == nil || s.repo == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	if strings.TrimSpace(in.UserID) == "" || strings.TrimSpace(in.PriceID) == "" {
		return core.Order{}, fmt.Errorf("sqlstore: user id and price id are required")
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}
	record := newOrderRecord(in, time.Now().UTC())
	record.ID = uuid.NewString()

	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.Order{}, err
	}
	return created.toDomain(), nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	record, err := s.find(ctx, id)
	if err != nil {
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *OrderStore) AttachCheckoutSession(ctx context.Context, id string, sessionID string, url string) (core.Order, error) {
	if s == nil || s.repo == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	record, err := s.find(ctx, id)
	if err != nil {
		return core.Order{}, err
	}
	record.CheckoutSessionID = strings.TrimSpace(sessionID)
	record.CheckoutURL = strings.TrimSpace(url)
	record.UpdatedAt = time.Now().UTC()
	updated, err := s.repo.Update(ctx, record, repository.UpdateByID(record.ID))
	if err != nil {
		return core.Order{}, err
	}
	return updated.toDomain(), nil
}

// UpdateStatus moves the order along the allowed status transitions. The
// write is conditional on the status it read; if another writer moved the row
// first, the order is returned when it already holds status and
// ErrOrderStatusConflict is returned otherwise.
func (s *OrderStore) UpdateStatus(ctx context.Context, id string, status core.OrderStatus) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, fmt.Errorf("sqlstore: order store is not configured")
	}
	var out core.Order
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.read(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := core.ValidateOrderStatusTransition(core.OrderStatus(record.Status), status); err != nil {
			return err
		}
		if record.Status == string(status) {
			out = record.toDomain()
			return nil
		}
		now := time.Now().UTC()
		res, err := tx.NewUpdate().
			Model((*orderRecord)(nil)).
			Set("status = ?", string(status)).
			Set("updated_at = ?", now).
			Where("id = ?", record.ID).
			Where("status = ?", record.Status).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			current, err := s.findTx(ctx, tx, record.ID)
			if err != nil {
				return err
			}
			if current.Status != string(status) {
				return fmt.Errorf("%w: order %q is %s, wanted %s from %s",
					core.ErrOrderStatusConflict, record.ID, current.Status, status, record.Status)
			}
			out = current.toDomain()
			return nil
		}
		record.Status = string(status)
		record.UpdatedAt = now
		out = record.toDomain()
		return nil
	})
	if err != nil {
		return core.Order{}, err
	}
	return out, nil
}

func (s *OrderStore) read(ctx context.Context, tx bun.Tx, id string) (*orderRecord, error) {
	if s.readTx != nil {
		return s.readTx(ctx, tx, id)
	}
	return s.findTx(ctx, tx, id)
}

func (s *OrderStore) findTx(ctx context.Context, tx bun.Tx, id string) (*orderRecord, error) {
	record := &orderRecord{}
	if err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %q", core.ErrOrderNotFound, id)
		}
		return nil, err
	}
	return record, nil
}

func (s *OrderStore) find(ctx context.Context, id string) (*orderRecord, error) {
	record := &orderRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: id %q", core.ErrOrderNotFound, id)
		}
		return nil, err
	}
	return record, nil
}
