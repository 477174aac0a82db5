package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-payments/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultDeliveryLease = 30 * time.Second

// WebhookDeliveryStore is the SQL delivery ledger. Every ownership change is a
// conditional update on the previous claim id, so two processes racing for the
// same delivery cannot both win the lease.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	now  func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithClock swaps the store clock used for lease bookkeeping.
func (s *WebhookDeliveryStore) WithClock(now func() time.Time) *WebhookDeliveryStore {
	if s != nil && now != nil {
		s.now = now
	}
	return s
}

func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultDeliveryLease
	}

	record, claimed, err := s.claimOnce(ctx, providerID, deliveryID, payload, lease)
	if err != nil && isUniqueViolation(err) {
		// lost the first insert race, the row exists now
		record, claimed, err = s.claimOnce(ctx, providerID, deliveryID, payload, lease)
	}
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return record, claimed, nil
}

func (s *WebhookDeliveryStore) claimOnce(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	var (
		out     webhooks.DeliveryRecord
		claimed bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		now := s.clock()
		expiresAt := now.Add(lease)

		existing, err := s.findTx(ctx, tx, providerID, deliveryID)
		if err != nil {
			return err
		}
		if existing == nil {
			record := &webhookDeliveryRecord{
				ID:             uuid.NewString(),
				ClaimID:        uuid.NewString(),
				ProviderID:     providerID,
				DeliveryID:     deliveryID,
				Status:         webhooks.DeliveryStatusProcessing,
				Attempts:       1,
				LeaseExpiresAt: &expiresAt,
				Payload:        append([]byte(nil), payload...),
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			out = record.toDomain()
			claimed = true
			return nil
		}

		if existing.Status == webhooks.DeliveryStatusProcessing &&
			existing.LeaseExpiresAt != nil &&
			existing.LeaseExpiresAt.After(now) {
			out = existing.toDomain()
			return nil
		}

		previousClaim := existing.ClaimID
		existing.ClaimID = uuid.NewString()
		existing.Status = webhooks.DeliveryStatusProcessing
		existing.Attempts++
		existing.LeaseExpiresAt = &expiresAt
		existing.NextAttemptAt = nil
		if len(payload) > 0 {
			existing.Payload = append([]byte(nil), payload...)
		}
		existing.UpdatedAt = now

		res, updateErr := tx.NewUpdate().
			Model(existing).
			Column("claim_id", "status", "attempts", "lease_expires_at", "next_attempt_at", "payload", "updated_at").
			Where("id = ?", existing.ID).
			Where("claim_id = ?", previousClaim).
			Exec(ctx)
		if updateErr != nil {
			return updateErr
		}
		if affected, rowsErr := res.RowsAffected(); rowsErr == nil && affected == 0 {
			// another process re-claimed between our read and write
			existing.ClaimID = previousClaim
			out = existing.toDomain()
			return nil
		}
		out = existing.toDomain()
		claimed = true
		return nil
	})
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return out, claimed, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	record := &webhookDeliveryRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", strings.TrimSpace(providerID)).
		Where("?TableAlias.delivery_id = ?", strings.TrimSpace(deliveryID)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return webhooks.DeliveryRecord{}, fmt.Errorf(
				"sqlstore: webhook delivery not found for provider %q delivery %q",
				providerID,
				deliveryID,
			)
		}
		return webhooks.DeliveryRecord{}, err
	}
	return record.toDomain(), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	res, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessed).
		Set("lease_expires_at = NULL").
		Set("next_attempt_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", s.clock()).
		Where("claim_id = ?", claimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res, claimID)
}

func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return fmt.Errorf("sqlstore: claim id is required")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &webhookDeliveryRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("sqlstore: claim %q not found", claimID)
			}
			return err
		}

		status := webhooks.NextFailureStatus(record.Attempts, maxAttempts)
		query := tx.NewUpdate().
			Model((*webhookDeliveryRecord)(nil)).
			Set("status = ?", status).
			Set("lease_expires_at = NULL").
			Set("updated_at = ?", s.clock())
		if status == webhooks.DeliveryStatusRetryReady {
			query = query.Set("next_attempt_at = ?", nextAttemptAt.UTC())
		} else {
			query = query.Set("next_attempt_at = NULL")
		}
		if cause != nil {
			query = query.Set("last_error = ?", cause.Error())
		}
		res, err := query.
			Where("id = ?", record.ID).
			Where("claim_id = ?", claimID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return requireAffected(res, claimID)
	})
}

// ListRetryReady returns retry_ready deliveries whose next attempt is due,
// oldest first.
func (s *WebhookDeliveryStore) ListRetryReady(ctx context.Context, dueBy time.Time, limit int) ([]webhooks.DeliveryRecord, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook delivery store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", webhooks.DeliveryStatusRetryReady),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.next_attempt_at <= ?", dueBy.UTC())
		}),
		repository.OrderBy("next_attempt_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	out := make([]webhooks.DeliveryRecord, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *WebhookDeliveryStore) findTx(
	ctx context.Context,
	tx bun.Tx,
	providerID string,
	deliveryID string,
) (*webhookDeliveryRecord, error) {
	record := &webhookDeliveryRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", providerID).
		Where("?TableAlias.delivery_id = ?", deliveryID).
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

func (s *WebhookDeliveryStore) clock() time.Time {
	if s != nil && s.now != nil {
		return s.now().UTC()
	}
	return time.Now().UTC()
}

func requireAffected(res sql.Result, claimID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: claim %q is no longer processing", claimID)
	}
	return nil
}
