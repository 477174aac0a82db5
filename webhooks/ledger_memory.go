package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryDeliveryLedger is an in-process DeliveryLedger with the same lease
// semantics as the SQL store.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	now     func() time.Time
	records map[string]*DeliveryRecord
	claims  map[string]string
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		now:     func() time.Time { return time.Now().UTC() },
		records: map[string]*DeliveryRecord{},
		claims:  map[string]string{},
	}
}

// WithClock swaps the ledger clock, mostly for lease expiry in tests.
func (l *MemoryDeliveryLedger) WithClock(now func() time.Time) *MemoryDeliveryLedger {
	if l != nil && now != nil {
		l.mu.Lock()
		l.now = now
		l.mu.Unlock()
	}
	return l
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: delivery ledger is not configured")
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, fmt.Errorf("webhooks: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	expiresAt := now.Add(lease)
	key := deliveryKey(providerID, deliveryID)
	record, ok := l.records[key]
	if !ok {
		record = &DeliveryRecord{
			ID:             uuid.NewString(),
			ClaimID:        uuid.NewString(),
			ProviderID:     providerID,
			DeliveryID:     deliveryID,
			Status:         DeliveryStatusProcessing,
			Attempts:       1,
			LeaseExpiresAt: &expiresAt,
			Payload:        append([]byte(nil), payload...),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		l.records[key] = record
		l.claims[record.ClaimID] = key
		return cloneDeliveryRecord(record), true, nil
	}

	if record.Status == DeliveryStatusProcessing && record.LeaseExpiresAt != nil && record.LeaseExpiresAt.After(now) {
		return cloneDeliveryRecord(record), false, nil
	}

	delete(l.claims, record.ClaimID)
	record.ClaimID = uuid.NewString()
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.LeaseExpiresAt = &expiresAt
	record.NextAttemptAt = nil
	if len(payload) > 0 {
		record.Payload = append([]byte(nil), payload...)
	}
	record.UpdatedAt = now
	l.claims[record.ClaimID] = key
	return cloneDeliveryRecord(record), true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[deliveryKey(strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))]
	if !ok {
		return DeliveryRecord{}, fmt.Errorf("webhooks: delivery not found for provider %q delivery %q", providerID, deliveryID)
	}
	return cloneDeliveryRecord(record), nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.Status = DeliveryStatusProcessed
	record.LeaseExpiresAt = nil
	record.NextAttemptAt = nil
	record.LastError = ""
	record.UpdatedAt = l.now().UTC()
	return nil
}

func (l *MemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	if l == nil {
		return fmt.Errorf("webhooks: delivery ledger is not configured")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.claimedLocked(claimID)
	if err != nil {
		return err
	}
	record.Status = nextFailureStatus(record.Attempts, maxAttempts)
	record.LeaseExpiresAt = nil
	if record.Status == DeliveryStatusRetryReady {
		next := nextAttemptAt.UTC()
		record.NextAttemptAt = &next
	} else {
		record.NextAttemptAt = nil
	}
	if cause != nil {
		record.LastError = cause.Error()
	}
	record.UpdatedAt = l.now().UTC()
	return nil
}

func (l *MemoryDeliveryLedger) claimedLocked(claimID string) (*DeliveryRecord, error) {
	claimID = strings.TrimSpace(claimID)
	key, ok := l.claims[claimID]
	if claimID == "" || !ok {
		return nil, fmt.Errorf("webhooks: claim %q not found", claimID)
	}
	record, ok := l.records[key]
	if !ok || record.ClaimID != claimID {
		return nil, fmt.Errorf("webhooks: claim %q not found", claimID)
	}
	if record.Status != DeliveryStatusProcessing {
		return nil, fmt.Errorf("webhooks: claim %q is no longer processing", claimID)
	}
	return record, nil
}

func nextFailureStatus(attempts int, maxAttempts int) string {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if attempts >= maxAttempts {
		return DeliveryStatusDead
	}
	return DeliveryStatusRetryReady
}

// NextFailureStatus reports the state a failed delivery moves to.
func NextFailureStatus(attempts int, maxAttempts int) string {
	return nextFailureStatus(attempts, maxAttempts)
}

func deliveryKey(providerID string, deliveryID string) string {
	return providerID + "\x00" + deliveryID
}

func cloneDeliveryRecord(record *DeliveryRecord) DeliveryRecord {
	if record == nil {
		return DeliveryRecord{}
	}
	out := *record
	out.Payload = append([]byte(nil), record.Payload...)
	if record.LeaseExpiresAt != nil {
		value := *record.LeaseExpiresAt
		out.LeaseExpiresAt = &value
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		out.NextAttemptAt = &value
	}
	return out
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
