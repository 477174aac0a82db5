package core

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	defaultPaymentEventPerPage = 25
	maxPaymentEventPerPage     = 200
)

// RecordPaymentEvent upserts a verified provider event by its event id. The
// first sighting creates the record; later deliveries patch it in place.
func (s *Service) RecordPaymentEvent(
	ctx context.Context,
	in RecordPaymentEventInput,
) (result RecordPaymentEventResult, err error) {
	startedAt := time.Now().UTC()
	ctx, span := s.startSpan(ctx, "record_payment_event")
	fields := map[string]any{
		"event_id":   strings.TrimSpace(in.EventID),
		"event_type": strings.TrimSpace(in.Type),
	}
	defer func() {
		s.finishSpan(span, err, fields)
		s.observeOperation(ctx, startedAt, "record_payment_event", err, fields)
	}()

	if err = s.requirePaymentEventStore(); err != nil {
		return RecordPaymentEventResult{}, err
	}
	in = in.Normalize()
	if validateErr := in.Validate(); validateErr != nil {
		err = badInputError(validateErr.Error(), map[string]any{"event_id": in.EventID})
		return RecordPaymentEventResult{}, err
	}

	event, created, upsertErr := s.paymentEventStore.Upsert(ctx, in)
	if upsertErr != nil {
		err = s.mapError(upsertErr)
		return RecordPaymentEventResult{}, err
	}
	fields["created"] = created
	fields["deliveries"] = event.Deliveries

	if in.Type == EventTypeCheckoutSessionCompleted {
		if orderID := in.OrderID(); orderID != "" {
			fields["order_id"] = orderID
			if markErr := s.markOrderPaid(ctx, orderID); markErr != nil {
				err = s.mapError(markErr)
				return RecordPaymentEventResult{}, err
			}
		}
	}

	return RecordPaymentEventResult{Event: event, Created: created}, nil
}

func (s *Service) markOrderPaid(ctx context.Context, orderID string) error {
	if s.orderStore == nil {
		return nil
	}
	order, err := s.orderStore.Get(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logWarn(ctx, "checkout completed for unknown order", map[string]any{"order_id": orderID})
			return nil
		}
		return err
	}
	if order.Status == OrderStatusPaid {
		return nil
	}
	if _, err := s.orderStore.UpdateStatus(ctx, orderID, OrderStatusPaid); err != nil {
		return err
	}
	return nil
}

func (s *Service) GetPaymentEvent(ctx context.Context, eventID string) (event PaymentEvent, err error) {
	if err = s.requirePaymentEventStore(); err != nil {
		return PaymentEvent{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return PaymentEvent{}, badInputError("core: event id is required", nil)
	}
	event, err = s.paymentEventStore.GetByEventID(ctx, eventID)
	if err != nil {
		return PaymentEvent{}, s.mapError(err)
	}
	return event, nil
}

func (s *Service) ListPaymentEvents(ctx context.Context, filter PaymentEventFilter) (PaymentEventPage, error) {
	if err := s.requirePaymentEventStore(); err != nil {
		return PaymentEventPage{}, err
	}
	filter = normalizePaymentEventFilter(filter)
	page, err := s.paymentEventStore.List(ctx, filter)
	if err != nil {
		return PaymentEventPage{}, s.mapError(err)
	}
	page.Page = filter.Page
	page.PerPage = filter.PerPage
	return page, nil
}

func normalizePaymentEventFilter(filter PaymentEventFilter) PaymentEventFilter {
	filter.Type = strings.TrimSpace(strings.ToLower(filter.Type))
	filter.CustomerID = strings.TrimSpace(filter.CustomerID)
	filter.SessionID = strings.TrimSpace(filter.SessionID)
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PerPage <= 0 {
		filter.PerPage = defaultPaymentEventPerPage
	}
	if filter.PerPage > maxPaymentEventPerPage {
		filter.PerPage = maxPaymentEventPerPage
	}
	return filter
}

// Offset returns the zero based row offset for the filter page.
func (f PaymentEventFilter) Offset() int {
	if f.Page <= 1 || f.PerPage <= 0 {
		return 0
	}
	return (f.Page - 1) * f.PerPage
}
