package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

const orderIDPlaceholder = "{ORDER_ID}"

// CreateCheckout opens a pending order for an authenticated user and starts a
// hosted checkout session for it.
func (s *Service) CreateCheckout(ctx context.Context, req CreateCheckoutRequest) (session CheckoutSession, err error) {
	startedAt := time.Now().UTC()
	ctx, span := s.startSpan(ctx, "create_checkout")
	fields := map[string]any{
		"price_id": strings.TrimSpace(req.PriceID),
		"quantity": req.Quantity,
	}
	defer func() {
		s.finishSpan(span, err, fields)
		s.observeOperation(ctx, startedAt, "create_checkout", err, fields)
	}()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		err = unauthorizedError("core: authenticated user id is required", nil)
		return CheckoutSession{}, err
	}
	fields["user_id"] = userID

	prefix := s.config.Checkout.PricePrefix
	if prefix == "" {
		prefix = DefaultCheckoutPricePrefix
	}
	priceID := strings.TrimSpace(req.PriceID)
	if priceID == "" || !strings.HasPrefix(priceID, prefix) || priceID == prefix {
		err = badInputError(
			fmt.Sprintf("core: price id must start with %q", prefix),
			map[string]any{"price_id": priceID},
		)
		return CheckoutSession{}, err
	}

	quantity := req.Quantity
	if quantity == 0 {
		quantity = 1
	}
	if quantity < 1 || quantity > MaxCheckoutQuantity {
		err = badInputError(
			fmt.Sprintf("core: quantity must be between 1 and %d", MaxCheckoutQuantity),
			map[string]any{"quantity": quantity},
		)
		return CheckoutSession{}, err
	}
	fields["quantity"] = quantity

	if err = s.requireOrderStore(); err != nil {
		return CheckoutSession{}, err
	}
	if s.checkoutGateway == nil {
		err = s.mapError(fmt.Errorf("core: checkout gateway is not configured"))
		return CheckoutSession{}, err
	}

	order, createErr := s.orderStore.Create(ctx, CreateOrderInput{
		UserID:   userID,
		PriceID:  priceID,
		Quantity: quantity,
	})
	if createErr != nil {
		err = s.mapError(createErr)
		return CheckoutSession{}, err
	}
	fields["order_id"] = order.ID

	created, gatewayErr := s.checkoutGateway.CreateSession(ctx, CheckoutSessionRequest{
		OrderID:             order.ID,
		UserID:              userID,
		PriceID:             priceID,
		Quantity:            quantity,
		Mode:                s.config.Checkout.Mode,
		SuccessURL:          s.config.Checkout.SuccessURL,
		CancelURL:           resolveCancelURL(s.config.Checkout.CancelURL, order.ID),
		AllowPromotionCodes: s.config.Checkout.AllowPromotionCodes,
	})
	if gatewayErr != nil {
		err = providerError(gatewayErr, "core: checkout session creation failed", map[string]any{
			"order_id": order.ID,
		})
		return CheckoutSession{}, err
	}
	if strings.TrimSpace(created.URL) == "" {
		err = providerError(nil, "core: checkout session has no redirect url", map[string]any{
			"order_id":   order.ID,
			"session_id": created.SessionID,
		})
		return CheckoutSession{}, err
	}
	fields["session_id"] = created.SessionID

	if _, attachErr := s.orderStore.AttachCheckoutSession(ctx, order.ID, created.SessionID, created.URL); attachErr != nil {
		err = s.mapError(attachErr)
		return CheckoutSession{}, err
	}

	return CheckoutSession{
		OrderID:   order.ID,
		SessionID: created.SessionID,
		URL:       created.URL,
	}, nil
}

// CancelOrder marks an abandoned checkout order as cancelled. Paid orders are
// returned unchanged.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (order Order, err error) {
	startedAt := time.Now().UTC()
	ctx, span := s.startSpan(ctx, "cancel_order")
	orderID = strings.TrimSpace(orderID)
	fields := map[string]any{"order_id": orderID}
	defer func() {
		s.finishSpan(span, err, fields)
		s.observeOperation(ctx, startedAt, "cancel_order", err, fields)
	}()

	if orderID == "" {
		err = badInputError("core: order id is required", nil)
		return Order{}, err
	}
	if err = s.requireOrderStore(); err != nil {
		return Order{}, err
	}

	existing, getErr := s.orderStore.Get(ctx, orderID)
	if getErr != nil {
		err = s.mapError(getErr)
		return Order{}, err
	}
	fields["status"] = string(existing.Status)
	switch existing.Status {
	case OrderStatusCancelled:
		return existing, nil
	case OrderStatusPaid:
		s.logWarn(ctx, "cancel_order skipped for paid order", fields)
		return existing, nil
	}

	order, err = s.orderStore.UpdateStatus(ctx, orderID, OrderStatusCancelled)
	if err != nil {
		err = s.mapError(err)
		return Order{}, err
	}
	fields["status"] = string(order.Status)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if err := s.requireOrderStore(); err != nil {
		return Order{}, err
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, badInputError("core: order id is required", nil)
	}
	order, err := s.orderStore.Get(ctx, orderID)
	if err != nil {
		return Order{}, s.mapError(err)
	}
	return order, nil
}

// resolveCancelURL substitutes the order placeholder, or appends the order id
// as the orderId query parameter when the template has none.
func resolveCancelURL(template string, orderID string) string {
	template = strings.TrimSpace(template)
	if template == "" {
		return ""
	}
	if strings.Contains(template, orderIDPlaceholder) {
		return strings.ReplaceAll(template, orderIDPlaceholder, url.QueryEscape(orderID))
	}
	parsed, err := url.Parse(template)
	if err != nil {
		return template
	}
	query := parsed.Query()
	query.Set("orderId", orderID)
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
