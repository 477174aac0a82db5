package webhooks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goliatone/go-payments/core"
)

// ProviderWebhookTemplate bundles what a provider needs to feed the
// processor: signature verification, delivery id extraction and decoding.
type ProviderWebhookTemplate struct {
	ProviderID string
	Verifier   Verifier
	Extractor  DeliveryIDExtractor
	Decoder    Decoder
}

// JSONFieldDeliveryIDExtractor reads a top level string field of the JSON body.
func JSONFieldDeliveryIDExtractor(field string) DeliveryIDExtractor {
	field = strings.TrimSpace(field)
	return func(req core.InboundRequest) (string, error) {
		if len(req.Body) == 0 {
			return "", fmt.Errorf("webhooks: request body is required to read %q", field)
		}
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(req.Body, &envelope); err != nil {
			return "", fmt.Errorf("webhooks: invalid json payload: %w", err)
		}
		raw, ok := envelope[field]
		if !ok {
			return "", fmt.Errorf("webhooks: %q is required for dedupe", field)
		}
		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			return "", fmt.Errorf("webhooks: %q must be a string", field)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return "", fmt.Errorf("webhooks: %q is required for dedupe", field)
		}
		return value, nil
	}
}

func ChainDeliveryIDExtractors(extractors ...DeliveryIDExtractor) DeliveryIDExtractor {
	list := append([]DeliveryIDExtractor(nil), extractors...)
	return func(req core.InboundRequest) (string, error) {
		var lastErr error
		for _, extractor := range list {
			if extractor == nil {
				continue
			}
			deliveryID, err := extractor(req)
			if err == nil && strings.TrimSpace(deliveryID) != "" {
				return strings.TrimSpace(deliveryID), nil
			}
			if err != nil {
				lastErr = err
			}
		}
		if lastErr != nil {
			return "", lastErr
		}
		return "", fmt.Errorf("webhooks: delivery id is required for dedupe")
	}
}
