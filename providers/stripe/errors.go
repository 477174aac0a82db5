package stripe

import "errors"

var (
	ErrWebhookSecretMissing = errors.New("providers/stripe: webhook secret is not configured")
	ErrSecretKeyMissing     = errors.New("providers/stripe: api secret key is not configured")
	ErrEventDataMissing     = errors.New("providers/stripe: event data object is required")
)
