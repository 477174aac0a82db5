// Package stripe adapts Stripe webhooks and hosted Checkout to the payments
// core: signature verification, event classification and session creation.
package stripe
