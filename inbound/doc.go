// Package inbound is the HTTP surface of the payments service.
//
// The webhook route answers in plain text so the provider dashboard shows the
// failure reason verbatim. Checkout answers in JSON. Order cancellation is a
// browser redirect target and answers with 303 See Other.
package inbound
