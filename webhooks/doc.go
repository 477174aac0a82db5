// Package webhooks contains the provider-agnostic ingestion pipeline:
// verification, delivery id extraction, ledger claims, decoding and recording.
//
// Delivery processing is driven by a claim lifecycle:
// processing -> processed|retry_ready|dead.
// A delivery in processing under a live lease is never run twice; every
// other state is re-claimed when the provider redelivers or the replay
// worker picks it up, so retries patch the recorded event in place.
package webhooks
