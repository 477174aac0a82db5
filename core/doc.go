// Package core contains the payment domain contracts, entities and the
// orchestration service that records provider events, opens checkout orders
// and cancels them. Adapters depend on this package; core must not depend on
// provider-specific or transport-specific adapters.
package core
