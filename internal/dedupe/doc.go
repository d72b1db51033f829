// Package dedupe guards user-initiated writes with idempotency keys held for
// a TTL window, so a double-clicked or replayed request does not reach the
// registry twice.
package dedupe
