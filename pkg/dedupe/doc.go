// Package dedupe maintains the per-client idempotency ledger.
//
// The ledger is a nested map clientId → (key → epochMs) persisted as
// part of the managed state, so duplicate suppression survives agent
// restarts. Two kinds of entries share it:
//
//   - outbound reverse-event ids, recorded under the synthetic client
//     id "outbound" with keys of the form "outbound:<eventId>", so a
//     capture handler firing twice for one browser event enqueues once
//   - inbound action idempotency keys, recorded under the real peer
//     client id, so each connected profile gets its own replay window
//
// Separate buckets mean two peers that happen to reuse an idempotency
// key do not suppress each other.
//
// Entries expire after five minutes. Eviction happens lazily on the
// bucket being checked; there is no background sweeper. A duplicate
// hit does not refresh the entry's timestamp, so repeated replays age
// out on schedule.
package dedupe
