// Package queue implements the durable reverse queue and its ack
// reconciler, the outbound half of the sync pipeline.
//
// # Lifecycle of an event
//
// A capture handler enqueues a ReverseEvent. Enqueue dedupes against
// the outbound ledger (a handler firing twice for one mutation adds
// one item) and appends to the queue inside the managed state, which
// the caller persists. Transmission is deliberately decoupled:
//
//  1. the agent debounces bursts for 2 seconds, and a standing ~3
//     second alarm guarantees a flush even if the process restarted
//     and lost its timers;
//  2. a flush takes the coalesced view (one event per bookmark, last
//     write wins, capture order preserved) and transmits it over the
//     session, or the HTTP fallback when no socket is available;
//  3. nothing is removed on send. The queue drains exclusively through
//     ack reconciliation, so a transport that goes dark after the
//     request leaves every event in place for the next round.
//
// On transport failure MarkFailures bumps retry counts for exactly the
// items that were in the failed round; the third failure quarantines
// an item (dropped and logged) so one poisoned event cannot wedge the
// queue forever.
//
// # Reconciliation
//
// Reconcile processes a batch ack response against the live queue.
// Terminal statuses drain their event; an applied ack carrying a
// resolvedKey also records bookmarkId → key in the node index, which
// is how a locally created bookmark learns its bridge-side identity.
// Unrecognized statuses (for example a transport that answers
// "received") leave the item queued and are logged.
//
// After a successful round the flush caller runs SweepSuperseded:
// items that coalescing collapsed away (same bookmark, older event)
// are removed only once the round succeeded. Until then they stay
// queued on purpose: if the round had failed, the retry still has
// the full history to coalesce from.
package queue
