// Package agent is the orchestrator of the sync pipeline. It owns the
// durable managed state behind a single mutex, and every other component
// operates on that record only through the agent's critical sections,
// each of which persists before releasing the lock.
//
// Wiring, outbound: the bookmark broker feeds the change loop, capture
// gates and enqueues, the debouncer (2 s) and the standing flush alarm
// (3 s) trigger delivery rounds, the session sends action envelopes,
// and acks drain the queue through the reconciler, whether they arrive
// over the socket or synchronously from the HTTP fallback.
//
// Wiring, inbound: the session hands validated action envelopes to
// onAction, which dedupes per peer client, applies inside the apply
// epoch plus cooldown bracket, and returns the ack for the session to
// send.
//
// Auto-sync only gates the standing alarms. Capture and manual Sync
// work regardless, so turning auto-sync off pauses traffic without
// losing local intent.
package agent
