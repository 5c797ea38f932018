// Package session manages the WebSocket connection to the bridge:
// dial, handshake, negotiated heartbeat with a local watchdog,
// reconnect with exponential backoff, and an in-memory outbound queue
// for frames that arrive while the socket is down.
//
// The manager is deliberately dumb about the sync pipeline: inbound
// acks and actions are handed to the agent through Hooks, and the
// reverse queue is only ever read (FlushReverse), never drained.
// Drainage is the reconciler's job, driven by acks.
//
// Two mechanisms bring a dead session back: the in-process backoff
// timer armed on every disconnect, and the agent's standing ensure
// alarm, which survives the process pauses that kill timers.
package session
