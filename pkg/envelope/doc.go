// Package envelope implements the typed message codec shared by both
// directions of the bridge WebSocket channel.
//
// # Overview
//
// Every frame on the wire is a JSON object with a common header and a
// type discriminator. The header carries:
//
//   - type: one of handshake, handshake_ack, action, ack, error,
//     heartbeat_ping, heartbeat_pong
//   - eventId: unique id for this frame (UUID)
//   - clientId: the sync profile this frame belongs to
//   - occurredAt: ISO-8601 timestamp
//   - schemaVersion: currently "1.0"
//   - idempotencyKey, correlationId: optional in the header, but
//     required by specific variants (action requires idempotencyKey;
//     ack and heartbeat_pong require correlationId)
//
// Each variant is a distinct Go struct embedding Header, so a type
// switch over the Parse result replaces the tag-checking that a
// dynamic codec would do:
//
//	msg, err := envelope.Parse(frame)
//	if err != nil {
//	    // malformed or unknown frame; drop it
//	}
//	switch m := msg.(type) {
//	case *envelope.Ack:
//	    reconcile(m)
//	case *envelope.HeartbeatPing:
//	    pong(m.EventID)
//	}
//
// # Validation
//
// Parse is strict: a frame either satisfies the full schema of its
// declared type or is rejected with ErrInvalid. In particular:
//
//   - required strings must be non-empty after trimming
//   - heartbeatMs must be a JSON integer within [1000, 120000]
//   - action payload must be a JSON object (not null, not an array)
//   - enum fields (ack status, legacyStatus) reject unknown values
//
// Parse never panics on malformed input; callers can feed it frames
// straight off the socket.
//
// # Ack vocabularies
//
// The WebSocket channel uses a five-value ack status (received,
// applied, duplicate, skipped, rejected) while the HTTP batch path
// predates it and reports the finer-grained legacy vocabulary
// (applied, duplicate, skipped_ambiguous, skipped_unmanaged,
// rejected_invalid). FromLegacyStatus folds legacy values onto the
// channel vocabulary; acks emitted by the inbound applier carry both,
// with the legacy value in the legacyStatus field so the queue
// reconciler keeps its single vocabulary.
package envelope
