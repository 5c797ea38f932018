/*
Package types defines the shared records of the marksync pipeline: the
durable state model, the reverse-event queue shapes, the bridge
configuration surface, and the ack vocabularies.

# State Model

ManagedState is the single durable record every component mutates:

	┌──────────────── ManagedState ────────────────┐
	│ folders     managed folder key → local id     │
	│ bookmarks   managed bookmark key → local id   │
	│ idToKey     local id → managed key (inverse)  │
	│ queue       []QueueItem (reverse queue)       │
	│ suppression apply-epoch + cooldown window     │
	│ dedupe      clientId → key → epoch-ms         │
	│ importInProgress                              │
	└───────────────────────────────────────────────┘

Invariant: for every bookmarks[k]=id, idToKey[id]=k (staleness during
an apply cycle is repaired by the apply itself). The reserved root
entry ("__root__") always resolves to an existing folder.

# Managed Keys

Managed keys carry a namespace prefix describing what they point to on
the bridge side:

	note:<path>      a note whose links mirror bookmarks
	folder:<path>    a plain folder
	bookmark:<id>    fallback namespace for unmapped bookmarks

Keys derived before the first ack round-trip use the exact
concatenation "<path>|<index>" for note-backed slots so the bridge can
recognize which link position was touched.

# Ack Vocabularies

The WebSocket protocol speaks {received, applied, duplicate, skipped,
rejected}; the legacy HTTP protocol speaks {applied, duplicate,
skipped_ambiguous, skipped_unmanaged, rejected_invalid}. The envelope
package maps between the two; the reconciler consumes the legacy form.

Timestamps in persisted state and on the wire are ISO-8601 strings
(NowISO); the suppression cooldown deadline is epoch milliseconds.
*/
package types
