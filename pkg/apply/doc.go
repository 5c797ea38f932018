// Package apply executes inbound bridge actions against the local
// bookmark tree.
//
// # Operations
//
// The bridge drives six ops: bookmark_created, bookmark_updated,
// bookmark_deleted, folder_renamed, bookmark_moved, and snapshot.
// Every other op is rejected as unsupported.
//
// Node references resolve in a fixed order: explicit bookmarkId in
// the payload, then managedKey through the state maps, then the action
// target as either a managed key or a raw local id. Outcomes use the
// legacy ack vocabulary:
//
//   - applied: the mutation took; creates also report the resolvedKey
//     the bridge should file the new node under
//   - rejected_invalid: a required field is missing (missing_* reason)
//     or the op is unknown (unsupported_action)
//   - skipped_ambiguous: the tree refused the mutation; the error text
//     travels as the reason
//
// The snapshot op reconciles the whole managed subtree to a desired
// tree in one sweep and rebuilds the state maps from what it actually
// applied; the idToKey reverse map is always rebuilt from scratch
// there.
//
// # Echo suppression
//
// Callers run applies inside Bracket, which opens the apply epoch
// before the work and arms the cooldown tail after it, so the observer
// events the apply provokes never re-enter the reverse queue.
package apply
