// Package capture converts local bookmark mutations into reverse
// events bound for the note bridge.
//
// A handler run is gated twice before it may enqueue anything:
//
//  1. importInProgress: a bulk import is underway; its node storm is
//     not user intent
//  2. the suppression engine: an apply cycle (or its cooldown tail)
//     is mutating bookmarks, so observed changes are echoes
//
// Import markers themselves bypass the gates: they are what flips the
// first one.
//
// The handlers map tree changes onto the four reverse event types:
//
//   - created bookmark → bookmark_created, with the managed key
//     derived from the parent folder and recorded in the index before
//     enqueue, so an immediate follow-up edit coalesces with it
//   - created folder → nothing (folders are born on the note side)
//   - changed → bookmark_updated, or folder_renamed when the id is a
//     managed folder (no url on a rename)
//   - removed bookmark → bookmark_deleted under the last-known key;
//     removed managed folder → nothing, the next apply reconciles it
//   - moved → bookmark_updated carrying the destination parent, plus
//     the link-only position when the move stayed in one folder
//
// "Link-only position" counts bookmarks and ignores folders, because a
// note line position only advances per link.
package capture
