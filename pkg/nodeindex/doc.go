// Package nodeindex answers "is this local node one of ours, and what
// is it called?" for the capture handlers.
//
// The managed state keeps two forward maps, managed key → local id for
// folders and for bookmarks, plus a lazily-populated reverse map
// idToKey. Managed keys come in three flavors:
//
//   - "__root__" for the reserved root folder
//   - "folder:<path>" and "note:<path>" for folders mirroring the
//     note-side hierarchy
//   - derived bookmark keys such as "Projects/Alpha.md|0" (note path
//     plus position) or "bookmark:<id>" as a last resort
//
// Lookups consult the reverse map first; a miss scans the forward maps
// once and memoizes the hit, so steady-state lookups are O(1) even
// though the reverse map is rebuilt from scratch on every full apply.
//
// DeriveBookmarkKey is the outbound half of key agreement: when a user
// creates a bookmark inside a managed folder, the derived key names
// the note line that bookmark will occupy, and the bridge uses the
// same derivation when it applies the event on its side.
package nodeindex
