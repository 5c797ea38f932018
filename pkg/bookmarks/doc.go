// Package bookmarks owns the local bookmark tree the sync agent
// manages.
//
// # Model
//
// The tree is ordinary browser shape: a single root folder, folders
// holding ordered children, leaf nodes carrying a URL. A node with an
// empty URL is a folder. Sibling order is explicit (each folder stores
// its child ids in order) so a node's index is stable across restarts,
// which matters because derived bookmark keys embed the index.
//
// Two Store implementations exist:
//
//   - MemTree, an in-memory tree for tests and the --memory daemon
//     mode
//   - BoltTree, the durable tree in bookmarks.db
//
// # Change notifications
//
// Every committed mutation publishes a Change on the store's Broker:
// node.created, node.changed, node.removed, node.moved. Removals carry
// the last known snapshot of the node, which the capture handlers need
// because the node itself is already gone. Bulk imports are bracketed
// by import.began and import.ended markers published by the importer.
//
// The broker fans out to subscriber channels and drops changes for
// subscribers that cannot keep up, so a stuck consumer can never block
// a bookmark mutation.
package bookmarks
