/*
Package storage provides the persistent key/value capability behind
marksync's durable records.

Four records are persisted, each under its own key: the managed sync
state, the bridge configuration, the debug timeline, and the WebSocket
session summary. Values are whole JSON documents replaced atomically
on every Set; the storage layer only owns bytes, all interpretation
lives in the packages that read them.

Two implementations ship:

  - BoltKV: BoltDB-backed, the daemon default. One bucket, one write
    transaction per Set.
  - MemoryKV: map-backed, for tests and ephemeral runs.

Both satisfy the KV interface, so the sync core never depends on a
concrete store.
*/
package storage
