// Package state owns the durable records: the managed state (node
// index, reverse queue, suppression, dedupe ledger), the bridge
// configuration, the session summary, and the debug timeline, each
// under its own storage key, serialized as JSON.
//
// Load is deliberately forgiving: whatever bytes come back (nothing,
// null, a scalar, an array, a previous schema) migrate into a fully
// defaulted record. Recognized fields are preserved, missing ones get
// defaults, legacy cooldown strings become epoch-ms, and queue items
// are never dropped silently. The pipeline must come up healthy on any
// stored history.
package state
