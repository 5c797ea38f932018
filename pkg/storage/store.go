package storage

import "errors"

// ErrNotFound is returned by Get when the key has never been set.
var ErrNotFound = errors.New("storage: key not found")

// Persisted record keys. Each durable record lives under its own key.
const (
	KeyManagedState  = "managed_state"
	KeyBridgeConfig  = "bridge_config"
	KeyDebugTimeline = "debug_timeline"
	KeyWSSession     = "ws_session"
)

// KV is the persistent key/value capability the sync core consumes.
// Values are opaque byte records (JSON in practice); Set replaces the
// whole record atomically.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}
