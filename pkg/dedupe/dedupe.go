package dedupe

import (
	"time"

	"github.com/notebridge/marksync/pkg/types"
)

// TTL is how long an idempotency key shields against replays. Entries
// older than this are evicted from a client bucket before each check.
const TTL = 5 * time.Minute

// OutboundKey builds the ledger key used for locally-generated reverse
// events. Outbound keys live in their own synthetic client bucket so
// they never collide with inbound idempotency keys.
func OutboundKey(eventID string) string {
	return "outbound:" + eventID
}

// RecordAndCheck reports whether key is new for clientID and, if so,
// records it at the current time. It returns false for a duplicate and
// leaves the existing entry untouched, so a replay storm cannot keep a
// key alive past its TTL.
func RecordAndCheck(ledger types.DedupeLedger, clientID, key string) bool {
	return RecordAndCheckAt(ledger, clientID, key, types.EpochMs())
}

// RecordAndCheckAt is RecordAndCheck with an explicit clock, used by
// tests and by replays of persisted ledgers.
func RecordAndCheckAt(ledger types.DedupeLedger, clientID, key string, nowMs int64) bool {
	if ledger == nil {
		return true
	}

	bucket := ledger[clientID]
	evict(bucket, nowMs)
	if len(bucket) == 0 {
		delete(ledger, clientID)
		bucket = nil
	}

	if _, seen := bucket[key]; seen {
		return false
	}

	if bucket == nil {
		bucket = make(map[string]int64)
		ledger[clientID] = bucket
	}
	bucket[key] = nowMs
	return true
}

func evict(bucket map[string]int64, nowMs int64) {
	ttlMs := TTL.Milliseconds()
	for key, seenMs := range bucket {
		if nowMs-seenMs > ttlMs {
			delete(bucket, key)
		}
	}
}
