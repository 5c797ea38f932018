package dedupe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/types"
)

func TestRecordAndCheckRejectsReplay(t *testing.T) {
	ledger := types.DedupeLedger{}

	assert.True(t, RecordAndCheck(ledger, "c1", "k1"))
	assert.False(t, RecordAndCheck(ledger, "c1", "k1"))
	assert.True(t, RecordAndCheck(ledger, "c1", "k2"))
}

func TestRecordAndCheckBucketsAreIndependent(t *testing.T) {
	ledger := types.DedupeLedger{}

	assert.True(t, RecordAndCheck(ledger, "c1", "k1"))
	assert.True(t, RecordAndCheck(ledger, "c2", "k1"))
	assert.True(t, RecordAndCheck(ledger, types.OutboundDedupeClient, OutboundKey("k1")))
}

func TestRecordAndCheckEvictsExpiredEntries(t *testing.T) {
	ledger := types.DedupeLedger{}
	start := int64(1_000_000)
	ttlMs := TTL.Milliseconds()

	require.True(t, RecordAndCheckAt(ledger, "c1", "k1", start))

	// Within the TTL the key is still a duplicate.
	assert.False(t, RecordAndCheckAt(ledger, "c1", "k1", start+ttlMs))

	// Past the TTL it has been evicted and records fresh.
	assert.True(t, RecordAndCheckAt(ledger, "c1", "k1", start+ttlMs+1))
}

func TestDuplicateDoesNotRefreshTimestamp(t *testing.T) {
	ledger := types.DedupeLedger{}
	start := int64(1_000_000)
	ttlMs := TTL.Milliseconds()

	require.True(t, RecordAndCheckAt(ledger, "c1", "k1", start))

	// A replay halfway through the window must not extend it.
	require.False(t, RecordAndCheckAt(ledger, "c1", "k1", start+ttlMs/2))
	assert.True(t, RecordAndCheckAt(ledger, "c1", "k1", start+ttlMs+1))
}

func TestEvictionDropsEmptyBuckets(t *testing.T) {
	ledger := types.DedupeLedger{}
	start := int64(1_000_000)

	require.True(t, RecordAndCheckAt(ledger, "c1", "k1", start))
	require.Len(t, ledger, 1)

	// All entries stale: the bucket disappears with them.
	RecordAndCheckAt(ledger, "c1", "other", start+TTL.Milliseconds()+1)
	assert.Len(t, ledger["c1"], 1)
	assert.Contains(t, ledger["c1"], "other")
}

func TestNilLedgerAcceptsEverything(t *testing.T) {
	assert.True(t, RecordAndCheck(nil, "c1", "k1"))
	assert.True(t, RecordAndCheck(nil, "c1", "k1"))
}
