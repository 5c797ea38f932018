package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/types"
)

func TestReconcileTerminalStatusesDrain(t *testing.T) {
	tests := []struct {
		status string
	}{
		{"applied"},
		{"duplicate"},
		{"skipped_ambiguous"},
		{"skipped_unmanaged"},
		{"rejected_invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			st := state.Defaults()
			st.Queue = []types.QueueItem{item("e1", "b1"), item("e2", "b2")}

			summary := Reconcile(st, types.BatchAckResponse{
				BatchID: "batch-1",
				Results: []types.AckResult{{EventID: "e1", Status: tt.status}},
			})

			assert.Equal(t, 1, summary.Removed)
			require.Len(t, st.Queue, 1)
			assert.Equal(t, "e2", st.Queue[0].Event.EventID)
		})
	}
}

func TestReconcileAppliedRecordsResolvedKey(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{item("e1", "b1")}

	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{{
			EventID:     "e1",
			Status:      "applied",
			ResolvedKey: "Projects/Alpha.md|0",
		}},
	})

	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, "Projects/Alpha.md|0", st.IDToKey["b1"])
	assert.Empty(t, st.Queue)
}

func TestReconcileDuplicateNeverTouchesKeyMap(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{item("e1", "b1")}

	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{{
			EventID:     "e1",
			Status:      "duplicate",
			ResolvedKey: "Projects/Alpha.md|0",
		}},
	})

	assert.Equal(t, 0, summary.Recorded)
	assert.Empty(t, st.IDToKey)
	assert.Empty(t, st.Queue)
}

func TestReconcileAppliedWithoutBookmarkIDRecordsNothing(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{item("e1", "")}

	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{{
			EventID:     "e1",
			Status:      "applied",
			ResolvedKey: "Projects/Alpha.md|0",
		}},
	})

	assert.Equal(t, 0, summary.Recorded)
	assert.Empty(t, st.IDToKey)
	assert.Empty(t, st.Queue)
}

func TestReconcileUnknownStatusRetains(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{item("e1", "b1")}

	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{{EventID: "e1", Status: "received"}},
	})

	assert.Equal(t, 1, summary.Retained)
	assert.Equal(t, 0, summary.Removed)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, "e1", st.Queue[0].Event.EventID)
	assert.Equal(t, 0, st.Queue[0].RetryCount, "retention is not a failure")
}

func TestReconcileResultForUnknownEvent(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{item("e1", "b1")}

	// An ack for something already drained: no crash, no mapping, no
	// queue change.
	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{{
			EventID:     "ghost",
			Status:      "applied",
			ResolvedKey: "Projects/Alpha.md|0",
		}},
	})

	assert.Equal(t, 0, summary.Recorded)
	assert.Empty(t, st.IDToKey)
	require.Len(t, st.Queue, 1)
}

func TestReconcileMixedBatch(t *testing.T) {
	st := state.Defaults()
	st.Queue = []types.QueueItem{
		item("e1", "b1"),
		item("e2", "b2"),
		item("e3", "b3"),
		item("e4", "b4"),
	}

	summary := Reconcile(st, types.BatchAckResponse{
		BatchID: "batch-1",
		Results: []types.AckResult{
			{EventID: "e1", Status: "applied", ResolvedKey: "Notes/A.md|0"},
			{EventID: "e2", Status: "rejected_invalid", Reason: "missing_title"},
			{EventID: "e3", Status: "received"},
			{EventID: "e4", Status: "skipped_unmanaged"},
		},
	})

	assert.Equal(t, 3, summary.Removed)
	assert.Equal(t, 1, summary.Recorded)
	assert.Equal(t, 1, summary.Retained)
	require.Len(t, st.Queue, 1)
	assert.Equal(t, "e3", st.Queue[0].Event.EventID)
}
