package queue

import (
	"github.com/notebridge/marksync/pkg/dedupe"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/types"
)

// MaxRetries is the transport-failure budget per queue item; reaching
// it quarantines the item instead of retrying forever.
const MaxRetries = 3

// DebounceMs is how long enqueue waits for follow-up events before a
// flush, so a burst of edits travels as one batch.
const DebounceMs = 2000

// PeriodicFlushMs is the period of the standing flush alarm that
// guarantees progress even when no debounce timer survives a restart.
const PeriodicFlushMs = 3000

// Enqueue appends a captured event to the reverse queue. Returns false
// when the event id has already been seen, in which case the queue is
// untouched. The caller persists state and schedules the debounced
// flush on true.
func Enqueue(st *types.ManagedState, event types.ReverseEvent) bool {
	logger := log.WithComponent("queue")

	if !dedupe.RecordAndCheck(st.Dedupe, types.OutboundDedupeClient, dedupe.OutboundKey(event.EventID)) {
		logger.Debug().
			Str("event", "capture_skip").
			Str("eventId", event.EventID).
			Str("reason", "duplicate_event").
			Msg("Dropping already-seen outbound event")
		return false
	}

	st.Queue = append(st.Queue, types.QueueItem{
		Event:      event,
		RetryCount: 0,
		EnqueuedAt: types.NowISO(),
	})
	metrics.EventsEnqueued.Inc()
	return true
}

// Coalesce collapses the queue to at most one event per bookmark: for
// every non-empty bookmarkId only the last occurrence survives, while
// items without a bookmarkId always pass through. Order is preserved.
// The input is not modified.
func Coalesce(items []types.QueueItem) []types.QueueItem {
	last := make(map[string]int, len(items))
	for i, item := range items {
		if id := item.Event.BookmarkID; id != "" {
			last[id] = i
		}
	}

	out := make([]types.QueueItem, 0, len(items))
	for i, item := range items {
		id := item.Event.BookmarkID
		if id == "" || last[id] == i {
			out = append(out, item)
		}
	}
	return out
}

// PlanFlush returns the coalesced view of the current queue, the set
// of items one flush round transmits.
func PlanFlush(st *types.ManagedState) []types.QueueItem {
	return Coalesce(st.Queue)
}

// MarkFailures bumps the retry count of every queue item whose event
// was in the failed send round. Items reaching MaxRetries are dropped
// and logged as quarantined; everything else is retained for the next
// round.
func MarkFailures(st *types.ManagedState, failed []types.QueueItem, reason string) {
	if len(failed) == 0 {
		return
	}
	logger := log.WithComponent("queue")

	failedIDs := make(map[string]bool, len(failed))
	for _, item := range failed {
		failedIDs[item.Event.EventID] = true
	}

	kept := make([]types.QueueItem, 0, len(st.Queue))
	for _, item := range st.Queue {
		if !failedIDs[item.Event.EventID] {
			kept = append(kept, item)
			continue
		}
		item.RetryCount++
		if item.RetryCount >= MaxRetries {
			metrics.EventsQuarantined.Inc()
			logger.Warn().
				Str("event", "quarantine").
				Str("eventId", item.Event.EventID).
				Str("bookmarkId", item.Event.BookmarkID).
				Int("retryCount", item.RetryCount).
				Str("reason", reason).
				Msg("Dropping event after repeated transport failures")
			continue
		}
		kept = append(kept, item)
	}
	st.Queue = kept
}

// SweepSuperseded removes queue items that coalescing collapsed away:
// anything sharing a bookmarkId with a transmitted item but not itself
// transmitted. Runs after a successful send round so predecessors
// cannot resurface on retry. Returns the number of removed items.
func SweepSuperseded(st *types.ManagedState, coalesced []types.QueueItem) int {
	if len(coalesced) == 0 {
		return 0
	}

	sentIDs := make(map[string]bool, len(coalesced))
	sentBookmarks := make(map[string]bool, len(coalesced))
	for _, item := range coalesced {
		sentIDs[item.Event.EventID] = true
		if item.Event.BookmarkID != "" {
			sentBookmarks[item.Event.BookmarkID] = true
		}
	}

	kept := make([]types.QueueItem, 0, len(st.Queue))
	removed := 0
	for _, item := range st.Queue {
		superseded := item.Event.BookmarkID != "" &&
			sentBookmarks[item.Event.BookmarkID] &&
			!sentIDs[item.Event.EventID]
		if superseded {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	st.Queue = kept
	metrics.EventsSuperseded.Add(float64(removed))
	return removed
}
