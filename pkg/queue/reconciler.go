package queue

import (
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/nodeindex"
	"github.com/notebridge/marksync/pkg/types"
)

// ReconcileSummary reports what one ack batch did to the queue.
type ReconcileSummary struct {
	Removed  int // items drained from the queue
	Recorded int // resolvedKey mappings written to the node index
	Retained int // results with an unknown status, left queued
}

// Reconcile drains the queue according to one batch ack response.
// Terminal statuses (applied, duplicate, both skipped flavors,
// rejected_invalid) remove their event; applied additionally records
// the bridge-resolved key against the event's bookmark id. Unknown
// statuses leave the item queued for a later round.
func Reconcile(st *types.ManagedState, resp types.BatchAckResponse) ReconcileSummary {
	logger := log.WithComponent("queue")

	// Snapshot before any mutation so resolvedKey attribution sees the
	// item even while results are being processed.
	snapshot := make(map[string]types.QueueItem, len(st.Queue))
	for _, item := range st.Queue {
		snapshot[item.Event.EventID] = item
	}

	var summary ReconcileSummary
	removed := make(map[string]bool, len(resp.Results))
	for _, res := range resp.Results {
		metrics.AcksTotal.WithLabelValues(res.Status).Inc()
		switch types.LegacyAckStatus(res.Status) {
		case types.LegacyApplied:
			if res.ResolvedKey != "" {
				if item, ok := snapshot[res.EventID]; ok && item.Event.BookmarkID != "" {
					nodeindex.RecordMapping(st, item.Event.BookmarkID, res.ResolvedKey)
					summary.Recorded++
				}
			}
			removed[res.EventID] = true
		case types.LegacyDuplicate, types.LegacySkippedAmbiguous,
			types.LegacySkippedUnmanaged, types.LegacyRejectedInvalid:
			removed[res.EventID] = true
		default:
			summary.Retained++
			logger.Warn().
				Str("event", "ack_unhandled").
				Str("eventId", res.EventID).
				Str("status", res.Status).
				Str("reason", "unknown_status").
				Msg("Keeping event queued for an unrecognized ack status")
		}
	}

	if len(removed) > 0 {
		kept := make([]types.QueueItem, 0, len(st.Queue))
		for _, item := range st.Queue {
			if removed[item.Event.EventID] {
				summary.Removed++
				continue
			}
			kept = append(kept, item)
		}
		st.Queue = kept
	}
	return summary
}
