package timeline

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/types"
)

// MaxEvents bounds the retained timeline; older entries fall off.
const MaxEvents = 200

// Recorder keeps the operator-facing debug timeline: a bounded list of
// recent pipeline events, persisted so it survives restarts.
type Recorder struct {
	store  *state.Store
	logger zerolog.Logger

	mu     sync.Mutex
	events []types.DebugEvent
}

// New loads the persisted timeline and returns a recorder over it.
func New(store *state.Store) *Recorder {
	events, err := store.LoadTimeline()
	if err != nil {
		events = nil
	}
	return &Recorder{
		store:  store,
		logger: log.WithComponent("timeline"),
		events: events,
	}
}

// Record appends one event, trims to MaxEvents, and persists. Summary
// text must not contain tokens or full URLs; callers pass identifiers
// and reasons only.
func (r *Recorder) Record(level, event, summary string) {
	r.mu.Lock()
	r.events = append(r.events, types.DebugEvent{
		At:      types.NowISO(),
		Level:   level,
		Event:   event,
		Summary: summary,
	})
	if len(r.events) > MaxEvents {
		r.events = r.events[len(r.events)-MaxEvents:]
	}
	snapshot := make([]types.DebugEvent, len(r.events))
	copy(snapshot, r.events)
	r.mu.Unlock()

	if err := r.store.SaveTimeline(snapshot); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist debug timeline")
	}
}

// Events returns a copy of the retained timeline, oldest first.
func (r *Recorder) Events() []types.DebugEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]types.DebugEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Clear drops all retained events and persists the empty timeline.
func (r *Recorder) Clear() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()

	if err := r.store.SaveTimeline([]types.DebugEvent{}); err != nil {
		r.logger.Error().Err(err).Msg("Failed to persist debug timeline")
	}
}
