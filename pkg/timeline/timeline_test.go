package timeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/storage"
)

func newRecorder(t *testing.T) (*Recorder, *state.Store) {
	t.Helper()
	store := state.NewStore(storage.NewMemoryKV())
	return New(store), store
}

func TestRecordAndReadBack(t *testing.T) {
	r, _ := newRecorder(t)

	r.Record("info", "reverse_flush", "sent 2")
	r.Record("warn", "reverse_flush_failed", "http_error")

	events := r.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "reverse_flush", events[0].Event)
	assert.Equal(t, "warn", events[1].Level)
	assert.NotEmpty(t, events[0].At)
}

func TestTrimsToMaxEvents(t *testing.T) {
	r, _ := newRecorder(t)

	for i := 0; i < MaxEvents+25; i++ {
		r.Record("debug", "capture", fmt.Sprintf("change %d", i))
	}

	events := r.Events()
	require.Len(t, events, MaxEvents)
	// Oldest entries fell off the front.
	assert.Equal(t, "change 25", events[0].Summary)
	assert.Equal(t, fmt.Sprintf("change %d", MaxEvents+24), events[len(events)-1].Summary)
}

func TestPersistsAcrossRecorders(t *testing.T) {
	r, store := newRecorder(t)
	r.Record("info", "config_updated", "bridge config replaced")

	reloaded := New(store)
	events := reloaded.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "config_updated", events[0].Event)
}

func TestClear(t *testing.T) {
	r, store := newRecorder(t)
	r.Record("info", "inbound_action", "bookmark_created -> applied")

	r.Clear()
	assert.Empty(t, r.Events())

	reloaded := New(store)
	assert.Empty(t, reloaded.Events())
}
