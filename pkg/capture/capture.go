package capture

import (
	"github.com/google/uuid"

	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/metrics"
	"github.com/notebridge/marksync/pkg/nodeindex"
	"github.com/notebridge/marksync/pkg/queue"
	"github.com/notebridge/marksync/pkg/suppress"
	"github.com/notebridge/marksync/pkg/types"
)

// Capture turns observed bookmark tree changes into reverse events.
// One Handle call per change; the caller owns the state lock, persists
// after a mutating call, and schedules a flush after an enqueueing
// one.
type Capture struct {
	tree bookmarks.Store
}

// New builds a Capture over the local tree. The tree is consulted for
// parent titles and link-only positions; it is never mutated here.
func New(tree bookmarks.Store) *Capture {
	return &Capture{tree: tree}
}

// Handle routes one change through its handler. mutated reports
// whether the managed state changed and must be persisted; enqueued
// reports whether a reverse event was appended to the queue.
func (c *Capture) Handle(st *types.ManagedState, change *bookmarks.Change) (mutated, enqueued bool) {
	switch change.Type {
	case bookmarks.ImportBegan:
		return c.setImport(st, true), false
	case bookmarks.ImportEnded:
		return c.setImport(st, false), false
	}

	if skip, reason := c.gated(st); skip {
		metrics.CapturesSuppressed.Inc()
		logSkip(change, reason)
		return false, false
	}

	switch change.Type {
	case bookmarks.NodeCreated:
		return c.onCreated(st, change)
	case bookmarks.NodeChanged:
		return c.onChanged(st, change)
	case bookmarks.NodeRemoved:
		return c.onRemoved(st, change)
	case bookmarks.NodeMoved:
		return c.onMoved(st, change)
	}
	return false, false
}

// gated applies the two capture gates in order: an import in progress
// wins over suppression so the log reason is stable.
func (c *Capture) gated(st *types.ManagedState) (bool, string) {
	if st.ImportInProgress {
		return true, "import_in_progress"
	}
	if suppress.Active(&st.Suppression) {
		return true, "suppressed"
	}
	return false, ""
}

func (c *Capture) setImport(st *types.ManagedState, inProgress bool) bool {
	st.ImportInProgress = inProgress
	logger := log.WithComponent("capture")
	logger.Info().
		Bool("importInProgress", inProgress).
		Msg("Import flag updated")
	return true
}

func (c *Capture) onCreated(st *types.ManagedState, change *bookmarks.Change) (bool, bool) {
	node := change.Node
	if node == nil {
		return false, false
	}
	if node.IsFolder() {
		// Folder creation syncs through the note side; capturing it
		// here has no counterpart operation.
		logSkip(change, "folder_created")
		return false, false
	}

	parentTitle := ""
	if parent, err := c.tree.Get(node.ParentID); err == nil {
		parentTitle = parent.Title
	}
	index := change.Index
	key := nodeindex.DeriveBookmarkKey(st, node.ID, node.ParentID, parentTitle, &index)
	nodeindex.RecordMapping(st, node.ID, key)

	ev := newEvent(types.EventBookmarkCreated, node.ID, key)
	ev.Title = node.Title
	ev.URL = node.URL
	ev.ParentID = node.ParentID
	return true, c.enqueue(st, ev)
}

func (c *Capture) onChanged(st *types.ManagedState, change *bookmarks.Change) (bool, bool) {
	node := change.Node
	if node == nil {
		return false, false
	}

	if nodeindex.IsManagedFolder(st, node.ID) {
		ev := newEvent(types.EventFolderRenamed, node.ID, nodeindex.FolderKeyForID(st, node.ID))
		ev.Title = node.Title
		return true, c.enqueue(st, ev)
	}

	ev := newEvent(types.EventBookmarkUpdated, node.ID, keyOrFallback(st, node.ID))
	ev.Title = node.Title
	ev.URL = node.URL
	return true, c.enqueue(st, ev)
}

func (c *Capture) onRemoved(st *types.ManagedState, change *bookmarks.Change) (bool, bool) {
	if nodeindex.IsManagedFolder(st, change.ID) {
		// Managed folder removal is reconciled by the next full apply,
		// not mirrored event-by-event.
		logSkip(change, "folder_removed")
		return false, false
	}

	ev := newEvent(types.EventBookmarkDeleted, change.ID, keyOrFallback(st, change.ID))
	return true, c.enqueue(st, ev)
}

func (c *Capture) onMoved(st *types.ManagedState, change *bookmarks.Change) (bool, bool) {
	ev := newEvent(types.EventBookmarkUpdated, change.ID, keyOrFallback(st, change.ID))
	ev.ParentID = change.ParentID
	if node := change.Node; node != nil {
		ev.Title = node.Title
		ev.URL = node.URL
	}
	if change.ParentID == change.OldParentID {
		pos := c.linkOnlyIndex(change.ParentID, change.ID)
		ev.MoveIndex = &pos
	} else {
		// Cross-parent moves carry the raw destination index; the
		// link-only position only means something within one note.
		idx := change.Index
		ev.MoveIndex = &idx
	}
	return true, c.enqueue(st, ev)
}

func (c *Capture) enqueue(st *types.ManagedState, ev types.ReverseEvent) bool {
	return queue.Enqueue(st, ev)
}

// linkOnlyIndex is the node's position within its parent counting only
// bookmarks; folders between them do not shift note lines.
func (c *Capture) linkOnlyIndex(parentID, id string) int {
	children, err := c.tree.GetChildren(parentID)
	if err != nil {
		return 0
	}
	pos := 0
	for _, child := range children {
		if child.ID == id {
			return pos
		}
		if !child.IsFolder() {
			pos++
		}
	}
	return 0
}

func keyOrFallback(st *types.ManagedState, id string) string {
	if key := nodeindex.KeyForID(st, id); key != "" {
		return key
	}
	return types.BookmarkPrefix + id
}

func newEvent(kind types.ReverseEventType, bookmarkID, managedKey string) types.ReverseEvent {
	return types.ReverseEvent{
		BatchID:       uuid.NewString(),
		EventID:       uuid.NewString(),
		Type:          kind,
		BookmarkID:    bookmarkID,
		ManagedKey:    managedKey,
		OccurredAt:    types.NowISO(),
		SchemaVersion: types.ReverseSchemaVersion,
	}
}

func logSkip(change *bookmarks.Change, reason string) {
	logger := log.WithComponent("capture")
	logger.Debug().
		Str("event", "capture_skip").
		Str("changeType", string(change.Type)).
		Str("nodeId", change.ID).
		Str("reason", reason).
		Msg("Skipping local change")
}
