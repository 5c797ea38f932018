package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/suppress"
	"github.com/notebridge/marksync/pkg/types"
)

// fixture is a tree with one managed note folder and the state that
// knows about it.
type fixture struct {
	capture *Capture
	tree    *bookmarks.MemTree
	st      *types.ManagedState
	noteDir *bookmarks.Node
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tree := bookmarks.NewMemTree(nil)
	noteDir, err := tree.Create(tree.RootID(), "Alpha", "", nil)
	require.NoError(t, err)

	st := state.Defaults()
	st.Folders[types.RootFolderKey] = tree.RootID()
	st.Folders["note:Projects/Alpha.md"] = noteDir.ID

	return &fixture{
		capture: New(tree),
		tree:    tree,
		st:      st,
		noteDir: noteDir,
	}
}

func created(node *bookmarks.Node) *bookmarks.Change {
	return &bookmarks.Change{
		Type: bookmarks.NodeCreated, ID: node.ID, Node: node,
		ParentID: node.ParentID, Index: node.Index,
	}
}

func TestCreatedInNoteFolderDerivesKey(t *testing.T) {
	f := newFixture(t)
	node, err := f.tree.Create(f.noteDir.ID, "Docs", "https://docs.example", nil)
	require.NoError(t, err)

	mutated, enqueued := f.capture.Handle(f.st, created(node))

	assert.True(t, mutated)
	assert.True(t, enqueued)
	require.Len(t, f.st.Queue, 1)

	ev := f.st.Queue[0].Event
	assert.Equal(t, types.EventBookmarkCreated, ev.Type)
	assert.Equal(t, "Projects/Alpha.md|0", ev.ManagedKey)
	assert.Equal(t, node.ID, ev.BookmarkID)
	assert.Equal(t, "Docs", ev.Title)
	assert.Equal(t, "https://docs.example", ev.URL)
	assert.Equal(t, types.ReverseSchemaVersion, ev.SchemaVersion)
	assert.NotEmpty(t, ev.BatchID)
	assert.NotEmpty(t, ev.EventID)

	// The derived key was memoized so follow-up edits coalesce.
	assert.Equal(t, "Projects/Alpha.md|0", f.st.IDToKey[node.ID])
}

func TestCreatedFolderProducesNothing(t *testing.T) {
	f := newFixture(t)
	folder, err := f.tree.Create(f.noteDir.ID, "Sub", "", nil)
	require.NoError(t, err)

	mutated, enqueued := f.capture.Handle(f.st, created(folder))

	assert.False(t, mutated)
	assert.False(t, enqueued)
	assert.Empty(t, f.st.Queue)
}

func TestSuppressionBlocksCapture(t *testing.T) {
	f := newFixture(t)
	node, err := f.tree.Create(f.noteDir.ID, "Docs", "https://docs.example", nil)
	require.NoError(t, err)

	suppress.SetApplyEpoch(&f.st.Suppression, true)

	mutated, enqueued := f.capture.Handle(f.st, created(node))

	assert.False(t, mutated)
	assert.False(t, enqueued)
	assert.Empty(t, f.st.Queue)
}

func TestCooldownBlocksCapture(t *testing.T) {
	f := newFixture(t)
	node, err := f.tree.Create(f.noteDir.ID, "Docs", "https://docs.example", nil)
	require.NoError(t, err)

	suppress.SetCooldown(&f.st.Suppression, suppress.CooldownMs)

	_, enqueued := f.capture.Handle(f.st, created(node))

	assert.False(t, enqueued)
	assert.Empty(t, f.st.Queue)
}

func TestImportInProgressBlocksCapture(t *testing.T) {
	f := newFixture(t)
	node, err := f.tree.Create(f.noteDir.ID, "Docs", "https://docs.example", nil)
	require.NoError(t, err)

	f.st.ImportInProgress = true

	_, enqueued := f.capture.Handle(f.st, created(node))

	assert.False(t, enqueued)
	assert.Empty(t, f.st.Queue)
}

func TestImportMarkersFlipFlag(t *testing.T) {
	f := newFixture(t)

	mutated, enqueued := f.capture.Handle(f.st, &bookmarks.Change{Type: bookmarks.ImportBegan})
	assert.True(t, mutated)
	assert.False(t, enqueued)
	assert.True(t, f.st.ImportInProgress)

	mutated, _ = f.capture.Handle(f.st, &bookmarks.Change{Type: bookmarks.ImportEnded})
	assert.True(t, mutated)
	assert.False(t, f.st.ImportInProgress)

	// Import markers are not themselves gated.
	suppress.SetApplyEpoch(&f.st.Suppression, true)
	mutated, _ = f.capture.Handle(f.st, &bookmarks.Change{Type: bookmarks.ImportBegan})
	assert.True(t, mutated)
	assert.True(t, f.st.ImportInProgress)
}

func TestChangedManagedFolderBecomesRename(t *testing.T) {
	f := newFixture(t)

	renamed := *f.noteDir
	renamed.Title = "Alpha v2"
	_, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeChanged, ID: f.noteDir.ID, Node: &renamed,
	})

	require.True(t, enqueued)
	require.Len(t, f.st.Queue, 1)
	ev := f.st.Queue[0].Event
	assert.Equal(t, types.EventFolderRenamed, ev.Type)
	assert.Equal(t, "note:Projects/Alpha.md", ev.ManagedKey)
	assert.Equal(t, "Alpha v2", ev.Title)
	assert.Empty(t, ev.URL)
}

func TestChangedBookmarkFallsBackToIdKey(t *testing.T) {
	f := newFixture(t)
	node, err := f.tree.Create(f.tree.RootID(), "Loose", "https://loose.example", nil)
	require.NoError(t, err)

	_, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeChanged, ID: node.ID, Node: node,
	})

	require.True(t, enqueued)
	ev := f.st.Queue[0].Event
	assert.Equal(t, types.EventBookmarkUpdated, ev.Type)
	assert.Equal(t, types.BookmarkPrefix+node.ID, ev.ManagedKey)
	assert.Equal(t, "https://loose.example", ev.URL)
}

func TestRemovedManagedFolderIgnored(t *testing.T) {
	f := newFixture(t)

	mutated, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeRemoved, ID: f.noteDir.ID, Node: f.noteDir,
	})

	assert.False(t, mutated)
	assert.False(t, enqueued)
	assert.Empty(t, f.st.Queue)
}

func TestRemovedBookmarkUsesLastKnownKey(t *testing.T) {
	f := newFixture(t)
	f.st.Bookmarks["Projects/Alpha.md|0"] = "b7"
	f.st.IDToKey["b7"] = "Projects/Alpha.md|0"

	_, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeRemoved, ID: "b7",
		Node: &bookmarks.Node{ID: "b7", Title: "Gone", URL: "https://gone.example"},
	})

	require.True(t, enqueued)
	ev := f.st.Queue[0].Event
	assert.Equal(t, types.EventBookmarkDeleted, ev.Type)
	assert.Equal(t, "Projects/Alpha.md|0", ev.ManagedKey)
	assert.Equal(t, "b7", ev.BookmarkID)
}

func TestMovedWithinParentCarriesLinkOnlyIndex(t *testing.T) {
	f := newFixture(t)

	// Sibling layout: [folder, b1, b2]; "link-only" positions skip the
	// folder.
	_, err := f.tree.Create(f.noteDir.ID, "SubFolder", "", nil)
	require.NoError(t, err)
	_, err = f.tree.Create(f.noteDir.ID, "B1", "https://b1.example", nil)
	require.NoError(t, err)
	b2, err := f.tree.Create(f.noteDir.ID, "B2", "https://b2.example", nil)
	require.NoError(t, err)

	_, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeMoved, ID: b2.ID, Node: b2,
		ParentID: f.noteDir.ID, Index: b2.Index,
		OldParentID: f.noteDir.ID, OldIndex: 1,
	})

	require.True(t, enqueued)
	ev := f.st.Queue[0].Event
	assert.Equal(t, types.EventBookmarkUpdated, ev.Type)
	assert.Equal(t, f.noteDir.ID, ev.ParentID)
	require.NotNil(t, ev.MoveIndex)
	assert.Equal(t, 1, *ev.MoveIndex)
}

func TestMovedAcrossParentsCarriesRawIndex(t *testing.T) {
	f := newFixture(t)
	other, err := f.tree.Create(f.tree.RootID(), "Other", "", nil)
	require.NoError(t, err)
	_, err = f.tree.Create(other.ID, "Existing", "https://e.example", nil)
	require.NoError(t, err)
	node, err := f.tree.Create(f.noteDir.ID, "B", "https://b.example", nil)
	require.NoError(t, err)

	moved, err := f.tree.Move(node.ID, other.ID, nil)
	require.NoError(t, err)

	_, enqueued := f.capture.Handle(f.st, &bookmarks.Change{
		Type: bookmarks.NodeMoved, ID: moved.ID, Node: moved,
		ParentID: other.ID, Index: moved.Index,
		OldParentID: f.noteDir.ID, OldIndex: 0,
	})

	require.True(t, enqueued)
	ev := f.st.Queue[0].Event
	assert.Equal(t, other.ID, ev.ParentID)
	require.NotNil(t, ev.MoveIndex)
	assert.Equal(t, moved.Index, *ev.MoveIndex, "destination index travels raw, not link-only")
}
