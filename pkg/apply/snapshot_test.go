package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notebridge/marksync/pkg/bookmarks"
	"github.com/notebridge/marksync/pkg/state"
	"github.com/notebridge/marksync/pkg/types"
)

func newSnapshotFixture() (st *types.ManagedState, tree *bookmarks.MemTree, applier *Applier) {
	tree = bookmarks.NewMemTree(nil)
	st = state.Defaults()
	return st, tree, New(tree)
}

func alphaSnapshot() map[string]any {
	return map[string]any{
		"rootTitle": "Notebridge",
		"folders": []any{
			map[string]any{
				"key":   "note:Projects/Alpha.md",
				"title": "Alpha",
				"bookmarks": []any{
					map[string]any{"key": "Projects/Alpha.md|0", "title": "Docs", "url": "https://docs.example"},
					map[string]any{"key": "Projects/Alpha.md|1", "title": "Repo", "url": "https://repo.example"},
				},
			},
		},
	}
}

func TestSnapshotBuildsTreeFromScratch(t *testing.T) {
	st, tree, applier := newSnapshotFixture()

	outcome := applier.Apply(st, action("snapshot", "", alphaSnapshot()))
	require.Equal(t, types.LegacyApplied, outcome.Status)

	rootID := st.Folders[types.RootFolderKey]
	require.NotEmpty(t, rootID)
	root, err := tree.Get(rootID)
	require.NoError(t, err)
	assert.Equal(t, "Notebridge", root.Title)

	folderID := st.Folders["note:Projects/Alpha.md"]
	require.NotEmpty(t, folderID)
	children, err := tree.GetChildren(folderID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Docs", children[0].Title)
	assert.Equal(t, "Repo", children[1].Title)

	// Reverse map rebuilt for every managed node.
	assert.Equal(t, "Projects/Alpha.md|0", st.IDToKey[st.Bookmarks["Projects/Alpha.md|0"]])
	assert.Equal(t, types.RootFolderKey, st.IDToKey[rootID])
}

func TestSnapshotIsIdempotent(t *testing.T) {
	st, tree, applier := newSnapshotFixture()

	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)
	folderID := st.Folders["note:Projects/Alpha.md"]
	firstID := st.Bookmarks["Projects/Alpha.md|0"]

	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)

	// Same nodes, no duplicates.
	assert.Equal(t, folderID, st.Folders["note:Projects/Alpha.md"])
	assert.Equal(t, firstID, st.Bookmarks["Projects/Alpha.md|0"])
	children, err := tree.GetChildren(folderID)
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestSnapshotRewritesDrift(t *testing.T) {
	st, tree, applier := newSnapshotFixture()
	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)

	// A user mangles a title and a url.
	id := st.Bookmarks["Projects/Alpha.md|0"]
	badTitle, badURL := "Mangled", "https://wrong.example"
	_, err := tree.Update(id, &badTitle, &badURL)
	require.NoError(t, err)

	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)

	got, err := tree.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Docs", got.Title)
	assert.Equal(t, "https://docs.example", got.URL)
}

func TestSnapshotRemovesStaleNodes(t *testing.T) {
	st, tree, applier := newSnapshotFixture()
	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)
	staleID := st.Bookmarks["Projects/Alpha.md|1"]

	smaller := alphaSnapshot()
	folders := smaller["folders"].([]any)
	folder := folders[0].(map[string]any)
	folder["bookmarks"] = folder["bookmarks"].([]any)[:1]

	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", smaller)).Status)

	_, err := tree.Get(staleID)
	assert.ErrorIs(t, err, bookmarks.ErrNotFound)
	assert.NotContains(t, st.Bookmarks, "Projects/Alpha.md|1")
}

func TestSnapshotRestoresOrder(t *testing.T) {
	st, tree, applier := newSnapshotFixture()
	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)

	folderID := st.Folders["note:Projects/Alpha.md"]
	repoID := st.Bookmarks["Projects/Alpha.md|1"]

	// A user drags Repo to the front.
	front := 0
	_, err := tree.Move(repoID, folderID, &front)
	require.NoError(t, err)

	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)

	children, err := tree.GetChildren(folderID)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "Docs", children[0].Title)
	assert.Equal(t, "Repo", children[1].Title)
}

func TestSnapshotRemovedFolderTakesSubtree(t *testing.T) {
	st, tree, applier := newSnapshotFixture()
	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", alphaSnapshot())).Status)
	folderID := st.Folders["note:Projects/Alpha.md"]

	empty := map[string]any{"rootTitle": "Notebridge", "folders": []any{}}
	require.Equal(t, types.LegacyApplied, applier.Apply(st, action("snapshot", "", empty)).Status)

	_, err := tree.Get(folderID)
	assert.ErrorIs(t, err, bookmarks.ErrNotFound)
	assert.NotContains(t, st.Folders, "note:Projects/Alpha.md")
	assert.Contains(t, st.Folders, types.RootFolderKey, "root always survives")
}

func TestSnapshotGarbagePayloadRejected(t *testing.T) {
	st, _, applier := newSnapshotFixture()

	outcome := applier.Apply(st, action("snapshot", "", map[string]any{
		"folders": "not-a-list",
	}))
	assert.Equal(t, types.LegacyRejectedInvalid, outcome.Status)
	assert.Equal(t, "invalid_snapshot", outcome.Reason)
}
