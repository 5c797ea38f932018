package bookmarks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rooted pairs a Store with its root id so the suite can run against
// both implementations.
type rooted interface {
	Store
	RootID() string
}

func openStores(t *testing.T) map[string]rooted {
	t.Helper()

	boltTree, err := NewBoltTree(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { boltTree.Close() })

	return map[string]rooted{
		"memory": NewMemTree(nil),
		"bolt":   boltTree,
	}
}

func TestCreateOrdersSiblings(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			root := tree.RootID()

			first, err := tree.Create(root, "First", "https://one.example", nil)
			require.NoError(t, err)
			second, err := tree.Create(root, "Second", "https://two.example", nil)
			require.NoError(t, err)

			// Explicit index squeezes in between.
			idx := 1
			middle, err := tree.Create(root, "Middle", "https://mid.example", &idx)
			require.NoError(t, err)

			children, err := tree.GetChildren(root)
			require.NoError(t, err)
			require.Len(t, children, 3)
			assert.Equal(t, first.ID, children[0].ID)
			assert.Equal(t, middle.ID, children[1].ID)
			assert.Equal(t, second.ID, children[2].ID)
			assert.Equal(t, 1, children[1].Index)
			assert.Equal(t, 2, children[2].Index)
		})
	}
}

func TestCreateRejectsBookmarkParent(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			leaf, err := tree.Create(tree.RootID(), "Leaf", "https://leaf.example", nil)
			require.NoError(t, err)

			_, err = tree.Create(leaf.ID, "Child", "https://child.example", nil)
			assert.ErrorIs(t, err, ErrNotFolder)

			_, err = tree.Create("no-such-id", "Child", "", nil)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestUpdateFields(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			folder, err := tree.Create(tree.RootID(), "Docs", "", nil)
			require.NoError(t, err)
			leaf, err := tree.Create(folder.ID, "Old", "https://old.example", nil)
			require.NoError(t, err)

			newTitle := "New"
			newURL := "https://new.example"
			updated, err := tree.Update(leaf.ID, &newTitle, &newURL)
			require.NoError(t, err)
			assert.Equal(t, "New", updated.Title)
			assert.Equal(t, "https://new.example", updated.URL)

			// Folders cannot grow a url.
			_, err = tree.Update(folder.ID, nil, &newURL)
			assert.Error(t, err)

			_, err = tree.Update(tree.RootID(), &newTitle, nil)
			assert.ErrorIs(t, err, ErrIsRoot)
		})
	}
}

func TestMoveAcrossFolders(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			src, err := tree.Create(tree.RootID(), "Source", "", nil)
			require.NoError(t, err)
			dst, err := tree.Create(tree.RootID(), "Dest", "", nil)
			require.NoError(t, err)
			leaf, err := tree.Create(src.ID, "Leaf", "https://leaf.example", nil)
			require.NoError(t, err)

			moved, err := tree.Move(leaf.ID, dst.ID, nil)
			require.NoError(t, err)
			assert.Equal(t, dst.ID, moved.ParentID)
			assert.Equal(t, 0, moved.Index)

			srcChildren, err := tree.GetChildren(src.ID)
			require.NoError(t, err)
			assert.Empty(t, srcChildren)
		})
	}
}

func TestMoveReordersWithinFolder(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			root := tree.RootID()
			a, err := tree.Create(root, "A", "https://a.example", nil)
			require.NoError(t, err)
			_, err = tree.Create(root, "B", "https://b.example", nil)
			require.NoError(t, err)
			c, err := tree.Create(root, "C", "https://c.example", nil)
			require.NoError(t, err)

			front := 0
			moved, err := tree.Move(c.ID, root, &front)
			require.NoError(t, err)
			assert.Equal(t, 0, moved.Index)

			children, err := tree.GetChildren(root)
			require.NoError(t, err)
			require.Len(t, children, 3)
			assert.Equal(t, c.ID, children[0].ID)
			assert.Equal(t, a.ID, children[1].ID)
		})
	}
}

func TestMoveRejectsCycles(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			outer, err := tree.Create(tree.RootID(), "Outer", "", nil)
			require.NoError(t, err)
			inner, err := tree.Create(outer.ID, "Inner", "", nil)
			require.NoError(t, err)

			_, err = tree.Move(outer.ID, inner.ID, nil)
			assert.ErrorIs(t, err, ErrCycle)

			_, err = tree.Move(outer.ID, outer.ID, nil)
			assert.ErrorIs(t, err, ErrCycle)

			_, err = tree.Move(tree.RootID(), outer.ID, nil)
			assert.ErrorIs(t, err, ErrIsRoot)
		})
	}
}

func TestRemoveSemantics(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			folder, err := tree.Create(tree.RootID(), "Folder", "", nil)
			require.NoError(t, err)
			leaf, err := tree.Create(folder.ID, "Leaf", "https://leaf.example", nil)
			require.NoError(t, err)

			// Non-empty folders need RemoveTree.
			err = tree.Remove(folder.ID)
			assert.ErrorIs(t, err, ErrNotEmpty)

			require.NoError(t, tree.Remove(leaf.ID))
			_, err = tree.Get(leaf.ID)
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, tree.Remove(folder.ID))

			err = tree.Remove(tree.RootID())
			assert.ErrorIs(t, err, ErrIsRoot)
		})
	}
}

func TestRemoveTreeDeletesSubtree(t *testing.T) {
	for name, tree := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			folder, err := tree.Create(tree.RootID(), "Folder", "", nil)
			require.NoError(t, err)
			sub, err := tree.Create(folder.ID, "Sub", "", nil)
			require.NoError(t, err)
			leaf, err := tree.Create(sub.ID, "Leaf", "https://leaf.example", nil)
			require.NoError(t, err)

			require.NoError(t, tree.RemoveTree(folder.ID))

			for _, id := range []string{folder.ID, sub.ID, leaf.ID} {
				_, err := tree.Get(id)
				assert.ErrorIs(t, err, ErrNotFound, id)
			}

			root, err := tree.GetTree()
			require.NoError(t, err)
			assert.Empty(t, root.Children)
		})
	}
}

func TestMutationsPublishChanges(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	tree := NewMemTree(broker)
	leaf, err := tree.Create(tree.RootID(), "Leaf", "https://leaf.example", nil)
	require.NoError(t, err)
	title := "Renamed"
	_, err = tree.Update(leaf.ID, &title, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Remove(leaf.ID))

	want := []ChangeType{NodeCreated, NodeChanged, NodeRemoved}
	for _, wantType := range want {
		select {
		case change := <-sub:
			assert.Equal(t, wantType, change.Type)
			assert.Equal(t, leaf.ID, change.ID)
			require.NotNil(t, change.Node)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", wantType)
		}
	}
}

func TestRemovedChangeCarriesLastSnapshot(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	tree := NewMemTree(broker)
	leaf, err := tree.Create(tree.RootID(), "Leaf", "https://leaf.example", nil)
	require.NoError(t, err)
	require.NoError(t, tree.Remove(leaf.ID))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case change := <-sub:
			if change.Type != NodeRemoved {
				continue
			}
			require.NotNil(t, change.Node)
			assert.Equal(t, "Leaf", change.Node.Title)
			assert.Equal(t, "https://leaf.example", change.Node.URL)
			assert.Equal(t, tree.RootID(), change.ParentID)
			return
		case <-deadline:
			t.Fatal("timed out waiting for removal change")
		}
	}
}

func TestBoltTreeSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	tree, err := NewBoltTree(dir, nil)
	require.NoError(t, err)
	folder, err := tree.Create(tree.RootID(), "Notebridge", "", nil)
	require.NoError(t, err)
	leaf, err := tree.Create(folder.ID, "Leaf", "https://leaf.example", nil)
	require.NoError(t, err)
	require.NoError(t, tree.Close())

	reopened, err := NewBoltTree(dir, nil)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Leaf", got.Title)
	assert.Equal(t, folder.ID, got.ParentID)

	children, err := reopened.GetChildren(folder.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)

	// Fresh ids keep counting from where the old handle stopped.
	next, err := reopened.Create(reopened.RootID(), "After", "https://after.example", nil)
	require.NoError(t, err)
	assert.NotEqual(t, leaf.ID, next.ID)
	assert.NotEqual(t, folder.ID, next.ID)
}

func TestErrorsUnwrap(t *testing.T) {
	tree := NewMemTree(nil)

	_, err := tree.Get("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}
