package apply

import (
	"encoding/json"

	"github.com/notebridge/marksync/pkg/envelope"
	"github.com/notebridge/marksync/pkg/log"
	"github.com/notebridge/marksync/pkg/types"
)

// DefaultRootTitle names the managed root folder when the bridge does
// not supply one.
const DefaultRootTitle = "Notebridge"

// snapshotPayload is the desired managed tree, one folder per note
// with its links in note-line order.
type snapshotPayload struct {
	RootTitle string           `json:"rootTitle"`
	Folders   []snapshotFolder `json:"folders"`
}

type snapshotFolder struct {
	Key       string             `json:"key"`
	Title     string             `json:"title"`
	Bookmarks []snapshotBookmark `json:"bookmarks"`
}

type snapshotBookmark struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// applySnapshot reconciles the local managed subtree to the desired
// tree: missing folders and bookmarks are created, drifted titles and
// urls rewritten, order restored, and managed nodes absent from the
// snapshot removed. The state maps are rebuilt from what was actually
// applied.
func (a *Applier) applySnapshot(st *types.ManagedState, act *envelope.Action) Outcome {
	raw, err := json.Marshal(act.Payload)
	if err != nil {
		return rejected("invalid_snapshot")
	}
	var snap snapshotPayload
	if err := json.Unmarshal(raw, &snap); err != nil {
		return rejected("invalid_snapshot")
	}

	rootID, err := a.ensureRoot(st, snap.RootTitle)
	if err != nil {
		return ambiguous(err)
	}

	newFolders := map[string]string{types.RootFolderKey: rootID}
	newBookmarks := make(map[string]string)

	for _, folder := range snap.Folders {
		folderID, err := a.ensureFolder(st, rootID, folder)
		if err != nil {
			mergePartial(st, newFolders, newBookmarks)
			return ambiguous(err)
		}
		newFolders[folder.Key] = folderID

		for _, mark := range folder.Bookmarks {
			markID, err := a.ensureBookmark(st, folderID, mark)
			if err != nil {
				mergePartial(st, newFolders, newBookmarks)
				return ambiguous(err)
			}
			newBookmarks[mark.Key] = markID
		}

		if err := a.restoreOrder(folderID, folder.Bookmarks, newBookmarks); err != nil {
			mergePartial(st, newFolders, newBookmarks)
			return ambiguous(err)
		}
	}

	a.removeStale(st, newFolders, newBookmarks)

	st.Folders = newFolders
	st.Bookmarks = newBookmarks
	rebuildIDToKey(st)

	logger := log.WithComponent("apply")
	logger.Info().
		Int("folders", len(newFolders)-1).
		Int("bookmarks", len(newBookmarks)).
		Msg("Snapshot applied")
	return Outcome{Status: types.LegacyApplied}
}

// ensureRoot guarantees the managed root folder exists locally and
// carries the requested title.
func (a *Applier) ensureRoot(st *types.ManagedState, title string) (string, error) {
	if title == "" {
		title = DefaultRootTitle
	}

	if id, ok := st.Folders[types.RootFolderKey]; ok {
		if node, err := a.tree.Get(id); err == nil {
			if node.Title != title {
				if _, err := a.tree.Update(id, &title, nil); err != nil {
					return "", err
				}
			}
			return id, nil
		}
	}

	tree, err := a.tree.GetTree()
	if err != nil {
		return "", err
	}
	node, err := a.tree.Create(tree.ID, title, "", nil)
	if err != nil {
		return "", err
	}
	st.Folders[types.RootFolderKey] = node.ID
	return node.ID, nil
}

func (a *Applier) ensureFolder(st *types.ManagedState, rootID string, folder snapshotFolder) (string, error) {
	if id, ok := st.Folders[folder.Key]; ok {
		if node, err := a.tree.Get(id); err == nil {
			if node.Title != folder.Title {
				title := folder.Title
				if _, err := a.tree.Update(id, &title, nil); err != nil {
					return "", err
				}
			}
			return id, nil
		}
	}
	node, err := a.tree.Create(rootID, folder.Title, "", nil)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

func (a *Applier) ensureBookmark(st *types.ManagedState, folderID string, mark snapshotBookmark) (string, error) {
	if id, ok := st.Bookmarks[mark.Key]; ok {
		node, err := a.tree.Get(id)
		if err == nil {
			if node.Title != mark.Title || node.URL != mark.URL {
				title, url := mark.Title, mark.URL
				if _, err := a.tree.Update(id, &title, &url); err != nil {
					return "", err
				}
			}
			if node.ParentID != folderID {
				if _, err := a.tree.Move(id, folderID, nil); err != nil {
					return "", err
				}
			}
			return id, nil
		}
	}
	node, err := a.tree.Create(folderID, mark.Title, mark.URL, nil)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// restoreOrder moves the folder's managed bookmarks into note-line
// order; unmanaged nodes a user parked in the folder drift to the end.
func (a *Applier) restoreOrder(folderID string, desired []snapshotBookmark, ids map[string]string) error {
	for want, mark := range desired {
		id, ok := ids[mark.Key]
		if !ok {
			continue
		}
		children, err := a.tree.GetChildren(folderID)
		if err != nil {
			return err
		}
		if want < len(children) && children[want].ID == id {
			continue
		}
		pos := want
		if _, err := a.tree.Move(id, folderID, &pos); err != nil {
			return err
		}
	}
	return nil
}

// removeStale deletes managed nodes the snapshot no longer contains.
func (a *Applier) removeStale(st *types.ManagedState, newFolders, newBookmarks map[string]string) {
	logger := log.WithComponent("apply")
	for key, id := range st.Bookmarks {
		if _, kept := newBookmarks[key]; kept {
			continue
		}
		if err := a.tree.Remove(id); err != nil {
			logger.Debug().Str("key", key).Err(err).Msg("Stale bookmark already gone")
		}
	}
	for key, id := range st.Folders {
		if key == types.RootFolderKey {
			continue
		}
		if _, kept := newFolders[key]; kept {
			continue
		}
		if err := a.tree.RemoveTree(id); err != nil {
			logger.Debug().Str("key", key).Err(err).Msg("Stale folder already gone")
		}
	}
}

// mergePartial folds what an aborted snapshot did create into the live
// maps so a retry reuses those nodes instead of duplicating them.
func mergePartial(st *types.ManagedState, folders, bookmarks map[string]string) {
	for key, id := range folders {
		st.Folders[key] = id
	}
	for key, id := range bookmarks {
		st.Bookmarks[key] = id
	}
	rebuildIDToKey(st)
}

func rebuildIDToKey(st *types.ManagedState) {
	st.IDToKey = make(map[string]string, len(st.Folders)+len(st.Bookmarks))
	for key, id := range st.Folders {
		st.IDToKey[id] = key
	}
	for key, id := range st.Bookmarks {
		st.IDToKey[id] = key
	}
}
