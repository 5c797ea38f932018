package nodeindex

import (
	"strconv"
	"strings"

	"github.com/notebridge/marksync/pkg/types"
)

// IsManagedFolder reports whether the local folder id belongs to the
// managed tree.
func IsManagedFolder(st *types.ManagedState, id string) bool {
	if st == nil || id == "" {
		return false
	}
	if key, ok := st.IDToKey[id]; ok {
		_, managed := st.Folders[key]
		return managed
	}
	return scanFolders(st, id) != ""
}

// IsManagedBookmark reports whether the local bookmark id belongs to
// the managed tree.
func IsManagedBookmark(st *types.ManagedState, id string) bool {
	if st == nil || id == "" {
		return false
	}
	if key, ok := st.IDToKey[id]; ok {
		_, managed := st.Bookmarks[key]
		return managed
	}
	return scanBookmarks(st, id) != ""
}

// KeyForID resolves a local id to its managed key, bookmark or folder.
// The first miss scans both forward maps and memoizes the hit in
// idToKey, so repeated lookups stay O(1). Returns "" for unmanaged
// ids.
func KeyForID(st *types.ManagedState, id string) string {
	if st == nil || id == "" {
		return ""
	}
	if key, ok := st.IDToKey[id]; ok {
		return key
	}
	if key := scanBookmarks(st, id); key != "" {
		return key
	}
	return scanFolders(st, id)
}

// FolderKeyForID resolves a local folder id to its managed folder key,
// or "" when the folder is unmanaged.
func FolderKeyForID(st *types.ManagedState, id string) string {
	if st == nil || id == "" {
		return ""
	}
	if key, ok := st.IDToKey[id]; ok {
		if _, managed := st.Folders[key]; managed {
			return key
		}
	}
	return scanFolders(st, id)
}

// RecordMapping memoizes id → key in the reverse map.
func RecordMapping(st *types.ManagedState, id, key string) {
	if st == nil || id == "" || key == "" {
		return
	}
	if st.IDToKey == nil {
		st.IDToKey = make(map[string]string)
	}
	st.IDToKey[id] = key
}

// DeriveBookmarkKey computes the managed key for a bookmark created
// locally. Derivation is deterministic:
//
//  1. a known mapping for the id wins;
//  2. otherwise the parent folder decides: a note folder yields
//     "<notePath>|<index>", a plain managed folder yields its own key,
//     and any other parent with a title yields "folder:<title>";
//  3. with nothing to go on the key falls back to "bookmark:<id>".
//
// index is the bookmark's position among its siblings; nil counts as
// position zero. Callers record the result with RecordMapping before
// enqueueing so a later update to the same bookmark coalesces.
func DeriveBookmarkKey(st *types.ManagedState, id, parentID, parentTitle string, index *int) string {
	if key := KeyForID(st, id); key != "" {
		return key
	}

	parentKey := FolderKeyForID(st, parentID)
	switch {
	case strings.HasPrefix(parentKey, types.NotePrefix):
		pos := 0
		if index != nil {
			pos = *index
		}
		return strings.TrimPrefix(parentKey, types.NotePrefix) + "|" + strconv.Itoa(pos)
	case strings.HasPrefix(parentKey, types.FolderPrefix):
		return parentKey
	case parentTitle != "":
		return types.FolderPrefix + parentTitle
	}
	return types.BookmarkPrefix + id
}

func scanFolders(st *types.ManagedState, id string) string {
	for key, folderID := range st.Folders {
		if folderID == id {
			RecordMapping(st, id, key)
			return key
		}
	}
	return ""
}

func scanBookmarks(st *types.ManagedState, id string) string {
	for key, bookmarkID := range st.Bookmarks {
		if bookmarkID == id {
			RecordMapping(st, id, key)
			return key
		}
	}
	return ""
}
