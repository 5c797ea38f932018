package bookmarks

import (
	"fmt"
	"strconv"
	"sync"
	"time"
)

// memRecord is the stored shape of a node; child order is explicit so
// sibling indexes survive restarts and moves.
type memRecord struct {
	id        string
	parentID  string
	title     string
	url       string
	dateAdded int64
	childIDs  []string
}

// MemTree is an in-memory Store. It backs tests and the --memory
// daemon mode; the durable variant is BoltTree.
type MemTree struct {
	mu     sync.RWMutex
	nodes  map[string]*memRecord
	rootID string
	nextID int
	broker *Broker
}

// NewMemTree creates an empty tree containing only the root folder.
func NewMemTree(broker *Broker) *MemTree {
	t := &MemTree{
		nodes:  make(map[string]*memRecord),
		rootID: "1",
		nextID: 2,
		broker: broker,
	}
	t.nodes[t.rootID] = &memRecord{
		id:        t.rootID,
		title:     "Bookmarks",
		dateAdded: time.Now().UnixMilli(),
	}
	return t
}

// RootID returns the id of the root folder.
func (t *MemTree) RootID() string { return t.rootID }

// Events exposes the change broker.
func (t *MemTree) Events() *Broker { return t.broker }

// Close is a no-op for the in-memory tree.
func (t *MemTree) Close() error { return nil }

// Get returns the node by id.
func (t *MemTree) Get(id string) (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return t.toNode(rec), nil
}

// GetChildren returns the ordered children of a folder.
func (t *MemTree) GetChildren(parentID string) ([]*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	parent, ok := t.nodes[parentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if parent.url != "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, parentID)
	}
	children := make([]*Node, 0, len(parent.childIDs))
	for _, childID := range parent.childIDs {
		if child, ok := t.nodes[childID]; ok {
			children = append(children, t.toNode(child))
		}
	}
	return children, nil
}

// GetTree returns the root with the whole tree under Children.
func (t *MemTree) GetTree() (*Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buildSubtree(t.rootID), nil
}

// Create inserts a bookmark (non-empty url) or folder (empty url).
func (t *MemTree) Create(parentID, title, url string, index *int) (*Node, error) {
	t.mu.Lock()
	parent, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if parent.url != "" {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, parentID)
	}

	rec := &memRecord{
		id:        strconv.Itoa(t.nextID),
		parentID:  parentID,
		title:     title,
		url:       url,
		dateAdded: time.Now().UnixMilli(),
	}
	t.nextID++
	t.nodes[rec.id] = rec

	pos := clampIndex(index, len(parent.childIDs))
	parent.childIDs = insertAt(parent.childIDs, rec.id, pos)

	node := t.toNode(rec)
	t.mu.Unlock()

	t.publish(&Change{Type: NodeCreated, ID: node.ID, Node: node, ParentID: parentID, Index: node.Index})
	return node, nil
}

// Update rewrites title and/or url.
func (t *MemTree) Update(id string, title, url *string) (*Node, error) {
	t.mu.Lock()
	rec, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return nil, ErrIsRoot
	}
	if url != nil && rec.url == "" {
		t.mu.Unlock()
		return nil, fmt.Errorf("cannot set a url on folder %s", id)
	}

	if title != nil {
		rec.title = *title
	}
	if url != nil {
		rec.url = *url
	}
	node := t.toNode(rec)
	t.mu.Unlock()

	t.publish(&Change{Type: NodeChanged, ID: node.ID, Node: node, ParentID: node.ParentID, Index: node.Index})
	return node, nil
}

// Move reparents and/or repositions a node.
func (t *MemTree) Move(id, parentID string, index *int) (*Node, error) {
	t.mu.Lock()
	rec, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return nil, ErrIsRoot
	}
	dest, ok := t.nodes[parentID]
	if !ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, parentID)
	}
	if dest.url != "" {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFolder, parentID)
	}
	if t.isDescendant(parentID, id) {
		t.mu.Unlock()
		return nil, ErrCycle
	}

	oldParentID := rec.parentID
	oldIndex := 0
	if oldParent, ok := t.nodes[oldParentID]; ok {
		oldIndex = indexOf(oldParent.childIDs, id)
		oldParent.childIDs = removeFrom(oldParent.childIDs, id)
	}

	pos := clampIndex(index, len(dest.childIDs))
	dest.childIDs = insertAt(dest.childIDs, id, pos)
	rec.parentID = parentID

	node := t.toNode(rec)
	t.mu.Unlock()

	t.publish(&Change{
		Type: NodeMoved, ID: node.ID, Node: node,
		ParentID: parentID, Index: node.Index,
		OldParentID: oldParentID, OldIndex: oldIndex,
	})
	return node, nil
}

// Remove deletes a bookmark or empty folder.
func (t *MemTree) Remove(id string) error {
	t.mu.Lock()
	rec, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return ErrIsRoot
	}
	if rec.url == "" && len(rec.childIDs) > 0 {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotEmpty, id)
	}
	change := t.detachLocked(rec)
	t.mu.Unlock()

	t.publish(change)
	return nil
}

// RemoveTree deletes a node and its whole subtree.
func (t *MemTree) RemoveTree(id string) error {
	t.mu.Lock()
	rec, ok := t.nodes[id]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if id == t.rootID {
		t.mu.Unlock()
		return ErrIsRoot
	}
	t.deleteSubtreeLocked(rec.childIDs)
	change := t.detachLocked(rec)
	t.mu.Unlock()

	t.publish(change)
	return nil
}

// detachLocked unlinks rec from its parent, deletes it, and builds the
// removal change with the last-known snapshot.
func (t *MemTree) detachLocked(rec *memRecord) *Change {
	node := t.toNode(rec)
	if parent, ok := t.nodes[rec.parentID]; ok {
		parent.childIDs = removeFrom(parent.childIDs, rec.id)
	}
	delete(t.nodes, rec.id)
	return &Change{Type: NodeRemoved, ID: node.ID, Node: node, ParentID: node.ParentID, Index: node.Index}
}

func (t *MemTree) deleteSubtreeLocked(ids []string) {
	for _, id := range ids {
		if rec, ok := t.nodes[id]; ok {
			t.deleteSubtreeLocked(rec.childIDs)
			delete(t.nodes, id)
		}
	}
}

func (t *MemTree) buildSubtree(id string) *Node {
	rec, ok := t.nodes[id]
	if !ok {
		return nil
	}
	node := t.toNode(rec)
	for _, childID := range rec.childIDs {
		if child := t.buildSubtree(childID); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

// isDescendant reports whether candidate sits inside the subtree
// rooted at ancestorID.
func (t *MemTree) isDescendant(candidate, ancestorID string) bool {
	for candidate != "" {
		if candidate == ancestorID {
			return true
		}
		rec, ok := t.nodes[candidate]
		if !ok {
			return false
		}
		candidate = rec.parentID
	}
	return false
}

func (t *MemTree) toNode(rec *memRecord) *Node {
	index := 0
	if parent, ok := t.nodes[rec.parentID]; ok {
		index = indexOf(parent.childIDs, rec.id)
	}
	return &Node{
		ID:        rec.id,
		ParentID:  rec.parentID,
		Index:     index,
		Title:     rec.title,
		URL:       rec.url,
		DateAdded: rec.dateAdded,
	}
}

func (t *MemTree) publish(change *Change) {
	if t.broker != nil {
		t.broker.Publish(change)
	}
}

func clampIndex(index *int, size int) int {
	if index == nil {
		return size
	}
	pos := *index
	if pos < 0 {
		return 0
	}
	if pos > size {
		return size
	}
	return pos
}

func insertAt(ids []string, id string, pos int) []string {
	ids = append(ids, "")
	copy(ids[pos+1:], ids[pos:])
	ids[pos] = id
	return ids
}

func removeFrom(ids []string, id string) []string {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func indexOf(ids []string, id string) int {
	for i, existing := range ids {
		if existing == id {
			return i
		}
	}
	return 0
}
