package bookmarks

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	nodesBucket = "nodes"
	metaBucket  = "meta"

	metaRootID = "rootId"
	metaNextID = "nextId"
)

// boltNode is the persisted shape of a tree node. Child order is
// explicit so sibling indexes survive restarts.
type boltNode struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId,omitempty"`
	Title     string   `json:"title"`
	URL       string   `json:"url,omitempty"`
	DateAdded int64    `json:"dateAdded"`
	ChildIDs  []string `json:"childIds,omitempty"`
}

// BoltTree is the durable Store, one bbolt database per profile
// holding the whole local tree.
type BoltTree struct {
	db     *bolt.DB
	rootID string
	broker *Broker
}

// NewBoltTree opens (or creates) the tree database under dataDir and
// guarantees the root folder exists.
func NewBoltTree(dataDir string, broker *Broker) (*BoltTree, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "bookmarks.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bookmarks database: %w", err)
	}

	t := &BoltTree{db: db, broker: broker}
	err = db.Update(func(tx *bolt.Tx) error {
		nodes, err := tx.CreateBucketIfNotExists([]byte(nodesBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", nodesBucket, err)
		}
		meta, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", metaBucket, err)
		}

		if rootID := meta.Get([]byte(metaRootID)); rootID != nil {
			t.rootID = string(rootID)
			return nil
		}

		root := &boltNode{ID: "1", Title: "Bookmarks", DateAdded: time.Now().UnixMilli()}
		if err := putBoltNode(nodes, root); err != nil {
			return err
		}
		if err := meta.Put([]byte(metaRootID), []byte(root.ID)); err != nil {
			return err
		}
		if err := meta.Put([]byte(metaNextID), []byte("2")); err != nil {
			return err
		}
		t.rootID = root.ID
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return t, nil
}

// RootID returns the id of the root folder.
func (t *BoltTree) RootID() string { return t.rootID }

// Events exposes the change broker.
func (t *BoltTree) Events() *Broker { return t.broker }

// Close closes the underlying database.
func (t *BoltTree) Close() error { return t.db.Close() }

// Get returns the node by id.
func (t *BoltTree) Get(id string) (*Node, error) {
	var node *Node
	err := t.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		rec, err := getBoltNode(nodes, id)
		if err != nil {
			return err
		}
		node = toPublicNode(nodes, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetChildren returns the ordered children of a folder.
func (t *BoltTree) GetChildren(parentID string) ([]*Node, error) {
	var children []*Node
	err := t.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		parent, err := getBoltNode(nodes, parentID)
		if err != nil {
			return err
		}
		if parent.URL != "" {
			return fmt.Errorf("%w: %s", ErrNotFolder, parentID)
		}
		children = make([]*Node, 0, len(parent.ChildIDs))
		for _, childID := range parent.ChildIDs {
			if rec, err := getBoltNode(nodes, childID); err == nil {
				children = append(children, toPublicNode(nodes, rec))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return children, nil
}

// GetTree returns the root with the whole tree under Children.
func (t *BoltTree) GetTree() (*Node, error) {
	var root *Node
	err := t.db.View(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		root = buildBoltSubtree(nodes, t.rootID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, t.rootID)
	}
	return root, nil
}

// Create inserts a bookmark (non-empty url) or folder (empty url).
func (t *BoltTree) Create(parentID, title, url string, index *int) (*Node, error) {
	var node *Node
	err := t.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		meta := tx.Bucket([]byte(metaBucket))

		parent, err := getBoltNode(nodes, parentID)
		if err != nil {
			return err
		}
		if parent.URL != "" {
			return fmt.Errorf("%w: %s", ErrNotFolder, parentID)
		}

		id, err := mintID(meta)
		if err != nil {
			return err
		}
		rec := &boltNode{
			ID:        id,
			ParentID:  parentID,
			Title:     title,
			URL:       url,
			DateAdded: time.Now().UnixMilli(),
		}
		if err := putBoltNode(nodes, rec); err != nil {
			return err
		}

		pos := clampIndex(index, len(parent.ChildIDs))
		parent.ChildIDs = insertAt(parent.ChildIDs, id, pos)
		if err := putBoltNode(nodes, parent); err != nil {
			return err
		}

		node = toPublicNode(nodes, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.publish(&Change{Type: NodeCreated, ID: node.ID, Node: node, ParentID: parentID, Index: node.Index})
	return node, nil
}

// Update rewrites title and/or url.
func (t *BoltTree) Update(id string, title, url *string) (*Node, error) {
	var node *Node
	err := t.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		rec, err := getBoltNode(nodes, id)
		if err != nil {
			return err
		}
		if id == t.rootID {
			return ErrIsRoot
		}
		if url != nil && rec.URL == "" {
			return fmt.Errorf("cannot set a url on folder %s", id)
		}

		if title != nil {
			rec.Title = *title
		}
		if url != nil {
			rec.URL = *url
		}
		if err := putBoltNode(nodes, rec); err != nil {
			return err
		}
		node = toPublicNode(nodes, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.publish(&Change{Type: NodeChanged, ID: node.ID, Node: node, ParentID: node.ParentID, Index: node.Index})
	return node, nil
}

// Move reparents and/or repositions a node.
func (t *BoltTree) Move(id, parentID string, index *int) (*Node, error) {
	var node *Node
	var oldParentID string
	var oldIndex int
	err := t.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))

		rec, err := getBoltNode(nodes, id)
		if err != nil {
			return err
		}
		if id == t.rootID {
			return ErrIsRoot
		}
		dest, err := getBoltNode(nodes, parentID)
		if err != nil {
			return err
		}
		if dest.URL != "" {
			return fmt.Errorf("%w: %s", ErrNotFolder, parentID)
		}
		if isBoltDescendant(nodes, parentID, id) {
			return ErrCycle
		}

		oldParentID = rec.ParentID
		if oldParent, err := getBoltNode(nodes, oldParentID); err == nil {
			oldIndex = indexOf(oldParent.ChildIDs, id)
			oldParent.ChildIDs = removeFrom(oldParent.ChildIDs, id)
			if err := putBoltNode(nodes, oldParent); err != nil {
				return err
			}
			if oldParentID == parentID {
				dest = oldParent
			}
		}

		pos := clampIndex(index, len(dest.ChildIDs))
		dest.ChildIDs = insertAt(dest.ChildIDs, id, pos)
		if err := putBoltNode(nodes, dest); err != nil {
			return err
		}

		rec.ParentID = parentID
		if err := putBoltNode(nodes, rec); err != nil {
			return err
		}
		node = toPublicNode(nodes, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.publish(&Change{
		Type: NodeMoved, ID: node.ID, Node: node,
		ParentID: parentID, Index: node.Index,
		OldParentID: oldParentID, OldIndex: oldIndex,
	})
	return node, nil
}

// Remove deletes a bookmark or empty folder.
func (t *BoltTree) Remove(id string) error {
	var change *Change
	err := t.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		rec, err := getBoltNode(nodes, id)
		if err != nil {
			return err
		}
		if id == t.rootID {
			return ErrIsRoot
		}
		if rec.URL == "" && len(rec.ChildIDs) > 0 {
			return fmt.Errorf("%w: %s", ErrNotEmpty, id)
		}
		change, err = detachBoltNode(nodes, rec)
		return err
	})
	if err != nil {
		return err
	}
	t.publish(change)
	return nil
}

// RemoveTree deletes a node and its whole subtree.
func (t *BoltTree) RemoveTree(id string) error {
	var change *Change
	err := t.db.Update(func(tx *bolt.Tx) error {
		nodes := tx.Bucket([]byte(nodesBucket))
		rec, err := getBoltNode(nodes, id)
		if err != nil {
			return err
		}
		if id == t.rootID {
			return ErrIsRoot
		}
		if err := deleteBoltSubtree(nodes, rec.ChildIDs); err != nil {
			return err
		}
		change, err = detachBoltNode(nodes, rec)
		return err
	})
	if err != nil {
		return err
	}
	t.publish(change)
	return nil
}

func (t *BoltTree) publish(change *Change) {
	if t.broker != nil && change != nil {
		t.broker.Publish(change)
	}
}

func mintID(meta *bolt.Bucket) (string, error) {
	next := 1
	if raw := meta.Get([]byte(metaNextID)); raw != nil {
		parsed, err := strconv.Atoi(string(raw))
		if err != nil {
			return "", fmt.Errorf("corrupt id counter: %w", err)
		}
		next = parsed
	}
	if err := meta.Put([]byte(metaNextID), []byte(strconv.Itoa(next+1))); err != nil {
		return "", err
	}
	return strconv.Itoa(next), nil
}

func getBoltNode(nodes *bolt.Bucket, id string) (*boltNode, error) {
	raw := nodes.Get([]byte(id))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec boltNode
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node %s: %w", id, err)
	}
	return &rec, nil
}

func putBoltNode(nodes *bolt.Bucket, rec *boltNode) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal node %s: %w", rec.ID, err)
	}
	return nodes.Put([]byte(rec.ID), data)
}

func detachBoltNode(nodes *bolt.Bucket, rec *boltNode) (*Change, error) {
	node := toPublicNode(nodes, rec)
	if parent, err := getBoltNode(nodes, rec.ParentID); err == nil {
		parent.ChildIDs = removeFrom(parent.ChildIDs, rec.ID)
		if err := putBoltNode(nodes, parent); err != nil {
			return nil, err
		}
	}
	if err := nodes.Delete([]byte(rec.ID)); err != nil {
		return nil, err
	}
	return &Change{Type: NodeRemoved, ID: node.ID, Node: node, ParentID: node.ParentID, Index: node.Index}, nil
}

func deleteBoltSubtree(nodes *bolt.Bucket, ids []string) error {
	for _, id := range ids {
		rec, err := getBoltNode(nodes, id)
		if err != nil {
			continue
		}
		if err := deleteBoltSubtree(nodes, rec.ChildIDs); err != nil {
			return err
		}
		if err := nodes.Delete([]byte(id)); err != nil {
			return err
		}
	}
	return nil
}

func buildBoltSubtree(nodes *bolt.Bucket, id string) *Node {
	rec, err := getBoltNode(nodes, id)
	if err != nil {
		return nil
	}
	node := toPublicNode(nodes, rec)
	for _, childID := range rec.ChildIDs {
		if child := buildBoltSubtree(nodes, childID); child != nil {
			node.Children = append(node.Children, child)
		}
	}
	return node
}

func isBoltDescendant(nodes *bolt.Bucket, candidate, ancestorID string) bool {
	for candidate != "" {
		if candidate == ancestorID {
			return true
		}
		rec, err := getBoltNode(nodes, candidate)
		if err != nil {
			return false
		}
		candidate = rec.ParentID
	}
	return false
}

func toPublicNode(nodes *bolt.Bucket, rec *boltNode) *Node {
	index := 0
	if parent, err := getBoltNode(nodes, rec.ParentID); err == nil {
		index = indexOf(parent.ChildIDs, rec.ID)
	}
	return &Node{
		ID:        rec.ID,
		ParentID:  rec.ParentID,
		Index:     index,
		Title:     rec.Title,
		URL:       rec.URL,
		DateAdded: rec.DateAdded,
	}
}
