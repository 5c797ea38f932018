package bookmarks

import (
	"errors"
)

// Node is one entry in the local bookmark tree. A node with an empty
// URL is a folder. Index is the node's position among its siblings.
// Children is populated only by GetTree.
type Node struct {
	ID        string  `json:"id"`
	ParentID  string  `json:"parentId,omitempty"`
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	URL       string  `json:"url,omitempty"`
	DateAdded int64   `json:"dateAdded,omitempty"`
	Children  []*Node `json:"children,omitempty"`
}

// IsFolder reports whether the node can hold children.
func (n *Node) IsFolder() bool {
	return n != nil && n.URL == ""
}

var (
	// ErrNotFound is returned when the node id does not exist.
	ErrNotFound = errors.New("bookmark node not found")

	// ErrNotFolder is returned when a child operation targets a
	// bookmark instead of a folder.
	ErrNotFolder = errors.New("node is not a folder")

	// ErrNotEmpty is returned by Remove for a folder that still has
	// children; RemoveTree deletes recursively.
	ErrNotEmpty = errors.New("folder is not empty")

	// ErrIsRoot is returned for mutations of the root node.
	ErrIsRoot = errors.New("cannot modify the root node")

	// ErrCycle is returned by Move when the destination lies inside
	// the moved subtree.
	ErrCycle = errors.New("cannot move a folder into its own subtree")
)

// Store is the local bookmark tree the agent manages. Mutations emit a
// Change on the store's broker after they commit, which is how the
// capture handlers observe user edits.
type Store interface {
	// Get returns the node by id.
	Get(id string) (*Node, error)

	// GetChildren returns the ordered children of a folder.
	GetChildren(parentID string) ([]*Node, error)

	// GetTree returns the root with the full tree materialized under
	// Children.
	GetTree() (*Node, error)

	// Create inserts a new node under parentID. An empty url creates a
	// folder. A nil index appends; otherwise the index is clamped to
	// the valid sibling range.
	Create(parentID, title, url string, index *int) (*Node, error)

	// Update rewrites the title and/or url of a node. Nil pointers
	// leave the field as is. Setting a url on a folder fails.
	Update(id string, title, url *string) (*Node, error)

	// Move reparents and/or repositions a node. A nil index appends at
	// the end of the destination folder.
	Move(id, parentID string, index *int) (*Node, error)

	// Remove deletes a bookmark or an empty folder.
	Remove(id string) error

	// RemoveTree deletes a node and, for folders, everything beneath
	// it.
	RemoveTree(id string) error

	// Events exposes the change broker mutations publish to.
	Events() *Broker

	// Close releases the underlying storage.
	Close() error
}
