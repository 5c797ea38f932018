package bookmarks

import (
	"sync"
	"time"
)

// ChangeType represents the kind of tree mutation being announced.
type ChangeType string

const (
	NodeCreated ChangeType = "node.created"
	NodeChanged ChangeType = "node.changed"
	NodeRemoved ChangeType = "node.removed"
	NodeMoved   ChangeType = "node.moved"
	ImportBegan ChangeType = "import.began"
	ImportEnded ChangeType = "import.ended"
)

// Change describes one observed tree mutation. Node is a snapshot
// taken when the mutation committed; for removals it is the last known
// state of the node. Import markers carry no node.
type Change struct {
	Type        ChangeType
	ID          string
	Node        *Node
	ParentID    string
	Index       int
	OldParentID string
	OldIndex    int
	Timestamp   time.Time
}

// Subscriber is a channel that receives tree changes.
type Subscriber chan *Change

// Broker distributes tree changes to subscribers. Slow subscribers
// drop changes rather than block mutations.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	changeCh    chan *Change
	stopCh      chan struct{}
}

// NewBroker creates a broker ready to Start.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		changeCh:    make(chan *Change, 100), // Buffer up to 100 changes
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes a change to all subscribers.
func (b *Broker) Publish(change *Change) {
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now()
	}

	select {
	case b.changeCh <- change:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case change := <-b.changeCh:
			b.broadcast(change)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(change *Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- change:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
