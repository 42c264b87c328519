// Package peers caches resolved peer references (access hashes and
// addressing kind) seen in dialog listings, so later history and delete
// calls can address a chat without re-listing dialogs.
//
// Bounded LRU: a hash map for O(1) lookup plus a doubly linked list for
// O(1) eviction ordering.
package peers

import "sync"

// Ref is the addressing information for one peer.
type Ref struct {
	AccessHash int64
	Channel    bool // addressed through the channel namespace
}

type node struct {
	key  int64
	ref  Ref
	prev *node
	next *node
}

// Cache is a thread-safe bounded cache of peer references keyed by
// chat ID.
type Cache struct {
	mu       sync.Mutex
	capacity int
	items    map[int64]*node
	head     *node // most recently used (sentinel)
	tail     *node // least recently used (sentinel)
}

// NewCache creates a peer cache with the given capacity.
// Panics if capacity < 1.
func NewCache(capacity int) *Cache {
	if capacity < 1 {
		panic("peers: capacity must be >= 1")
	}
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head
	return &Cache{
		capacity: capacity,
		items:    make(map[int64]*node, capacity),
		head:     head,
		tail:     tail,
	}
}

// Get retrieves a peer reference by chat ID.
func (c *Cache) Get(chatID int64) (Ref, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[chatID]
	if !ok {
		return Ref{}, false
	}
	c.moveToFront(n)
	return n.ref, true
}

// Put inserts or updates a peer reference, evicting the least recently
// used entry at capacity.
func (c *Cache) Put(chatID int64, ref Ref) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.items[chatID]; ok {
		n.ref = ref
		c.moveToFront(n)
		return
	}

	if len(c.items) >= c.capacity {
		victim := c.tail.prev
		c.remove(victim)
		delete(c.items, victim.key)
	}

	n := &node{key: chatID, ref: ref}
	c.items[chatID] = n
	c.pushFront(n)
}

// Len returns the current number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// --- linked list operations (caller must hold mu) ---

func (c *Cache) remove(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

func (c *Cache) pushFront(n *node) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache) moveToFront(n *node) {
	c.remove(n)
	c.pushFront(n)
}
