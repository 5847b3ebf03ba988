// ABOUTME: In-process history store with TTL expiry and LRU eviction
// ABOUTME: Used when no MongoDB URL is configured

package history

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memoryEntry stores a document and its position in the recency list.
type memoryEntry struct {
	doc      *Document
	storedAt time.Time
	element  *list.Element
}

// MemoryStore is a thread-safe, TTL-based, size-limited document cache.
// Uses a doubly-linked list ordered by recency for O(1) eviction.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	order   *list.List // ids, least recently used at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding at most maxSize documents for ttl each.
// A background goroutine periodically removes expired documents.
func NewMemoryStore(ttl time.Duration, maxSize int) *MemoryStore {
	if maxSize <= 0 {
		maxSize = 1
	}
	m := &MemoryStore{
		entries: make(map[string]*memoryEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

// Get returns the stored document and marks it as recently used.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	if m.expired(entry) {
		m.removeLocked(id, entry)
		return nil, ErrNotFound
	}
	m.order.MoveToBack(entry.element)
	return entry.doc, nil
}

// Put stores doc, replacing any previous document with the same id. If the
// store is at capacity the least recently used document is evicted.
func (m *MemoryStore) Put(ctx context.Context, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if entry, exists := m.entries[doc.ID]; exists {
		entry.doc = doc
		entry.storedAt = now
		m.order.MoveToBack(entry.element)
		return nil
	}

	if len(m.entries) >= m.maxSize {
		m.evictOldest()
	}

	elem := m.order.PushBack(doc.ID)
	m.entries[doc.ID] = &memoryEntry{
		doc:      doc,
		storedAt: now,
		element:  elem,
	}
	return nil
}

// Delete removes the document for id, if any.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.entries[id]; ok {
		m.removeLocked(id, entry)
	}
	return nil
}

// Clear removes every document.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]*memoryEntry)
	m.order.Init()
	return nil
}

// Len returns the number of stored documents, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		close(m.done)
		m.closed = true
	}
	return nil
}

func (m *MemoryStore) expired(entry *memoryEntry) bool {
	return m.ttl > 0 && m.now().Sub(entry.storedAt) >= m.ttl
}

// removeLocked must be called with mu held.
func (m *MemoryStore) removeLocked(id string, entry *memoryEntry) {
	m.order.Remove(entry.element)
	delete(m.entries, id)
}

// evictOldest must be called with mu held.
func (m *MemoryStore) evictOldest() {
	front := m.order.Front()
	if front == nil {
		return
	}
	id, _ := front.Value.(string)
	m.order.Remove(front)
	delete(m.entries, id)
}

func (m *MemoryStore) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.runCleanup()
		case <-m.done:
			return
		}
	}
}

// runCleanup removes all expired documents.
func (m *MemoryStore) runCleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, entry := range m.entries {
		if m.expired(entry) {
			m.removeLocked(id, entry)
		}
	}
}
