// Package memory provides agent memory: a bounded short-term buffer, long-term stores keyed by agent
// and section, and a collaborative insight exchange shared across sections.
package memory

import "sync"

// DefaultShortTermCapacity is the buffer size used by sub-agents.
const DefaultShortTermCapacity = 10

// ShortTermMemory keeps the most recent items up to a fixed capacity.
type ShortTermMemory[T any] struct {
	mu       sync.Mutex
	capacity int
	items    []T
}

// NewShortTermMemory creates a buffer. A capacity below 1 uses DefaultShortTermCapacity.
func NewShortTermMemory[T any](capacity int) *ShortTermMemory[T] {
	if capacity < 1 {
		capacity = DefaultShortTermCapacity
	}
	return &ShortTermMemory[T]{capacity: capacity}
}

// Add appends an item, evicting the oldest when full.
func (m *ShortTermMemory[T]) Add(item T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, item)
	if over := len(m.items) - m.capacity; over > 0 {
		m.items = append([]T(nil), m.items[over:]...)
	}
}

// Items returns the buffered items, oldest first.
func (m *ShortTermMemory[T]) Items() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]T(nil), m.items...)
}

// Len returns the number of buffered items.
func (m *ShortTermMemory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
