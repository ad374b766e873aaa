package radar

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// memo is a claim-or-reuse cache. Concurrent first calls for a key share
// one computation; errors are returned to every waiter but not stored.
type memo[K comparable, V any] struct {
	mu    sync.RWMutex
	cells map[K]V
	group singleflight.Group
}

func newMemo[K comparable, V any]() *memo[K, V] {
	return &memo[K, V]{cells: make(map[K]V)}
}

// get returns the cached value for key, computing it with fn on a miss.
// hit reports whether the value was already stored.
func (m *memo[K, V]) get(key K, fn func() (V, error)) (v V, hit bool, err error) {
	m.mu.RLock()
	v, ok := m.cells[key]
	cells := m.cells
	m.mu.RUnlock()
	if ok {
		return v, true, nil
	}
	if cells == nil {
		return v, false, ErrClosed
	}

	res, err, _ := m.group.Do(fmt.Sprintf("%#v", key), func() (any, error) {
		val, err := fn()
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		if m.cells != nil {
			m.cells[key] = val
		}
		m.mu.Unlock()
		return val, nil
	})
	if err != nil {
		return v, false, err
	}
	return res.(V), false, nil
}

// len returns the number of stored cells.
func (m *memo[K, V]) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cells)
}

// reset drops every cell. Later gets fail with ErrClosed.
func (m *memo[K, V]) reset() {
	m.mu.Lock()
	m.cells = nil
	m.mu.Unlock()
}
