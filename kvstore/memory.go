package kvstore

import "sync"

var (
	_ Versioned = (*Memory)(nil)
	_ Notifier  = (*Memory)(nil)
)

type memoryEntry struct {
	value   string
	version uint64
}

// Memory is an in-process Store. It backs tests, the tab-local store of each
// window and the durable store when no data file is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   uint64 // versions are drawn from one counter so a removed key never reuses one
	listeners
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
	}
}

func (m *Memory) Get(key string) (string, bool, error) {
	value, _, ok, err := m.GetVersioned(key)
	return value, ok, err
}

func (m *Memory) GetVersioned(key string) (string, uint64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[key]
	if !ok {
		return "", 0, false, nil
	}
	return e.value, e.version, true, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	old := m.entries[key]
	m.put(key, value)
	m.mu.Unlock()

	m.publish(Change{Key: key, OldValue: old.value, NewValue: value})
	return nil
}

func (m *Memory) CompareAndSet(key, value string, version uint64) (bool, error) {
	m.mu.Lock()
	old, ok := m.entries[key]
	if (version == 0 && ok) || (version != 0 && (!ok || old.version != version)) {
		m.mu.Unlock()
		return false, nil
	}
	m.put(key, value)
	m.mu.Unlock()

	m.publish(Change{Key: key, OldValue: old.value, NewValue: value})
	return true, nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	old, ok := m.entries[key]
	delete(m.entries, key)
	m.mu.Unlock()

	if ok {
		m.publish(Change{Key: key, OldValue: old.value, Removed: true})
	}
	return nil
}

// Clear drops every key, like closing a tab discards its session storage.
func (m *Memory) Clear() {
	m.mu.Lock()
	removed := m.entries
	m.entries = make(map[string]memoryEntry)
	m.mu.Unlock()

	for k, e := range removed {
		m.publish(Change{Key: k, OldValue: e.value, Removed: true})
	}
}

// Keys returns the stored keys in no particular order.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

func (m *Memory) put(key, value string) {
	if m.entries == nil {
		m.entries = make(map[string]memoryEntry)
	}
	m.clock++
	m.entries[key] = memoryEntry{value: value, version: m.clock}
}
