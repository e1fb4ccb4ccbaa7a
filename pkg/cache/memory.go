package cache

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"
)

// memoryStore is a process-local Store used when no Redis endpoint is
// configured, and in tests. TTLs are honored lazily on read.
type memoryStore struct {
	mu          sync.Mutex
	values      map[string]memoryEntry
	lists       map[string][]string
	subscribers map[string][]func(payload string)
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore builds an empty in-process store.
func NewMemoryStore() Store {
	return &memoryStore{
		values:      make(map[string]memoryEntry),
		lists:       make(map[string][]string),
		subscribers: make(map[string][]func(payload string)),
	}
}

func (m *memoryStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.values[key]
	if !ok {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(m.values, key)
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return entry.data, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("marshal value for key %s: %w", key, err)
	}
	entry := memoryEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.values[key] = entry
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.values, key)
	delete(m.lists, key)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for key := range m.values {
		if ok, _ := path.Match(pattern, key); ok {
			out = append(out, key)
		}
	}
	return out, nil
}

func (m *memoryStore) PushBounded(_ context.Context, key string, value interface{}, maxLen int64) error {
	data, err := encode(value)
	if err != nil {
		return fmt.Errorf("marshal value for list %s: %w", key, err)
	}
	m.mu.Lock()
	list := append([]string{string(data)}, m.lists[key]...)
	if maxLen > 0 && int64(len(list)) > maxLen {
		list = list[:maxLen]
	}
	m.lists[key] = list
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	n := int64(len(list))
	if n == 0 {
		return nil, nil
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out, nil
}

func (m *memoryStore) Publish(_ context.Context, channel string, payload interface{}) error {
	data, err := encode(payload)
	if err != nil {
		return fmt.Errorf("marshal payload for channel %s: %w", channel, err)
	}
	m.mu.Lock()
	handlers := make([]func(string), len(m.subscribers[channel]))
	copy(handlers, m.subscribers[channel])
	m.mu.Unlock()

	for _, h := range handlers {
		h(string(data))
	}
	return nil
}

func (m *memoryStore) Subscribe(_ context.Context, channel string, handler func(payload string)) error {
	m.mu.Lock()
	m.subscribers[channel] = append(m.subscribers[channel], handler)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) HealthCheck(context.Context) error { return nil }

func (m *memoryStore) Close() error { return nil }
