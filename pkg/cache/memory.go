package cache

import (
	"context"
	"sync"
	"time"
)

type memoryItem struct {
	value    interface{}
	expireAt time.Time
}

func (m memoryItem) expired() bool {
	return time.Now().After(m.expireAt)
}

// Memory implements Service with a mutex-protected map. Expired entries are
// dropped lazily on read and swept periodically.
type Memory struct {
	mu   sync.RWMutex
	data map[string]memoryItem
}

// NewMemory creates an in-memory cache and starts its sweeper.
func NewMemory(sweep time.Duration) *Memory {
	m := &Memory{data: make(map[string]memoryItem)}
	if sweep > 0 {
		go m.sweeper(sweep)
	}
	return m
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	expireAt := time.Now().Add(ttl)
	if ttl <= 0 {
		expireAt = time.Now().Add(24 * time.Hour)
	}
	m.mu.Lock()
	m.data[key] = memoryItem{value: value, expireAt: expireAt}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (interface{}, error) {
	m.mu.RLock()
	item, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if item.expired() {
		m.mu.Lock()
		delete(m.data, key)
		m.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return item.value, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) sweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		m.mu.Lock()
		for k, item := range m.data {
			if item.expired() {
				delete(m.data, k)
			}
		}
		m.mu.Unlock()
	}
}
