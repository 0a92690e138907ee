package ratelimit

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Limiter decides whether another request for key fits in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a fixed-window limiter for single-instance deployments and tests.
type Memory struct {
	limit  int
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	count int
	reset time.Time
}

// NewMemory constructs an in-process limiter. It returns nil when limit or window is not positive,
// and a nil *Memory allows every request.
func NewMemory(limit int, window time.Duration, clock func() time.Time) *Memory {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &Memory{limit: limit, window: window, clock: clock, entries: make(map[string]memoryEntry)}
}

// Allow implements Limiter.
func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	if m == nil {
		return true, nil
	}
	key = normaliseKey(key)
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok || !now.Before(entry.reset) {
		m.prune(now)
		m.entries[key] = memoryEntry{count: 1, reset: now.Add(m.window)}
		return true, nil
	}
	if entry.count >= m.limit {
		return false, nil
	}
	entry.count++
	m.entries[key] = entry
	return true, nil
}

func (m *Memory) prune(now time.Time) {
	for key, entry := range m.entries {
		if !now.Before(entry.reset) {
			delete(m.entries, key)
		}
	}
}

func normaliseKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "anonymous"
	}
	return key
}
