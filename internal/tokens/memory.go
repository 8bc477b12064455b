package tokens

import (
	"context"
	"sync"
	"time"
)

// Memory tracks consumed token ids in process. Entries are kept until the
// token itself would have expired.
type Memory struct {
	mu       sync.Mutex
	consumed map[string]time.Time
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		consumed: make(map[string]time.Time),
		now:      time.Now,
	}
}

func (m *Memory) Consume(_ context.Context, jti string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if until, exists := m.consumed[jti]; exists && now.Before(until) {
		return false, nil
	}
	m.consumed[jti] = now.Add(ttl)
	return true, nil
}

// Cleanup forgets ids whose tokens can no longer validate anyway.
func (m *Memory) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for jti, until := range m.consumed {
		if !now.Before(until) {
			delete(m.consumed, jti)
		}
	}
}

// Run calls Cleanup every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.consumed)
}
