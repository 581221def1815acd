// Package store holds dialogue sessions and the returning-user registry.
package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"content_ideas_assistant/dialogue"
)

// MemorySessions keeps sessions in process memory. Sessions are copied on
// the way in and out so callers never share state.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[int64]*dialogue.Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[int64]*dialogue.Session)}
}

func (m *MemorySessions) Load(_ context.Context, userID int64) (*dialogue.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return s.Clone(), nil
}

func (m *MemorySessions) Save(_ context.Context, s *dialogue.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = s.Clone()
	return nil
}

// Len returns the number of stored sessions.
func (m *MemorySessions) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than ttl and returns how many went.
func (m *MemorySessions) Sweep(ttl time.Duration, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if now.Sub(s.LastActivity) > ttl {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (m *MemorySessions) Run(ctx context.Context, interval, ttl time.Duration, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.Sweep(ttl, now); n > 0 {
				logger.Info("idle sessions evicted", zap.Int("count", n), zap.Int("remaining", m.Len()))
			}
		}
	}
}

// MemoryRegistry remembers visits until the process exits.
type MemoryRegistry struct {
	mu     sync.Mutex
	visits map[int64]dialogue.Visit
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{visits: make(map[int64]dialogue.Visit)}
}

func (r *MemoryRegistry) Touch(_ context.Context, userID int64, now time.Time) (dialogue.Visit, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.visits[userID]
	r.visits[userID] = dialogue.Visit{LastInteraction: now, SessionCount: prev.SessionCount + 1}
	return prev, ok, nil
}

func (r *MemoryRegistry) Close() error { return nil }
