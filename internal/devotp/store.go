// Package devotp provides an in-memory store for OTP by request id, used only
// when dev OTP mode is enabled (GET /api/dev/otp). Not used in production.
package devotp

import (
	"context"
	"sync"
	"time"

	"migrant-health-access/backend/internal/clock"
)

// Store holds plain OTP by access grant request id for dev-only retrieval.
type Store interface {
	// Put stores otp for requestID until expiresAt.
	Put(ctx context.Context, requestID, otp string, expiresAt time.Time)
	// Get returns the otp for requestID if present and not expired.
	Get(ctx context.Context, requestID string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu  sync.RWMutex
	m   map[string]entry
	clk clock.Clock
}

// NewMemoryStore returns a new in-memory dev OTP store using the given clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &MemoryStore{
		m:   make(map[string]entry),
		clk: clk,
	}
}

// Put stores otp for requestID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, requestID, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[requestID] = entry{otp: otp, expiresAt: expiresAt}
}

// Get returns the otp for requestID if present and not expired. Expired
// entries are removed on read.
func (s *MemoryStore) Get(ctx context.Context, requestID string) (string, bool) {
	s.mu.RLock()
	e, ok := s.m[requestID]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	if !e.expiresAt.After(s.clk.Now()) {
		s.mu.Lock()
		delete(s.m, requestID)
		s.mu.Unlock()
		return "", false
	}
	return e.otp, true
}
