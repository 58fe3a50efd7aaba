package receipt

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/cafe-pos/internal/port"
)

// MemorySink keeps receipts in process. Used for dry runs and tests.
type MemorySink struct {
	mu       sync.RWMutex
	receipts map[string]port.Receipt
}

func NewMemorySink() *MemorySink {
	return &MemorySink{receipts: make(map[string]port.Receipt)}
}

func (s *MemorySink) Write(ctx context.Context, r port.Receipt) (string, error) {
	id := uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.receipts[id] = r
	return id, nil
}

func (s *MemorySink) Get(id string) (port.Receipt, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	return r, ok
}

func (s *MemorySink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.receipts)
}
