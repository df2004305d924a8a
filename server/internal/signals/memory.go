package signals

import (
	"context"
	"sync"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Memory is a thread-safe in-memory Store keyed by date.
type Memory struct {
	mu   sync.RWMutex
	data map[string]types.EnvironmentalSignal
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]types.EnvironmentalSignal)}
}

// Get returns a copy of the signal for date.
func (m *Memory) Get(_ context.Context, date string) (*types.EnvironmentalSignal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[date]
	if !ok {
		return nil, fault.MissingSignal(date)
	}
	return &s, nil
}

// Put validates and stores s, replacing any signal for the same date.
func (m *Memory) Put(_ context.Context, s *types.EnvironmentalSignal) error {
	if err := Validate(s); err != nil {
		return err
	}
	m.mu.Lock()
	m.data[s.Date] = *s
	m.mu.Unlock()
	return nil
}
