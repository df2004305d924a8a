package hospital

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Memory is a thread-safe in-memory Repository.
type Memory struct {
	mu   sync.RWMutex
	data map[string]*types.HospitalState
	now  func() time.Time
}

// NewMemory returns an empty Memory repository.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]*types.HospitalState),
		now:  time.Now,
	}
}

// Get returns a copy of the stored state.
func (m *Memory) Get(_ context.Context, hospitalID string) (*types.HospitalState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.data[hospitalID]
	if !ok {
		return nil, fault.MissingState(hospitalID)
	}
	cp := *s
	return &cp, nil
}

// Put validates and stores a copy of s.
func (m *Memory) Put(_ context.Context, s *types.HospitalState) (*types.HospitalState, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	cp := *s
	cp.UpdatedAt = m.now().UTC()

	m.mu.Lock()
	m.data[cp.HospitalID] = &cp
	m.mu.Unlock()

	out := cp
	return &out, nil
}

// List returns the known hospital IDs, sorted.
func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	ids := make([]string, 0, len(m.data))
	for id := range m.data {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}
