package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Memory is an in-memory Ledger. Each hospital's entries are kept in
// ascending ComputedAt order, so Append is an amortized O(1) slice append and
// Query a binary search.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]*types.Briefing
}

// NewMemory returns an empty Memory ledger.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]*types.Briefing)}
}

// Append records b.
func (m *Memory) Append(_ context.Context, b *types.Briefing) error {
	if err := checkAppend(b); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.entries[b.HospitalID]
	if n := len(list); n > 0 && !b.ComputedAt.After(list[n-1].ComputedAt) {
		return fault.New(fault.KindConflict,
			"briefing for %q computed at %s is not after the last entry (%s)",
			b.HospitalID, b.ComputedAt.Format(time.RFC3339Nano), list[n-1].ComputedAt.Format(time.RFC3339Nano))
	}
	m.entries[b.HospitalID] = append(list, b)
	return nil
}

// Query returns the newest limit entries strictly before before.
func (m *Memory) Query(_ context.Context, hospitalID string, limit int, before time.Time) ([]*types.Briefing, error) {
	if err := checkQuery(limit); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.entries[hospitalID]
	end := len(list)
	if !before.IsZero() {
		// first index with ComputedAt >= before
		end = sort.Search(len(list), func(i int) bool {
			return !list[i].ComputedAt.Before(before)
		})
	}

	out := make([]*types.Briefing, 0, min(limit, end))
	for i := end - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

// Len returns the number of entries recorded for hospitalID.
func (m *Memory) Len(hospitalID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries[hospitalID])
}
