package ledger

import (
	"context"
	"time"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
)

// Ledger is the briefing history.
type Ledger interface {
	// Append records b. ComputedAt must be strictly after the last entry for
	// the same hospital (fault.KindConflict otherwise). Storage failures are
	// fault.KindStorage and are never retried here.
	Append(ctx context.Context, b *types.Briefing) error

	// Query returns up to limit briefings for hospitalID with ComputedAt
	// strictly before before, newest first. A zero before is unbounded.
	Query(ctx context.Context, hospitalID string, limit int, before time.Time) ([]*types.Briefing, error)
}

func checkAppend(b *types.Briefing) error {
	if b == nil {
		return fault.New(fault.KindInvalidArgument, "briefing is nil")
	}
	if b.HospitalID == "" {
		return fault.New(fault.KindInvalidArgument, "briefing has no hospital_id")
	}
	if b.ComputedAt.IsZero() {
		return fault.New(fault.KindInvalidArgument, "briefing %s has no computed_at", b.ID)
	}
	return nil
}

func checkQuery(limit int) error {
	if limit <= 0 {
		return fault.New(fault.KindInvalidArgument, "limit must be positive, got %d", limit)
	}
	return nil
}
