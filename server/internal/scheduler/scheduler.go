package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/store"
)

// DefaultWorkers bounds concurrent recomputations when none is configured.
const DefaultWorkers = 4

// Lister enumerates known hospitals. hospital.Repository implements it.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

// Refresher forces a recomputation. *store.Cache implements it.
type Refresher interface {
	Refresh(ctx context.Context, hospitalID, date string) (store.Result, error)
}

// Report summarises one refresh round.
type Report struct {
	Date      string
	Hospitals int
	Refreshed int
	Failed    int
}

// Scheduler drives refresh rounds.
type Scheduler struct {
	hospitals Lister
	cache     Refresher
	interval  time.Duration
	workers   int
	loc       *time.Location
	now       func() time.Time
}

// New returns a Scheduler. loc decides which civil date "today" is.
func New(hospitals Lister, cache Refresher, interval time.Duration, workers int, loc *time.Location) *Scheduler {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		hospitals: hospitals,
		cache:     cache,
		interval:  interval,
		workers:   workers,
		loc:       loc,
		now:       time.Now,
	}
}

// Run performs a round immediately and then every interval until ctx is
// cancelled. A non-positive interval returns at once.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	slog.Info("scheduler: started", "interval", s.interval, "workers", s.workers)

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
			slog.Error("scheduler: round failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("scheduler: stopped")
			return
		case <-t.C:
		}
	}
}

// RunOnce refreshes every hospital for today's date with at most workers
// computations in flight. Individual failures are logged and counted; only a
// failure to list hospitals is returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	date := types.DateOf(s.now().In(s.loc))

	ids, err := s.hospitals.List(ctx)
	if err != nil {
		return Report{Date: date}, fmt.Errorf("list hospitals: %w", err)
	}

	var refreshed, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := s.cache.Refresh(gctx, id, date)
			if err != nil {
				failed.Add(1)
				level := slog.LevelWarn
				if fault.KindOf(err) == fault.KindInternal {
					level = slog.LevelError
				}
				slog.Log(gctx, level, "scheduler: refresh failed", "hospital", id, "date", date, "err", err)
				return nil
			}
			if res.Source == store.SourceStale {
				failed.Add(1)
				return nil
			}
			refreshed.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	r := Report{
		Date:      date,
		Hospitals: len(ids),
		Refreshed: int(refreshed.Load()),
		Failed:    int(failed.Load()),
	}
	slog.Debug("scheduler: round complete",
		"date", r.Date, "hospitals", r.Hospitals, "refreshed", r.Refreshed, "failed", r.Failed)
	return r, nil
}
