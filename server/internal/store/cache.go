package store

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/surgecast/surgecast/pkg/types"
	"github.com/surgecast/surgecast/server/internal/fault"
	"github.com/surgecast/surgecast/server/internal/ledger"
	"github.com/surgecast/surgecast/server/internal/metrics"
)

const (
	DefaultMaxStale       = 24 * time.Hour
	DefaultComputeTimeout = 30 * time.Second
	appendTimeout         = 5 * time.Second
)

// Source tells the caller where a briefing came from.
type Source string

const (
	SourceCache    Source = "cache"
	SourceComputed Source = "computed"
	SourceStale    Source = "stale"
)

// Result is the answer to GetOrCompute.
type Result struct {
	Briefing *types.Briefing
	Source   Source

	// Cause is the computation error a stale briefing stands in for.
	Cause error

	// LedgerErr is set when the briefing was published but its history
	// append failed.
	LedgerErr error
}

// Computer builds a fresh briefing. *forecast.Pipeline implements it.
type Computer interface {
	Compute(ctx context.Context, hospitalID, date string) (*types.Briefing, error)
}

// Listener is called with every published briefing, after the ledger append.
// Listeners run on the computing goroutine and must not block.
type Listener func(b *types.Briefing)

// Config tunes the cache. Zero values select the defaults.
type Config struct {
	// MaxStale bounds how old a briefing may be and still be served when a
	// recomputation fails. It is also the eviction age.
	MaxStale time.Duration

	// ComputeTimeout bounds one computation, model retries included.
	ComputeTimeout time.Duration
}

// slot is the cached state for one hospital. Slots are replaced, never
// mutated, so a copy read under RLock stays consistent.
type slot struct {
	briefing    *types.Briefing
	invalidated bool
}

// outcome is what a singleflight computation hands to every waiter.
type outcome struct {
	date      string
	briefing  *types.Briefing
	ledgerErr error
	err       error
}

// Cache is the per-hospital forecast cache.
type Cache struct {
	mu     sync.RWMutex
	slots  map[string]slot
	stamps map[string]time.Time // last ComputedAt issued per hospital, survives eviction
	gens   map[string]uint64    // bumped by Invalidate

	group     singleflight.Group
	computer  Computer
	ledger    ledger.Ledger
	metrics   *metrics.Metrics
	listeners []Listener

	maxStale       time.Duration
	computeTimeout time.Duration
	now            func() time.Time // injectable for deterministic tests
}

// New creates a Cache that computes with c and records history in l.
// m may be nil.
func New(c Computer, l ledger.Ledger, m *metrics.Metrics, cfg Config) *Cache {
	if cfg.MaxStale <= 0 {
		cfg.MaxStale = DefaultMaxStale
	}
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = DefaultComputeTimeout
	}
	return &Cache{
		slots:          make(map[string]slot),
		stamps:         make(map[string]time.Time),
		gens:           make(map[string]uint64),
		computer:       c,
		ledger:         l,
		metrics:        m,
		maxStale:       cfg.MaxStale,
		computeTimeout: cfg.ComputeTimeout,
		now:            time.Now,
	}
}

// OnPublish registers fn to be called for every published briefing.
// Register listeners before the cache is in use.
func (c *Cache) OnPublish(fn Listener) {
	c.listeners = append(c.listeners, fn)
}

// GetOrCompute returns the briefing for hospitalID on date.
//
// A cached briefing for the same date that is not invalidated and younger
// than ttl is returned as is. Otherwise one computation runs for the hospital
// and every concurrent caller waits for it. Waiters honour their own ctx; the
// computation itself is detached from callers and bounded by ComputeTimeout.
func (c *Cache) GetOrCompute(ctx context.Context, hospitalID, date string, ttl time.Duration) (Result, error) {
	return c.get(ctx, hospitalID, date, ttl, false)
}

// Refresh recomputes the briefing for hospitalID on date regardless of the
// cached entry's age. It still coalesces with an in-flight computation.
func (c *Cache) Refresh(ctx context.Context, hospitalID, date string) (Result, error) {
	return c.get(ctx, hospitalID, date, 0, true)
}

func (c *Cache) get(ctx context.Context, hospitalID, date string, ttl time.Duration, force bool) (Result, error) {
	for {
		if !force {
			if b, ok := c.lookup(hospitalID, date, ttl); ok {
				c.metrics.BriefingServed(string(SourceCache))
				return Result{Briefing: b, Source: SourceCache}, nil
			}
		}

		base := context.WithoutCancel(ctx)
		ch := c.group.DoChan(hospitalID, func() (interface{}, error) {
			return c.compute(base, hospitalID, date), nil
		})

		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Result{}, fmt.Errorf("store: waiting for %q: %w", hospitalID, ctx.Err())
		case res = <-ch:
		}
		if res.Shared {
			c.metrics.Coalesced()
		}

		o := res.Val.(*outcome)
		if o.date != date {
			// Joined a computation for another date; go again for ours.
			force = false
			continue
		}
		if o.err != nil {
			return c.fallback(hospitalID, o.err)
		}
		c.metrics.BriefingServed(string(SourceComputed))
		return Result{Briefing: o.briefing, Source: SourceComputed, LedgerErr: o.ledgerErr}, nil
	}
}

// lookup returns the slot's briefing when it may be served for date.
func (c *Cache) lookup(hospitalID, date string, ttl time.Duration) (*types.Briefing, bool) {
	c.mu.RLock()
	s, ok := c.slots[hospitalID]
	c.mu.RUnlock()
	if !ok || s.invalidated || s.briefing.Date != date {
		return nil, false
	}
	if c.now().Sub(s.briefing.ComputedAt) >= ttl {
		return nil, false
	}
	return s.briefing, true
}

// compute runs inside the singleflight call. It never returns an error to
// the group; failures travel in the outcome so every waiter sees the same
// attempt.
func (c *Cache) compute(base context.Context, hospitalID, date string) *outcome {
	c.mu.RLock()
	gen := c.gens[hospitalID]
	c.mu.RUnlock()

	ctx, cancel := context.WithTimeout(base, c.computeTimeout)
	defer cancel()

	start := time.Now()
	b, err := c.computer.Compute(ctx, hospitalID, date)
	c.metrics.PipelineRun(time.Since(start), err)
	if err != nil {
		slog.Warn("store: computation failed", "hospital", hospitalID, "date", date, "err", err)
		return &outcome{date: date, err: err}
	}

	c.publish(hospitalID, b, gen)

	appendCtx, cancelAppend := context.WithTimeout(base, appendTimeout)
	defer cancelAppend()
	var ledgerErr error
	if err := c.ledger.Append(appendCtx, b); err != nil {
		ledgerErr = err
		c.metrics.LedgerFailure()
		slog.Error("store: ledger append failed, briefing stays visible",
			"hospital", hospitalID, "briefing", b.ID,
			"computed_at", b.ComputedAt.Format(time.RFC3339Nano), "err", err)
	}

	for _, fn := range c.listeners {
		fn(b)
	}
	return &outcome{date: date, briefing: b, ledgerErr: ledgerErr}
}

// publish stamps b and replaces the hospital's slot. ComputedAt has
// microsecond precision and strictly increases per hospital. If the hospital
// was invalidated while b was being computed, the new slot starts out
// invalidated so the next read recomputes from the newer state.
func (c *Cache) publish(hospitalID string, b *types.Briefing, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	at := c.now().UTC().Truncate(time.Microsecond)
	if last, ok := c.stamps[hospitalID]; ok && !at.After(last) {
		at = last.Add(time.Microsecond)
	}
	c.stamps[hospitalID] = at
	b.ComputedAt = at

	c.slots[hospitalID] = slot{briefing: b, invalidated: c.gens[hospitalID] != gen}
	c.metrics.SetCacheEntries(len(c.slots))
}

// fallback answers a failed computation. Model failures may be covered by a
// briefing younger than MaxStale; every other error propagates.
func (c *Cache) fallback(hospitalID string, err error) (Result, error) {
	if !fault.IsModelFailure(err) {
		return Result{}, err
	}
	c.mu.RLock()
	s, ok := c.slots[hospitalID]
	c.mu.RUnlock()
	if ok {
		if age := c.now().Sub(s.briefing.ComputedAt); age < c.maxStale {
			slog.Warn("store: serving stale briefing",
				"hospital", hospitalID, "briefing", s.briefing.ID, "age", age, "cause", err)
			c.metrics.BriefingServed(string(SourceStale))
			return Result{Briefing: s.briefing, Source: SourceStale, Cause: err}, nil
		}
	}
	return Result{}, fault.Wrap(fault.KindUnavailable, err, "no briefing available for %q", hospitalID)
}

// Invalidate marks the hospital's briefing for recomputation on the next
// read. The briefing stays available as a stale fallback.
func (c *Cache) Invalidate(hospitalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[hospitalID]++
	if s, ok := c.slots[hospitalID]; ok {
		s.invalidated = true
		c.slots[hospitalID] = s
	}
	slog.Debug("store: invalidated", "hospital", hospitalID)
}

// Get returns the cached briefing for hospitalID regardless of age.
func (c *Cache) Get(hospitalID string) (*types.Briefing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.slots[hospitalID]
	return s.briefing, ok
}

// Snapshot returns the cached briefing of every hospital, ordered by
// hospital ID.
func (c *Cache) Snapshot() []*types.Briefing {
	c.mu.RLock()
	out := make([]*types.Briefing, 0, len(c.slots))
	for _, s := range c.slots {
		out = append(out, s.briefing)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].HospitalID < out[j].HospitalID })
	return out
}

// Count returns the number of cached hospitals.
func (c *Cache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slots)
}

// Evict removes briefings older than MaxStale at now and returns how many
// were removed.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, s := range c.slots {
		if now.Sub(s.briefing.ComputedAt) >= c.maxStale {
			delete(c.slots, id)
			removed++
		}
	}
	c.metrics.SetCacheEntries(len(c.slots))
	return removed
}

// Run starts the eviction loop. It ticks at half of MaxStale (minimum one
// second) and blocks until ctx is cancelled.
func (c *Cache) Run(ctx context.Context) {
	interval := c.maxStale / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := c.Evict(c.now()); n > 0 {
				slog.Debug("store: evicted expired briefings", "count", n)
			}
		}
	}
}
