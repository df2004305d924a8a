// Package scheduler periodically recomputes the briefing of every known
// hospital for the current date, so readers usually hit a warm cache and
// alerts fire without anyone polling.
package scheduler
