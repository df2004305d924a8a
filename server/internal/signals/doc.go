// Package signals stores the per-day environmental context (weather and
// calendar effects) consumed by the feature aggregator.
//
// Signals are produced outside SurgeCast and pushed in by a feed client, either
// fully formed or as raw weather observations that Derive turns into a signal.
// Memory is the default Store; Redis shares signals across server replicas and
// expires them after a configurable TTL.
package signals
