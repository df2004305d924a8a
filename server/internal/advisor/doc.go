// Package advisor produces the human-readable part of a briefing.
//
// Generate is the recommendation rule table. It is evaluated in a fixed
// priority order (supply, then capacity, then risk-level guidance) and the
// output order is part of the API contract: dashboards number the items
// positionally. Reasons lists the input conditions that contributed to the
// forecast, and Summary condenses level, score and reason count into one line.
//
// Every function here is deterministic: identical input gives byte-identical
// output.
package advisor
