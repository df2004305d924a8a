// Package ledger is the append-only history of computed briefings.
//
// Entries are ordered by ComputedAt per hospital and never updated or removed.
// Query returns the newest entries strictly before a cursor. Memory keeps a
// per-hospital ascending slice; Postgres stores each briefing as a JSONB row
// keyed by (hospital_id, computed_at).
package ledger
