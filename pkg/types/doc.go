// Package types defines the domain records shared by every SurgeCast
// component: hospital operating state, environmental signals, the model's
// feature vector and output, and the Briefing derived from them.
//
// These are the canonical in-memory representations. Storage layers encode
// them as JSON (Postgres JSONB, Redis values) and the REST API serves them
// directly.
package types
