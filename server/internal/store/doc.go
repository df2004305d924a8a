// Package store holds the forecast cache: the latest briefing per hospital,
// served while younger than a caller-supplied TTL and recomputed on expiry.
//
// At most one computation per hospital runs at a time. Concurrent callers for
// the same hospital are coalesced onto the in-flight attempt with
// golang.org/x/sync/singleflight and all receive its result or its error.
// A successful computation is stamped, written to the slot under the write
// lock, then appended to the history ledger, then handed to listeners.
//
// When the model fails and a briefing younger than MaxStale exists, that
// briefing is returned flagged as stale instead of an error. A failed
// computation never touches the slot.
package store
