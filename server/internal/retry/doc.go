// Package retry provides truncated exponential backoff with jitter, shared by
// the model client (bounded retries) and the event publisher (reconnect loop).
package retry
