// Package events publishes every newly computed briefing to a Kafka topic
// for downstream consumers (bed management, regional dashboards).
//
// Ship never blocks the forecast path: briefings go into a bounded buffer
// and, when it is full, the oldest entry is evicted. Run drains the buffer
// and retries a failed write with exponential backoff until it succeeds or
// the context ends. Messages are keyed by hospital ID so a consumer sees one
// hospital's briefings in order.
package events
