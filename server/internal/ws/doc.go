// Package ws streams briefings to admin dashboards over WebSocket.
//
// The Hub is registered as a forecast cache listener: every published
// briefing is pushed as
//
//	{"event": "briefing", "briefing": { /* types.Briefing */ }}
//
// to each client whose ?hospital= filter (comma separated, optional) names
// the briefing's hospital. On connect, and every stream.interval while
// clients are connected, every client also receives
//
//	{"event": "status", "status": { /* GET /api/v1/status */ }}
//
// Clients that fall behind are disconnected. The hub does no authentication;
// the API mounts it at /ws/stream behind the auth middleware and an admin
// check.
package ws
