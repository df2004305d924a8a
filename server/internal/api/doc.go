// Package api implements the HTTP REST API for surgecast-server.
//
// New(deps) returns an http.Handler that serves:
//
//	GET /api/v1/health                         liveness, public
//	GET /api/v1/hospitals/{id}/briefing        today's (or ?date=) briefing
//	GET /api/v1/hospitals/{id}/history         ledger, newest first (?limit=&before=)
//	GET /api/v1/hospitals/{id}/state           current operating state
//	PUT /api/v1/hospitals/{id}/state           replace state, invalidates the cache
//	PUT /api/v1/signals/{date}                 environmental signal or raw observation
//	GET /api/v1/status                         cross-hospital status (admin)
//	GET /ws/stream                             WebSocket briefing and status stream (admin)
//	GET /metrics                               Prometheus exposition, public
//
// Every route except health and metrics runs behind auth.Middleware; the
// handlers check the resolved Principal's capabilities before touching any
// core component. Errors are mapped to status codes with fault.HTTPStatus and
// returned as {"error": "...", "kind": "..."}.
//
// JSON types are defined in types.go.
package api
