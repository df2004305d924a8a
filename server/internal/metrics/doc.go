// Package metrics owns the server's Prometheus registry and exposes it on
// /metrics in whichever exposition format the scraper negotiates.
//
// Every recording method is safe on a nil *Metrics, so components can be
// constructed without instrumentation in tests.
package metrics
