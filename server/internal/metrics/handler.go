package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/common/expfmt"
)

// Handler serves the registry in the format negotiated from the Accept
// header (text by default, protobuf or OpenMetrics when asked for).
func (m *Metrics) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		families, err := m.registry.Gather()
		if err != nil {
			// Gather returns what it could collect alongside the error.
			slog.Warn("metrics: gather incomplete", "err", err)
		}

		format := expfmt.Negotiate(r.Header)
		w.Header().Set("Content-Type", string(format))
		enc := expfmt.NewEncoder(w, format)
		for _, mf := range families {
			if err := enc.Encode(mf); err != nil {
				slog.Error("metrics: encode failed", "metric", mf.GetName(), "err", err)
				return
			}
		}
		if closer, ok := enc.(expfmt.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Error("metrics: close encoder", "err", err)
			}
		}
	})
}
