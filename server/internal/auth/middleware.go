package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Middleware resolves the caller with res and stores the Principal in the
// request context. Unresolvable requests get 401 and never reach next.
func Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := res.Resolve(r)
			if err != nil {
				slog.Debug("auth: rejected request", "path", r.URL.Path, "err", err)
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="surgecast"`)
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthenticated: " + err.Error()})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
