package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	// SkipPrefixes bypass authentication entirely: health endpoints, the
	// creative file serving root, and the agent control channel (creatives
	// authenticate nothing; the protocol self-filters by id).
	SkipPrefixes []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		identity, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Warn("auth denied",
					"path", r.URL.Path,
					"method", r.Method,
					"error", err,
				)
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "unauthenticated"})
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
