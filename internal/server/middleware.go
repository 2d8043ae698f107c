package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/movebox/customerdupes/internal/auth"
)

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(sw, r)
		slog.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start).String(),
		)
	})
}

func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				slog.Error("panic recovered", "error", err, "path", r.URL.Path)
				jsonError(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAPIKey checks for a valid API key via Bearer token or query parameter.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		providedKey := auth.KeyFromRequest(r)
		if providedKey == "" {
			jsonError(w, "API key required", http.StatusUnauthorized)
			return
		}

		s.keyMu.RLock()
		cached := s.verifiedKey
		s.keyMu.RUnlock()
		if cached != "" && subtle.ConstantTimeCompare([]byte(providedKey), []byte(cached)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		hash, err := s.db.GetSetting(settingAPIKeyHash)
		if err != nil || hash == "" {
			slog.Error("API key not configured", "error", err)
			jsonError(w, "API key not configured", http.StatusInternalServerError)
			return
		}

		if err := auth.CheckAPIKey(providedKey, hash); err != nil {
			jsonError(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		s.keyMu.Lock()
		s.verifiedKey = providedKey
		s.keyMu.Unlock()

		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
