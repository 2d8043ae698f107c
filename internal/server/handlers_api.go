package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/movebox/customerdupes/internal/auth"
	"github.com/movebox/customerdupes/internal/database"
)

const settingAPIKeyHash = "api_key_hash"

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]string{
		"status":  "ok",
		"version": s.version,
		"built":   s.buildTime,
	})
}

func (s *Server) handleAPIKeyRegenerate(w http.ResponseWriter, r *http.Request) {
	newKey, err := auth.GenerateToken()
	if err != nil {
		slog.Error("Failed to generate API key", "error", err)
		jsonError(w, "Failed to generate key", http.StatusInternalServerError)
		return
	}
	if err := storeAPIKey(s.db, newKey); err != nil {
		slog.Error("Failed to save API key", "error", err)
		jsonError(w, "Failed to save key", http.StatusInternalServerError)
		return
	}

	s.keyMu.Lock()
	s.verifiedKey = ""
	s.keyMu.Unlock()

	slog.Info("API key regenerated")
	jsonResponse(w, map[string]string{"api_key": newKey})
}

// EnsureAPIKey makes sure an API key hash is stored. A non-empty key
// replaces the stored hash unless it already matches. Without a key and
// without a stored hash a new key is generated and returned so the caller
// can show it once; otherwise the returned string is empty.
func EnsureAPIKey(db *database.DB, key string) (string, error) {
	hash, err := db.GetSetting(settingAPIKeyHash)
	if err != nil {
		return "", fmt.Errorf("read api key: %w", err)
	}

	if key != "" {
		if hash != "" && auth.CheckAPIKey(key, hash) == nil {
			return "", nil
		}
		return "", storeAPIKey(db, key)
	}
	if hash != "" {
		return "", nil
	}

	generated, err := auth.GenerateToken()
	if err != nil {
		return "", err
	}
	if err := storeAPIKey(db, generated); err != nil {
		return "", err
	}
	return generated, nil
}

func storeAPIKey(db *database.DB, key string) error {
	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return err
	}
	if err := db.SetSetting(settingAPIKeyHash, hash); err != nil {
		return fmt.Errorf("store api key: %w", err)
	}
	return nil
}

// decodeJSON reads a size-limited JSON body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func jsonResponse(w http.ResponseWriter, data any) {
	jsonStatus(w, http.StatusOK, data)
}

func jsonStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// storeError maps a store failure to 404 for unknown records and 500 otherwise.
func storeError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, database.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	slog.Error(msg, "error", err)
	jsonError(w, msg, http.StatusInternalServerError)
}
