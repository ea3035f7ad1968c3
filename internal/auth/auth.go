// Package auth guards the compute endpoints with a static bearer token.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
}

// Validate requires a token when auth is enabled.
func (c Config) Validate() error {
	if c.Enabled && c.Token == "" {
		return errors.New("auth token is required when auth is enabled")
	}
	return nil
}

// publicPaths never need a token. Everything that runs conversions does.
var publicPaths = map[string]bool{
	"/healthz":        true,
	"/readyz":         true,
	"/metrics":        true,
	"/api/v1/systems": true,
}

func isPublic(r *http.Request) bool {
	return r.Method == http.MethodGet && publicPaths[r.URL.Path]
}

// Middleware returns an HTTP middleware that enforces Bearer token auth
// on non-public routes when auth is enabled.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || isPublic(r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Token)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("WWW-Authenticate", `Bearer realm="galcoord"`)
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
