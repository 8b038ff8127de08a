// Package httpapi assembles the instance's HTTP surface: the websocket
// endpoint, a health check and a presence read.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"schemacanvas/server/internal/realtime"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// NewRouter wires the routes. checks maps a dependency name to its probe.
func NewRouter(ws http.Handler, registry *realtime.Registry, checks map[string]HealthCheck, log zerolog.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws/{documentID}", ws)
	r.HandleFunc("/healthz", healthHandler(checks, log)).Methods(http.MethodGet)
	r.HandleFunc("/documents/{documentID}/presence", presenceHandler(registry)).Methods(http.MethodGet)
	return r
}

func healthHandler(checks map[string]HealthCheck, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
				result[name] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				result[name] = "ok"
			}
		}
		writeJSON(w, status, result)
	}
}

func presenceHandler(registry *realtime.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := mux.Vars(r)["documentID"]
		participants := registry.Participants(documentID)
		if participants == nil {
			participants = []realtime.Participant{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"documentId":   documentID,
			"count":        len(participants),
			"participants": participants,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
