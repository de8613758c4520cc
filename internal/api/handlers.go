package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillhq/quill/backend/internal/room"
	"github.com/quillhq/quill/backend/internal/store"
)

// API serves the hub's operational endpoints.
type API struct {
	registry *room.Registry
	store    *store.SQL
	log      zerolog.Logger
}

func New(registry *room.Registry, st *store.SQL, log zerolog.Logger) *API {
	return &API{
		registry: registry,
		store:    st,
		log:      log,
	}
}

func (a *API) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.log.Warn().Err(err).Msg("encoding response failed")
	}
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	a.jsonResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"resident_rooms": a.registry.Len(),
		"active_clients": a.registry.ConnCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.store != nil {
		dbStats, err := a.store.Stats(r.Context())
		if err == nil {
			stats["saved_rooms"] = dbStats["saved_rooms"]
		}
	}

	a.jsonResponse(w, http.StatusOK, stats)
}
