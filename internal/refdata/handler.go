package refdata

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// Handler serves the cache admin routes.
type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the admin routes under prefix, e.g. "/api/dev/cache".
func (h *Handler) RegisterRoutes(r *mux.Router, prefix string) {
	sub := r.PathPrefix(prefix).Subrouter()
	sub.HandleFunc("", h.ListStatus).Methods(http.MethodGet)
	sub.HandleFunc("/", h.ListStatus).Methods(http.MethodGet)
	sub.HandleFunc("/snapshots", h.ClearSnapshots).Methods(http.MethodDelete)
	sub.HandleFunc("/{name}/update", h.Update).Methods(http.MethodPost)
	sub.HandleFunc("/{name}/status", h.GetStatus).Methods(http.MethodGet)
}

// Update starts a refresh of one cache in the background and returns at once.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, err := h.service.Status(name); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	go func() {
		ctx := context.WithoutCancel(r.Context())
		if err := h.service.Refresh(ctx, name); err != nil {
			log.Error().Err(err).Str("cache", name).Msg("manual cache update failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"message": "Update started", "cache": name})
}

// ClearSnapshots removes the persisted snapshots of every cache.
func (h *Handler) ClearSnapshots(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.ClearSnapshots(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to clear cache snapshots")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.service.Status(mux.Vars(r)["name"])
	if errors.Is(err, ErrUnknownCache) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *Handler) ListStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Statuses())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
