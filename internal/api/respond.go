package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/app/dispatch"
	"github.com/opencampus/campusd/internal/domain/action"
	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/internal/domain/schedule"
)

func (s *Server) respondJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error(r.Context(), "encoding response", "error", err)
	}
}

// respondError maps domain errors onto HTTP statuses. Everything the
// taxonomy does not name is a 500.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, entity.ErrNotFound),
		errors.Is(err, journal.ErrLogNotFound),
		errors.Is(err, journal.ErrContentNotFound),
		errors.Is(err, schedule.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrLocked):
		status = http.StatusConflict
	case errors.Is(err, action.ErrUnknownAction),
		errors.Is(err, schedule.ErrInvalid):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, dispatch.ErrActionFailed):
		status = http.StatusInternalServerError
	}

	if status == http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}

	s.respondJSON(w, r, status, map[string]string{"error": err.Error()})
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, key))
}
