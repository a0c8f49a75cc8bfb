package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opencampus/campusd/internal/app/dispatch"
)

type invokeResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	LogID   string          `json:"log_id,omitempty"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid entity id", http.StatusBadRequest)
		return
	}
	actionName := chi.URLParam(r, "name")

	var params json.RawMessage
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid params", http.StatusBadRequest)
			return
		}
	}

	caller := r.Header.Get("X-Caller-Id")

	result, err := s.dispatcher.Invoke(r.Context(), entityID, actionName, params, caller)
	if err != nil {
		// A failed action body still produced a log and a history event;
		// surface the log reference alongside the error.
		if errors.Is(err, dispatch.ErrActionFailed) && result != nil {
			s.respondJSON(w, r, http.StatusInternalServerError, invokeResponse{
				Success: false,
				Error:   err.Error(),
				LogID:   result.LogID.String(),
			})
			return
		}
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, r, http.StatusOK, invokeResponse{
		Success: true,
		Data:    result.Data,
		LogID:   result.LogID.String(),
	})
}

type historyEventResponse struct {
	Event      string          `json:"event"`
	Successful bool            `json:"successful"`
	Timestamp  string          `json:"timestamp"`
	LogID      string          `json:"log_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid entity id", http.StatusBadRequest)
		return
	}

	events, err := s.dispatcher.History(r.Context(), entityID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]historyEventResponse, 0, len(events))
	for _, ev := range events {
		resp := historyEventResponse{
			Event:      ev.Event(),
			Successful: ev.Successful(),
			Timestamp:  ev.Timestamp().UTC().Format(time.RFC3339Nano),
			Data:       ev.Data(),
		}
		if logID, ok := ev.LogID(); ok {
			resp.LogID = logID.String()
		}
		out = append(out, resp)
	}

	s.respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleSetBlocked(w http.ResponseWriter, r *http.Request) {
	entityID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid entity id", http.StatusBadRequest)
		return
	}

	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	e, err := s.entities.GetByID(r.Context(), entityID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	e.SetBlocked(req.Blocked)
	if err := s.entities.Update(r.Context(), e); err != nil {
		s.respondError(w, r, err)
		return
	}

	s.respondJSON(w, r, http.StatusOK, map[string]bool{"blocked": e.Blocked()})
}
