package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/journal"
)

type logResponse struct {
	ID        string `json:"id"`
	CourseID  string `json:"course_id"`
	Type      string `json:"type"`
	Name      string `json:"name"`
	Timestamp string `json:"timestamp"`
}

func toLogResponse(l *journal.Log) logResponse {
	return logResponse{
		ID:        l.ID().String(),
		CourseID:  l.CourseID().String(),
		Type:      string(l.Type()),
		Name:      l.Name(),
		Timestamp: l.Timestamp().UTC().Format(time.RFC3339Nano),
	}
}

// handleListLogs serves course-scoped metadata listings, windowed to the
// retention period. Individual records stay fetchable by id indefinitely.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	courseID, err := uuid.Parse(r.URL.Query().Get("course_id"))
	if err != nil {
		http.Error(w, "invalid course_id", http.StatusBadRequest)
		return
	}

	logs, err := s.logs.ListByCourse(r.Context(), courseID, time.Now().UTC())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]logResponse, 0, len(logs))
	for _, l := range logs {
		out = append(out, toLogResponse(l))
	}
	s.respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	logID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid log id", http.StatusBadRequest)
		return
	}

	l, err := s.logs.GetByID(r.Context(), logID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, toLogResponse(l))
}

// handleStreamLog replays log content from the requested byte offset, then
// tails live growth over the open connection. The client disconnecting
// cancels the stream via the request context; the action producing the log
// is unaffected.
func (s *Server) handleStreamLog(w http.ResponseWriter, r *http.Request) {
	logID, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid log id", http.StatusBadRequest)
		return
	}

	var offset int64
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.ParseInt(raw, 10, 64)
		if err != nil || offset < 0 {
			http.Error(w, "invalid offset", http.StatusBadRequest)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Streams outlive the server's write timeout; clear it for this response.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	headersSent := false
	sink := func(p []byte) error {
		if !headersSent {
			w.WriteHeader(http.StatusOK)
			headersSent = true
		}
		if _, err := w.Write(p); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	err = s.streamer.Stream(r.Context(), logID, offset, sink)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return
	case !headersSent:
		s.respondError(w, r, err)
	default:
		s.logger.Error(r.Context(), "log stream interrupted", "log_id", logID, "error", err)
	}
}
