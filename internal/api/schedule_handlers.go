package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/schedule"
)

type scheduleStepRequest struct {
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type scheduleRequest struct {
	CourseID       string                `json:"course_id"`
	Name           string                `json:"name"`
	Cron           string                `json:"cron"`
	Schema         []scheduleStepRequest `json:"schema"`
	InstanceFilter string                `json:"instance_filter"`
}

func (req scheduleRequest) steps() []schedule.ActionStep {
	steps := make([]schedule.ActionStep, 0, len(req.Schema))
	for _, s := range req.Schema {
		steps = append(steps, schedule.ActionStep{Action: s.Action, Params: s.Params})
	}
	return steps
}

type scheduleResponse struct {
	ID             string                `json:"id"`
	CourseID       string                `json:"course_id"`
	Name           string                `json:"name"`
	Cron           string                `json:"cron"`
	Schema         []scheduleStepRequest `json:"schema"`
	InstanceFilter string                `json:"instance_filter"`
	Running        bool                  `json:"running"`
	NextRun        string                `json:"next_run"`
}

func toScheduleResponse(s *schedule.Schedule) scheduleResponse {
	steps := make([]scheduleStepRequest, 0, len(s.Schema()))
	for _, step := range s.Schema() {
		steps = append(steps, scheduleStepRequest{Action: step.Action, Params: step.Params})
	}
	return scheduleResponse{
		ID:             s.ID().String(),
		CourseID:       s.CourseID().String(),
		Name:           s.Name(),
		Cron:           s.CronExpr(),
		Schema:         steps,
		InstanceFilter: s.InstanceFilter(),
		Running:        s.Running(),
		NextRun:        s.NextAfter(time.Now()).UTC().Format(time.RFC3339),
	}
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		http.Error(w, "invalid course_id", http.StatusBadRequest)
		return
	}

	created, err := s.admin.Create(r.Context(), courseID, req.Name, req.Cron, req.steps(), req.InstanceFilter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusCreated, toScheduleResponse(created))
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.admin.List(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	out := make([]scheduleResponse, 0, len(schedules))
	for _, sc := range schedules {
		out = append(out, toScheduleResponse(sc))
	}
	s.respondJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return
	}

	sc, err := s.admin.Get(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, toScheduleResponse(sc))
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := s.admin.Update(r.Context(), id, req.Name, req.Cron, req.steps(), req.InstanceFilter)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	s.respondJSON(w, r, http.StatusOK, toScheduleResponse(updated))
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		http.Error(w, "invalid schedule id", http.StatusBadRequest)
		return
	}

	if err := s.admin.Delete(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
