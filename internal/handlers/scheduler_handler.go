package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/services/scheduler"
)

// SchedulerHandler exposes maintenance-task status and manual triggers.
type SchedulerHandler struct {
	scheduler *scheduler.Service
	logger    arbor.ILogger
}

func NewSchedulerHandler(sched *scheduler.Service, logger arbor.ILogger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: sched, logger: logger}
}

// TasksHandler handles GET /api/scheduler/tasks.
func (h *SchedulerHandler) TasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"tasks": h.scheduler.Statuses()})
}

// TriggerHandler handles POST /api/scheduler/tasks/{name}/trigger.
func (h *SchedulerHandler) TriggerHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/scheduler/tasks/")
	name := strings.TrimSuffix(rest, "/trigger")
	if name == "" || name == rest {
		WriteError(w, http.StatusBadRequest, "missing task name")
		return
	}
	if err := h.scheduler.Trigger(name); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.Info().Str("task", name).Msg("Maintenance task triggered manually")
	WriteSuccess(w, "task triggered")
}
