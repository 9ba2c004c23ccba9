package server

import (
	"net/http"
	"strings"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (per-user presentation stream)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Server-sent events (per-user presentation stream)
	mux.HandleFunc("/api/events", s.app.EventsHandler.EventsHandler)

	// Chat intake
	mux.HandleFunc("/api/chat", s.app.ChatHandler.ChatHandler)
	mux.HandleFunc("/api/chat/health", s.app.ChatHandler.HealthHandler)

	// Investigations
	mux.HandleFunc("/api/jobs", s.handleJobsCollection)
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes) // /{id} and subpaths

	// GitHub document import
	mux.HandleFunc("/api/import/github", s.app.ImportHandler.GitHubImportHandler)

	// Alert mailbox
	mux.HandleFunc("/api/mailbox/config", s.app.MailboxHandler.ConfigHandler)
	mux.HandleFunc("/api/mailbox/poll", s.app.MailboxHandler.PollHandler)

	// Maintenance scheduler
	mux.HandleFunc("/api/scheduler/tasks", s.app.SchedulerHandler.TasksHandler)
	mux.HandleFunc("/api/scheduler/tasks/", s.app.SchedulerHandler.TriggerHandler)

	// System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleJobsCollection routes /api/jobs: GET lists, POST creates.
func (s *Server) handleJobsCollection(w http.ResponseWriter, r *http.Request) {
	RouteByMethod(w, r, MethodRouter{
		"GET":  s.app.JobHandler.ListJobsHandler,
		"POST": s.app.JobHandler.CreateJobHandler,
	})
}

// handleJobRoutes routes /api/jobs/{id} and its subpaths to the
// appropriate handler.
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	// Subresources first: /api/jobs/{id}/<action>
	switch {
	case strings.HasSuffix(path, "/result"):
		s.app.JobHandler.GetJobResultHandler(w, r)
		return
	case strings.HasSuffix(path, "/requeue"):
		s.app.JobHandler.RequeueJobHandler(w, r)
		return
	case strings.HasSuffix(path, "/cancel"):
		s.app.JobHandler.CancelJobHandler(w, r)
		return
	case strings.HasSuffix(path, "/upload"):
		s.app.UploadHandler.UploadHandler(w, r)
		return
	case strings.HasSuffix(path, "/report.pdf"):
		s.app.ReportHandler.ReportPDFHandler(w, r)
		return
	}

	// Bare /api/jobs/{id}
	RouteByMethod(w, r, MethodRouter{
		"GET":    s.app.JobHandler.GetJobHandler,
		"DELETE": s.app.JobHandler.DeleteJobHandler,
	})
}
