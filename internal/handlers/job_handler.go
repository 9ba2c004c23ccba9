package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// JobHandler covers the research-job CRUD surface plus the requeue and
// cancel controls.
type JobHandler struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	logger  arbor.ILogger
}

func NewJobHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, logger arbor.ILogger) *JobHandler {
	return &JobHandler{storage: storage, queue: queue, logger: logger}
}

// CreateJobRequest is the POST /api/jobs body.
type CreateJobRequest struct {
	UserID string           `json:"user_id"`
	Mode   string           `json:"mode"`
	Seed   string           `json:"seed"`
	Config models.JobConfig `json:"config"`
}

// CreateJobHandler handles POST /api/jobs. The job starts in CREATED and
// is queued immediately; verification jobs carry the entity pair on
// config.
func (h *JobHandler) CreateJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	mode := models.JobMode(req.Mode)
	if mode == "" {
		mode = models.JobModeDiscovery
	}

	job := models.NewResearchJob(req.UserID, mode, strings.TrimSpace(req.Seed), req.Config)
	if err := job.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.storage.Jobs().CreateJob(r.Context(), job)
	if err != nil {
		h.logger.Error().Err(err).Msg("Job creation failed")
		WriteError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	job.ID = id

	if job.Seed != "" {
		src := models.NewIngestionSource(id, models.SourceTypeUserText, "api:seed", job.Seed)
		if err := h.storage.Sources().Create(r.Context(), src); err != nil {
			h.logger.Warn().Err(err).Int64("job_id", int64(id)).Msg("Seed source creation failed")
		}
	}
	if err := h.queue.Enqueue(r.Context(), &models.QueueMessage{JobID: id, Reason: "api:create"}); err != nil {
		h.logger.Warn().Err(err).Int64("job_id", int64(id)).Msg("Job enqueue failed")
	}

	WriteJSON(w, http.StatusCreated, job)
}

// ListJobsHandler handles GET /api/jobs with optional user_id, status and
// limit query filters.
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	opts := interfaces.JobListOptions{
		UserID: r.URL.Query().Get("user_id"),
		Status: models.JobStatus(r.URL.Query().Get("status")),
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	jobs, err := h.storage.Jobs().ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Job listing failed")
		WriteError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs, "count": len(jobs)})
}

// GetJobHandler handles GET /api/jobs/{id}.
func (h *JobHandler) GetJobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, job)
}

// GetJobResultHandler handles GET /api/jobs/{id}/result.
func (h *JobHandler) GetJobResultHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Result == nil {
		WriteError(w, http.StatusNotFound, "job has no result yet")
		return
	}
	WriteJSON(w, http.StatusOK, job.Result)
}

// RequeueJobHandler handles POST /api/jobs/{id}/requeue. Waiting jobs
// move back to READY_TO_INGEST; active jobs just get another delivery.
func (h *JobHandler) RequeueJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		WriteError(w, http.StatusConflict, "job is terminal")
		return
	}

	if job.Status.IsWaiting() {
		moved, err := h.storage.Jobs().UpdateStatusCAS(r.Context(), job.ID, job.Status, models.JobStatusReadyToIngest)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to resume job")
			return
		}
		if !moved {
			WriteError(w, http.StatusConflict, "job status changed concurrently")
			return
		}
	}
	if err := h.queue.Enqueue(r.Context(), &models.QueueMessage{JobID: job.ID, Reason: "api:requeue"}); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	WriteSuccess(w, "job requeued")
}

// CancelJobHandler handles POST /api/jobs/{id}/cancel. Cancellation is a
// forced FAILED; in-flight stage work notices on its next CAS.
func (h *JobHandler) CancelJobHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		WriteError(w, http.StatusConflict, "job is already terminal")
		return
	}

	if err := h.storage.Jobs().MarkFailed(r.Context(), job.ID, "cancelled by user"); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to cancel job")
		return
	}
	h.logger.Info().Int64("job_id", int64(job.ID)).Msg("Job cancelled")
	WriteSuccess(w, "job cancelled")
}

// DeleteJobHandler handles DELETE /api/jobs/{id}: the job row plus every
// child aggregate. Global papers stay; only the evidence ledger goes.
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	job, ok := h.loadJob(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	id := job.ID

	files, err := h.storage.Files().ListByJob(ctx, id)
	if err == nil {
		for _, f := range files {
			if f.StoredPath != "" {
				if err := os.Remove(f.StoredPath); err != nil && !os.IsNotExist(err) {
					h.logger.Warn().Err(err).Str("path", f.StoredPath).Msg("Stored file removal failed")
				}
			}
		}
	}

	cascade := []struct {
		name string
		fn   func() error
	}{
		{"sources", func() error { return h.storage.Sources().DeleteByJob(ctx, id) }},
		{"triples", func() error { return h.storage.Triples().DeleteByJob(ctx, id) }},
		{"graphs", func() error { return h.storage.Graphs().DeleteByJob(ctx, id) }},
		{"hypotheses", func() error { return h.storage.Hypotheses().DeleteByJob(ctx, id) }},
		{"evidence", func() error { return h.storage.Papers().DeleteEvidenceByJob(ctx, id) }},
		{"queries", func() error { return h.storage.Queries().DeleteByJob(ctx, id) }},
		{"decisions", func() error { return h.storage.Decisions().DeleteByJob(ctx, id) }},
		{"messages", func() error { return h.storage.Messages().DeleteByJob(ctx, id) }},
		{"files", func() error { return h.storage.Files().DeleteByJob(ctx, id) }},
	}
	for _, step := range cascade {
		if err := step.fn(); err != nil {
			h.logger.Error().Err(err).Int64("job_id", int64(id)).Str("aggregate", step.name).Msg("Cascade delete failed")
			WriteError(w, http.StatusInternalServerError, "failed to delete job children")
			return
		}
	}

	if err := h.storage.Jobs().DeleteJob(ctx, id); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}
	h.logger.Info().Int64("job_id", int64(id)).Msg("Job deleted")
	WriteSuccess(w, "job deleted")
}

func (h *JobHandler) loadJob(w http.ResponseWriter, r *http.Request) (*models.ResearchJob, bool) {
	id, err := JobIDFromPath(r.URL.Path, "/api/jobs/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	job, err := h.storage.Jobs().GetJob(r.Context(), id)
	if err == interfaces.ErrNotFound {
		WriteError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Int64("job_id", int64(id)).Msg("Job load failed")
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return nil, false
	}
	return job, true
}
