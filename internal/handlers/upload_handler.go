package handlers

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const maxUploadBytes = 64 << 20 // 64 MiB

// UploadHandler accepts multipart document uploads onto a job. The file
// lands in the uploads directory and is registered for the extract stage.
type UploadHandler struct {
	storage    interfaces.StorageManager
	queue      interfaces.QueueManager
	uploadsDir string
	logger     arbor.ILogger
}

func NewUploadHandler(storage interfaces.StorageManager, queue interfaces.QueueManager, uploadsDir string, logger arbor.ILogger) *UploadHandler {
	return &UploadHandler{storage: storage, queue: queue, uploadsDir: uploadsDir, logger: logger}
}

// UploadHandler handles POST /api/jobs/{id}/upload with a "file" part.
func (h *UploadHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID, err := JobIDFromPath(r.URL.Path, "/api/jobs/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := h.storage.Jobs().GetJob(r.Context(), jobID)
	if err == interfaces.ErrNotFound {
		WriteError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job.Status.IsTerminal() {
		WriteError(w, http.StatusConflict, "job accepts no more input")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "missing file part")
		return
	}
	defer part.Close()

	fileType := models.FileTypeForName(header.Filename)
	f := models.NewJobFile(jobID, models.FileOriginUserUpload, "", fileType, header.Filename)
	f.StoredPath = filepath.Join(h.uploadsDir, f.ID+filepath.Ext(header.Filename))

	if err := h.store(part, f.StoredPath); err != nil {
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Upload store failed")
		WriteError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	if err := h.storage.Files().Create(r.Context(), f); err != nil {
		WriteError(w, http.StatusInternalServerError, "failed to register upload")
		return
	}

	if job.Status.IsWaiting() {
		if moved, err := h.storage.Jobs().UpdateStatusCAS(r.Context(), jobID, job.Status, models.JobStatusReadyToIngest); err != nil || !moved {
			h.logger.Debug().Int64("job_id", int64(jobID)).Msg("Upload resume skipped")
		}
	}
	if err := h.queue.Enqueue(r.Context(), &models.QueueMessage{JobID: jobID, Reason: "api:upload"}); err != nil {
		h.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Upload enqueue failed")
	}

	h.logger.Info().Int64("job_id", int64(jobID)).Str("filename", header.Filename).Str("type", string(fileType)).Msg("File uploaded")
	WriteJSON(w, http.StatusCreated, f)
}

func (h *UploadHandler) store(part io.Reader, path string) error {
	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads dir: %w", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, part); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
