package handlers

import (
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/services/report"
)

// ReportHandler serves rendered investigation reports.
type ReportHandler struct {
	exporter *report.Exporter
	logger   arbor.ILogger
}

func NewReportHandler(exporter *report.Exporter, logger arbor.ILogger) *ReportHandler {
	return &ReportHandler{exporter: exporter, logger: logger}
}

// ReportPDFHandler handles GET /api/jobs/{id}/report.pdf.
func (h *ReportHandler) ReportPDFHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	jobID, err := JobIDFromPath(r.URL.Path, "/api/jobs/")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	data, err := h.exporter.ExportPDF(r.Context(), jobID)
	if err != nil {
		h.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Report export failed")
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("job-%d-report.pdf", jobID)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
