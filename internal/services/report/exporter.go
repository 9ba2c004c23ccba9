// -----------------------------------------------------------------------
// Report exporter - compose an investigation summary and render it
// -----------------------------------------------------------------------

package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const (
	maxAlternatives   = 5
	maxEvidencePapers = 15
)

// Exporter builds the markdown report for a job and renders it to PDF.
// Reports are available for any job that has hypotheses, not only
// completed ones, so operators can inspect a running investigation.
type Exporter struct {
	storage    interfaces.StorageManager
	renderer   *Renderer
	reportsDir string
	logger     arbor.ILogger
}

// NewExporter creates a report exporter.
func NewExporter(storage interfaces.StorageManager, renderer *Renderer, reportsDir string, logger arbor.ILogger) *Exporter {
	return &Exporter{
		storage:    storage,
		renderer:   renderer,
		reportsDir: reportsDir,
		logger:     logger,
	}
}

// ExportPDF builds and renders the report for one job.
func (e *Exporter) ExportPDF(ctx context.Context, jobID uint64) ([]byte, error) {
	md, title, err := e.BuildMarkdown(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return e.renderer.Render(md, title)
}

// SavePDF renders the report and stores it under the reports directory,
// returning the stored path.
func (e *Exporter) SavePDF(ctx context.Context, jobID uint64) (string, error) {
	data, err := e.ExportPDF(ctx, jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(e.reportsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}
	path := filepath.Join(e.reportsDir, fmt.Sprintf("job-%d-report.pdf", jobID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to store report: %w", err)
	}
	e.logger.Info().Int64("job_id", int64(jobID)).Str("path", path).Msg("Report saved")
	return path, nil
}

// BuildMarkdown composes the report body. Returns the markdown and the
// document title.
func (e *Exporter) BuildMarkdown(ctx context.Context, jobID uint64) (string, string, error) {
	job, err := e.storage.Jobs().GetJob(ctx, jobID)
	if err != nil {
		return "", "", fmt.Errorf("failed to load job %d: %w", jobID, err)
	}

	hyps, err := e.storage.Hypotheses().ListActive(ctx, jobID)
	if err != nil {
		return "", "", fmt.Errorf("failed to list hypotheses: %w", err)
	}
	models.SortHypotheses(hyps)

	title := fmt.Sprintf("Investigation #%d", job.ID)
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "**Question:** %s\n\n", job.Seed)
	fmt.Fprintf(&sb, "**Mode:** %s | **Status:** %s | **Created:** %s\n\n",
		job.Mode, job.Status, job.CreatedAt.Format("2006-01-02"))
	if job.Error != "" {
		fmt.Fprintf(&sb, "**Error:** %s\n\n", job.Error)
	}

	e.writeGraphSection(ctx, &sb, jobID)
	writeFindings(&sb, hyps)
	e.writeMeasurements(ctx, &sb, jobID)
	e.writeEvidence(ctx, &sb, jobID)

	return sb.String(), title, nil
}

func (e *Exporter) writeGraphSection(ctx context.Context, sb *strings.Builder, jobID uint64) {
	graph, err := e.storage.Graphs().GetActive(ctx, jobID)
	if err != nil {
		if err != interfaces.ErrNotFound {
			e.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to load graph for report")
		}
		return
	}
	sb.WriteString("## Knowledge Graph\n\n")
	fmt.Fprintf(sb, "Version %d with %d concepts and %d relations.\n\n",
		graph.Version, graph.NodeCount, graph.EdgeCount)
}

func writeFindings(sb *strings.Builder, hyps []*models.Hypothesis) {
	sb.WriteString("## Findings\n\n")

	var passed, promising []*models.Hypothesis
	for _, h := range hyps {
		switch {
		case h.PassedFilter:
			passed = append(passed, h)
		case h.Promising():
			promising = append(promising, h)
		}
	}

	if len(passed) == 0 {
		sb.WriteString("No hypothesis has passed the evidence filter yet.\n\n")
	} else {
		dominant := passed[0]
		sb.WriteString("### Dominant Hypothesis\n\n")
		fmt.Fprintf(sb, "**%s -> %s** (confidence %d)\n\n", dominant.Source, dominant.Target, dominant.Confidence)
		if dominant.Explanation != "" {
			fmt.Fprintf(sb, "%s\n\n", dominant.Explanation)
		}
		if len(dominant.Path) > 1 {
			fmt.Fprintf(sb, "Path: `%s`\n\n", strings.Join(dominant.Path, " -> "))
		}

		if len(passed) > 1 {
			sb.WriteString("### Alternatives\n\n")
			for i, h := range passed[1:] {
				if i == maxAlternatives {
					break
				}
				fmt.Fprintf(sb, "- %s -> %s (confidence %d): %s\n", h.Source, h.Target, h.Confidence, h.Explanation)
			}
			sb.WriteString("\n")
		}
	}

	if len(promising) > 0 {
		fmt.Fprintf(sb, "%d further hypotheses are promising but lack supporting evidence.\n\n", len(promising))
	}
}

func (e *Exporter) writeMeasurements(ctx context.Context, sb *strings.Builder, jobID uint64) {
	decision, err := e.storage.Decisions().Latest(ctx, jobID)
	if err != nil {
		if err != interfaces.ErrNotFound {
			e.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to load decision for report")
		}
		return
	}
	m := decision.MeasurementsSnapshot

	sb.WriteString("## Analysis State\n\n")
	fmt.Fprintf(sb, "Latest decision: **%s**", decision.DecisionLabel)
	if decision.FallbackUsed {
		fmt.Fprintf(sb, " (fallback: %s)", decision.FallbackReason)
	}
	sb.WriteString("\n\n")

	sb.WriteString("| Measurement | Value |\n|---|---|\n")
	fmt.Fprintf(sb, "| Hypotheses (total / passed / promising) | %d / %d / %d |\n",
		m.TotalHypothesisCount, m.PassedHypothesisCount, m.PromisingHypothesisCount)
	fmt.Fprintf(sb, "| Max normalized confidence | %.2f |\n", m.MaxNormalizedConfidence)
	fmt.Fprintf(sb, "| Mean normalized confidence | %.2f |\n", m.MeanNormalizedConfidence)
	fmt.Fprintf(sb, "| Dominant hypothesis clear | %t |\n", m.IsDominantClear)
	fmt.Fprintf(sb, "| Diversity score | %.2f |\n", m.DiversityScore)
	fmt.Fprintf(sb, "| Graph density | %.3f |\n", m.GraphDensity)
	sb.WriteString("\n")
}

func (e *Exporter) writeEvidence(ctx context.Context, sb *strings.Builder, jobID uint64) {
	evidence, err := e.storage.Papers().ListEvidenceByJob(ctx, jobID)
	if err != nil {
		e.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to list evidence for report")
		return
	}
	if len(evidence) == 0 {
		return
	}

	sb.WriteString("## Literature Consulted\n\n")
	count := 0
	for _, ev := range evidence {
		if count == maxEvidencePapers {
			fmt.Fprintf(sb, "\n...and %d more.\n", len(evidence)-count)
			break
		}
		paper, err := e.storage.Papers().Get(ctx, ev.PaperID)
		if err != nil {
			continue
		}
		line := paper.Title
		if paper.Year > 0 {
			line = fmt.Sprintf("%s (%d)", line, paper.Year)
		}
		if len(paper.Authors) > 0 {
			line = fmt.Sprintf("%s - %s", line, strings.Join(firstN(paper.Authors, 3), ", "))
		}
		fmt.Fprintf(sb, "- %s [impact %.1f]\n", line, ev.ImpactScore)
		count++
	}
	sb.WriteString("\n")
}

func firstN(s []string, n int) []string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
