package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/colligo/internal/models"
)

// formatJobList formats investigations as markdown
func formatJobList(jobs []*models.ResearchJob) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Investigations (%d)\n\n", len(jobs)))

	if len(jobs) == 0 {
		sb.WriteString("No investigations found.\n")
		return sb.String()
	}

	for _, job := range jobs {
		sb.WriteString(fmt.Sprintf("- **#%d** [%s] %s", job.ID, job.Status, job.Mode))
		if job.Seed != "" {
			sb.WriteString(fmt.Sprintf(" - %q", truncate(job.Seed, 80)))
		}
		sb.WriteString(fmt.Sprintf(" (updated %s)\n", job.UpdatedAt.Format(time.RFC3339)))
	}
	return sb.String()
}

// formatJobStatus formats one investigation with its latest decision
func formatJobStatus(job *models.ResearchJob, decision *models.DecisionResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("# Investigation #%d\n\n", job.ID))
	sb.WriteString(fmt.Sprintf("**Status:** %s\n", job.Status))
	sb.WriteString(fmt.Sprintf("**Mode:** %s\n", job.Mode))
	sb.WriteString(fmt.Sprintf("**User:** %s\n", job.UserID))
	if job.Seed != "" {
		sb.WriteString(fmt.Sprintf("**Question:** %s\n", job.Seed))
	}
	sb.WriteString(fmt.Sprintf("**Created:** %s\n", job.CreatedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("**Updated:** %s\n", job.UpdatedAt.Format(time.RFC3339)))
	if job.Error != "" {
		sb.WriteString(fmt.Sprintf("**Error:** %s\n", job.Error))
	}

	if decision != nil {
		sb.WriteString(fmt.Sprintf("\n## Latest Decision\n\n**Label:** %s\n**Provider:** %s\n",
			decision.DecisionLabel, decision.ProviderUsed))
		if decision.FallbackUsed {
			sb.WriteString(fmt.Sprintf("**Fallback:** %s\n", decision.FallbackReason))
		}
		m := decision.MeasurementsSnapshot
		sb.WriteString(fmt.Sprintf("**Hypotheses:** %d total, %d passed, %d promising\n",
			m.TotalHypothesisCount, m.PassedHypothesisCount, m.PromisingHypothesisCount))
		sb.WriteString(fmt.Sprintf("**Max confidence:** %.3f\n", m.MaxNormalizedConfidence))
	}

	if len(job.Result) > 0 {
		resultJSON, _ := json.MarshalIndent(job.Result, "", "  ")
		sb.WriteString("\n## Result\n\n```json\n")
		sb.Write(resultJSON)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

// formatHypotheses formats a ranked hypothesis list as markdown
func formatHypotheses(jobID uint64, hyps []*models.Hypothesis) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Hypotheses for Investigation #%d (%d)\n\n", jobID, len(hyps)))

	if len(hyps) == 0 {
		sb.WriteString("No matching hypotheses.\n")
		return sb.String()
	}

	for i, h := range hyps {
		status := "candidate"
		if h.PassedFilter {
			status = "passed"
		}
		sb.WriteString(fmt.Sprintf("### %d. %s -> %s (confidence %d, %s)\n",
			i+1, h.Source, h.Target, h.Confidence, status))
		if len(h.Path) > 0 {
			sb.WriteString(fmt.Sprintf("**Path:** %s\n", strings.Join(h.Path, " -> ")))
		}
		if len(h.Predicates) > 0 {
			sb.WriteString(fmt.Sprintf("**Predicates:** %s\n", strings.Join(h.Predicates, ", ")))
		}
		if h.Explanation != "" {
			sb.WriteString(fmt.Sprintf("%s\n", h.Explanation))
		}
		if !h.PassedFilter && len(h.FilterReason) != 0 {
			sb.WriteString(fmt.Sprintf("**Filtered:** %s\n", h.FilterReason))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// formatGraphSummary summarizes the active graph: size, the most
// connected entities by degree, and what sanitization removed.
func formatGraphSummary(graph *models.SemanticGraph, top int) string {
	if top <= 0 {
		top = 10
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Knowledge Graph for Investigation #%d\n\n", graph.JobID))
	sb.WriteString(fmt.Sprintf("**Version:** %d\n", graph.Version))
	sb.WriteString(fmt.Sprintf("**Nodes:** %d\n", graph.NodeCount))
	sb.WriteString(fmt.Sprintf("**Edges:** %d\n", graph.EdgeCount))
	sb.WriteString(fmt.Sprintf("**Created:** %s\n\n", graph.CreatedAt.Format(time.RFC3339)))

	degree := make(map[string]int)
	for _, e := range graph.Graph.Edges {
		degree[e.Subject]++
		degree[e.Object]++
	}
	type nodeDegree struct {
		text   string
		degree int
	}
	ranked := make([]nodeDegree, 0, len(degree))
	for text, d := range degree {
		ranked = append(ranked, nodeDegree{text, d})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].degree != ranked[j].degree {
			return ranked[i].degree > ranked[j].degree
		}
		return ranked[i].text < ranked[j].text
	})
	if len(ranked) > top {
		ranked = ranked[:top]
	}

	if len(ranked) > 0 {
		sb.WriteString("### Most Connected Entities\n\n")
		for _, n := range ranked {
			sb.WriteString(fmt.Sprintf("- %s (%d edges)\n", n.text, n.degree))
		}
		sb.WriteString("\n")
	}

	if len(graph.Graph.RemovedNodes) > 0 {
		sb.WriteString(fmt.Sprintf("### Removed by Sanitization (%d)\n\n", len(graph.Graph.RemovedNodes)))
		for _, r := range graph.Graph.RemovedNodes {
			sb.WriteString(fmt.Sprintf("- %s\n", r))
		}
	}
	return sb.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
