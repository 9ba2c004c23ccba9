package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// handleListJobs implements the list_jobs tool
func handleListJobs(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := request.GetInt("limit", 20)
		if limit > 100 {
			limit = 100
		}

		opts := interfaces.JobListOptions{
			UserID: request.GetString("user_id", ""),
			Status: models.JobStatus(request.GetString("status", "")),
			Limit:  limit,
		}

		jobs, err := storage.Jobs().ListJobs(ctx, opts)
		if err != nil {
			logger.Error().Err(err).Msg("List jobs failed")
			return textResult(fmt.Sprintf("Error listing jobs: %v", err)), nil
		}

		return textResult(formatJobList(jobs)), nil
	}
}

// handleGetJobStatus implements the get_job_status tool
func handleGetJobStatus(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID := request.GetInt("job_id", 0)
		if jobID <= 0 {
			return textResult("Error: job_id parameter is required"), nil
		}

		job, err := storage.Jobs().GetJob(ctx, uint64(jobID))
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return textResult(fmt.Sprintf("Investigation #%d not found", jobID)), nil
			}
			logger.Error().Err(err).Int("job_id", jobID).Msg("Get job failed")
			return textResult(fmt.Sprintf("Error loading job: %v", err)), nil
		}

		// The latest decision is optional context; a job early in the
		// pipeline has none yet.
		decision, err := storage.Decisions().Latest(ctx, job.ID)
		if err != nil && !errors.Is(err, interfaces.ErrNotFound) {
			logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Latest decision lookup failed")
			decision = nil
		}

		return textResult(formatJobStatus(job, decision)), nil
	}
}

// handleSearchHypotheses implements the search_hypotheses tool
func handleSearchHypotheses(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID := request.GetInt("job_id", 0)
		if jobID <= 0 {
			return textResult("Error: job_id parameter is required"), nil
		}

		limit := request.GetInt("limit", 10)
		if limit > 50 {
			limit = 50
		}
		entity := strings.ToLower(request.GetString("entity", ""))
		passedOnly := request.GetBool("passed_only", false)

		hyps, err := storage.Hypotheses().ListActive(ctx, uint64(jobID))
		if err != nil {
			logger.Error().Err(err).Int("job_id", jobID).Msg("List hypotheses failed")
			return textResult(fmt.Sprintf("Error listing hypotheses: %v", err)), nil
		}

		filtered := make([]*models.Hypothesis, 0, len(hyps))
		for _, h := range hyps {
			if passedOnly && !h.PassedFilter {
				continue
			}
			if entity != "" &&
				!strings.Contains(strings.ToLower(h.Source), entity) &&
				!strings.Contains(strings.ToLower(h.Target), entity) {
				continue
			}
			filtered = append(filtered, h)
		}
		models.SortHypotheses(filtered)
		if len(filtered) > limit {
			filtered = filtered[:limit]
		}

		return textResult(formatHypotheses(uint64(jobID), filtered)), nil
	}
}

// handleGetGraphSummary implements the get_graph_summary tool
func handleGetGraphSummary(storage interfaces.StorageManager, logger arbor.ILogger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID := request.GetInt("job_id", 0)
		if jobID <= 0 {
			return textResult("Error: job_id parameter is required"), nil
		}
		top := request.GetInt("top", 10)

		graph, err := storage.Graphs().GetActive(ctx, uint64(jobID))
		if err != nil {
			if errors.Is(err, interfaces.ErrNotFound) {
				return textResult(fmt.Sprintf("Investigation #%d has no active graph yet", jobID)), nil
			}
			logger.Error().Err(err).Int("job_id", jobID).Msg("Get graph failed")
			return textResult(fmt.Sprintf("Error loading graph: %v", err)), nil
		}

		return textResult(formatGraphSummary(graph, top)), nil
	}
}
