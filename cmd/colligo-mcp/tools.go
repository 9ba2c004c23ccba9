package main

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// createListJobsTool returns the list_jobs tool definition
func createListJobsTool() mcp.Tool {
	return mcp.NewTool("list_jobs",
		mcp.WithDescription("List Colligo investigations, newest first, optionally filtered by user or status"),
		mcp.WithString("user_id",
			mcp.Description("Filter by owning user"),
		),
		mcp.WithString("status",
			mcp.Description("Filter by job status (e.g. COMPLETED, DECISION_MADE, NEED_MORE_INPUT, FAILED)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 20, max: 100)"),
		),
	)
}

// createGetJobStatusTool returns the get_job_status tool definition
func createGetJobStatusTool() mcp.Tool {
	return mcp.NewTool("get_job_status",
		mcp.WithDescription("Get one investigation's status, latest decision, and result payload"),
		mcp.WithNumber("job_id",
			mcp.Required(),
			mcp.Description("Numeric investigation ID"),
		),
	)
}

// createSearchHypothesesTool returns the search_hypotheses tool definition
func createSearchHypothesesTool() mcp.Tool {
	return mcp.NewTool("search_hypotheses",
		mcp.WithDescription("List an investigation's active hypotheses ranked by confidence, optionally filtered by entity"),
		mcp.WithNumber("job_id",
			mcp.Required(),
			mcp.Description("Numeric investigation ID"),
		),
		mcp.WithString("entity",
			mcp.Description("Only hypotheses whose source or target contains this text (case-insensitive)"),
		),
		mcp.WithBoolean("passed_only",
			mcp.Description("Only hypotheses that passed the evidence filter (default: false)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum results to return (default: 10, max: 50)"),
		),
	)
}

// createGetGraphSummaryTool returns the get_graph_summary tool definition
func createGetGraphSummaryTool() mcp.Tool {
	return mcp.NewTool("get_graph_summary",
		mcp.WithDescription("Summarize an investigation's active knowledge graph: size, top connected entities, removed nodes"),
		mcp.WithNumber("job_id",
			mcp.Required(),
			mcp.Description("Numeric investigation ID"),
		),
		mcp.WithNumber("top",
			mcp.Description("How many of the most connected entities to list (default: 10)"),
		),
	)
}
