package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"github.com/ternarybob/arbor"
	arbormodels "github.com/ternarybob/arbor/models"

	"github.com/ternarybob/colligo/internal/common"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"
)

func main() {
	configPath := os.Getenv("COLLIGO_CONFIG")
	if configPath == "" {
		configPath = "colligo.toml"
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Minimal logging to avoid cluttering MCP stdio
	logger := arbor.NewLogger().WithConsoleWriter(arbormodels.WriterConfiguration{
		Type:             arbormodels.LogWriterTypeConsole,
		TimeFormat:       "15:04:05",
		DisableTimestamp: false,
	}).WithLevelFromString("warn")

	storageManager, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}
	defer storageManager.Close()

	mcpServer := server.NewMCPServer(
		"colligo",
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)

	mcpServer.AddTool(createListJobsTool(), handleListJobs(storageManager, logger))
	mcpServer.AddTool(createGetJobStatusTool(), handleGetJobStatus(storageManager, logger))
	mcpServer.AddTool(createSearchHypothesesTool(), handleSearchHypotheses(storageManager, logger))
	mcpServer.AddTool(createGetGraphSummaryTool(), handleGetGraphSummary(storageManager, logger))

	// Blocks on stdio
	if err := server.ServeStdio(mcpServer); err != nil {
		logger.Fatal().Err(err).Msg("MCP server failed")
	}
}
