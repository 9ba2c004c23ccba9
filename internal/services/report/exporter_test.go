package report

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func seedJob(t *testing.T, storage interfaces.StorageManager) uint64 {
	t.Helper()
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "does aspirin reduce cancer risk", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)

	_, err = storage.Graphs().SaveNewVersion(ctx, id, models.GraphData{
		Nodes: []models.GraphNode{{Text: "aspirin", Type: "concept"}, {Text: "cancer", Type: "concept"}},
		Edges: []models.GraphEdge{{Subject: "aspirin", Predicate: "inhibits", Object: "cancer", Support: 3}},
	})
	require.NoError(t, err)

	dominant := models.NewHypothesis(id, "direct", []string{"aspirin", "inflammation", "cancer"}, 1)
	dominant.Confidence = 82
	dominant.PassedFilter = true
	dominant.Explanation = "Aspirin suppresses inflammatory signaling implicated in tumor growth."
	weak := models.NewHypothesis(id, "direct", []string{"aspirin", "cancer"}, 1)
	weak.Confidence = 40
	weak.PassedFilter = true
	weak.Explanation = "Direct association reported in two cohort studies."
	require.NoError(t, storage.Hypotheses().ReplaceActive(ctx, id, []*models.Hypothesis{dominant, weak}))

	paper := models.NewPaper("Aspirin and cancer incidence", "abstract", []string{"Smith J", "Lee K"}, 2020, "semanticscholar")
	require.NoError(t, storage.Papers().Insert(ctx, paper))
	ev := models.NewJobPaperEvidence(id, paper.ID, "run-1")
	ev.ImpactScore = 2.5
	_, err = storage.Papers().CreateEvidence(ctx, ev)
	require.NoError(t, err)

	decision := models.NewDecisionResult(id, models.DecisionHaltConfident, "gemini", models.Measurements{
		TotalHypothesisCount:    2,
		PassedHypothesisCount:   2,
		MaxNormalizedConfidence: 0.82,
		IsDominantClear:         true,
	})
	require.NoError(t, storage.Decisions().Insert(ctx, decision))
	return id
}

func TestBuildMarkdown(t *testing.T) {
	storage := newTestStorage(t)
	id := seedJob(t, storage)
	exp := NewExporter(storage, NewRenderer(arbor.NewLogger()), t.TempDir(), arbor.NewLogger())

	md, title, err := exp.BuildMarkdown(context.Background(), id)
	require.NoError(t, err)
	assert.Contains(t, title, "Investigation")
	assert.Contains(t, md, "does aspirin reduce cancer risk")
	assert.Contains(t, md, "Dominant Hypothesis")
	assert.Contains(t, md, "aspirin -> cancer")
	assert.Contains(t, md, "Alternatives")
	assert.Contains(t, md, "Aspirin and cancer incidence (2020)")
	assert.Contains(t, md, "| Dominant hypothesis clear | true |")
}

func TestBuildMarkdownWithoutEvidence(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	job := models.NewResearchJob("user-1", models.JobModeDiscovery, "seed question", models.JobConfig{})
	id, err := storage.Jobs().CreateJob(ctx, job)
	require.NoError(t, err)

	exp := NewExporter(storage, NewRenderer(arbor.NewLogger()), t.TempDir(), arbor.NewLogger())
	md, _, err := exp.BuildMarkdown(ctx, id)
	require.NoError(t, err)
	assert.Contains(t, md, "No hypothesis has passed the evidence filter yet.")
	assert.NotContains(t, md, "Literature Consulted")
}

func TestExportPDF(t *testing.T) {
	storage := newTestStorage(t)
	id := seedJob(t, storage)
	exp := NewExporter(storage, NewRenderer(arbor.NewLogger()), t.TempDir(), arbor.NewLogger())

	data, err := exp.ExportPDF(context.Background(), id)
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, "%PDF", string(data[:4]))
}
