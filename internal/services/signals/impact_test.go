package signals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

func TestRecomputeImpactScores(t *testing.T) {
	storage := newTestStorage(t)
	scorer := NewImpactScorer(storage, arbor.NewLogger())
	ctx := context.Background()
	jobID := uint64(1)

	paperA := models.NewPaper("Paper A", "", []string{"Doe"}, 2020, "semanticscholar")
	paperB := models.NewPaper("Paper B", "", []string{"Roe"}, 2021, "semanticscholar")
	require.NoError(t, storage.Papers().Insert(ctx, paperA))
	require.NoError(t, storage.Papers().Insert(ctx, paperB))

	srcA := models.NewIngestionSource(jobID, models.SourceTypePaperAbstract, models.PaperSourceRef(paperA.ID), "a")
	srcB := models.NewIngestionSource(jobID, models.SourceTypePaperAbstract, models.PaperSourceRef(paperB.ID), "b")
	srcUser := models.NewIngestionSource(jobID, models.SourceTypeUserText, "upload", "c")
	require.NoError(t, storage.Sources().Create(ctx, srcA))
	require.NoError(t, storage.Sources().Create(ctx, srcB))
	require.NoError(t, storage.Sources().Create(ctx, srcUser))

	h1 := models.NewHypothesis(jobID, models.HypothesisModeExplore, []string{"x", "m", "y"}, 1)
	h1.Confidence = 4
	h1.SourceIDs = []string{srcA.ID, srcUser.ID}
	h2 := models.NewHypothesis(jobID, models.HypothesisModeExplore, []string{"x", "n", "z"}, 1)
	h2.Confidence = 2
	h2.SourceIDs = []string{srcA.ID}
	require.NoError(t, storage.Hypotheses().ReplaceActive(ctx, jobID, []*models.Hypothesis{h1, h2}))

	_, err := storage.Papers().CreateEvidence(ctx, models.NewJobPaperEvidence(jobID, paperA.ID, "run-1"))
	require.NoError(t, err)
	_, err = storage.Papers().CreateEvidence(ctx, models.NewJobPaperEvidence(jobID, paperB.ID, "run-1"))
	require.NoError(t, err)

	require.NoError(t, scorer.Recompute(ctx, jobID))

	gotA, err := storage.Papers().GetEvidence(ctx, jobID, paperA.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, gotA.HypoRefCount)
	assert.InDelta(t, 6.0, gotA.CumulativeConf, 1e-9)
	// 5 unique entities (x, m, y, n, z) over 6 path slots.
	assert.InDelta(t, 5.0/6.0, gotA.EntityDensity, 1e-9)
	assert.InDelta(t, 2+6.0+5.0/6.0, gotA.ImpactScore, 1e-9)

	// Paper B is in the ledger but no hypothesis references it.
	gotB, err := storage.Papers().GetEvidence(ctx, jobID, paperB.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotB.HypoRefCount)
	assert.Zero(t, gotB.ImpactScore)
	assert.False(t, gotB.Evaluated)
}
