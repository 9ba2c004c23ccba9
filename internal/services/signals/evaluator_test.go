package signals

import (
	"context"
	"testing"
	"time"

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
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestScoreWeightedNormalizedDelta(t *testing.T) {
	e := NewEvaluator(newTestStorage(t), common.NewDefaultPolicy(), arbor.NewLogger())

	prev := &models.Measurements{PassedHypothesisCount: 2, MeanNormalizedConfidence: 0.4, GraphDensity: 0.05, FilteredRatio: 0.5}
	// Passed +5 saturates at max_delta 10 → 0.5 normalized; confidence +0.2
	// of max 1.0; density +0.05 of max 0.1; ratio +0.2 of max 1.0.
	cur := &models.Measurements{PassedHypothesisCount: 7, MeanNormalizedConfidence: 0.6, GraphDensity: 0.10, FilteredRatio: 0.7}

	score := e.Score(prev, cur)
	assert.InDelta(t, 0.4*0.5+0.3*0.2+0.2*0.5+0.1*0.2, score, 1e-9)
}

func TestScoreClampsAtMaxDelta(t *testing.T) {
	e := NewEvaluator(newTestStorage(t), common.NewDefaultPolicy(), arbor.NewLogger())

	prev := &models.Measurements{}
	cur := &models.Measurements{PassedHypothesisCount: 1000, MeanNormalizedConfidence: 50}

	score := e.Score(prev, cur)
	assert.InDelta(t, 0.4*1.0+0.3*1.0, score, 1e-9)
}

func TestClassify(t *testing.T) {
	e := NewEvaluator(newTestStorage(t), common.NewDefaultPolicy(), arbor.NewLogger())

	delta, status, rep := e.Classify(0.3)
	assert.Equal(t, 1, delta)
	assert.Equal(t, models.QueryStatusReusable, status)
	assert.Equal(t, 1, rep)

	delta, status, rep = e.Classify(-0.3)
	assert.Equal(t, -1, delta)
	assert.Equal(t, models.QueryStatusBlocked, status)
	assert.Equal(t, -2, rep)

	delta, status, rep = e.Classify(0.05)
	assert.Equal(t, 0, delta)
	assert.Equal(t, models.QueryStatusExhausted, status)
	assert.Equal(t, 0, rep)
}

func TestAttributeWindow(t *testing.T) {
	storage := newTestStorage(t)
	e := NewEvaluator(storage, common.NewDefaultPolicy(), arbor.NewLogger())
	ctx := context.Background()

	q := models.NewSearchQuery(1, "sig-1", "relationship between a and b", "", 0, models.QueryConfigSnapshot{})
	require.NoError(t, storage.Queries().Insert(ctx, q))

	base := time.Now().UTC().Add(-time.Hour)

	first := models.NewDecisionResult(1, models.DecisionFetchMoreLiterature, "rule", models.Measurements{PassedHypothesisCount: 1})
	first.CreatedAt = base
	require.NoError(t, storage.Decisions().Insert(ctx, first))

	// First decision: no window, nothing attributed.
	require.NoError(t, e.Attribute(ctx, first))

	inWindow := models.NewSearchQueryRun(q.ID, 1, "semanticscholar", models.RunReasonInitialAttempt)
	inWindow.CreatedAt = base.Add(10 * time.Minute)
	require.NoError(t, storage.Queries().InsertRun(ctx, inWindow))

	second := models.NewDecisionResult(1, models.DecisionFetchMoreLiterature, "rule", models.Measurements{PassedHypothesisCount: 8})
	second.CreatedAt = base.Add(20 * time.Minute)
	require.NoError(t, storage.Decisions().Insert(ctx, second))

	require.NoError(t, e.Attribute(ctx, second))

	runs, err := storage.Queries().ListRunsByQuery(ctx, q.ID)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.NotNil(t, runs[0].SignalDelta)
	assert.Equal(t, 1, *runs[0].SignalDelta)

	updated, err := storage.Queries().Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusReusable, updated.Status)
	assert.Equal(t, 1, updated.ReputationScore)

	// Re-attribution is a no-op: the run already carries its signal.
	require.NoError(t, e.Attribute(ctx, second))
	updated, err = storage.Queries().Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ReputationScore)
}

func TestAttributeNegativeSignalBlocksQuery(t *testing.T) {
	storage := newTestStorage(t)
	e := NewEvaluator(storage, common.NewDefaultPolicy(), arbor.NewLogger())
	ctx := context.Background()

	q := models.NewSearchQuery(1, "sig-2", "relationship between c and d", "", 0, models.QueryConfigSnapshot{})
	require.NoError(t, storage.Queries().Insert(ctx, q))

	base := time.Now().UTC().Add(-time.Hour)

	first := models.NewDecisionResult(1, models.DecisionFetchMoreLiterature, "rule", models.Measurements{PassedHypothesisCount: 8, MeanNormalizedConfidence: 0.8})
	first.CreatedAt = base
	require.NoError(t, storage.Decisions().Insert(ctx, first))

	run := models.NewSearchQueryRun(q.ID, 1, "semanticscholar", models.RunReasonInitialAttempt)
	run.CreatedAt = base.Add(time.Minute)
	require.NoError(t, storage.Queries().InsertRun(ctx, run))

	second := models.NewDecisionResult(1, models.DecisionFetchMoreLiterature, "rule", models.Measurements{PassedHypothesisCount: 0})
	second.CreatedAt = base.Add(2 * time.Minute)
	require.NoError(t, storage.Decisions().Insert(ctx, second))

	require.NoError(t, e.Attribute(ctx, second))

	updated, err := storage.Queries().Get(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusBlocked, updated.Status)
	assert.Equal(t, -2, updated.ReputationScore)
}
