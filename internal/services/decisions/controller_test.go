package decisions

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/storage/badger"
)

type stubProvider struct {
	name  string
	label models.DecisionLabel
	err   error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Decide(ctx context.Context, m *models.Measurements, mode models.JobMode) (models.DecisionLabel, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return s.label, "stubbed", nil
}

func newTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func TestControllerRuleBasedIgnoresLLM(t *testing.T) {
	storage := newTestStorage(t)
	rule := &stubProvider{name: "rule", label: models.DecisionFetchMoreLiterature}
	llm := &stubProvider{name: "llm", label: models.DecisionHaltConfident}

	c, err := NewController(ModeRuleBased, rule, llm, storage, arbor.NewLogger())
	require.NoError(t, err)

	d, err := c.Decide(context.Background(), &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}, &models.Measurements{})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionFetchMoreLiterature, d.DecisionLabel)
	assert.Equal(t, "rule", d.ProviderUsed)
	assert.False(t, d.FallbackUsed)
}

func TestControllerLLMModeUsesLLM(t *testing.T) {
	storage := newTestStorage(t)
	rule := &stubProvider{name: "rule", label: models.DecisionFetchMoreLiterature}
	llm := &stubProvider{name: "llm", label: models.DecisionHaltConfident}

	c, err := NewController(ModeLLM, rule, llm, storage, arbor.NewLogger())
	require.NoError(t, err)

	d, err := c.Decide(context.Background(), &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}, &models.Measurements{})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionHaltConfident, d.DecisionLabel)
	assert.Equal(t, "llm", d.ProviderUsed)
	assert.False(t, d.FallbackUsed)
}

func TestControllerLLMFailureFallsBackToRule(t *testing.T) {
	storage := newTestStorage(t)
	rule := &stubProvider{name: "rule", label: models.DecisionFetchMoreLiterature}
	llm := &stubProvider{name: "llm", err: fmt.Errorf("api unreachable")}

	c, err := NewController(ModeLLM, rule, llm, storage, arbor.NewLogger())
	require.NoError(t, err)

	d, err := c.Decide(context.Background(), &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}, &models.Measurements{})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionFetchMoreLiterature, d.DecisionLabel)
	assert.Equal(t, "rule", d.ProviderUsed)
	assert.True(t, d.FallbackUsed)
	assert.NotEmpty(t, d.FallbackReason)
}

func TestControllerPersistsDecision(t *testing.T) {
	storage := newTestStorage(t)
	rule := &stubProvider{name: "rule", label: models.DecisionInsufficientSignal}

	c, err := NewController("", rule, nil, storage, arbor.NewLogger())
	require.NoError(t, err)

	m := &models.Measurements{TotalHypothesisCount: 4}
	_, err = c.Decide(context.Background(), &models.ResearchJob{ID: 42, Mode: models.JobModeDiscovery}, m)
	require.NoError(t, err)

	latest, err := storage.Decisions().Latest(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, models.DecisionInsufficientSignal, latest.DecisionLabel)
	assert.Equal(t, 4, latest.MeasurementsSnapshot.TotalHypothesisCount)
}

func TestRegistryValidateComplete(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.ValidateComplete())

	deps := &HandlerDeps{Policy: common.NewDefaultPolicy(), Logger: arbor.NewLogger()}
	RegisterAll(reg, deps)
	assert.NoError(t, reg.ValidateComplete())
}
