package queries

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

type fakeProvider struct {
	name    string
	results []*models.Paper
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Search(ctx context.Context, req *interfaces.PaperSearchRequest) ([]*models.Paper, error) {
	f.calls++
	return f.results, nil
}

func (f *fakeProvider) DownloadPDF(ctx context.Context, paper *models.Paper) ([]byte, error) {
	return nil, interfaces.ErrNoFullText
}

type fakeRegistry struct {
	provider interfaces.PaperProvider
}

func (f *fakeRegistry) ForDomain(domain string) interfaces.PaperProvider { return f.provider }

func newTestOrchestrator(t *testing.T, provider interfaces.PaperProvider) (*Orchestrator, interfaces.StorageManager) {
	t.Helper()
	mgr, err := badger.NewManager(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close() })

	policy := common.NewDefaultPolicy()
	resolver := NewDomainResolver(policy.QueryOrchestrator.Domains, nil, arbor.NewLogger())
	o := NewOrchestrator(mgr, &fakeRegistry{provider: provider}, resolver, policy, arbor.NewLogger())
	return o, mgr
}

func hyp(source, target string, conf int, passed bool, reasons map[string]string) *models.Hypothesis {
	h := models.NewHypothesis(1, models.HypothesisModeExplore, []string{source, "mid", target}, 1)
	h.Confidence = conf
	h.PassedFilter = passed
	h.FilterReason = reasons
	return h
}

func TestSelectLeadsGroupedDiversity(t *testing.T) {
	o, _ := newTestOrchestrator(t, &fakeProvider{name: "fake"})

	hyps := []*models.Hypothesis{
		// Two hypotheses of the same pair count once.
		hyp("a", "b", 5, true, nil),
		hyp("a", "b", 9, true, nil),
		hyp("c", "d", 7, true, nil),
		// Promising-only group, higher confidence than any passed group,
		// still ranks after passed groups.
		hyp("e", "f", 20, false, map[string]string{models.FilterRuleEvidenceThreshold: "confidence 1 < 2"}),
		// Hard-rejected hypotheses contribute nothing.
		hyp("g", "h", 30, false, map[string]string{models.FilterRuleNovelty: "direct edge exists"}),
	}

	leads := o.SelectLeads(hyps, 3)
	require.Len(t, leads, 3)
	assert.Equal(t, Lead{Source: "a", Target: "b"}, leads[0])
	assert.Equal(t, Lead{Source: "c", Target: "d"}, leads[1])
	assert.Equal(t, Lead{Source: "e", Target: "f"}, leads[2])
}

func TestGetOrCreateIsIdempotentPerPair(t *testing.T) {
	o, storage := newTestOrchestrator(t, &fakeProvider{name: "fake"})
	ctx := context.Background()
	job := &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery, Config: models.JobConfig{Domain: "neuroscience"}}

	q1, err := o.GetOrCreate(ctx, job, "Dopamine", "Memory")
	require.NoError(t, err)
	assert.Equal(t, models.QueryStatusNew, q1.Status)
	assert.Equal(t, "relationship between Dopamine and Memory", q1.QueryText)
	assert.Equal(t, "neuroscience", q1.ResolvedDomain)
	assert.NotZero(t, q1.ConfigSnapshot.FetchBatchSize)

	q2, err := o.GetOrCreate(ctx, job, "Dopamine", "Memory")
	require.NoError(t, err)
	assert.Equal(t, q1.ID, q2.ID)

	all, err := storage.Queries().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestShouldRunLifecycle(t *testing.T) {
	o, storage := newTestOrchestrator(t, &fakeProvider{name: "fake"})
	ctx := context.Background()
	job := &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}

	q, err := o.GetOrCreate(ctx, job, "a", "b")
	require.NoError(t, err)

	reason, ok, err := o.ShouldRun(ctx, q)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.RunReasonInitialAttempt, reason)

	q.Status = models.QueryStatusBlocked
	_, ok, err = o.ShouldRun(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok)

	q.Status = models.QueryStatusExhausted
	_, ok, err = o.ShouldRun(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok)

	// Reusable runs until the snapshot's reuse budget is spent.
	q.Status = models.QueryStatusReusable
	q.ConfigSnapshot.MaxReuseAttempts = 2
	for i := 0; i < 2; i++ {
		reason, ok, err = o.ShouldRun(ctx, q)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, models.RunReasonReuse, reason)
		require.NoError(t, storage.Queries().InsertRun(ctx, models.NewSearchQueryRun(q.ID, job.ID, "fake", reason)))
	}
	_, ok, err = o.ShouldRun(ctx, q)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExecuteFetchMoreDedupesAcrossRuns(t *testing.T) {
	paper := models.NewPaper("Dopamine and working memory", "Abstract text.", []string{"Doe"}, 2021, "fake")
	provider := &fakeProvider{name: "fake", results: []*models.Paper{paper}}
	o, storage := newTestOrchestrator(t, provider)
	ctx := context.Background()
	job := &models.ResearchJob{ID: 1, Mode: models.JobModeDiscovery}

	hyps := []*models.Hypothesis{hyp("Dopamine", "Memory", 5, true, nil)}

	summary, err := o.ExecuteFetchMore(ctx, job, hyps)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.QueriesRun)
	assert.Equal(t, 1, summary.PapersAccepted)

	// Ledger entry and abstract source exist.
	count, err := storage.Papers().CountEvidenceByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	sources, err := storage.Sources().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, models.SourceTypePaperAbstract, sources[0].SourceType)

	// The query stays in status new; the signal evaluator owns transitions.
	queries, err := storage.Queries().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, models.QueryStatusNew, queries[0].Status)

	// Second pass: query is still status new so it runs again, but the
	// same paper is a repeat sighting and is rejected.
	summary, err = o.ExecuteFetchMore(ctx, job, hyps)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.PapersAccepted)

	count, err = storage.Papers().CountEvidenceByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	runs, err := storage.Queries().ListRunsByJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Nil(t, r.SignalDelta)
	}
}

func TestExecuteFetchMoreVerificationFallbackLead(t *testing.T) {
	provider := &fakeProvider{name: "fake"}
	o, storage := newTestOrchestrator(t, provider)
	ctx := context.Background()
	job := &models.ResearchJob{
		ID:   2,
		Mode: models.JobModeVerification,
		Config: models.JobConfig{
			VerifySource: "curcumin",
			VerifyTarget: "amyloid",
		},
	}

	summary, err := o.ExecuteFetchMore(ctx, job, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.LeadsConsidered)
	assert.Equal(t, 1, provider.calls)

	queries, err := storage.Queries().ListByJob(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, queries, 1)
	assert.Equal(t, "relationship between curcumin and amyloid", queries[0].QueryText)
}
