// -----------------------------------------------------------------------
// Search-Query Orchestrator - durable query intents and fetch execution
// -----------------------------------------------------------------------

package queries

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ProviderRegistry routes a resolved domain to a literature provider.
// Satisfied by papers.Registry.
type ProviderRegistry interface {
	ForDomain(domain string) interfaces.PaperProvider
}

// Lead is one (source, target) pair selected as a fetch target.
type Lead struct {
	Source string
	Target string
}

// FetchSummary reports what one fetch pass did.
type FetchSummary struct {
	LeadsConsidered int `json:"leads_considered"`
	QueriesRun      int `json:"queries_run"`
	QueriesSkipped  int `json:"queries_skipped"`
	PapersFetched   int `json:"papers_fetched"`
	PapersAccepted  int `json:"papers_accepted"`
}

// Orchestrator owns the search-query lifecycle: one durable SearchQuery per
// hypothesis endpoint pair, an append-only run log, and the fetch pass the
// FETCH_QUEUED stage delegates to. It never transitions query status; only
// the signal evaluator does that.
type Orchestrator struct {
	storage   interfaces.StorageManager
	providers ProviderRegistry
	resolver  *DomainResolver
	policy    common.QueryOrchestrator
	logger    arbor.ILogger
}

// NewOrchestrator creates the query orchestrator.
func NewOrchestrator(storage interfaces.StorageManager, providers ProviderRegistry, resolver *DomainResolver, policy *common.AdminPolicy, logger arbor.ILogger) *Orchestrator {
	return &Orchestrator{
		storage:   storage,
		providers: providers,
		resolver:  resolver,
		policy:    policy.QueryOrchestrator,
		logger:    logger,
	}
}

// SelectLeads picks the top-K endpoint pairs to fetch for, with grouped
// diversity: one lead per pair, passed groups first, then groups that are
// only promising, each ordered by the group's max confidence.
func (o *Orchestrator) SelectLeads(hyps []*models.Hypothesis, k int) []Lead {
	type group struct {
		key       string
		source    string
		target    string
		maxConf   int
		hasPassed bool
	}

	byKey := make(map[string]*group)
	for _, h := range hyps {
		if !h.PassedFilter && !h.Promising() {
			continue
		}
		g, ok := byKey[h.PairKey()]
		if !ok {
			g = &group{key: h.PairKey(), source: h.Source, target: h.Target}
			byKey[h.PairKey()] = g
		}
		if h.Confidence > g.maxConf {
			g.maxConf = h.Confidence
		}
		if h.PassedFilter {
			g.hasPassed = true
		}
	}

	groups := make([]*group, 0, len(byKey))
	for _, g := range byKey {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].hasPassed != groups[j].hasPassed {
			return groups[i].hasPassed
		}
		if groups[i].maxConf != groups[j].maxConf {
			return groups[i].maxConf > groups[j].maxConf
		}
		return groups[i].key < groups[j].key
	})

	if k <= 0 {
		k = o.policy.TopKHypotheses
	}
	leads := make([]Lead, 0, k)
	for _, g := range groups {
		if len(leads) >= k {
			break
		}
		leads = append(leads, Lead{Source: g.source, Target: g.target})
	}
	return leads
}

// GetOrCreate resolves the durable SearchQuery for an endpoint pair,
// creating it on first sight with status new, the initial reputation and a
// frozen config snapshot.
func (o *Orchestrator) GetOrCreate(ctx context.Context, job *models.ResearchJob, source, target string) (*models.SearchQuery, error) {
	sig := o.signature(source, target)

	existing, err := o.storage.Queries().GetBySignature(ctx, job.ID, sig)
	if err == nil {
		return existing, nil
	}
	if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("failed to look up search query: %w", err)
	}

	domain := o.resolver.Resolve(ctx, job.Config.Domain, job.Config.FocusAreas, source, target)
	q := models.NewSearchQuery(job.ID, sig, o.buildQueryText(job, source, target), domain, o.policy.InitialReputation, models.QueryConfigSnapshot{
		FetchBatchSize:   o.policy.FetchBatchSize,
		ResultsLimit:     o.policy.ResultsLimit,
		TopKHypotheses:   o.policy.TopKHypotheses,
		MaxReuseAttempts: o.policy.MaxReuseAttempts,
	})
	if err := o.storage.Queries().Insert(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to create search query: %w", err)
	}

	o.logger.Debug().
		Int64("job_id", int64(job.ID)).
		Str("query", q.QueryText).
		Str("domain", domain).
		Msg("Search query created")

	return q, nil
}

func (o *Orchestrator) signature(source, target string) string {
	sig := models.HypothesisSignature(source, target)
	if o.policy.SignatureLength > 0 && o.policy.SignatureLength < len(sig) {
		sig = sig[:o.policy.SignatureLength]
	}
	return sig
}

func (o *Orchestrator) buildQueryText(job *models.ResearchJob, source, target string) string {
	text := fmt.Sprintf("relationship between %s and %s", source, target)
	if extra := job.Config.QueryExpansion.ExtraTerms; len(extra) > 0 {
		text += " " + strings.Join(extra, " ")
	}
	return text
}

// ShouldRun decides whether a query executes this cycle and with what run
// reason. Blocked and exhausted queries never run again.
func (o *Orchestrator) ShouldRun(ctx context.Context, q *models.SearchQuery) (string, bool, error) {
	switch q.Status {
	case models.QueryStatusBlocked, models.QueryStatusExhausted:
		return "", false, nil
	case models.QueryStatusNew:
		return models.RunReasonInitialAttempt, true, nil
	case models.QueryStatusReusable:
		runs, err := o.storage.Queries().ListRunsByQuery(ctx, q.ID)
		if err != nil {
			return "", false, fmt.Errorf("failed to count query runs: %w", err)
		}
		if len(runs) < q.ConfigSnapshot.MaxReuseAttempts {
			return models.RunReasonReuse, true, nil
		}
		return "", false, nil
	default:
		return "", false, fmt.Errorf("unknown query status: %q", q.Status)
	}
}

// ExecuteFetchMore runs one fetch pass: select leads from the active
// hypothesis set, execute every runnable query against its domain's
// provider, dedupe results globally and record runs with the attribution
// slot open. Verification jobs with no surviving hypotheses fall back to
// their configured entity pair.
func (o *Orchestrator) ExecuteFetchMore(ctx context.Context, job *models.ResearchJob, hyps []*models.Hypothesis) (*FetchSummary, error) {
	leads := o.SelectLeads(hyps, o.policy.TopKHypotheses)
	if len(leads) == 0 && job.Mode == models.JobModeVerification {
		leads = append(leads, Lead{Source: job.Config.VerifySource, Target: job.Config.VerifyTarget})
	}

	seen, err := o.seenPaperIDs(ctx, job.ID)
	if err != nil {
		return nil, err
	}

	summary := &FetchSummary{LeadsConsidered: len(leads)}
	for _, l := range leads {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		q, err := o.GetOrCreate(ctx, job, l.Source, l.Target)
		if err != nil {
			return summary, err
		}

		reason, ok, err := o.ShouldRun(ctx, q)
		if err != nil {
			return summary, err
		}
		if !ok {
			summary.QueriesSkipped++
			continue
		}

		if err := o.runQuery(ctx, job, q, reason, seen, summary); err != nil {
			o.logger.Warn().Err(err).
				Int64("job_id", int64(job.ID)).
				Str("query", q.QueryText).
				Msg("Query execution failed, continuing with remaining leads")
		}
	}
	return summary, nil
}

func (o *Orchestrator) runQuery(ctx context.Context, job *models.ResearchJob, q *models.SearchQuery, reason string, seen map[string]bool, summary *FetchSummary) error {
	provider := o.providers.ForDomain(q.ResolvedDomain)

	results, err := provider.Search(ctx, &interfaces.PaperSearchRequest{
		Query:  q.QueryText,
		Domain: q.ResolvedDomain,
		Limit:  q.ConfigSnapshot.ResultsLimit,
	})
	if err != nil {
		return fmt.Errorf("provider search failed: %w", err)
	}

	run := models.NewSearchQueryRun(q.ID, job.ID, provider.Name(), reason)
	accepted := 0
	for _, candidate := range results {
		paper, err := o.resolvePaper(ctx, candidate)
		if err != nil {
			return err
		}
		run.FetchedPaperIDs = append(run.FetchedPaperIDs, paper.ID)

		if seen[paper.ID] || accepted >= q.ConfigSnapshot.FetchBatchSize {
			run.RejectedPaperIDs = append(run.RejectedPaperIDs, paper.ID)
			continue
		}

		existing, err := o.storage.Papers().GetEvidence(ctx, job.ID, paper.ID)
		if err != nil && err != interfaces.ErrNotFound {
			return fmt.Errorf("failed to check evidence ledger: %w", err)
		}
		if existing != nil {
			run.RejectedPaperIDs = append(run.RejectedPaperIDs, paper.ID)
			continue
		}

		if _, err := o.storage.Papers().CreateEvidence(ctx, models.NewJobPaperEvidence(job.ID, paper.ID, run.ID)); err != nil {
			return fmt.Errorf("failed to create evidence entry: %w", err)
		}
		if paper.Abstract != "" {
			src := models.NewIngestionSource(job.ID, models.SourceTypePaperAbstract, models.PaperSourceRef(paper.ID), paper.Abstract)
			if err := o.storage.Sources().Create(ctx, src); err != nil {
				return fmt.Errorf("failed to create abstract source: %w", err)
			}
		}

		run.AcceptedPaperIDs = append(run.AcceptedPaperIDs, paper.ID)
		seen[paper.ID] = true
		accepted++
	}

	if err := o.storage.Queries().InsertRun(ctx, run); err != nil {
		return fmt.Errorf("failed to record query run: %w", err)
	}

	summary.QueriesRun++
	summary.PapersFetched += len(run.FetchedPaperIDs)
	summary.PapersAccepted += accepted

	o.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("provider", provider.Name()).
		Str("reason", reason).
		Int("fetched", len(run.FetchedPaperIDs)).
		Int("accepted", accepted).
		Msg("Query run recorded")

	return nil
}

// seenPaperIDs unions the paper IDs every prior run of this job fetched,
// across all of its queries. A repeat sighting is never re-accepted.
func (o *Orchestrator) seenPaperIDs(ctx context.Context, jobID uint64) (map[string]bool, error) {
	runs, err := o.storage.Queries().ListRunsByJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prior runs: %w", err)
	}
	seen := make(map[string]bool)
	for _, r := range runs {
		for _, id := range r.FetchedPaperIDs {
			seen[id] = true
		}
	}
	return seen, nil
}

// resolvePaper maps a provider result to the canonical global paper,
// inserting it on first sight. Identity resolution order: DOI, external
// IDs, fingerprint.
func (o *Orchestrator) resolvePaper(ctx context.Context, candidate *models.Paper) (*models.Paper, error) {
	if candidate.DOI != "" {
		if p, err := o.storage.Papers().FindByDOI(ctx, candidate.DOI); err == nil {
			return p, nil
		} else if err != interfaces.ErrNotFound {
			return nil, fmt.Errorf("doi lookup failed: %w", err)
		}
	}
	if len(candidate.ExternalIDs) > 0 {
		if p, err := o.storage.Papers().FindByExternalIDs(ctx, candidate.ExternalIDs); err == nil {
			return p, nil
		} else if err != interfaces.ErrNotFound {
			return nil, fmt.Errorf("external id lookup failed: %w", err)
		}
	}
	if p, err := o.storage.Papers().FindByFingerprint(ctx, candidate.Fingerprint); err == nil {
		return p, nil
	} else if err != interfaces.ErrNotFound {
		return nil, fmt.Errorf("fingerprint lookup failed: %w", err)
	}

	if err := o.storage.Papers().Insert(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}
	return candidate, nil
}
