// -----------------------------------------------------------------------
// Signal Evaluator - attribute measurement deltas to search-query runs
// -----------------------------------------------------------------------

package signals

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Evaluator closes the reputation learning loop. After every decision it
// finds the query runs sandwiched between the previous decision and this
// one, scores the measurement delta across that window, and applies the
// resulting signal to each run and its parent query.
type Evaluator struct {
	storage interfaces.StorageManager
	params  common.SignalParams
	minRep  int
	logger  arbor.ILogger
}

// NewEvaluator creates the signal evaluator.
func NewEvaluator(storage interfaces.StorageManager, policy *common.AdminPolicy, logger arbor.ILogger) *Evaluator {
	return &Evaluator{
		storage: storage,
		params:  policy.SignalParams,
		minRep:  policy.QueryOrchestrator.MinReputation,
		logger:  logger,
	}
}

// Attribute processes the window ending at current. The first decision of a
// job has no window and attributes nothing. Runs already carrying a signal
// are excluded by the storage query, so redelivery is a no-op.
func (e *Evaluator) Attribute(ctx context.Context, current *models.DecisionResult) error {
	prev, err := e.storage.Decisions().PreviousBefore(ctx, current.JobID, current.CreatedAt)
	if err == interfaces.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load previous decision: %w", err)
	}

	runs, err := e.storage.Queries().ListUnattributedRunsBetween(ctx, current.JobID, prev.CreatedAt, current.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to list window runs: %w", err)
	}
	if len(runs) == 0 {
		return nil
	}

	score := e.Score(&prev.MeasurementsSnapshot, &current.MeasurementsSnapshot)
	delta, status, repDelta := e.Classify(score)

	for _, run := range runs {
		if run.SignalDelta != nil {
			continue
		}
		d := delta
		run.SignalDelta = &d
		if err := e.storage.Queries().UpdateRun(ctx, run); err != nil {
			return fmt.Errorf("failed to update run %s: %w", run.ID, err)
		}
		if err := e.applyToQuery(ctx, run.SearchQueryID, status, repDelta); err != nil {
			return err
		}
	}

	e.logger.Info().
		Int64("job_id", int64(current.JobID)).
		Float64("score", score).
		Int("signal", delta).
		Str("query_status", status).
		Int("runs", len(runs)).
		Msg("Signal attributed")

	return nil
}

// Score computes the weighted normalized measurement delta between two
// snapshots. Each configured measurement contributes
// weight * clamp(delta/max_delta, -1, 1); unknown metric names are skipped.
func (e *Evaluator) Score(prev, current *models.Measurements) float64 {
	var total float64
	for key, weight := range e.params.Weights {
		before, okB := prev.Metric(key)
		after, okA := current.Metric(key)
		if !okB || !okA {
			continue
		}
		maxDelta := e.params.MaxDeltas[key]
		if maxDelta <= 0 {
			continue
		}
		norm := (after - before) / maxDelta
		if norm > 1 {
			norm = 1
		} else if norm < -1 {
			norm = -1
		}
		total += weight * norm
	}
	return total
}

// Classify maps a score to the run signal, the parent query's next status
// and its reputation delta.
func (e *Evaluator) Classify(score float64) (int, string, int) {
	switch {
	case score >= e.params.PositiveThreshold:
		return 1, models.QueryStatusReusable, e.params.ReputationPositiveDelta
	case score <= e.params.NegativeThreshold:
		return -1, models.QueryStatusBlocked, e.params.ReputationNegativeDelta
	default:
		return 0, models.QueryStatusExhausted, 0
	}
}

func (e *Evaluator) applyToQuery(ctx context.Context, queryID, status string, repDelta int) error {
	q, err := e.storage.Queries().Get(ctx, queryID)
	if err != nil {
		return fmt.Errorf("failed to load query %s: %w", queryID, err)
	}

	q.Status = status
	q.ReputationScore += repDelta
	if q.ReputationScore <= e.minRep && q.Status != models.QueryStatusBlocked {
		q.Status = models.QueryStatusBlocked
	}

	if err := e.storage.Queries().Update(ctx, q); err != nil {
		return fmt.Errorf("failed to update query %s: %w", queryID, err)
	}
	return nil
}
