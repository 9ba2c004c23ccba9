// -----------------------------------------------------------------------
// Decision Controller - provider selection and decision persistence
// -----------------------------------------------------------------------

package decisions

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Controller modes.
const (
	ModeRuleBased = "rule_based"
	ModeHybrid    = "hybrid"
	ModeLLM       = "llm"
)

// Controller picks the decision provider per configured mode and persists
// every decision as an append-only DecisionResult.
type Controller struct {
	mode    string
	rule    interfaces.DecisionProvider
	llm     interfaces.DecisionProvider
	storage interfaces.StorageManager
	logger  arbor.ILogger
}

// NewController creates a decision controller. The llm provider may be nil
// when no LLM is configured; llm mode then degrades to rule_based.
func NewController(mode string, rule, llm interfaces.DecisionProvider, storage interfaces.StorageManager, logger arbor.ILogger) (*Controller, error) {
	switch mode {
	case ModeRuleBased, ModeHybrid, ModeLLM:
	case "":
		mode = ModeRuleBased
	default:
		return nil, fmt.Errorf("unknown decision mode: %q", mode)
	}
	if rule == nil {
		return nil, fmt.Errorf("rule provider is required")
	}

	return &Controller{
		mode:    mode,
		rule:    rule,
		llm:     llm,
		storage: storage,
		logger:  logger,
	}, nil
}

// Decide runs the configured provider chain against the snapshot and
// persists the result.
func (c *Controller) Decide(ctx context.Context, job *models.ResearchJob, m *models.Measurements) (*models.DecisionResult, error) {
	label, explanation, provider, fallbackReason := c.run(ctx, m, job.Mode)

	result := models.NewDecisionResult(job.ID, label, provider, *m)
	if fallbackReason != "" {
		result.FallbackUsed = true
		result.FallbackReason = fallbackReason
	}

	if err := c.storage.Decisions().Insert(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to persist decision: %w", err)
	}

	c.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("decision", string(label)).
		Str("provider", provider).
		Str("explanation", explanation).
		Msg("Decision made")

	return result, nil
}

// run resolves the label. The hybrid mode's LLM leg is reserved for a
// future "undecided" rule outcome; today it behaves like rule_based.
func (c *Controller) run(ctx context.Context, m *models.Measurements, mode models.JobMode) (models.DecisionLabel, string, string, string) {
	switch c.mode {
	case ModeLLM:
		if c.llm != nil {
			label, explanation, err := c.llm.Decide(ctx, m, mode)
			if err == nil {
				return label, explanation, c.llm.Name(), ""
			}
			c.logger.Warn().Err(err).Msg("LLM decision provider failed, falling back to rules")
			label, explanation, _ = c.rule.Decide(ctx, m, mode)
			return label, explanation, c.rule.Name(), "llm provider error"
		}
		label, explanation, _ := c.rule.Decide(ctx, m, mode)
		return label, explanation, c.rule.Name(), "llm provider not configured"

	default: // rule_based and hybrid
		label, explanation, _ := c.rule.Decide(ctx, m, mode)
		return label, explanation, c.rule.Name(), ""
	}
}
