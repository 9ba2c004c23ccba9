// -----------------------------------------------------------------------
// LLM decision provider - prompt-and-match fallback
// -----------------------------------------------------------------------

package decisions

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// LLMProvider asks the language model to pick a label from the closed set.
// The response is matched by substring against the label names; anything
// unparseable falls back to FETCH_MORE_LITERATURE.
type LLMProvider struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewLLMProvider creates the LLM-backed decision provider.
func NewLLMProvider(llm interfaces.LLMService, logger arbor.ILogger) *LLMProvider {
	return &LLMProvider{
		llm:    llm,
		logger: logger,
	}
}

// Name identifies the provider in decision results.
func (p *LLMProvider) Name() string {
	return "llm"
}

// Decide prompts the model with the label set and key measurements.
func (p *LLMProvider) Decide(ctx context.Context, m *models.Measurements, mode models.JobMode) (models.DecisionLabel, string, error) {
	labels := models.DiscoveryDecisionLabels
	if mode == models.JobModeVerification {
		labels = models.VerificationDecisionLabels
	}

	prompt := p.buildPrompt(m, labels)
	response, err := p.llm.Generate(ctx, prompt, interfaces.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   128,
		System:      "You are the control loop of a literature review engine. Answer with exactly one decision label from the list, nothing else.",
	})
	if err != nil {
		return "", "", fmt.Errorf("llm decision call failed: %w", err)
	}

	upper := strings.ToUpper(response)
	for _, label := range labels {
		if strings.Contains(upper, string(label)) {
			return label, "llm selected " + string(label), nil
		}
	}

	p.logger.Warn().Str("response", truncate(response, 120)).Msg("LLM decision response matched no label")
	return models.DecisionFetchMoreLiterature, "llm response unparseable", nil
}

func (p *LLMProvider) buildPrompt(m *models.Measurements, labels []models.DecisionLabel) string {
	var b strings.Builder
	b.WriteString("Choose the next control decision for a literature review job.\n\nAllowed labels:\n")
	for _, label := range labels {
		b.WriteString("- ")
		b.WriteString(string(label))
		b.WriteString("\n")
	}

	b.WriteString("\nCurrent measurements:\n")
	fmt.Fprintf(&b, "- passed hypotheses: %d (of %d total, %d promising)\n", m.PassedHypothesisCount, m.TotalHypothesisCount, m.PromisingHypothesisCount)
	fmt.Fprintf(&b, "- max normalized confidence: %.2f (mean %.2f, dominant clear: %t)\n", m.MaxNormalizedConfidence, m.MeanNormalizedConfidence, m.IsDominantClear)
	fmt.Fprintf(&b, "- graph: %d nodes, %d edges, density %.4f\n", m.SemanticGraphNodeCount, m.SemanticGraphEdgeCount, m.GraphDensity)
	fmt.Fprintf(&b, "- diversity score: %.2f over %d unique pairs\n", m.DiversityScore, m.UniqueSourceTargetPairs)
	fmt.Fprintf(&b, "- paths per pair: max %d, mean %.2f, mean path length %.2f\n", m.MaxPathsPerPair, m.MeanPathsPerPair, m.MeanPathLength)
	if m.GrowthScore != nil {
		fmt.Fprintf(&b, "- growth score since last decision: %.2f\n", *m.GrowthScore)
	}
	if m.EvidenceGrowthRate != nil {
		fmt.Fprintf(&b, "- evidence growth rate: %.2f\n", *m.EvidenceGrowthRate)
	}
	if m.IsVerification {
		fmt.Fprintf(&b, "- verification complete: %t, found: %t\n", m.VerificationComplete, m.VerificationFound)
	}

	b.WriteString("\nRespond with exactly one label.")
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
