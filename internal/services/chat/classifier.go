// -----------------------------------------------------------------------
// Message classifier - closed-set labels, LLM first, keywords as fallback
// -----------------------------------------------------------------------

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const classifyPrompt = `Classify the user message into exactly one label:
- RESEARCH_SEED: a new research question or topic to investigate
- EVIDENCE_INPUT: document text, an abstract or findings to add to an existing investigation
- CLARIFICATION_CONSTRAINT: narrows or constrains an existing investigation (focus areas, exclusions)
- EXPERT_GUIDANCE: domain assumptions or steering from a subject-matter expert
- GRAPH_QUERY: a question about what the current knowledge graph shows
- CONVERSATIONAL: greetings, thanks, anything else

Addressed job: %s
Message: %s

Respond with the label only.`

// Classifier assigns one ClassifierLabel per message. The LLM does the
// work; when it is unreachable or answers outside the closed set, a
// deterministic keyword pass keeps chat usable.
type Classifier struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewClassifier creates a classifier. llm may be nil, leaving only the
// keyword fallback.
func NewClassifier(llm interfaces.LLMService, logger arbor.ILogger) *Classifier {
	return &Classifier{llm: llm, logger: logger}
}

// Classify implements interfaces.MessageClassifier.
func (c *Classifier) Classify(ctx context.Context, message string, job *models.ResearchJob) (models.ClassifierLabel, error) {
	if c.llm != nil {
		jobDesc := "none"
		if job != nil {
			jobDesc = fmt.Sprintf("#%d (%s, %s)", job.ID, job.Mode, job.Status)
		}
		resp, err := c.llm.Generate(ctx, fmt.Sprintf(classifyPrompt, jobDesc, message), interfaces.GenerateOptions{
			Temperature: 0.1,
			MaxTokens:   16,
		})
		if err == nil {
			upper := strings.ToUpper(resp)
			for _, label := range models.AllClassifierLabels {
				if strings.Contains(upper, string(label)) {
					return label, nil
				}
			}
			c.logger.Warn().Str("response", resp).Msg("Classifier response outside closed set, using keyword fallback")
		} else {
			c.logger.Warn().Err(err).Msg("Classifier call failed, using keyword fallback")
		}
	}
	return keywordClassify(message, job), nil
}

// keywordClassify is the deterministic fallback. It leans on the message
// shape and whether a job is addressed.
func keywordClassify(message string, job *models.ResearchJob) models.ClassifierLabel {
	lower := strings.ToLower(message)

	switch {
	case containsAny(lower, "focus on", "restrict to", "exclude", "ignore ", "only consider", "constraint"):
		if job != nil {
			return models.ClassifyClarificationConstraint
		}
	case containsAny(lower, "assume ", "as an expert", "in my experience", "domain note", "guidance"):
		if job != nil {
			return models.ClassifyExpertGuidance
		}
	case containsAny(lower, "what does the graph", "show me the graph", "which hypotheses", "what paths", "is there a connection", "how are", "what links"):
		if job != nil {
			return models.ClassifyGraphQuery
		}
	}

	if containsAny(lower, "hello", "hi there", "thanks", "thank you", "how are you") && len(message) < 80 {
		return models.ClassifyConversational
	}

	if job != nil {
		// Long prose addressed at a job reads as evidence.
		if len(message) > 200 {
			return models.ClassifyEvidenceInput
		}
		if strings.Contains(lower, "?") {
			return models.ClassifyGraphQuery
		}
		return models.ClassifyEvidenceInput
	}

	if len(strings.Fields(message)) >= 3 {
		return models.ClassifyResearchSeed
	}
	return models.ClassifyConversational
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
