// -----------------------------------------------------------------------
// Domain resolution - deterministic allow-list match, LLM closed-set fallback
// -----------------------------------------------------------------------

package queries

import (
	"context"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// DomainResolver maps a job's research context onto the configured domain
// allow-list. The deterministic pass matches the job's declared domain and
// focus areas; only when nothing matches does the LLM classify, and it is
// held to the same closed set.
type DomainResolver struct {
	domains []string
	llm     interfaces.LLMService
	logger  arbor.ILogger
}

// NewDomainResolver creates a resolver over the policy allow-list. llm may
// be nil; resolution then stops at the deterministic pass.
func NewDomainResolver(domains []string, llm interfaces.LLMService, logger arbor.ILogger) *DomainResolver {
	return &DomainResolver{
		domains: domains,
		llm:     llm,
		logger:  logger,
	}
}

// Resolve returns the allow-listed domain for a query, or "" when no domain
// could be resolved. The provider registry treats "" as its default route.
func (r *DomainResolver) Resolve(ctx context.Context, declared string, focusAreas []string, source, target string) string {
	if d := r.match(declared); d != "" {
		return d
	}
	for _, area := range focusAreas {
		if d := r.match(area); d != "" {
			return d
		}
	}

	if r.llm == nil || len(r.domains) == 0 {
		return ""
	}
	return r.classify(ctx, source, target)
}

// match tests one candidate term against the allow-list, case-insensitive,
// accepting containment in either direction ("neuroscience research" matches
// "neuroscience").
func (r *DomainResolver) match(candidate string) string {
	c := strings.ToLower(strings.TrimSpace(candidate))
	if c == "" {
		return ""
	}
	for _, d := range r.domains {
		dl := strings.ToLower(d)
		if c == dl || strings.Contains(c, dl) || strings.Contains(dl, c) {
			return d
		}
	}
	return ""
}

func (r *DomainResolver) classify(ctx context.Context, source, target string) string {
	var b strings.Builder
	b.WriteString("Classify the research domain for a literature search about the relationship between \"")
	b.WriteString(source)
	b.WriteString("\" and \"")
	b.WriteString(target)
	b.WriteString("\".\nAnswer with exactly one of:\n")
	for _, d := range r.domains {
		b.WriteString("- ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	b.WriteString("Reply with the domain name only.")

	resp, err := r.llm.Generate(ctx, b.String(), interfaces.GenerateOptions{
		Temperature: 0.1,
		MaxTokens:   32,
		System:      "You are a research domain classifier. Answer only from the given list.",
	})
	if err != nil {
		r.logger.Warn().Err(err).Msg("Domain classification failed, using default provider route")
		return ""
	}

	lower := strings.ToLower(resp)
	for _, d := range r.domains {
		if strings.Contains(lower, strings.ToLower(d)) {
			return d
		}
	}
	return ""
}
