// -----------------------------------------------------------------------
// Provider Registry - map resolved domains to literature providers
// -----------------------------------------------------------------------

package papers

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// Registry routes a resolved research domain to its best literature
// provider. Semantic Scholar is the default; arXiv takes the preprint
// domains, OpenAlex covers the long tail where coverage matters more
// than abstracts.
type Registry struct {
	semanticScholar interfaces.PaperProvider
	openAlex        interfaces.PaperProvider
	arxiv           interfaces.PaperProvider
	logger          arbor.ILogger
}

// NewRegistry creates all providers from the literature configuration.
func NewRegistry(cfg *common.Config, logger arbor.ILogger) *Registry {
	return &Registry{
		semanticScholar: NewSemanticScholarProvider(&cfg.Literature, logger),
		openAlex:        NewOpenAlexProvider(&cfg.Literature, logger),
		arxiv:           NewArxivProvider(&cfg.Literature, logger),
		logger:          logger,
	}
}

// ForDomain returns the provider for a resolved domain. Unknown or empty
// domains fall back to Semantic Scholar.
func (r *Registry) ForDomain(domain string) interfaces.PaperProvider {
	switch strings.ToLower(strings.TrimSpace(domain)) {
	case "computer science", "physics", "mathematics":
		return r.arxiv
	case "economics", "climate science":
		return r.openAlex
	default:
		return r.semanticScholar
	}
}

// ByName returns a provider by its log name, nil when unknown.
func (r *Registry) ByName(name string) interfaces.PaperProvider {
	switch name {
	case r.semanticScholar.Name():
		return r.semanticScholar
	case r.openAlex.Name():
		return r.openAlex
	case r.arxiv.Name():
		return r.arxiv
	default:
		return nil
	}
}

// All returns every registered provider.
func (r *Registry) All() []interfaces.PaperProvider {
	return []interfaces.PaperProvider{r.semanticScholar, r.openAlex, r.arxiv}
}
