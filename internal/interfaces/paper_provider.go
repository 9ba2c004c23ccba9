// -----------------------------------------------------------------------
// Paper Provider Interface - External literature search backends
// -----------------------------------------------------------------------

package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/colligo/internal/models"
)

// ErrNoFullText is returned when a paper has no retrievable PDF
var ErrNoFullText = errors.New("no full text available")

// PaperSearchRequest describes one provider search call.
type PaperSearchRequest struct {
	Query    string `json:"query"`
	Domain   string `json:"domain,omitempty"`
	Limit    int    `json:"limit"`
	YearFrom int    `json:"year_from,omitempty"`
}

// PaperProvider wraps one external literature API. Implementations carry
// their own rate limiting; callers see a single blocking call.
type PaperProvider interface {
	// Name identifies the provider in run logs ("semanticscholar",
	// "openalex", "arxiv")
	Name() string

	// Search returns candidate papers with abstracts. Results are not
	// deduplicated; the orchestrator owns identity resolution.
	Search(ctx context.Context, req *PaperSearchRequest) ([]*models.Paper, error)

	// DownloadPDF fetches the full text as PDF bytes. Returns
	// ErrNoFullText when the paper has no retrievable PDF.
	DownloadPDF(ctx context.Context, paper *models.Paper) ([]byte, error)
}
