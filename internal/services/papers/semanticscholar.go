// -----------------------------------------------------------------------
// Semantic Scholar provider - Graph API paper search
// -----------------------------------------------------------------------

package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const semanticScholarBaseURL = "https://api.semanticscholar.org/graph/v1"

// SemanticScholarProvider searches the Semantic Scholar Graph API. An
// optional API key lifts the shared-pool rate limit.
type SemanticScholarProvider struct {
	client *providerClient
	apiKey string
	logger arbor.ILogger
}

// NewSemanticScholarProvider creates a Semantic Scholar search provider.
func NewSemanticScholarProvider(cfg *common.LiteratureConfig, logger arbor.ILogger) *SemanticScholarProvider {
	return &SemanticScholarProvider{
		client: newProviderClient(cfg, cfg.SemanticScholar.RateLimit, time.Second),
		apiKey: cfg.SemanticScholar.APIKey,
		logger: logger,
	}
}

// Name identifies the provider in run logs.
func (p *SemanticScholarProvider) Name() string {
	return "semanticscholar"
}

type s2SearchResponse struct {
	Total int       `json:"total"`
	Data  []s2Paper `json:"data"`
}

type s2Paper struct {
	PaperID     string            `json:"paperId"`
	Title       string            `json:"title"`
	Abstract    string            `json:"abstract"`
	Year        int               `json:"year"`
	Venue       string            `json:"venue"`
	ExternalIDs map[string]string `json:"externalIds"`
	Authors     []struct {
		Name string `json:"name"`
	} `json:"authors"`
	OpenAccessPdf *struct {
		URL string `json:"url"`
	} `json:"openAccessPdf"`
}

// Search returns candidate papers with abstracts.
func (p *SemanticScholarProvider) Search(ctx context.Context, req *interfaces.PaperSearchRequest) ([]*models.Paper, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("query", req.Query)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("fields", "title,abstract,authors,year,venue,externalIds,openAccessPdf")
	if req.YearFrom > 0 {
		params.Set("year", fmt.Sprintf("%d-", req.YearFrom))
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["x-api-key"] = p.apiKey
	}

	body, err := p.client.get(ctx, semanticScholarBaseURL+"/paper/search?"+params.Encode(), headers)
	if err != nil {
		return nil, fmt.Errorf("semanticscholar search failed: %w", err)
	}

	var resp s2SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("semanticscholar response parse failed: %w", err)
	}

	papers := make([]*models.Paper, 0, len(resp.Data))
	for _, item := range resp.Data {
		if item.Title == "" {
			continue
		}
		authors := make([]string, 0, len(item.Authors))
		for _, a := range item.Authors {
			authors = append(authors, a.Name)
		}

		paper := models.NewPaper(item.Title, item.Abstract, authors, item.Year, p.Name())
		paper.Venue = item.Venue
		paper.ExternalIDs = map[string]string{"semanticscholar": item.PaperID}
		for k, v := range item.ExternalIDs {
			if k == "DOI" {
				paper.DOI = v
				continue
			}
			paper.ExternalIDs[k] = v
		}
		if item.OpenAccessPdf != nil {
			paper.PDFURL = item.OpenAccessPdf.URL
		}
		papers = append(papers, paper)
	}

	p.logger.Debug().
		Str("query", req.Query).
		Int("total", resp.Total).
		Int("returned", len(papers)).
		Msg("Semantic Scholar search finished")

	return papers, nil
}

// DownloadPDF fetches the open-access PDF when one is known.
func (p *SemanticScholarProvider) DownloadPDF(ctx context.Context, paper *models.Paper) ([]byte, error) {
	return downloadViaURL(ctx, p.client, paper.PDFURL)
}
