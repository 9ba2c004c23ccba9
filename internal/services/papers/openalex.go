// -----------------------------------------------------------------------
// OpenAlex provider - works API paper search
// -----------------------------------------------------------------------

package papers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const openAlexBaseURL = "https://api.openalex.org"

// OpenAlexProvider searches the OpenAlex works API. A mailto address in
// config joins the polite pool with its higher rate limits.
type OpenAlexProvider struct {
	client *providerClient
	mailTo string
	logger arbor.ILogger
}

// NewOpenAlexProvider creates an OpenAlex search provider.
func NewOpenAlexProvider(cfg *common.LiteratureConfig, logger arbor.ILogger) *OpenAlexProvider {
	return &OpenAlexProvider{
		client: newProviderClient(cfg, cfg.OpenAlex.RateLimit, 200*time.Millisecond),
		mailTo: cfg.OpenAlex.MailTo,
		logger: logger,
	}
}

// Name identifies the provider in run logs.
func (p *OpenAlexProvider) Name() string {
	return "openalex"
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	PublicationYear       int              `json:"publication_year"`
	DOI                   string           `json:"doi"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	PrimaryLocation *struct {
		PdfURL string `json:"pdf_url"`
		Source *struct {
			DisplayName string `json:"display_name"`
		} `json:"source"`
	} `json:"primary_location"`
	OpenAccess *struct {
		OaURL string `json:"oa_url"`
	} `json:"open_access"`
}

// Search returns candidate papers with abstracts.
func (p *OpenAlexProvider) Search(ctx context.Context, req *interfaces.PaperSearchRequest) ([]*models.Paper, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("search", req.Query)
	params.Set("per-page", fmt.Sprintf("%d", limit))
	if req.YearFrom > 0 {
		params.Set("filter", fmt.Sprintf("from_publication_date:%d-01-01", req.YearFrom))
	}
	if p.mailTo != "" {
		params.Set("mailto", p.mailTo)
	}

	body, err := p.client.get(ctx, openAlexBaseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("openalex search failed: %w", err)
	}

	var resp openAlexResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("openalex response parse failed: %w", err)
	}

	papers := make([]*models.Paper, 0, len(resp.Results))
	for _, work := range resp.Results {
		if work.Title == "" {
			continue
		}
		authors := make([]string, 0, len(work.Authorships))
		for _, a := range work.Authorships {
			authors = append(authors, a.Author.DisplayName)
		}

		paper := models.NewPaper(work.Title, reconstructAbstract(work.AbstractInvertedIndex), authors, work.PublicationYear, p.Name())
		paper.DOI = strings.TrimPrefix(work.DOI, "https://doi.org/")
		paper.ExternalIDs = map[string]string{"openalex": strings.TrimPrefix(work.ID, "https://openalex.org/")}
		if work.PrimaryLocation != nil {
			paper.PDFURL = work.PrimaryLocation.PdfURL
			if work.PrimaryLocation.Source != nil {
				paper.Venue = work.PrimaryLocation.Source.DisplayName
			}
		}
		if paper.PDFURL == "" && work.OpenAccess != nil {
			paper.PDFURL = work.OpenAccess.OaURL
		}
		papers = append(papers, paper)
	}

	p.logger.Debug().
		Str("query", req.Query).
		Int("returned", len(papers)).
		Msg("OpenAlex search finished")

	return papers, nil
}

// DownloadPDF fetches the open-access PDF when one is known.
func (p *OpenAlexProvider) DownloadPDF(ctx context.Context, paper *models.Paper) ([]byte, error) {
	return downloadViaURL(ctx, p.client, paper.PDFURL)
}

// reconstructAbstract rebuilds abstract text from OpenAlex's inverted
// index (word → positions).
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	var words []posWord
	for word, positions := range index {
		for _, pos := range positions {
			words = append(words, posWord{pos: pos, word: word})
		}
	}
	sort.Slice(words, func(i, j int) bool { return words[i].pos < words[j].pos })

	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.word
	}
	return strings.Join(parts, " ")
}
