// -----------------------------------------------------------------------
// arXiv provider - Atom feed paper search
// -----------------------------------------------------------------------

package papers

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const arxivBaseURL = "http://export.arxiv.org/api/query"

// ArxivProvider searches the arXiv Atom API. The default 3s interval
// follows the arXiv terms of service.
type ArxivProvider struct {
	client *providerClient
	logger arbor.ILogger
}

// NewArxivProvider creates an arXiv search provider.
func NewArxivProvider(cfg *common.LiteratureConfig, logger arbor.ILogger) *ArxivProvider {
	return &ArxivProvider{
		client: newProviderClient(cfg, cfg.Arxiv.RateLimit, 3*time.Second),
		logger: logger,
	}
}

// Name identifies the provider in run logs.
func (p *ArxivProvider) Name() string {
	return "arxiv"
}

type arxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string `xml:"id"`
	Title     string `xml:"title"`
	Summary   string `xml:"summary"`
	Published string `xml:"published"`
	Authors   []struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Links []struct {
		Href string `xml:"href,attr"`
		Type string `xml:"type,attr"`
	} `xml:"link"`
	DOI string `xml:"doi"`
}

// Search returns candidate papers with abstracts.
func (p *ArxivProvider) Search(ctx context.Context, req *interfaces.PaperSearchRequest) ([]*models.Paper, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{}
	params.Set("search_query", "all:"+req.Query)
	params.Set("max_results", fmt.Sprintf("%d", limit))
	params.Set("sortBy", "relevance")

	body, err := p.client.get(ctx, arxivBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("arxiv search failed: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv feed parse failed: %w", err)
	}

	papers := make([]*models.Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		title := strings.Join(strings.Fields(entry.Title), " ")
		if title == "" {
			continue
		}

		authors := make([]string, 0, len(entry.Authors))
		for _, a := range entry.Authors {
			authors = append(authors, a.Name)
		}

		year := 0
		if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
			year = t.Year()
		}

		abstract := strings.TrimSpace(strings.Join(strings.Fields(entry.Summary), " "))
		paper := models.NewPaper(title, abstract, authors, year, p.Name())
		paper.Venue = "arXiv"
		paper.DOI = entry.DOI
		paper.ExternalIDs = map[string]string{"arxiv": arxivIDFromURL(entry.ID)}
		for _, link := range entry.Links {
			if link.Type == "application/pdf" {
				paper.PDFURL = link.Href
				break
			}
		}
		if paper.PDFURL == "" && paper.ExternalIDs["arxiv"] != "" {
			paper.PDFURL = "https://arxiv.org/pdf/" + paper.ExternalIDs["arxiv"]
		}
		papers = append(papers, paper)
	}

	p.logger.Debug().
		Str("query", req.Query).
		Int("returned", len(papers)).
		Msg("arXiv search finished")

	return papers, nil
}

// DownloadPDF fetches the arXiv PDF; every arXiv paper has one.
func (p *ArxivProvider) DownloadPDF(ctx context.Context, paper *models.Paper) ([]byte, error) {
	return downloadViaURL(ctx, p.client, paper.PDFURL)
}

// arxivIDFromURL extracts "2403.01234v1" from an entry id URL like
// "http://arxiv.org/abs/2403.01234v1".
func arxivIDFromURL(id string) string {
	idx := strings.LastIndex(id, "/abs/")
	if idx < 0 {
		return id
	}
	return id[idx+len("/abs/"):]
}
