// -----------------------------------------------------------------------
// HTML Extractor - strip chrome with goquery, convert to markdown
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// HTMLExtractor converts HTML documents to a single body region. Page
// chrome (nav, scripts, footers) is removed before conversion so only
// article prose survives.
type HTMLExtractor struct {
	logger    arbor.ILogger
	converter *md.Converter
}

// NewHTMLExtractor creates an HTML extractor.
func NewHTMLExtractor(logger arbor.ILogger) *HTMLExtractor {
	return &HTMLExtractor{
		logger:    logger,
		converter: md.NewConverter("", true, nil),
	}
}

// Supports reports true for HTML files.
func (e *HTMLExtractor) Supports(fileType models.FileType) bool {
	return fileType == models.FileTypeHTML
}

// ExtractRegions strips non-content elements and converts the remainder
// to markdown as one body region.
func (e *HTMLExtractor) ExtractRegions(ctx context.Context, path string) ([]models.Region, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read HTML file %s: %w", path, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", path, err)
	}

	doc.Find("script, style, nav, header, footer, aside, noscript, iframe").Remove()

	// Prefer the article/main element when one exists.
	content := doc.Find("article, main").First()
	var html string
	if content.Length() > 0 {
		html, err = content.Html()
	} else {
		html, err = doc.Find("body").Html()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to serialize HTML content: %w", err)
	}

	markdown, err := e.converter.ConvertString(html)
	if err != nil {
		// Fallback: plain text from the parsed document.
		e.logger.Warn().Err(err).Str("path", path).Msg("HTML to markdown conversion failed, using text fallback")
		markdown = doc.Text()
	}

	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return nil, nil
	}

	return []models.Region{{Text: markdown, Type: RegionBody, Page: 1}}, nil
}
