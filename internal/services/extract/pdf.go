// -----------------------------------------------------------------------
// PDF Extractor - section-aware text extraction via pdfcpu
// -----------------------------------------------------------------------

package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// sectionHeaders maps recognized paper section headers to region types.
// Matching is case-insensitive on a whole trimmed line, with leading
// numbering ("1.", "II.") stripped first.
var sectionHeaders = map[string]string{
	"abstract":     RegionAbstract,
	"introduction": RegionIntroduction,
	"background":   RegionIntroduction,
	"methods":      RegionMethods,
	"methodology":  RegionMethods,
	"materials and methods": RegionMethods,
	"results":                RegionResults,
	"findings":               RegionResults,
	"discussion":             RegionConclusion,
	"conclusion":             RegionConclusion,
	"conclusions":            RegionConclusion,
}

// stopHeaders end extraction: everything after the reference list is
// citation noise that would pollute the graph.
var stopHeaders = map[string]bool{
	"references":      true,
	"bibliography":    true,
	"acknowledgments": true,
	"acknowledgements": true,
	"appendix":         true,
}

// PDFExtractor extracts typed regions from PDF documents using pdfcpu.
type PDFExtractor struct {
	logger  arbor.ILogger
	tempDir string
}

// NewPDFExtractor creates a PDF extractor with its own temp workspace.
func NewPDFExtractor(logger arbor.ILogger) *PDFExtractor {
	tempDir := filepath.Join(os.TempDir(), "colligo-pdf")
	os.MkdirAll(tempDir, 0755)

	return &PDFExtractor{
		logger:  logger,
		tempDir: tempDir,
	}
}

// Supports reports true for PDF files.
func (e *PDFExtractor) Supports(fileType models.FileType) bool {
	return fileType == models.FileTypePDF
}

// ExtractRegions extracts per-page text and segments it into typed
// regions at recognized section headers. Text before the first header
// lands in a body region; extraction stops at the reference list.
func (e *PDFExtractor) ExtractRegions(ctx context.Context, path string) ([]models.Region, error) {
	pages, err := e.extractPages(ctx, path)
	if err != nil {
		return nil, err
	}

	var regions []models.Region
	currentType := RegionBody
	currentPage := 1
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			regions = append(regions, models.Region{
				Text: text,
				Type: currentType,
				Page: currentPage,
			})
		}
		current.Reset()
	}

	for pageNum, pageText := range pages {
		for _, line := range strings.Split(pageText, "\n") {
			header := normalizeHeader(line)

			if stopHeaders[header] {
				flush()
				e.logger.Debug().Str("path", path).Str("header", header).Msg("PDF extraction stopped at trailing section")
				return regions, nil
			}

			if regionType, ok := sectionHeaders[header]; ok {
				flush()
				currentType = regionType
				currentPage = pageNum + 1
				continue
			}

			current.WriteString(line)
			current.WriteString("\n")
		}
	}
	flush()

	return regions, nil
}

// extractPages returns page texts in order using pdfcpu content extraction.
func (e *PDFExtractor) extractPages(ctx context.Context, path string) ([]string, error) {
	conf := model.NewDefaultConfiguration()

	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF %s: %w", path, err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp(e.tempDir, "pages_")
	if err != nil {
		return nil, fmt.Errorf("failed to create extraction dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return nil, fmt.Errorf("failed to extract PDF content from %s: %w", path, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction dir: %w", err)
	}

	pageTexts := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(outDir, entry.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if n := pageNumberFromName(entry.Name()); n > 0 {
			pageNum = n
		} else {
			pageNum = len(pageTexts) + 1
		}
		pageTexts[pageNum] = string(content)
	}

	nums := make([]int, 0, len(pageTexts))
	for n := range pageTexts {
		nums = append(nums, n)
	}
	sort.Ints(nums)

	pages := make([]string, 0, pageCount)
	for _, n := range nums {
		pages = append(pages, pageTexts[n])
	}
	return pages, nil
}

// pageNumberFromName parses the page number out of pdfcpu output names
// like "content_page_3.txt". Returns 0 when no number is found.
func pageNumberFromName(name string) int {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	idx := strings.LastIndex(base, "_")
	if idx < 0 {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(base[idx+1:], "%d", &n); err != nil {
		return 0
	}
	return n
}

// normalizeHeader lowercases a line and strips section numbering so
// "2. METHODS" matches "methods". Long lines are never headers.
func normalizeHeader(line string) string {
	trimmed := strings.TrimSpace(line)
	if len(trimmed) == 0 || len(trimmed) > 48 {
		return ""
	}
	trimmed = strings.ToLower(trimmed)
	trimmed = strings.TrimRight(trimmed, ".:")

	// Strip leading numbering like "3.", "iv.", "2.1".
	fields := strings.Fields(trimmed)
	if len(fields) > 1 && isNumbering(fields[0]) {
		trimmed = strings.Join(fields[1:], " ")
	}
	return trimmed
}

func isNumbering(tok string) bool {
	tok = strings.TrimRight(tok, ".")
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if (r < '0' || r > '9') && r != '.' && r != 'i' && r != 'v' && r != 'x' {
			return false
		}
	}
	return true
}
