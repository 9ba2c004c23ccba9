package extract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

// TextExtractor handles plain text files: one body region, no parsing.
type TextExtractor struct {
	logger arbor.ILogger
}

// NewTextExtractor creates a plain text extractor.
func NewTextExtractor(logger arbor.ILogger) *TextExtractor {
	return &TextExtractor{logger: logger}
}

// Supports reports true for plain text files.
func (e *TextExtractor) Supports(fileType models.FileType) bool {
	return fileType == models.FileTypeText
}

// ExtractRegions returns the file content as a single body region.
func (e *TextExtractor) ExtractRegions(ctx context.Context, path string) ([]models.Region, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file %s: %w", path, err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, nil
	}
	return []models.Region{{Text: text, Type: RegionBody, Page: 1}}, nil
}
