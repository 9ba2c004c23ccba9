// -----------------------------------------------------------------------
// Text Extractor Interface - Extract typed regions from stored artifacts
// -----------------------------------------------------------------------

package interfaces

import (
	"context"

	"github.com/ternarybob/colligo/internal/models"
)

// TextExtractor parses one artifact format into typed regions in document
// order. Extraction is mechanical; no interpretation happens here.
type TextExtractor interface {
	// Supports reports whether this extractor handles the file type
	Supports(fileType models.FileType) bool

	// ExtractRegions parses the artifact at path into regions
	ExtractRegions(ctx context.Context, path string) ([]models.Region, error)
}
