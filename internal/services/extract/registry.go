// -----------------------------------------------------------------------
// Extractor Registry - route stored artifacts to format extractors
// -----------------------------------------------------------------------

package extract

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Known region types. PDF section detection maps headers onto these; all
// other formats produce body regions.
const (
	RegionAbstract     = "abstract"
	RegionIntroduction = "introduction"
	RegionBody         = "body"
	RegionMethods      = "methods"
	RegionResults      = "results"
	RegionConclusion   = "conclusion"
)

// Registry routes files to the extractor for their type.
type Registry struct {
	extractors []interfaces.TextExtractor
	logger     arbor.ILogger
}

// NewRegistry creates a registry with all built-in extractors registered.
func NewRegistry(logger arbor.ILogger) *Registry {
	return &Registry{
		extractors: []interfaces.TextExtractor{
			NewPDFExtractor(logger),
			NewMarkdownExtractor(logger),
			NewHTMLExtractor(logger),
			NewTextExtractor(logger),
		},
		logger: logger,
	}
}

// ForType returns the extractor handling the given file type.
func (r *Registry) ForType(fileType models.FileType) (interfaces.TextExtractor, error) {
	for _, e := range r.extractors {
		if e.Supports(fileType) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no extractor registered for file type %q", fileType)
}
