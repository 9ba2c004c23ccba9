package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// File origins.
const (
	FileOriginUserUpload    = "user_upload"
	FileOriginPaperDownload = "paper_download"
)

// FileType selects the extractor an artifact is routed to.
type FileType string

const (
	FileTypePDF      FileType = "pdf"
	FileTypeMarkdown FileType = "markdown"
	FileTypeHTML     FileType = "html"
	FileTypeText     FileType = "text"
)

// JobFile is a physical artifact attached to a job, either uploaded by the
// user or downloaded from a paper source.
type JobFile struct {
	ID               string    `json:"id" badgerhold:"key"`
	JobID            uint64    `json:"job_id" badgerhold:"index"`
	PaperID          string    `json:"paper_id,omitempty" badgerhold:"index"`
	Origin           string    `json:"origin"`
	StoredPath       string    `json:"stored_path"`
	Type             FileType  `json:"type"`
	OriginalFilename string    `json:"original_filename"`
	Extracted        bool      `json:"extracted"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewJobFile registers an artifact for extraction.
func NewJobFile(jobID uint64, origin, storedPath string, fileType FileType, originalName string) *JobFile {
	return &JobFile{
		ID:               uuid.New().String(),
		JobID:            jobID,
		Origin:           origin,
		StoredPath:       storedPath,
		Type:             fileType,
		OriginalFilename: originalName,
		CreatedAt:        time.Now().UTC(),
	}
}

// FileTypeForName maps a filename extension to an extractor type.
// Unknown extensions fall back to plain text.
func FileTypeForName(name string) FileType {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".pdf"):
		return FileTypePDF
	case strings.HasSuffix(lower, ".md"), strings.HasSuffix(lower, ".markdown"):
		return FileTypeMarkdown
	case strings.HasSuffix(lower, ".html"), strings.HasSuffix(lower, ".htm"):
		return FileTypeHTML
	default:
		return FileTypeText
	}
}
