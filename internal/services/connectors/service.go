// -----------------------------------------------------------------------
// GitHub import - pull repository documents into a job's evidence set
// -----------------------------------------------------------------------

package connectors

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/go-github/v57/github"
	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Importable extensions. PDFs go through the extract stage; markdown and
// plain text land directly as ingestion sources.
var importExtensions = map[string]bool{
	".pdf": true,
	".md":  true,
	".txt": true,
}

// ImportRequest names a repository subtree to import into a job.
type ImportRequest struct {
	JobID      uint64 `json:"job_id"`
	Owner      string `json:"owner"`
	Repo       string `json:"repo"`
	Ref        string `json:"ref,omitempty"`
	PathPrefix string `json:"path_prefix,omitempty"`
}

// ImportSummary reports what one import did.
type ImportSummary struct {
	FilesImported int `json:"files_imported"`
	FilesSkipped  int `json:"files_skipped"`
}

// GitHubImporter copies .pdf/.md/.txt documents out of a repository into
// a job: PDFs become uploaded files awaiting extraction, text becomes
// ingestion sources directly.
type GitHubImporter struct {
	client     *github.Client
	storage    interfaces.StorageManager
	queue      interfaces.QueueManager
	uploadsDir string
	logger     arbor.ILogger
}

// NewGitHubImporter creates an importer. An empty token uses the
// unauthenticated API with its lower rate limits.
func NewGitHubImporter(token string, storage interfaces.StorageManager, queue interfaces.QueueManager, uploadsDir string, logger arbor.ILogger) *GitHubImporter {
	var client *github.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}
	return &GitHubImporter{
		client:     client,
		storage:    storage,
		queue:      queue,
		uploadsDir: uploadsDir,
		logger:     logger,
	}
}

// TestConnection verifies the token by fetching the authenticated user.
func (g *GitHubImporter) TestConnection(ctx context.Context) error {
	if _, _, err := g.client.Users.Get(ctx, ""); err != nil {
		return fmt.Errorf("github connection test failed: %w", err)
	}
	return nil
}

// Import walks the repository tree and lands matching documents on the
// job, then queues another processing cycle.
func (g *GitHubImporter) Import(ctx context.Context, req *ImportRequest) (*ImportSummary, error) {
	job, err := g.storage.Jobs().GetJob(ctx, req.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %d: %w", req.JobID, err)
	}
	if job.Status.IsTerminal() {
		return nil, fmt.Errorf("job %d is %s and accepts no more input", job.ID, job.Status)
	}

	ref := req.Ref
	if ref == "" {
		repo, _, err := g.client.Repositories.Get(ctx, req.Owner, req.Repo)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve repository: %w", err)
		}
		ref = repo.GetDefaultBranch()
	}

	tree, _, err := g.client.Git.GetTree(ctx, req.Owner, req.Repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("failed to get repository tree: %w", err)
	}

	summary := &ImportSummary{}
	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		if req.PathPrefix != "" && !strings.HasPrefix(path, req.PathPrefix) {
			continue
		}
		if !importExtensions[strings.ToLower(filepath.Ext(path))] {
			continue
		}

		if err := g.importFile(ctx, job, ref, req, path); err != nil {
			g.logger.Warn().Err(err).Str("path", path).Msg("File import failed")
			summary.FilesSkipped++
			continue
		}
		summary.FilesImported++
	}

	if summary.FilesImported > 0 {
		if err := g.resume(ctx, job); err != nil {
			return summary, err
		}
	}

	g.logger.Info().
		Int64("job_id", int64(job.ID)).
		Str("repo", req.Owner+"/"+req.Repo).
		Int("imported", summary.FilesImported).
		Int("skipped", summary.FilesSkipped).
		Msg("GitHub import complete")
	return summary, nil
}

func (g *GitHubImporter) importFile(ctx context.Context, job *models.ResearchJob, ref string, req *ImportRequest, path string) error {
	content, _, _, err := g.client.Repositories.GetContents(ctx, req.Owner, req.Repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", path, err)
	}
	if content == nil {
		return fmt.Errorf("%s is not a file", path)
	}

	raw, err := content.GetContent()
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	name := filepath.Base(path)
	if models.FileTypeForName(name) == models.FileTypePDF {
		return g.storePDF(ctx, job, name, []byte(raw))
	}

	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%s is empty", path)
	}
	src := models.NewIngestionSource(job.ID, models.SourceTypeUserText, "github:"+path, raw)
	if err := g.storage.Sources().Create(ctx, src); err != nil {
		return fmt.Errorf("failed to create source for %s: %w", path, err)
	}
	return nil
}

func (g *GitHubImporter) storePDF(ctx context.Context, job *models.ResearchJob, name string, data []byte) error {
	if err := os.MkdirAll(g.uploadsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create uploads dir: %w", err)
	}

	f := models.NewJobFile(job.ID, models.FileOriginUserUpload, "", models.FileTypePDF, name)
	f.StoredPath = filepath.Join(g.uploadsDir, f.ID+".pdf")
	if err := os.WriteFile(f.StoredPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to store %s: %w", name, err)
	}
	if err := g.storage.Files().Create(ctx, f); err != nil {
		return fmt.Errorf("failed to register %s: %w", name, err)
	}
	return nil
}

// resume mirrors the chat intake rule: waiting jobs re-enter the
// pipeline, active jobs just get another cycle queued.
func (g *GitHubImporter) resume(ctx context.Context, job *models.ResearchJob) error {
	if job.Status.IsWaiting() {
		moved, err := g.storage.Jobs().UpdateStatusCAS(ctx, job.ID, job.Status, models.JobStatusReadyToIngest)
		if err != nil {
			return fmt.Errorf("failed to resume job %d: %w", job.ID, err)
		}
		if !moved {
			g.logger.Debug().Int64("job_id", int64(job.ID)).Msg("Job moved concurrently, skipping resume")
			return nil
		}
	}
	if err := g.queue.Enqueue(ctx, &models.QueueMessage{JobID: job.ID, Reason: "github:import"}); err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
	}
	return nil
}
