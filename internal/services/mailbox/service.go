// -----------------------------------------------------------------------
// Mailbox service - route literature alert emails into research jobs
// -----------------------------------------------------------------------

package mailbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service polls the mailbox and lands alert digests as ingestion sources
// on the jobs whose alert tag appears in the subject. Waiting jobs resume
// into the pipeline; a message is only marked seen once at least one job
// accepted it, so an alert arriving before its job exists is retried on
// the next poll.
type Service struct {
	client  *Client
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	folder  string
	logger  arbor.ILogger
}

// NewService creates the mailbox alert router.
func NewService(client *Client, storage interfaces.StorageManager, queue interfaces.QueueManager, cfg common.MailboxConfig, logger arbor.ILogger) *Service {
	folder := cfg.Folder
	if folder == "" {
		folder = "INBOX"
	}
	return &Service{
		client:  client,
		storage: storage,
		queue:   queue,
		folder:  folder,
		logger:  logger,
	}
}

// Poll fetches unread alerts and routes them. Called from the scheduler.
func (s *Service) Poll(ctx context.Context) error {
	if !s.client.IsConfigured(ctx) {
		s.logger.Debug().Msg("Mailbox not configured, skipping poll")
		return nil
	}

	tagged, err := s.jobsByAlertTag(ctx)
	if err != nil {
		return err
	}
	if len(tagged) == 0 {
		return nil
	}

	messages, err := s.client.FetchUnread(ctx, s.folder, "")
	if err != nil {
		return fmt.Errorf("mailbox fetch failed: %w", err)
	}

	routed := 0
	for _, msg := range messages {
		jobs := matchJobs(tagged, msg.Subject)
		if len(jobs) == 0 {
			continue
		}
		if err := s.deliver(ctx, jobs, &msg); err != nil {
			s.logger.Warn().Err(err).Str("subject", msg.Subject).Msg("Alert delivery failed, leaving unread")
			continue
		}
		if err := s.client.MarkSeen(ctx, s.folder, msg.SeqNum); err != nil {
			s.logger.Warn().Err(err).Int32("seq", int32(msg.SeqNum)).Msg("Failed to mark alert seen")
		}
		routed++
	}

	if routed > 0 {
		s.logger.Info().Int("alerts_routed", routed).Msg("Mailbox poll complete")
	}
	return nil
}

func (s *Service) deliver(ctx context.Context, jobs []*models.ResearchJob, msg *Message) error {
	text := msg.Subject + "\n\n" + msg.Body
	for _, job := range jobs {
		src := models.NewIngestionSource(job.ID, models.SourceTypeAPIText, "mail:"+msg.From, text)
		if err := s.storage.Sources().Create(ctx, src); err != nil {
			return fmt.Errorf("failed to create alert source for job %d: %w", job.ID, err)
		}

		if job.Status.IsWaiting() {
			moved, err := s.storage.Jobs().UpdateStatusCAS(ctx, job.ID, job.Status, models.JobStatusReadyToIngest)
			if err != nil {
				return fmt.Errorf("failed to resume job %d: %w", job.ID, err)
			}
			if !moved {
				continue
			}
		}
		if err := s.queue.Enqueue(ctx, &models.QueueMessage{JobID: job.ID, Reason: "mailbox:alert"}); err != nil {
			return fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
		}
	}
	return nil
}

// jobsByAlertTag returns non-terminal jobs carrying an alert tag.
func (s *Service) jobsByAlertTag(ctx context.Context) ([]*models.ResearchJob, error) {
	jobs, err := s.storage.Jobs().ListJobs(ctx, interfaces.JobListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	var tagged []*models.ResearchJob
	for _, j := range jobs {
		if j.Config.AlertTag != "" && !j.Status.IsTerminal() {
			tagged = append(tagged, j)
		}
	}
	return tagged, nil
}

func matchJobs(tagged []*models.ResearchJob, subject string) []*models.ResearchJob {
	lower := strings.ToLower(subject)
	var out []*models.ResearchJob
	for _, j := range tagged {
		if strings.Contains(lower, strings.ToLower(j.Config.AlertTag)) {
			out = append(out, j)
		}
	}
	return out
}
