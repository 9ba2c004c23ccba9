// -----------------------------------------------------------------------
// Chat service - classify inbound messages and run the label's action
// -----------------------------------------------------------------------

package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

const conversationHistoryLimit = 20

// Service is the chat intake surface. Every message is classified, acted
// on, logged to the addressed job's conversation, and answered
// synchronously; pipeline progress continues over the event stream.
type Service struct {
	storage    interfaces.StorageManager
	queue      interfaces.QueueManager
	classifier interfaces.MessageClassifier
	llm        interfaces.LLMService
	logger     arbor.ILogger
}

// NewService creates the chat service.
func NewService(storage interfaces.StorageManager, queue interfaces.QueueManager, classifier interfaces.MessageClassifier, llm interfaces.LLMService, logger arbor.ILogger) *Service {
	return &Service{
		storage:    storage,
		queue:      queue,
		classifier: classifier,
		llm:        llm,
		logger:     logger,
	}
}

// Handle implements interfaces.ChatService.
func (s *Service) Handle(ctx context.Context, req *models.ChatRequest) (*models.ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("empty message")
	}
	if req.UserID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	var job *models.ResearchJob
	if req.JobID != 0 {
		var err error
		job, err = s.storage.Jobs().GetJob(ctx, req.JobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load job %d: %w", req.JobID, err)
		}
	}

	label, err := s.classifier.Classify(ctx, req.Message, job)
	if err != nil {
		return nil, fmt.Errorf("classification failed: %w", err)
	}

	resp := &models.ChatResponse{Classification: label}
	switch label {
	case models.ClassifyResearchSeed:
		err = s.handleSeed(ctx, req, resp)
	case models.ClassifyEvidenceInput:
		err = s.handleEvidence(ctx, req, job, resp)
	case models.ClassifyClarificationConstraint:
		err = s.handleConstraint(ctx, req, job, resp)
	case models.ClassifyExpertGuidance:
		err = s.handleGuidance(ctx, req, job, resp)
	case models.ClassifyGraphQuery:
		err = s.handleGraphQuery(ctx, req, job, resp)
	default:
		err = s.handleConversational(ctx, req, job, resp)
	}
	if err != nil {
		return nil, err
	}

	s.logExchange(ctx, resp.JobID, req.Message, resp.Reply)
	return resp, nil
}

// HealthCheck implements interfaces.ChatService.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.llm == nil {
		return nil
	}
	return s.llm.HealthCheck(ctx)
}

func (s *Service) handleSeed(ctx context.Context, req *models.ChatRequest, resp *models.ChatResponse) error {
	job := models.NewResearchJob(req.UserID, models.JobModeDiscovery, req.Message, models.JobConfig{})
	id, err := s.storage.Jobs().CreateJob(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	job.ID = id

	src := models.NewIngestionSource(id, models.SourceTypeUserText, "chat:seed", req.Message)
	if err := s.storage.Sources().Create(ctx, src); err != nil {
		return fmt.Errorf("failed to create seed source: %w", err)
	}
	if err := s.queue.Enqueue(ctx, &models.QueueMessage{JobID: id, Reason: "chat:seed"}); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	resp.JobID = id
	resp.Reply = fmt.Sprintf("Started investigation #%d. I will ingest the seed, build the knowledge graph and report back as evidence accumulates.", id)
	return nil
}

func (s *Service) handleEvidence(ctx context.Context, req *models.ChatRequest, job *models.ResearchJob, resp *models.ChatResponse) error {
	if job == nil {
		return fmt.Errorf("evidence input requires a job_id")
	}

	src := models.NewIngestionSource(job.ID, models.SourceTypeUserText, "chat:evidence", req.Message)
	if err := s.storage.Sources().Create(ctx, src); err != nil {
		return fmt.Errorf("failed to create evidence source: %w", err)
	}
	if err := s.resume(ctx, job, "chat:evidence"); err != nil {
		return err
	}

	resp.JobID = job.ID
	resp.Reply = fmt.Sprintf("Added your text to investigation #%d and queued another analysis cycle.", job.ID)
	return nil
}

func (s *Service) handleConstraint(ctx context.Context, req *models.ChatRequest, job *models.ResearchJob, resp *models.ChatResponse) error {
	if job == nil {
		return fmt.Errorf("a constraint requires a job_id")
	}

	cfg := job.Config
	cfg.FocusAreas = append(cfg.FocusAreas, strings.TrimSpace(req.Message))
	if err := s.storage.Jobs().UpdateConfig(ctx, job.ID, cfg); err != nil {
		return fmt.Errorf("failed to update job config: %w", err)
	}

	resp.JobID = job.ID
	resp.Reply = fmt.Sprintf("Recorded the constraint on investigation #%d. It applies from the next analysis cycle.", job.ID)
	return nil
}

func (s *Service) handleGuidance(ctx context.Context, req *models.ChatRequest, job *models.ResearchJob, resp *models.ChatResponse) error {
	if job == nil {
		return fmt.Errorf("expert guidance requires a job_id")
	}

	cfg := job.Config
	cfg.Expert.Assumptions = append(cfg.Expert.Assumptions, strings.TrimSpace(req.Message))
	if err := s.storage.Jobs().UpdateConfig(ctx, job.ID, cfg); err != nil {
		return fmt.Errorf("failed to update job config: %w", err)
	}
	if err := s.resume(ctx, job, "chat:guidance"); err != nil {
		return err
	}

	resp.JobID = job.ID
	resp.Reply = fmt.Sprintf("Noted. Investigation #%d continues with your guidance applied.", job.ID)
	return nil
}

// handleGraphQuery answers from the persisted graph and hypotheses without
// touching job state.
func (s *Service) handleGraphQuery(ctx context.Context, req *models.ChatRequest, job *models.ResearchJob, resp *models.ChatResponse) error {
	if job == nil {
		return fmt.Errorf("a graph query requires a job_id")
	}
	resp.JobID = job.ID

	graph, err := s.storage.Graphs().GetActive(ctx, job.ID)
	if err == interfaces.ErrNotFound {
		resp.Reply = "No knowledge graph exists yet for this investigation. It appears after the first ingestion cycle."
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load active graph: %w", err)
	}

	hyps, err := s.storage.Hypotheses().ListActive(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("failed to list hypotheses: %w", err)
	}

	matched := matchHypotheses(hyps, req.Message)
	if len(matched) == 0 {
		resp.Reply = fmt.Sprintf("The current graph holds %d concepts and %d relations, with %d candidate hypotheses. Nothing in the hypothesis set matches your question directly.",
			graph.NodeCount, graph.EdgeCount, len(hyps))
		return nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "The graph (%d concepts, %d relations) supports:\n", graph.NodeCount, graph.EdgeCount)
	for i, h := range matched {
		if i == 3 {
			break
		}
		fmt.Fprintf(&sb, "- %s (confidence %d)\n", h.Explanation, h.Confidence)
	}
	resp.Reply = strings.TrimRight(sb.String(), "\n")
	return nil
}

func (s *Service) handleConversational(ctx context.Context, req *models.ChatRequest, job *models.ResearchJob, resp *models.ChatResponse) error {
	if job != nil {
		resp.JobID = job.ID
	}
	if s.llm == nil {
		resp.Reply = "I help run automated literature reviews. Describe a research question to start one."
		return nil
	}

	messages := []interfaces.LLMMessage{{
		Role:    interfaces.LLMRoleSystem,
		Content: "You are the assistant of an automated literature review engine. Answer briefly and factually.",
	}}
	if job != nil {
		history, err := s.storage.Messages().ListByJob(ctx, job.ID, conversationHistoryLimit)
		if err != nil {
			return fmt.Errorf("failed to load conversation: %w", err)
		}
		for _, m := range history {
			role := interfaces.LLMRoleAssistant
			if m.Role == models.MessageRoleUser {
				role = interfaces.LLMRoleUser
			}
			messages = append(messages, interfaces.LLMMessage{Role: role, Content: m.Content})
		}
	}
	messages = append(messages, interfaces.LLMMessage{Role: interfaces.LLMRoleUser, Content: req.Message})

	reply, err := s.llm.Chat(ctx, messages)
	if err != nil {
		return fmt.Errorf("chat completion failed: %w", err)
	}
	resp.Reply = reply
	return nil
}

// resume moves a waiting job back into the pipeline and enqueues it.
// Active jobs are only enqueued; terminal jobs stay put.
func (s *Service) resume(ctx context.Context, job *models.ResearchJob, reason string) error {
	if job.Status.IsTerminal() {
		return nil
	}
	if job.Status.IsWaiting() {
		moved, err := s.storage.Jobs().UpdateStatusCAS(ctx, job.ID, job.Status, models.JobStatusReadyToIngest)
		if err != nil {
			return fmt.Errorf("failed to resume job %d: %w", job.ID, err)
		}
		if !moved {
			s.logger.Debug().Int64("job_id", int64(job.ID)).Msg("Job moved concurrently, skipping resume")
			return nil
		}
	}
	if err := s.queue.Enqueue(ctx, &models.QueueMessage{JobID: job.ID, Reason: reason}); err != nil {
		return fmt.Errorf("failed to enqueue job %d: %w", job.ID, err)
	}
	return nil
}

func (s *Service) logExchange(ctx context.Context, jobID uint64, userMsg, reply string) {
	if jobID == 0 {
		return
	}
	if err := s.storage.Messages().Append(ctx, models.NewConversationMessage(jobID, models.MessageRoleUser, models.MessageTypeText, userMsg)); err != nil {
		s.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to log user message")
	}
	if err := s.storage.Messages().Append(ctx, models.NewConversationMessage(jobID, models.MessageRoleSystem, models.MessageTypeText, reply)); err != nil {
		s.logger.Warn().Err(err).Int64("job_id", int64(jobID)).Msg("Failed to log reply")
	}
}

// matchHypotheses returns hypotheses whose endpoints appear in the
// message, best confidence first.
func matchHypotheses(hyps []*models.Hypothesis, message string) []*models.Hypothesis {
	lower := strings.ToLower(message)
	var matched []*models.Hypothesis
	for _, h := range hyps {
		if !h.PassedFilter && !h.Promising() {
			continue
		}
		if strings.Contains(lower, strings.ToLower(h.Source)) || strings.Contains(lower, strings.ToLower(h.Target)) {
			matched = append(matched, h)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		return matched[a].Confidence > matched[b].Confidence
	})
	return matched
}
