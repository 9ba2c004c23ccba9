// -----------------------------------------------------------------------
// Scheduler - cron-driven background maintenance
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/mailbox"
	"github.com/ternarybob/colligo/internal/services/signals"
)

// TaskStatus reports one registered maintenance task.
type TaskStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	NextRun   *time.Time `json:"next_run,omitempty"`
	IsRunning bool       `json:"is_running"`
	LastError string     `json:"last_error,omitempty"`
}

type task struct {
	name      string
	schedule  string
	handler   func(ctx context.Context) error
	cronID    cron.EntryID
	lastRun   *time.Time
	isRunning bool
	lastError string
}

// Service runs the periodic maintenance tasks: the stale-job sweep, the
// mailbox alert poll and the paper impact refresh. Tasks never overlap;
// a tick that arrives while the previous run is still going is skipped.
type Service struct {
	storage   interfaces.StorageManager
	presenter interfaces.PresentationPublisher
	mailbox   *mailbox.Service
	impact    *signals.ImpactScorer
	cfg       common.SchedulerConfig
	mailCfg   common.MailboxConfig

	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	tasks   map[string]*task
	running bool
}

// NewService creates the scheduler. mailboxSvc and impact may be nil,
// which disables the corresponding tasks.
func NewService(storage interfaces.StorageManager, presenter interfaces.PresentationPublisher, mailboxSvc *mailbox.Service, impact *signals.ImpactScorer, cfg common.SchedulerConfig, mailCfg common.MailboxConfig, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		presenter: presenter,
		mailbox:   mailboxSvc,
		impact:    impact,
		cfg:       cfg,
		mailCfg:   mailCfg,
		cron:      cron.New(),
		logger:    logger,
		tasks:     make(map[string]*task),
	}
}

// Start registers the enabled tasks and starts the cron loop.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.cfg.StaleSweepEnabled {
		cutoff, err := time.ParseDuration(s.cfg.StaleCutoff)
		if err != nil {
			return fmt.Errorf("invalid stale_cutoff %q: %w", s.cfg.StaleCutoff, err)
		}
		if err := s.register("stale-sweep", s.cfg.StaleSweepSchedule, func(ctx context.Context) error {
			return s.sweepStale(ctx, cutoff)
		}); err != nil {
			return err
		}
	}
	if s.mailCfg.Enabled && s.mailbox != nil {
		if err := s.register("mailbox-poll", s.mailCfg.PollSchedule, s.mailbox.Poll); err != nil {
			return err
		}
	}
	if s.cfg.ImpactRefreshEnabled && s.impact != nil {
		if err := s.register("impact-refresh", s.cfg.ImpactRefreshSchedule, s.refreshImpact); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Int("tasks", len(s.tasks)).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop and waits for in-flight tasks.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// Trigger runs one task immediately, outside its schedule.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("task %s not registered", name)
	}
	go s.run(t)
	return nil
}

// Statuses returns every registered task with its cron-computed next run.
func (s *Service) Statuses() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[cron.EntryID]time.Time)
	for _, e := range s.cron.Entries() {
		next[e.ID] = e.Next
	}

	out := make([]TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		st := TaskStatus{
			Name:      t.name,
			Schedule:  t.schedule,
			LastRun:   t.lastRun,
			IsRunning: t.isRunning,
			LastError: t.lastError,
		}
		if n, ok := next[t.cronID]; ok && !n.IsZero() {
			st.NextRun = &n
		}
		out = append(out, st)
	}
	return out
}

func (s *Service) register(name, schedule string, handler func(ctx context.Context) error) error {
	t := &task{name: name, schedule: schedule, handler: handler}
	id, err := s.cron.AddFunc(schedule, func() { s.run(t) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	t.cronID = id
	s.tasks[name] = t
	s.logger.Info().Str("task", name).Str("schedule", schedule).Msg("Maintenance task registered")
	return nil
}

func (s *Service) run(t *task) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task", t.name).Str("panic", fmt.Sprintf("%v", r)).Msg("Panic recovered in maintenance task")
			s.mu.Lock()
			t.isRunning = false
			t.lastError = fmt.Sprintf("panic: %v", r)
			s.mu.Unlock()
		}
	}()

	s.mu.Lock()
	if t.isRunning {
		s.mu.Unlock()
		s.logger.Debug().Str("task", t.name).Msg("Previous run still active, skipping tick")
		return
	}
	t.isRunning = true
	s.mu.Unlock()

	start := time.Now()
	err := t.handler(context.Background())

	s.mu.Lock()
	t.isRunning = false
	now := time.Now()
	t.lastRun = &now
	if err != nil {
		t.lastError = err.Error()
	} else {
		t.lastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error().Str("task", t.name).Err(err).Dur("duration", time.Since(start)).Msg("Maintenance task failed")
	} else {
		s.logger.Debug().Str("task", t.name).Dur("duration", time.Since(start)).Msg("Maintenance task completed")
	}
}

// sweepStale fails running jobs that have shown no progress since cutoff.
// Waiting and terminal jobs are parked on purpose and never swept.
func (s *Service) sweepStale(ctx context.Context, cutoff time.Duration) error {
	stale, err := s.storage.Jobs().ListStale(ctx, time.Now().UTC().Add(-cutoff))
	if err != nil {
		return fmt.Errorf("failed to list stale jobs: %w", err)
	}

	for _, job := range stale {
		reason := fmt.Sprintf("no progress for %s in status %s", cutoff, job.Status)
		if err := s.storage.Jobs().MarkFailed(ctx, job.ID, reason); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Failed to mark stale job failed")
			continue
		}
		s.presenter.PublishError(ctx, job.ID, models.PhaseDecision, reason)
		s.logger.Warn().Int64("job_id", int64(job.ID)).Str("status", string(job.Status)).Msg("Stale job failed")
	}
	return nil
}

// refreshImpact recomputes paper impact scores for every job that still
// has an unevaluated download backlog.
func (s *Service) refreshImpact(ctx context.Context) error {
	jobs, err := s.storage.Jobs().ListJobs(ctx, interfaces.JobListOptions{})
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}

	for _, job := range jobs {
		if job.Status.IsTerminal() {
			continue
		}
		pending, err := s.storage.Papers().ListUnevaluated(ctx, job.ID)
		if err != nil || len(pending) == 0 {
			continue
		}
		if err := s.impact.Recompute(ctx, job.ID); err != nil {
			s.logger.Warn().Err(err).Int64("job_id", int64(job.ID)).Msg("Impact refresh failed")
		}
	}
	return nil
}
