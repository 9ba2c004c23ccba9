package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/pipeline"
	"github.com/ternarybob/colligo/internal/pipeline/stages"
	"github.com/ternarybob/colligo/internal/queue"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"

	"github.com/ternarybob/colligo/internal/services/chat"
	"github.com/ternarybob/colligo/internal/services/connectors"
	"github.com/ternarybob/colligo/internal/services/decisions"
	"github.com/ternarybob/colligo/internal/services/embeddings"
	"github.com/ternarybob/colligo/internal/services/events"
	"github.com/ternarybob/colligo/internal/services/extract"
	"github.com/ternarybob/colligo/internal/services/llm"
	"github.com/ternarybob/colligo/internal/services/mailbox"
	"github.com/ternarybob/colligo/internal/services/measurements"
	"github.com/ternarybob/colligo/internal/services/papers"
	"github.com/ternarybob/colligo/internal/services/queries"
	"github.com/ternarybob/colligo/internal/services/reasoning"
	"github.com/ternarybob/colligo/internal/services/report"
	"github.com/ternarybob/colligo/internal/services/scheduler"
	"github.com/ternarybob/colligo/internal/services/signals"
)

// App holds all application components and dependencies.
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event bus and the per-user presentation publisher on top of it
	EventService interfaces.EventService
	Presenter    interfaces.PresentationPublisher

	// Durable job queue and the stage dispatcher draining it
	QueueManager interfaces.QueueManager
	Dispatcher   *pipeline.Dispatcher

	// Model-backed services; nil when no API key is configured
	LLMService       interfaces.LLMService
	EmbeddingService interfaces.EmbeddingService
	ChatService      interfaces.ChatService

	// Pipeline collaborators
	Extractors        *extract.Registry
	PaperProviders    *papers.Registry
	QueryOrchestrator *queries.Orchestrator
	Reasoner          *reasoning.Service
	MeasurementEngine *measurements.Engine
	DecisionCtrl      *decisions.Controller
	DecisionRegistry  *decisions.Registry
	Evaluator         *signals.Evaluator
	ImpactScorer      *signals.ImpactScorer

	// Supporting services
	MailboxClient    *mailbox.Client
	MailboxService   *mailbox.Service
	GitHubImporter   *connectors.GitHubImporter
	ReportExporter   *report.Exporter
	SchedulerService *scheduler.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	ChatHandler      *handlers.ChatHandler
	JobHandler       *handlers.JobHandler
	UploadHandler    *handlers.UploadHandler
	ReportHandler    *handlers.ReportHandler
	EventsHandler    *handlers.EventsHandler
	WSHandler        *handlers.WebSocketHandler
	ImportHandler    *handlers.ImportHandler
	MailboxHandler   *handlers.MailboxHandler
	SchedulerHandler *handlers.SchedulerHandler
}

// New initializes the application with all dependencies wired but no
// background work running. Call Start to launch the dispatcher and
// scheduler.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.EventService = events.NewService(logger)
	app.Presenter = events.NewPublisher(app.EventService, app.StorageManager, logger)

	if err := app.initQueue(); err != nil {
		return nil, fmt.Errorf("failed to initialize queue: %w", err)
	}

	if err := app.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initPipeline(); err != nil {
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("decision_mode", cfg.Pipeline.DecisionMode).
		Bool("llm_available", app.LLMService != nil).
		Bool("mailbox_enabled", cfg.Mailbox.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the Badger store and prepares the filesystem
// directories that hold uploads, downloaded papers, and reports.
func (a *App) initStorage() error {
	manager, err := badgerstorage.NewManager(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}
	a.StorageManager = manager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	fs := a.Config.Storage.Filesystem
	for _, dir := range []string{fs.Uploads, fs.Papers, fs.Reports} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// initQueue builds the Badger-backed queue on the storage manager's
// underlying DB handle so queue entries share the job store's
// transactional guarantees.
func (a *App) initQueue() error {
	store, ok := a.StorageManager.DB().(*badgerhold.Store)
	if !ok {
		return fmt.Errorf("storage manager is not backed by BadgerDB (got %T)", a.StorageManager.DB())
	}
	queueMgr, err := queue.NewManager(
		store.Badger(),
		a.Config.Queue.QueueName,
		common.ParseDurationOr(a.Config.Queue.VisibilityTimeout, 5*time.Minute),
		a.Config.Queue.MaxReceive,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create queue manager: %w", err)
	}
	a.QueueManager = queueMgr
	a.Logger.Debug().Str("queue_name", a.Config.Queue.QueueName).Msg("Queue manager initialized")
	return nil
}

// initServices initializes the business services in dependency order.
func (a *App) initServices() error {
	ctx := context.Background()

	// LLM and embeddings degrade to nil without an API key: chat and
	// semantic merging become unavailable, but upload, graph building,
	// and the rule-based decision path still work.
	llmService, err := llm.NewLLMService(a.Config, a.StorageManager, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("LLM service unavailable - chat and LLM-assisted stages are disabled")
	} else {
		a.LLMService = llmService
	}

	embedder, err := embeddings.NewService(a.Config, a.StorageManager, a.Logger)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Embedding service unavailable - semantic merge falls back to lexical matching")
	} else {
		a.EmbeddingService = embedder
	}

	a.Extractors = extract.NewRegistry(a.Logger)
	a.PaperProviders = papers.NewRegistry(a.Config, a.Logger)

	resolver := queries.NewDomainResolver(a.Config.Policy.QueryOrchestrator.Domains, a.LLMService, a.Logger)
	a.QueryOrchestrator = queries.NewOrchestrator(a.StorageManager, a.PaperProviders, resolver, &a.Config.Policy, a.Logger)

	a.Reasoner = reasoning.NewService(&a.Config.Policy, a.Logger)
	a.MeasurementEngine = measurements.NewEngine(&a.Config.Policy, a.Logger)

	ruleProvider := decisions.NewRuleProvider(&a.Config.Policy, a.Logger)
	llmProvider := decisions.NewLLMProvider(a.LLMService, a.Logger)
	controller, err := decisions.NewController(a.Config.Pipeline.DecisionMode, ruleProvider, llmProvider, a.StorageManager, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create decision controller: %w", err)
	}
	a.DecisionCtrl = controller

	a.Evaluator = signals.NewEvaluator(a.StorageManager, &a.Config.Policy, a.Logger)
	a.ImpactScorer = signals.NewImpactScorer(a.StorageManager, a.Logger)

	a.DecisionRegistry = decisions.NewRegistry()
	decisions.RegisterAll(a.DecisionRegistry, &decisions.HandlerDeps{
		Storage:   a.StorageManager,
		Queue:     a.QueueManager,
		Presenter: a.Presenter,
		Policy:    &a.Config.Policy,
		Logger:    a.Logger,
	})
	if err := a.DecisionRegistry.ValidateComplete(); err != nil {
		return fmt.Errorf("decision registry incomplete: %w", err)
	}

	if a.LLMService != nil {
		classifier := chat.NewClassifier(a.LLMService, a.Logger)
		a.ChatService = chat.NewService(a.StorageManager, a.QueueManager, classifier, a.LLMService, a.Logger)
		a.Logger.Debug().Msg("Chat service initialized")
	} else {
		a.Logger.Debug().Msg("Chat service not initialized (LLM service unavailable)")
	}

	a.MailboxClient = mailbox.NewClient(a.StorageManager.KV(), a.Logger)
	a.MailboxService = mailbox.NewService(a.MailboxClient, a.StorageManager, a.QueueManager, a.Config.Mailbox, a.Logger)

	// Token is optional: without one the importer still works against
	// public repositories at the unauthenticated rate limit.
	token, err := common.ResolveAPIKey(ctx, a.StorageManager.KV(), "github_token", "")
	if err != nil {
		token = ""
		a.Logger.Debug().Msg("No GitHub token configured, importer runs unauthenticated")
	}
	a.GitHubImporter = connectors.NewGitHubImporter(token, a.StorageManager, a.QueueManager, a.Config.Storage.Filesystem.Uploads, a.Logger)

	renderer := report.NewRenderer(a.Logger)
	a.ReportExporter = report.NewExporter(a.StorageManager, renderer, a.Config.Storage.Filesystem.Reports, a.Logger)

	a.SchedulerService = scheduler.NewService(
		a.StorageManager,
		a.Presenter,
		a.MailboxService,
		a.ImpactScorer,
		a.Config.Scheduler,
		a.Config.Mailbox,
		a.Logger,
	)

	return nil
}

// initPipeline builds the dispatcher and registers one handler per
// non-terminal job status.
func (a *App) initPipeline() error {
	dispatcher := pipeline.NewDispatcher(a.Config, a.StorageManager, a.QueueManager, a.Presenter, a.Logger)

	structuralTTL := common.ParseDurationOr(a.Config.Pipeline.StructuralCacheTTL, time.Hour)

	sanitize, err := stages.NewSanitizeStage(a.StorageManager, a.Presenter, &a.Config.Policy, structuralTTL, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create sanitize stage: %w", err)
	}

	dispatcher.RegisterStage(stages.NewIngestStage(a.StorageManager, a.LLMService, a.Presenter, a.Logger))
	dispatcher.RegisterStage(stages.NewExtractStage(a.StorageManager, a.Extractors, a.Presenter, a.Config.Pipeline.ExtractConcurrency, a.Logger))
	dispatcher.RegisterStage(stages.NewTriplesStage(a.StorageManager, a.LLMService, a.Presenter, a.Logger))
	dispatcher.RegisterStage(stages.NewStructuralStage(a.StorageManager, a.Presenter, structuralTTL, a.Logger))
	dispatcher.RegisterStage(sanitize)
	dispatcher.RegisterStage(stages.NewMergeStage(a.StorageManager, a.EmbeddingService, a.Presenter, &a.Config.Policy, a.Logger))
	dispatcher.RegisterStage(stages.NewReasonStage(a.StorageManager, a.Reasoner, a.Presenter, a.Logger))
	dispatcher.RegisterStage(stages.NewDecideStage(a.StorageManager, a.MeasurementEngine, a.DecisionCtrl, a.Presenter, a.Logger))
	dispatcher.RegisterStage(stages.NewApplyStage(a.StorageManager, a.DecisionRegistry, a.Evaluator, a.ImpactScorer, a.Logger))
	dispatcher.RegisterStage(stages.NewFetchStage(a.StorageManager, a.QueryOrchestrator, a.Presenter, a.Logger))
	dispatcher.RegisterStage(stages.NewDownloadStage(
		a.StorageManager,
		a.PaperProviders,
		a.Extractors,
		a.Presenter,
		a.Config.Storage.Filesystem.Papers,
		a.Config.Policy.QueryOrchestrator.FetchBatchSize,
		a.Logger,
	))

	a.Dispatcher = dispatcher
	return nil
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.ChatService, a.Logger)
	a.ChatHandler = handlers.NewChatHandler(a.ChatService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(a.StorageManager, a.QueueManager, a.Logger)
	a.UploadHandler = handlers.NewUploadHandler(a.StorageManager, a.QueueManager, a.Config.Storage.Filesystem.Uploads, a.Logger)
	a.ReportHandler = handlers.NewReportHandler(a.ReportExporter, a.Logger)
	a.EventsHandler = handlers.NewEventsHandler(a.EventService, a.Logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, a.Logger)
	a.ImportHandler = handlers.NewImportHandler(a.GitHubImporter, a.Logger)
	a.MailboxHandler = handlers.NewMailboxHandler(a.MailboxClient, a.MailboxService, a.Logger)
	a.SchedulerHandler = handlers.NewSchedulerHandler(a.SchedulerService, a.Logger)
}

// Start launches the dispatcher worker pool and the maintenance
// scheduler.
func (a *App) Start() error {
	if err := a.Dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Close shuts down all application resources. Safe to call after a
// partial initialization failure.
func (a *App) Close() error {
	if a.SchedulerService != nil {
		a.SchedulerService.Stop()
	}

	if a.Dispatcher != nil {
		if err := a.Dispatcher.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop dispatcher")
		}
	}

	if a.WSHandler != nil {
		a.WSHandler.CloseAll()
	}

	if a.QueueManager != nil {
		if err := a.QueueManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close queue manager")
		}
	}

	if a.LLMService != nil {
		if err := a.LLMService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM service")
		}
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
