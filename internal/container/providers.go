package container

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/pipeline"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/service"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/infrastructure/export"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/ffmpeg"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/gemini"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/inference"
	infraLark "github.com/garyjia/receipt-scan/internal/infrastructure/external/lark"
	"github.com/garyjia/receipt-scan/internal/infrastructure/external/openai"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/repository"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/receipt-scan/internal/infrastructure/storage"
	"github.com/garyjia/receipt-scan/internal/infrastructure/worker"
	"github.com/garyjia/receipt-scan/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// InferenceBundle holds the AI provider and anything that must be closed with it.
type InferenceBundle struct {
	Provider port.Inference
	close    func() error
}

// Close releases provider resources
func (b *InferenceBundle) Close() error {
	if b == nil || b.close == nil {
		return nil
	}
	return b.close()
}

// StorageBundle holds storage-related components.
type StorageBundle struct {
	Blobs     *storage.LocalBlobStore
	Workspace *storage.LocalWorkspace
}

// ProvideDatabase opens SQLite and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, err := database.NewMigrator(db, logger).Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Jobs:     repository.NewJobRepository(db.DB, logger),
		Receipts: repository.NewReceiptRepository(db.DB, logger),
		Rules:    repository.NewRuleRepository(db.DB, logger),
		Exports:  repository.NewExportRepository(db.DB, logger),
	}, nil
}

// ProvideInference creates the configured AI provider with the shared prompts.
func ProvideInference(ctx context.Context, cfg *InferenceConfig, logger *zap.Logger) (*InferenceBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("inference config is required")
	}

	prompts, err := inference.LoadPrompts(cfg.PromptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompts: %w", err)
	}

	switch cfg.Provider {
	case "openai":
		p := openai.NewProvider(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, prompts, logger)
		logger.Info("Inference provider ready", zap.String("provider", p.Name()))
		return &InferenceBundle{Provider: p}, nil
	case "gemini":
		p, err := gemini.NewProvider(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, prompts, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini provider: %w", err)
		}
		logger.Info("Inference provider ready", zap.String("provider", p.Name()))
		return &InferenceBundle{Provider: p, close: p.Close}, nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}

// ProvideStorage creates the blob store and job workspace.
func ProvideStorage(cfg *StorageConfig, logger *zap.Logger) (*StorageBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}

	blobs, err := storage.NewLocalBlobStore(cfg.BlobDir, cfg.PublicURL, cfg.SigningSecret, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob store: %w", err)
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "receipt-scan")
	}

	return &StorageBundle{
		Blobs:     blobs,
		Workspace: storage.NewLocalWorkspace(workDir, logger),
	}, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})), nil
}

// ProvideWorkflowEngine creates the job lifecycle engine.
func ProvideWorkflowEngine(repos *RepositoryBundle, d dispatcher.Dispatcher, logger *zap.Logger) (workflow.Engine, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	return workflow.NewEngine(repos.Jobs,
		workflow.WithDispatcher(d),
		workflow.WithLogger(logger.Named("workflow")),
	), nil
}

// ServiceDeps holds dependencies for creating application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Blobs      port.BlobStore
	Lifecycle  workflow.Engine
	Dispatcher dispatcher.Dispatcher
	Aggregator *pipeline.Aggregator
	Storage    *StorageConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	log := &zapLoggerAdapter{logger: deps.Logger}
	rules := service.NewRuleEngine(deps.Repos.Rules, log)

	return &ServiceBundle{
		Jobs:  service.NewJobService(deps.Repos.Jobs, deps.Blobs, deps.Lifecycle, deps.Dispatcher, deps.Storage.UploadURLTTL, log),
		Rules: rules,
		Receipts: service.NewReceiptService(
			deps.Repos.Jobs,
			deps.Repos.Receipts,
			deps.Aggregator,
			rules,
			deps.TxManager,
			log,
		),
		Exports: service.NewExportService(
			deps.Repos.Jobs,
			deps.Repos.Receipts,
			deps.Repos.Exports,
			deps.Blobs,
			export.NewRenderer(deps.Logger.Named("export")),
			deps.Dispatcher,
			deps.Storage.DownloadTTL,
			log,
		),
	}, nil
}

// PipelineDeps holds dependencies for the job orchestrator.
type PipelineDeps struct {
	Repos         *RepositoryBundle
	Storage       *StorageBundle
	Inference     port.Inference
	Rules         service.RuleEngine
	Aggregator    *pipeline.Aggregator
	Lifecycle     workflow.Engine
	Frames        *FramesConfig
	StageConfig   pipeline.StageConfig
	CreditAccount string
	Logger        *zap.Logger
}

// ProvidePipeline wires the frame sampler and the three AI stages into an orchestrator.
func ProvidePipeline(deps *PipelineDeps) (*pipeline.Orchestrator, error) {
	if deps == nil || deps.Inference == nil {
		return nil, fmt.Errorf("pipeline dependencies are required")
	}
	logger := deps.Logger.Named("pipeline")

	sampler := ffmpeg.NewSampler(ffmpeg.Config{
		Binary:   deps.Frames.Binary,
		FPS:      deps.Frames.FPS,
		MaxWidth: deps.Frames.MaxWidth,
		Quality:  deps.Frames.Quality,
	}, logger)

	return pipeline.NewOrchestrator(pipeline.Deps{
		Jobs:       deps.Repos.Jobs,
		Receipts:   deps.Repos.Receipts,
		Blobs:      deps.Storage.Blobs,
		Workspace:  deps.Storage.Workspace,
		Sampler:    sampler,
		Detector:   pipeline.NewDetectionStage(deps.Inference, deps.StageConfig, logger),
		Extractor:  pipeline.NewExtractionStage(deps.Inference, deps.StageConfig, logger),
		Classifier: pipeline.NewClassificationStage(deps.Inference, deps.StageConfig, logger),
		Rules:      deps.Rules,
		Aggregator: deps.Aggregator,
		Lifecycle:  deps.Lifecycle,
		Logger:     logger,
	}, pipeline.Config{
		CreditAccount: deps.CreditAccount,
	}), nil
}

// ProvideNotifications subscribes the Lark notifier when it is configured.
// It returns nil when Lark is disabled.
func ProvideNotifications(cfg *LarkConfig, d dispatcher.Dispatcher, logger *zap.Logger) service.NotificationService {
	larkCfg := infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.BaseURL,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark notifications disabled")
		return nil
	}

	client := infraLark.NewSDKClient(larkCfg, logger)
	messenger := infraLark.NewMessenger(client, cfg.ChatID, logger.Named("lark"))

	notifications := service.NewNotificationService(messenger, &zapLoggerAdapter{logger: logger})
	notifications.Register(d)
	logger.Info("Lark notifications enabled", zap.String("chat_id", cfg.ChatID))
	return notifications
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Lifecycle  workflow.Engine
	Processor  worker.JobProcessor
	Dispatcher dispatcher.Dispatcher
	WorkerCfg  *WorkerConfig
	Logger     *zap.Logger
}

// ProvideWorkers creates the job runner and stale sweeper. Workers are not started.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.WorkerCfg == nil {
		return nil, fmt.Errorf("worker dependencies are required")
	}
	cfg := deps.WorkerCfg

	runner := worker.NewJobRunner(worker.JobRunnerConfig{
		PollInterval:  cfg.PollInterval,
		BatchSize:     cfg.BatchSize,
		Concurrency:   cfg.Concurrency,
		ShutdownGrace: cfg.ShutdownGrace,
	}, deps.Repos.Jobs, deps.Lifecycle, deps.Processor, deps.Logger.Named("runner"))
	runner.Register(deps.Dispatcher)

	sweeper, err := worker.NewStaleSweeper(worker.StaleSweeperConfig{
		Schedule: cfg.SweepSchedule,
		MaxAge:   cfg.StaleAfter,
	}, deps.Repos.Jobs, deps.Lifecycle, deps.Logger.Named("sweeper"))
	if err != nil {
		return nil, err
	}

	manager := worker.NewWorkerManager(deps.Logger)
	manager.Register(runner)
	manager.Register(sweeper)
	return manager, nil
}
