package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/pipeline"
	"github.com/garyjia/receipt-scan/internal/application/service"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/repository"
	"github.com/garyjia/receipt-scan/internal/infrastructure/storage"
	"github.com/garyjia/receipt-scan/internal/infrastructure/worker"
	"go.uber.org/zap"
)

// Container owns the receipt scan runtime: SQLite, the inference provider,
// blob storage, the job pipeline and its workers. Start builds them in
// dependency order and Close releases them newest first.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *DatabaseBundle
	repositories *RepositoryBundle

	// Infrastructure - External
	inference *InferenceBundle
	storage   *StorageBundle

	// Application
	dispatcher    dispatcher.Dispatcher
	workflow      workflow.Engine
	aggregator    *pipeline.Aggregator
	services      *ServiceBundle
	orchestrator  *pipeline.Orchestrator
	notifications service.NotificationService

	// Workers
	workers *worker.WorkerManager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Jobs     *repository.JobRepository
	Receipts *repository.ReceiptRepository
	Rules    *repository.RuleRepository
	Exports  *repository.ExportRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Jobs     service.JobService
	Receipts service.ReceiptService
	Rules    service.RuleEngine
	Exports  service.ExportService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components and begins processing.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Inference provider and storage
// 3. Event dispatcher and workflow engine
// 4. Application services, pipeline and notifications
// 5. Workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	steps := []struct {
		name string
		fn   func() error
	}{
		{"database", c.initDatabase},
		{"external clients", c.initExternalClients},
		{"dispatcher and workflow", c.initDispatcherAndWorkflow},
		{"services", c.initServices},
		{"workers", c.initWorkers},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		c.logger.Info("Initialized", zap.String("step", step.name))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized, newest first
func (c *Container) teardown() []error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.inference != nil {
		if err := c.inference.Close(); err != nil {
			c.logger.Error("Failed to close inference provider", zap.Error(err))
			errs = append(errs, fmt.Errorf("close inference: %w", err))
		}
		c.inference = nil
	}

	if c.db != nil {
		if err := c.db.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", false, "not initialized")
	default:
		if err := c.db.DB.Health(ctx); err != nil {
			set("database", false, fmt.Sprintf("ping failed: %v", err))
		} else {
			set("database", true, "")
		}
	}

	if c.workers != nil {
		set("workers", c.workers.IsRunning(), "")
	} else {
		set("workers", false, "not initialized")
	}

	if c.inference != nil {
		set("inference", true, c.inference.Provider.Name())
	} else {
		set("inference", false, "not initialized")
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	dbBundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = dbBundle

	repos, err := ProvideRepositories(dbBundle.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

// initExternalClients initializes the inference provider and storage.
func (c *Container) initExternalClients() error {
	inf, err := ProvideInference(c.ctx, &c.config.Inference, c.logger.Named("inference"))
	if err != nil {
		return err
	}
	c.inference = inf

	st, err := ProvideStorage(&c.config.Storage, c.logger.Named("storage"))
	if err != nil {
		return err
	}
	c.storage = st
	return nil
}

// initDispatcherAndWorkflow initializes the event dispatcher and workflow engine.
func (c *Container) initDispatcherAndWorkflow() error {
	disp, err := ProvideDispatcher(c.logger.Named("dispatcher"))
	if err != nil {
		return err
	}
	c.dispatcher = disp

	engine, err := ProvideWorkflowEngine(c.repositories, c.dispatcher, c.logger)
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

// initServices initializes application services, the pipeline and notifications.
func (c *Container) initServices() error {
	c.aggregator = pipeline.NewAggregator(c.repositories.Jobs, c.logger.Named("aggregator"))

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db.TransactionMgr,
		Blobs:      c.storage.Blobs,
		Lifecycle:  c.workflow,
		Dispatcher: c.dispatcher,
		Aggregator: c.aggregator,
		Storage:    &c.config.Storage,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	orchestrator, err := ProvidePipeline(&PipelineDeps{
		Repos:      c.repositories,
		Storage:    c.storage,
		Inference:  c.inference.Provider,
		Rules:      services.Rules,
		Aggregator: c.aggregator,
		Lifecycle:  c.workflow,
		Frames:     &c.config.Frames,
		StageConfig: pipeline.StageConfig{
			Timeout:     c.config.Inference.Timeout,
			MaxAttempts: c.config.Inference.MaxAttempts,
			Backoff:     c.config.Inference.Backoff,
		},
		CreditAccount: c.config.CreditAccount,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.orchestrator = orchestrator

	c.notifications = ProvideNotifications(&c.config.Lark, c.dispatcher, c.logger)
	return nil
}

// initWorkers initializes and starts all background workers.
func (c *Container) initWorkers() error {
	workers, err := ProvideWorkers(&WorkerDeps{
		Repos:      c.repositories,
		Lifecycle:  c.workflow,
		Processor:  c.orchestrator,
		Dispatcher: c.dispatcher,
		WorkerCfg:  &c.config.Worker,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	if err := workers.StartAll(c.ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.workers = workers
	return nil
}

// BlobStore returns the local blob store served under /blobs
func (c *Container) BlobStore() *storage.LocalBlobStore {
	return c.storage.Blobs
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Orchestrator returns the job pipeline.
func (c *Container) Orchestrator() *pipeline.Orchestrator {
	return c.orchestrator
}

// LoggerAdapter exposes a key-value logger for adapters outside the container
func (c *Container) LoggerAdapter() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
