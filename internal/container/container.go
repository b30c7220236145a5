// Package container wires the workflow engine, its collaborators and the
// HTTP adapter together, with ordered initialization and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/dispatcher"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/config"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/worker"
	httpapi "github.com/harshangpate/hospital-crm/internal/interfaces/http"
	"github.com/harshangpate/hospital-crm/internal/metrics"
	"github.com/harshangpate/hospital-crm/pkg/database"
	"github.com/harshangpate/hospital-crm/pkg/utils"
)

// Container manages all application dependencies and lifecycle.
type Container struct {
	config  *config.Config
	logger  *zap.Logger
	version string

	// Infrastructure
	db            *DatabaseBundle
	repositories  *RepositoryBundle
	collaborators *CollaboratorBundle
	metrics       *metrics.Collector

	// Application
	dispatcher dispatcher.Dispatcher
	engine     appwf.Engine
	services   *ServiceBundle

	// Interfaces
	workers    *worker.Manager
	reconciler *worker.BillingReconciler
	server     *httpapi.Server

	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
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
func NewContainer(cfg *config.Config, logger *zap.Logger, version string) (*Container, error) {
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
		config:  cfg,
		logger:  logger,
		version: version,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. Metrics and collaborators
// 3. Dispatcher, engine and services
// 4. Workers
// 5. HTTP server (built, not listening; see Serve)
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
		{"collaborators", c.initCollaborators},
		{"application", c.initApplication},
		{"workers", c.initWorkers},
		{"http server", c.initServer},
	}

	for i, step := range steps {
		c.logger.Info(fmt.Sprintf("Step %d: Initializing %s", i+1, step.name))
		if err := step.fn(); err != nil {
			c.teardown()
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
	}

	c.ready.Store(true)
	c.logger.Info("Container initialization complete")
	return nil
}

// Serve blocks serving HTTP until ctx is cancelled, then shuts the listener down.
// Call Close afterwards to stop workers and release the database.
func (c *Container) Serve(ctx context.Context) error {
	if !c.ready.Load() {
		return fmt.Errorf("container not started")
	}
	return c.server.Start(ctx)
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)
	return err
}

func (c *Container) teardown() error {
	if c.cancel != nil {
		c.cancel()
	}

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.db != nil && c.db.DB != nil {
		if err := c.db.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Services returns the application services.
func (c *Container) Services() *ServiceBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// HTTPServer returns the HTTP adapter.
func (c *Container) HTTPServer() *httpapi.Server {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.server
}

// Reconciler returns the billing reconciler, or nil when disabled.
func (c *Container) Reconciler() *worker.BillingReconciler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.reconciler
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
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

	if c.db == nil || c.db.DB == nil {
		set("database", false, "not initialized")
	} else if err := c.db.DB.Ping(); err != nil {
		set("database", false, fmt.Sprintf("ping failed: %v", err))
	} else {
		set("database", true, "")
	}

	if c.collaborators == nil {
		set("collaborators", false, "not initialized")
	} else {
		status.Components["billing"] = ComponentHealth{Healthy: true, Message: c.collaborators.Billing.State().String()}
		status.Components["notification"] = ComponentHealth{Healthy: true, Message: c.collaborators.Notifications.State().String()}
		status.Components["beds"] = ComponentHealth{Healthy: true, Message: c.collaborators.Beds.State().String()}
	}

	if c.workers == nil {
		set("workers", false, "not initialized")
	} else if c.workers.Count() > 0 {
		set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.Count()))
	}

	if c.dispatcher == nil {
		set("dispatcher", false, "not initialized")
	} else {
		set("dispatcher", true, "")
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(c.config, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle

	repos, err := ProvideRepositories(bundle.DB, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initCollaborators() error {
	c.metrics = metrics.NewCollector()
	if err := c.metrics.RegisterDB(c.db.DB.DB, c.config.Database.Path); err != nil {
		return fmt.Errorf("register database metrics: %w", err)
	}

	collaborators, err := ProvideCollaborators(c.ctx, c.config, c.repositories, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.collaborators = collaborators
	return nil
}

func (c *Container) initApplication() error {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.engine = ProvideEngine(c.config, c.collaborators, c.metrics, c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Repos:         c.repositories,
		TxManager:     c.db.TransactionMgr,
		Engine:        c.engine,
		Collaborators: c.collaborators,
		Dispatcher:    c.dispatcher,
		Metrics:       c.metrics,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	c.logger.Info("Workflow engine ready",
		zap.String("failure_policy", string(c.config.FailurePolicy())),
		zap.Duration("collaborator_timeout", c.config.Workflow.CollaboratorTimeout),
	)
	return nil
}

func (c *Container) initWorkers() error {
	c.workers = worker.NewManager(c.logger)

	if c.config.Reconciler.Enabled {
		c.reconciler = worker.NewBillingReconciler(worker.ReconcilerConfig{
			PollInterval: c.config.Reconciler.PollInterval,
			BatchSize:    c.config.Reconciler.BatchSize,
			RunTimeout:   c.config.Reconciler.RunTimeout,
		}, c.services.Invoices, c.metrics.ObserveReconcile, c.logger)

		if err := c.workers.Register(c.reconciler); err != nil {
			return err
		}
	}

	return c.workers.StartAll(c.ctx)
}

func (c *Container) initServer() error {
	srv := c.config.Server
	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:            srv.Host,
		Port:            srv.Port,
		Mode:            srv.Mode,
		ReadTimeout:     srv.ReadTimeout,
		WriteTimeout:    srv.WriteTimeout,
		ShutdownTimeout: srv.ShutdownTimeout,
	}, httpapi.Services{
		Orders:   c.services.Orders,
		Invoices: c.services.Invoices,
		Beds:     c.services.Beds,
	}, utils.NewKVLogger(c.logger),
		httpapi.WithMetrics(c.metrics.Handler(), c.metrics.GinMiddleware()),
		httpapi.WithVersion(c.version),
	)
	return nil
}

// Migrate opens the configured database, applies pending migrations and closes it.
func Migrate(cfg *config.Config, logger *zap.Logger) error {
	db, err := database.New(cfg.DatabaseConfig(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	pending, err := migrator.Pending()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("Database schema is up to date")
		return nil
	}
	return migrator.RunMigrations()
}
