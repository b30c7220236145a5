package container

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harshangpate/hospital-crm/internal/application/dispatcher"
	"github.com/harshangpate/hospital-crm/internal/application/port"
	"github.com/harshangpate/hospital-crm/internal/application/service"
	appwf "github.com/harshangpate/hospital-crm/internal/application/workflow"
	"github.com/harshangpate/hospital-crm/internal/config"
	"github.com/harshangpate/hospital-crm/internal/domain/event"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/beds"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/billing"
	infraLark "github.com/harshangpate/hospital-crm/internal/infrastructure/external/lark"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/notify"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/repository"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/persistence/sqlite"
	"github.com/harshangpate/hospital-crm/internal/infrastructure/resilience"
	"github.com/harshangpate/hospital-crm/internal/metrics"
	"github.com/harshangpate/hospital-crm/pkg/database"
	"github.com/harshangpate/hospital-crm/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Orders   port.OrderRepository
	History  port.HistoryRepository
	Invoices port.InvoiceRepository
	Beds     port.BedRepository
}

// CollaboratorBundle holds the engine's collaborators, already wrapped in circuit breakers.
type CollaboratorBundle struct {
	Billing       *resilience.Billing
	Notifications *resilience.Notifications
	Beds          *resilience.Beds
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Orders   service.OrderService
	Invoices service.InvoiceService
	Beds     service.BedService
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(cfg *config.Config, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(cfg.DatabaseConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.NewMigrator(db, logger).RunMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories over db.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Orders:   repository.NewOrderRepository(db.DB, logger),
		History:  repository.NewHistoryRepository(db.DB, logger),
		Invoices: repository.NewInvoiceRepository(db.DB, logger),
		Beds:     repository.NewBedRepository(db.DB, logger),
	}, nil
}

// ProvideNotifier returns the Lark alert notifier when enabled, otherwise a log-only notifier.
func ProvideNotifier(cfg *config.LarkConfig, logger *zap.Logger) port.NotificationService {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Lark alerts disabled, critical results will be logged only")
		return notify.NewLogNotifier(logger)
	}

	client := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
	}, logger)
	messenger := infraLark.NewMessenger(client, logger)

	logger.Info("Lark alerts enabled", zap.String("app_id", client.GetAppID()))
	return infraLark.NewCriticalNotifier(messenger, cfg.ReceiveIDType, cfg.AlertChatID, logger)
}

// ProvideCollaborators builds billing, notification and bed adapters and seeds configured beds.
func ProvideCollaborators(ctx context.Context, cfg *config.Config, repos *RepositoryBundle, m *metrics.Collector, logger *zap.Logger) (*CollaboratorBundle, error) {
	prices, err := cfg.PriceList()
	if err != nil {
		return nil, err
	}

	ledger := billing.NewLedger(repos.Invoices, prices, logger)

	inventory := beds.NewInventory(repos.Beds, logger)
	if err := inventory.Seed(ctx, cfg.BedSeed()); err != nil {
		return nil, fmt.Errorf("failed to seed beds: %w", err)
	}

	notifier := ProvideNotifier(&cfg.Lark, logger)

	settings := cfg.BreakerSettings()
	return &CollaboratorBundle{
		Billing:       resilience.NewBilling(ledger, settings, m.BreakerStateChanged, logger),
		Notifications: resilience.NewNotifications(notifier, settings, m.BreakerStateChanged, logger),
		Beds:          resilience.NewBeds(inventory, settings, m.BreakerStateChanged, logger),
	}, nil
}

// ProvideEngine creates the workflow engine over the wrapped collaborators.
func ProvideEngine(cfg *config.Config, collaborators *CollaboratorBundle, m *metrics.Collector, logger *zap.Logger) appwf.Engine {
	return appwf.NewEngine(
		collaborators.Billing,
		collaborators.Notifications,
		collaborators.Beds,
		appwf.WithFailurePolicy(cfg.FailurePolicy()),
		appwf.WithCollaboratorTimeout(cfg.Workflow.CollaboratorTimeout),
		appwf.WithLogger(utils.NewKVLogger(logger)),
		appwf.WithCollaboratorObserver(m.ObserveCollaborator),
	)
}

// ProvideDispatcher creates the event dispatcher with an audit log subscriber.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	d := dispatcher.NewDispatcher(dispatcher.WithLogger(utils.NewKVLogger(logger)))

	d.SubscribeAll("event-log", func(_ context.Context, evt *event.Event) error {
		logger.Info("Domain event",
			zap.String("event_type", evt.Type.String()),
			zap.String("entity_id", evt.EntityID),
			zap.String("correlation_id", evt.CorrelationID),
			zap.Any("payload", evt.Payload),
		)
		return nil
	})

	return d
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos         *RepositoryBundle
	TxManager     port.TransactionManager
	Engine        appwf.Engine
	Collaborators *CollaboratorBundle
	Dispatcher    dispatcher.Dispatcher
	Metrics       *metrics.Collector
	Logger        *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil || deps.TxManager == nil || deps.Engine == nil || deps.Collaborators == nil {
		return nil, fmt.Errorf("repositories, transaction manager, engine and collaborators are required")
	}

	kv := utils.NewKVLogger(deps.Logger)

	var orderOpts []service.OrderServiceOption
	if deps.Dispatcher != nil {
		orderOpts = append(orderOpts, service.WithDispatcher(deps.Dispatcher))
	}
	if deps.Metrics != nil {
		orderOpts = append(orderOpts, service.WithTransitionObserver(deps.Metrics.ObserveTransition))
	}

	return &ServiceBundle{
		Orders: service.NewOrderService(
			deps.Engine,
			deps.Repos.Orders,
			deps.Repos.History,
			deps.TxManager,
			deps.Collaborators.Beds,
			kv,
			orderOpts...,
		),
		Invoices: service.NewInvoiceService(
			deps.Repos.Invoices,
			deps.Repos.Orders,
			deps.Repos.History,
			deps.TxManager,
			deps.Collaborators.Billing,
			deps.Dispatcher,
			kv,
		),
		Beds: service.NewBedService(deps.Repos.Beds, kv),
	}, nil
}
