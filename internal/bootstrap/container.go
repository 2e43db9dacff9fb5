package bootstrap

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/ethclient"

	"liquidator/internal/adapters/chain"
	chclient "liquidator/internal/adapters/clickhouse"
	"liquidator/internal/adapters/config"
	"liquidator/internal/adapters/kafka"
	pgclient "liquidator/internal/adapters/postgres"
	redisclient "liquidator/internal/adapters/redis"
	"liquidator/internal/api"
	"liquidator/internal/api/health"
	"liquidator/internal/domain/notification"
	chrepo "liquidator/internal/repository/clickhouse"
	pgrepo "liquidator/internal/repository/postgres"
	"liquidator/internal/services/healthcheck"
	liqsvc "liquidator/internal/services/liquidation"
	"liquidator/internal/services/notify"
	"liquidator/internal/services/pricing"
	"liquidator/internal/workers"
	liqworker "liquidator/internal/workers/liquidation"
	"liquidator/pkg/errors"
	"liquidator/pkg/logger"
)

// Container holds all application dependencies and their lifecycle
// Components are organized in initialization order
type Container struct {
	// Core configuration & logging
	Config       *config.Config
	Log          *logger.Logger
	ErrorTracker errors.Tracker

	// Infrastructure Layer. CH and Redis are nil when not configured.
	PG    *pgclient.Client
	CH    *chclient.Client
	Redis *redisclient.Client

	Repos       *Repositories
	Adapters    *Adapters
	Services    *Services
	Application *Application
	Background  *Background

	// Lifecycle management
	Lifecycle *Lifecycle
	WG        *sync.WaitGroup
	Context   context.Context
	Cancel    context.CancelFunc
}

// Repositories groups the loan store and the audit log
type Repositories struct {
	Loans *pgrepo.LoanRepository
	Audit *chrepo.LiquidationRepository // nil without ClickHouse
}

// Adapters groups external adapters
type Adapters struct {
	Chain         *chain.Client
	EthClient     *ethclient.Client
	KafkaProducer *kafka.Producer // nil without brokers
	MinBalance    *big.Int
}

// Services groups the liquidation pipeline
type Services struct {
	Prices     *pricing.Resolver
	Evaluator  *healthcheck.Evaluator
	Executor   *liqsvc.Executor
	Dispatcher *notify.Dispatcher
}

// Application groups the HTTP surface
type Application struct {
	HTTPServer    *api.Server
	HealthHandler *health.Handler
}

// Background groups the scan loop
type Background struct {
	Scanner         *liqworker.Scanner
	WorkerScheduler *workers.Scheduler
}

// NewContainer creates a new dependency container
func NewContainer() *Container {
	ctx, cancel := context.WithCancel(context.Background())

	return &Container{
		Repos:       &Repositories{},
		Adapters:    &Adapters{},
		Services:    &Services{},
		Application: &Application{},
		Background:  &Background{},
		Lifecycle:   NewLifecycle(),
		WG:          &sync.WaitGroup{},
		Context:     ctx,
		Cancel:      cancel,
	}
}

// MustInit initializes all components in the correct order
// Panics on any initialization error (fail-fast at startup)
func (c *Container) MustInit() {
	c.MustInitConfig()
	c.MustInitInfrastructure()
	c.MustInitRepositories()
	c.MustInitAdapters()
	c.MustInitServices()
	c.MustInitApplication()
	c.MustInitBackground()
}

// Start starts the HTTP server and the scan loop
func (c *Container) Start() error {
	c.Log.Info("Starting all systems...")

	if c.Repos.Audit != nil {
		if err := c.Repos.Audit.EnsureSchema(c.Context); err != nil {
			return errors.Wrap(err, "failed to ensure audit schema")
		}
		// stopped explicitly after the scheduler drains, so late records still flush
		c.Repos.Audit.Start(context.WithoutCancel(c.Context))
		c.Log.Info("✓ Liquidation audit log started")
	}

	// Start HTTP server
	c.WG.Add(1)
	go func() {
		defer c.WG.Done()
		if err := c.Application.HTTPServer.Start(); err != nil {
			c.Log.Errorf("HTTP server failed: %v", err)
			c.Cancel() // Trigger shutdown on fatal HTTP error
		}
	}()

	if err := c.startScanLoop(); err != nil {
		return err
	}

	c.Log.Infow("✓ All systems operational",
		"wallet", c.Adapters.Chain.Address(),
		"dry_run", c.Services.Executor.DryRun(),
		"sinks", c.Services.Dispatcher.Sinks(),
	)
	return nil
}

// startScanLoop announces the bot, then starts the scheduler. The scheduler
// runs the first scan immediately, so the order matters to operators.
func (c *Container) startScanLoop() error {
	c.Services.Dispatcher.Notify(c.Context, notification.KindBotStarted, notification.SeverityInfo,
		"Liquidation bot started", map[string]interface{}{
			"wallet":    c.Adapters.Chain.Address(),
			"dry_run":   c.Services.Executor.DryRun(),
			"provider":  c.Services.Prices.Primary(),
			"interval":  c.Config.Bot.ScanInterval.String(),
			"threshold": c.Config.Bot.HealthFactorThreshold,
		})

	if err := c.Background.WorkerScheduler.Start(c.Context); err != nil {
		return errors.Wrap(err, "failed to start workers")
	}
	return nil
}

// Shutdown performs graceful shutdown in the correct order
func (c *Container) Shutdown() {
	c.Log.Info("Initiating graceful shutdown...")

	// Cancel application context to signal all other components to stop
	c.Cancel()

	c.Lifecycle.Shutdown(c)
}
