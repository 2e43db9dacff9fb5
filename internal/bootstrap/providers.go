package bootstrap

import (
	"context"
	"math/big"
	"time"

	"liquidator/internal/adapters/chain"
	chclient "liquidator/internal/adapters/clickhouse"
	"liquidator/internal/adapters/config"
	errnoop "liquidator/internal/adapters/errors/noop"
	"liquidator/internal/adapters/errors/sentry"
	"liquidator/internal/adapters/kafka"
	pgclient "liquidator/internal/adapters/postgres"
	"liquidator/internal/adapters/pricefactory"
	redisclient "liquidator/internal/adapters/redis"
	"liquidator/internal/adapters/telegram"
	"liquidator/internal/api"
	"liquidator/internal/api/health"
	"liquidator/internal/domain/liquidation"
	"liquidator/internal/domain/notification"
	"liquidator/internal/events"
	"liquidator/internal/metrics"
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

const startupTimeout = 30 * time.Second

// ========================================
// Phase 1: Configuration & Logging
// ========================================

// MustInitConfig loads configuration and initializes logger
func (c *Container) MustInitConfig() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	c.Config = cfg

	if err := logger.Init(cfg.App.LogLevel, cfg.App.Env, "service", cfg.App.Name, "version", cfg.App.Version); err != nil {
		panic("failed to init logger: " + err.Error())
	}

	c.Log = logger.Get()
	c.Log.Infof("Starting %s %s in %s mode", cfg.App.Name, cfg.App.Version, cfg.App.Env)

	c.ErrorTracker = provideErrorTracker(cfg, c.Log)
	logger.SetErrorTracker(c.ErrorTracker)
}

// ========================================
// Phase 2: Infrastructure Layer
// ========================================

// MustInitInfrastructure connects data stores. Postgres is required;
// ClickHouse and Redis are skipped when not configured.
func (c *Container) MustInitInfrastructure() {
	ctx, cancel := context.WithTimeout(c.Context, startupTimeout)
	defer cancel()

	var err error

	c.Log.Info("Connecting to PostgreSQL...")
	c.PG, err = pgclient.NewClient(ctx, c.Config.Postgres)
	if err != nil {
		c.Log.Fatalf("failed to connect postgres: %v", err)
	}
	c.Log.Info("✓ PostgreSQL connected")

	if c.Config.ClickHouse.Enabled() {
		c.Log.Info("Connecting to ClickHouse...")
		c.CH, err = chclient.NewClient(ctx, c.Config.ClickHouse)
		if err != nil {
			c.Log.Fatalf("failed to connect clickhouse: %v", err)
		}
		c.Log.Info("✓ ClickHouse connected")
	} else {
		c.Log.Info("ClickHouse not configured, liquidation audit log disabled")
	}

	if c.Config.Redis.Enabled() {
		c.Log.Info("Connecting to Redis...")
		c.Redis, err = redisclient.NewClient(c.Config.Redis)
		if err != nil {
			c.Log.Fatalf("failed to connect redis: %v", err)
		}
		c.Log.Info("✓ Redis connected")
	} else {
		c.Log.Info("Redis not configured, liquidation lock disabled")
	}
}

// ========================================
// Phase 3: Repositories
// ========================================

func (c *Container) MustInitRepositories() {
	c.Repos.Loans = pgrepo.NewLoanRepository(c.PG.DB())
	if c.CH != nil {
		c.Repos.Audit = chrepo.NewLiquidationRepository(c.CH.Conn())
	}
	c.Log.Info("✓ Repositories initialized")
}

// ========================================
// Phase 4: External Adapters
// ========================================

// MustInitAdapters dials the chain node and validates the wallet
func (c *Container) MustInitAdapters() {
	ctx, cancel := context.WithTimeout(c.Context, startupTimeout)
	defer cancel()

	cfg := c.Config.Chain
	c.Log.Infow("Connecting to chain node...", "contract", cfg.ContractAddress)

	client, eth, err := chain.Dial(ctx, cfg.RPCURL, chain.Config{
		ContractAddress: cfg.ContractAddress,
		PrivateKey:      cfg.PrivateKey,
		ChainID:         cfg.ChainID,
		GasMultiplier:   cfg.GasMultiplier,
		ReceiptTimeout:  cfg.ReceiptTimeout,
	}, c.Log)
	if err != nil {
		c.Log.Fatalf("failed to connect chain: %v", err)
	}
	c.Adapters.Chain = client
	c.Adapters.EthClient = eth

	minBalance, ok := new(big.Int).SetString(cfg.MinBalanceWei, 10)
	if !ok {
		c.Log.Fatalf("invalid CHAIN_MIN_BALANCE_WEI: %q", cfg.MinBalanceWei)
	}
	c.Adapters.MinBalance = minBalance

	if ok, err := client.HasSufficientGas(ctx, minBalance); err != nil {
		c.Log.Warnw("Failed to read wallet balance", "error", err)
	} else if !ok {
		c.Log.Warnw("Wallet balance below minimum, liquidations may fail", "wallet", client.Address())
	}
	c.Log.Infow("✓ Chain connected", "wallet", client.Address())

	c.Adapters.KafkaProducer = provideKafkaProducer(c.Config, c.Log)
}

// ========================================
// Phase 5: Services
// ========================================

// MustInitServices builds the price, evaluation, execution and notification chain
func (c *Container) MustInitServices() {
	var err error

	c.Services.Prices, err = pricing.NewResolver(
		c.Config.PriceOracle.Provider,
		pricefactory.NewProviders(c.Config.PriceOracle),
		pricing.NewCache(c.Config.PriceOracle.CacheTTL),
		c.Log,
	)
	if err != nil {
		c.Log.Fatalf("failed to init price resolver: %v", err)
	}

	c.Services.Evaluator = healthcheck.NewEvaluator(healthcheck.Config{
		Threshold:      c.Config.Bot.HealthFactorThreshold,
		MaxConcurrency: c.Config.Bot.MaxConcurrentEvaluations,
	}, c.Services.Prices, c.Log)

	var locker liqsvc.Locker
	if c.Redis != nil {
		locker = c.Redis
	}
	c.Services.Executor = liqsvc.NewExecutor(liqsvc.Config{
		DryRun:              c.Config.Bot.DryRun,
		MaxRetries:          c.Config.Bot.MaxRetries,
		PreFlightValidation: c.Config.Bot.PreFlightValidation,
		LockTTL:             c.Config.Bot.LockTTL,
		AttemptTimeout:      c.Config.Chain.ReceiptTimeout,
	}, c.Adapters.Chain, locker, c.Log)

	c.Services.Dispatcher = notify.NewDispatcher(c.Log, provideSinks(c.Config, c.Adapters.KafkaProducer, c.Log)...)

	c.Log.Infow("✓ Services initialized",
		"price_provider", c.Services.Prices.Primary(),
		"dry_run", c.Services.Executor.DryRun(),
		"lock_ttl", c.Services.Executor.LockTTL(),
	)
}

// ========================================
// Phase 6: Application Layer
// ========================================

func (c *Container) MustInitApplication() {
	c.Background.WorkerScheduler = workers.NewScheduler(c.Config.Bot.ShutdownTimeout)

	c.Application.HealthHandler = health.New(
		health.Config{
			ServiceName: c.Config.App.Name,
			Version:     c.Config.App.Version,
			MinBalance:  c.Adapters.MinBalance,
		},
		c.Log,
		c.Adapters.Chain,
		c.Background.WorkerScheduler,
		// the scanner is created in the next phase; resolve it lazily
		scanReporterFunc(func() workers.WorkerHealth {
			if c.Background.Scanner == nil {
				return workers.WorkerHealth{}
			}
			return c.Background.Scanner.Health()
		}),
		provideHealthChecks(c)...,
	)

	c.Application.HTTPServer = api.NewServer(api.ServerConfig{
		Port:        c.Config.HTTP.Port,
		ServiceName: c.Config.App.Name,
		Version:     c.Config.App.Version,
	}, c.Application.HealthHandler, c.Log)

	metrics.Init()
	metrics.RegisterStateCollector(metrics.NewStateCollector(c.Log.Component("metrics"), c.Repos.Loans, c.Adapters.Chain))
	c.Log.Info("✓ Metrics initialized")

	c.Log.Info("✓ Application layer initialized")
}

// ========================================
// Phase 7: Background Processing
// ========================================

func (c *Container) MustInitBackground() {
	var audit liquidation.Repository
	if c.Repos.Audit != nil {
		audit = c.Repos.Audit
	}

	c.Background.Scanner = liqworker.NewScanner(
		liqworker.Config{
			Interval:                  c.Config.Bot.ScanInterval,
			MaxConcurrentLiquidations: c.Config.Bot.MaxConcurrentLiquidations,
			AlertOnRaceConditions:     c.Config.Bot.AlertOnRaceConditions,
			Enabled:                   true,
		},
		c.Repos.Loans,
		c.Services.Evaluator,
		c.Services.Executor,
		c.Services.Dispatcher,
		audit,
	)
	c.Background.WorkerScheduler.RegisterWorker(c.Background.Scanner)

	c.Log.Infow("✓ Background processing initialized",
		"scan_interval", c.Config.Bot.ScanInterval,
		"threshold", c.Config.Bot.HealthFactorThreshold,
	)
}

// ========================================
// Helper Provider Functions
// ========================================

type scanReporterFunc func() workers.WorkerHealth

func (f scanReporterFunc) Health() workers.WorkerHealth { return f() }

func provideErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return errnoop.New()
	}

	tracker, err := sentry.New(sentry.Config{
		DSN:         cfg.ErrorTracking.SentryDSN,
		Environment: cfg.ErrorTracking.Environment,
		Release:     cfg.App.Version,
		SampleRate:  cfg.ErrorTracking.SampleRate,
	})
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return errnoop.New()
	}

	log.Info("✓ Error tracking initialized (Sentry)")
	return tracker
}

func provideKafkaProducer(cfg *config.Config, log *logger.Logger) *kafka.Producer {
	if !cfg.Kafka.Enabled() {
		log.Info("Kafka brokers not configured, event publishing disabled")
		return nil
	}

	producer := kafka.NewProducer(kafka.ProducerConfig{Brokers: cfg.Kafka.Brokers})
	log.Infow("✓ Kafka producer initialized", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.EventsTopic)
	return producer
}

// provideSinks builds every configured notification sink. A sink that
// cannot be built is skipped; the bot runs without it.
func provideSinks(cfg *config.Config, producer *kafka.Producer, log *logger.Logger) []notification.Sink {
	var sinks []notification.Sink

	if cfg.Telegram.Enabled() {
		if sink, err := provideTelegramSink(cfg, log); err != nil {
			log.Warnw("Telegram notifications disabled", "error", err)
		} else {
			sinks = append(sinks, sink)
		}
	}

	if producer != nil {
		sinks = append(sinks, events.NewNotificationPublisher(producer, cfg.Kafka.EventsTopic, cfg.App.Name))
	}

	if len(sinks) == 0 {
		log.Warn("No notification sinks configured, alerts go to logs only")
	}
	return sinks
}

func provideTelegramSink(cfg *config.Config, log *logger.Logger) (notification.Sink, error) {
	bot, err := telegram.NewBot(telegram.Config{
		Token:             cfg.Telegram.BotToken,
		RequestsPerMinute: cfg.Telegram.RequestsPerMinute,
	}, log)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}

	renderer, err := telegram.NewRenderer()
	if err != nil {
		return nil, errors.Wrap(err, "telegram templates")
	}

	log.Infow("✓ Telegram notifications enabled", "chat_id", cfg.Telegram.ChatID)
	return telegram.NewNotificationService(bot, renderer, cfg.Telegram.ChatID, log), nil
}

// provideHealthChecks lists dependency probes. Postgres and the chain node
// gate readiness; the optional stores only degrade /health.
func provideHealthChecks(c *Container) []health.Check {
	checks := []health.Check{
		{Name: "postgres", Required: true, Probe: c.PG.Health},
		{Name: "chain", Required: true, Probe: c.Adapters.Chain.Ping},
	}
	if c.CH != nil {
		checks = append(checks, health.Check{Name: "clickhouse", Probe: c.CH.Health})
	}
	if c.Redis != nil {
		checks = append(checks, health.Check{Name: "redis", Probe: c.Redis.Health})
	}
	return checks
}
