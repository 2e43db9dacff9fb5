package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"liquidator/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Chain         ChainConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	PriceOracle   PriceOracleConfig
	Bot           BotConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"liquidator"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Port int `envconfig:"HTTP_PORT" default:"8080"`
}

// ChainConfig describes the lending contract and the liquidator wallet
type ChainConfig struct {
	RPCURL          string        `envconfig:"CHAIN_RPC_URL" required:"true"`
	ContractAddress string        `envconfig:"LOAN_CONTRACT_ADDRESS" required:"true"`
	PrivateKey      string        `envconfig:"LIQUIDATOR_PRIVATE_KEY" required:"true"`
	ChainID         int64         `envconfig:"CHAIN_ID" default:"0"` // 0 = ask the node
	GasMultiplier   float64       `envconfig:"GAS_MULTIPLIER" default:"1.2"`
	ReceiptTimeout  time.Duration `envconfig:"CHAIN_RECEIPT_TIMEOUT" default:"2m"`
	MinBalanceWei   string        `envconfig:"CHAIN_MIN_BALANCE_WEI" default:"1000000000000000"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"10"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// ClickHouseConfig is optional; an empty host disables the liquidation audit log
type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"liquidator"`
}

func (c ClickHouseConfig) Enabled() bool { return c.Host != "" }

// RedisConfig is optional; an empty host disables the cross-instance liquidation lock
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) Enabled() bool { return c.Host != "" }

// KafkaConfig is optional; no brokers disables event publishing
type KafkaConfig struct {
	Brokers     []string `envconfig:"KAFKA_BROKERS"`
	EventsTopic string   `envconfig:"KAFKA_EVENTS_TOPIC" default:"liquidator.events"`
}

func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// TelegramConfig is optional; an empty token disables chat alerts
type TelegramConfig struct {
	BotToken          string `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID            int64  `envconfig:"TELEGRAM_CHAT_ID"`
	RequestsPerMinute int    `envconfig:"TELEGRAM_REQUESTS_PER_MINUTE" default:"20"`
}

func (c TelegramConfig) Enabled() bool { return c.BotToken != "" && c.ChatID != 0 }

type PriceOracleConfig struct {
	Provider          string        `envconfig:"PRICE_API_PROVIDER" default:"coingecko"`
	URL               string        `envconfig:"PRICE_API_URL"`
	APIKey            string        `envconfig:"PRICE_API_KEY"`
	CoinGeckoURL      string        `envconfig:"COINGECKO_API_URL" default:"https://api.coingecko.com"`
	CoinGeckoAPIKey   string        `envconfig:"COINGECKO_API_KEY"`
	PythHermesURL     string        `envconfig:"PYTH_HERMES_URL" default:"https://hermes.pyth.network"`
	StorkURL          string        `envconfig:"STORK_API_URL" default:"https://rest.jp.stork-oracle.network"`
	StorkAPIKey       string        `envconfig:"STORK_API_KEY"`
	CacheTTL          time.Duration `envconfig:"PRICE_CACHE_TTL" default:"5m"`
	RequestTimeout    time.Duration `envconfig:"PRICE_REQUEST_TIMEOUT" default:"10s"`
	RequestsPerMinute int           `envconfig:"PRICE_REQUESTS_PER_MINUTE" default:"30"`
}

// BotConfig holds the scan and liquidation policy
type BotConfig struct {
	ScanInterval              time.Duration `envconfig:"SCAN_INTERVAL" default:"60s"`
	HealthFactorThreshold     float64       `envconfig:"HEALTH_FACTOR_THRESHOLD" default:"1.0"`
	DryRun                    bool          `envconfig:"DRY_RUN" default:"false"`
	MaxRetries                int           `envconfig:"MAX_RETRIES" default:"3"`
	PreFlightValidation       bool          `envconfig:"PRE_FLIGHT_VALIDATION" default:"true"`
	AlertOnRaceConditions     bool          `envconfig:"ALERT_ON_RACE_CONDITIONS" default:"false"`
	MaxConcurrentEvaluations  int           `envconfig:"MAX_CONCURRENT_EVALUATIONS" default:"10"`
	MaxConcurrentLiquidations int           `envconfig:"MAX_CONCURRENT_LIQUIDATIONS" default:"3"`
	LockTTL                   time.Duration `envconfig:"LIQUIDATION_LOCK_TTL" default:"5m"`
	ShutdownTimeout           time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

type ErrorTrackingConfig struct {
	Enabled     bool    `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	SentryDSN   string  `envconfig:"SENTRY_DSN"`
	Environment string  `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
	SampleRate  float64 `envconfig:"SENTRY_SAMPLE_RATE" default:"1.0"`
}

// Providers the resolver knows how to build
var KnownProviders = []string{"stork", "pyth", "coingecko", "coinmarketcap", "chainlink"}

// Load reads configuration from environment variables.
// A .env file in the working directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}
	cfg.PriceOracle.Provider = strings.ToLower(strings.TrimSpace(cfg.PriceOracle.Provider))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules envconfig cannot express
func (c *Config) Validate() error {
	var errs errors.MultiError

	known := false
	for _, p := range KnownProviders {
		if c.PriceOracle.Provider == p {
			known = true
			break
		}
	}
	if !known {
		errs.Add(errors.NewValidationError("PRICE_API_PROVIDER", "unsupported provider", c.PriceOracle.Provider))
	}
	if c.PriceOracle.Provider == "stork" && c.PriceOracle.StorkAPIKey == "" && c.PriceOracle.APIKey == "" {
		errs.Add(errors.NewValidationError("STORK_API_KEY", "required when stork is the primary provider", ""))
	}
	if c.PriceOracle.Provider == "coinmarketcap" && c.PriceOracle.APIKey == "" {
		errs.Add(errors.NewValidationError("PRICE_API_KEY", "required for coinmarketcap", ""))
	}
	if c.PriceOracle.CacheTTL <= 0 {
		errs.Add(errors.NewValidationError("PRICE_CACHE_TTL", "must be positive", c.PriceOracle.CacheTTL))
	}
	if c.Bot.HealthFactorThreshold <= 0 {
		errs.Add(errors.NewValidationError("HEALTH_FACTOR_THRESHOLD", "must be positive", c.Bot.HealthFactorThreshold))
	}
	if c.Bot.MaxRetries < 1 {
		errs.Add(errors.NewValidationError("MAX_RETRIES", "must be at least 1", c.Bot.MaxRetries))
	}
	if c.Bot.ScanInterval <= 0 {
		errs.Add(errors.NewValidationError("SCAN_INTERVAL", "must be positive", c.Bot.ScanInterval))
	}
	if c.Chain.GasMultiplier < 1 {
		errs.Add(errors.NewValidationError("GAS_MULTIPLIER", "must be >= 1", c.Chain.GasMultiplier))
	}

	return errs.ToError()
}
