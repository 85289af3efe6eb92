package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tokenomics-indexer/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Token      TokenConfig      `mapstructure:"token"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Validation ValidationConfig `mapstructure:"validation"`
	Storage    StorageConfig    `mapstructure:"storage"`
	History    HistoryConfig    `mapstructure:"history"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	FrontendOrigin string        `mapstructure:"frontend_origin"`
	// IndexToken, when set, must be presented as a bearer token to trigger indexing.
	IndexToken string `mapstructure:"index_token"`
}

// SchedulerConfig governs the daily run cadence.
type SchedulerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	Cron            string        `mapstructure:"cron"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	RunTimeout      time.Duration `mapstructure:"run_timeout"`
}

// TokenConfig identifies the tracked token.
type TokenConfig struct {
	Denom           string `mapstructure:"denom"`
	Symbol          string `mapstructure:"symbol"`
	Decimals        int32  `mapstructure:"decimals"`
	CoinGeckoID     string `mapstructure:"coingecko_id"`
	BurnAddress     string `mapstructure:"burn_address"`
	TreasuryAddress string `mapstructure:"treasury_address"`
}

// SourcesConfig captures upstream endpoints.
type SourcesConfig struct {
	// BalanceBackend is "rest" (bank REST API) or "evm" (ERC-20 balanceOf).
	BalanceBackend  string `mapstructure:"balance_backend"`
	ChainRESTURL    string `mapstructure:"chain_rest_url"`
	EVMRPCURL       string `mapstructure:"evm_rpc_url"`
	EVMTokenAddress string `mapstructure:"evm_token_address"`
	PriceURL        string `mapstructure:"price_url"`
	PoolsURL        string `mapstructure:"pools_url"`
	UserAgent       string `mapstructure:"user_agent"`
}

// RetryConfig tunes the retrying fetcher.
type RetryConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
}

// ValidationConfig holds data-quality thresholds.
type ValidationConfig struct {
	MinPriceUSD     float64 `mapstructure:"min_price_usd"`
	MaxPriceUSD     float64 `mapstructure:"max_price_usd"`
	MaxChangePct    float64 `mapstructure:"max_change_pct"`
	USDTolerancePct float64 `mapstructure:"usd_tolerance_pct"`
}

// StorageConfig selects and parameterises the blob backend.
type StorageConfig struct {
	Backend       string         `mapstructure:"backend"`
	KeyPrefix     string         `mapstructure:"key_prefix"`
	PublicBaseURL string         `mapstructure:"public_base_url"`
	ListPageSize  int            `mapstructure:"list_page_size"`
	Postgres      PostgresConfig `mapstructure:"postgres"`
	Redis         RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig encapsulates PostgreSQL connectivity.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	URL       string `mapstructure:"url"`
	Password  string `mapstructure:"password"`
	Namespace string `mapstructure:"namespace"`
}

// HistoryConfig tunes the read path.
type HistoryConfig struct {
	AllowedDays []int         `mapstructure:"allowed_days"`
	CacheSize   int           `mapstructure:"cache_size"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// AlertingConfig defines run notifications.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes Telegram delivery.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	DefaultDays int `mapstructure:"default_days"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("TOKENOMICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tokenomics-indexer")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.frontend_origin", "*")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.cron", "")
	v.SetDefault("scheduler.advisory_lock_key", int64(0x746f6b6e))
	v.SetDefault("scheduler.run_timeout", "2m")

	v.SetDefault("token.decimals", 6)

	v.SetDefault("sources.balance_backend", "rest")
	v.SetDefault("sources.price_url", "https://api.coingecko.com/api/v3/coins")
	v.SetDefault("sources.user_agent", "tokenomics-indexer/1.0")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.retry_delay", "1s")
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.attempt_timeout", "10s")

	v.SetDefault("validation.min_price_usd", 0.0001)
	v.SetDefault("validation.max_price_usd", 1000.0)
	v.SetDefault("validation.max_change_pct", 50.0)
	v.SetDefault("validation.usd_tolerance_pct", 1.0)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.key_prefix", "tokenomics")
	v.SetDefault("storage.list_page_size", 1000)
	v.SetDefault("storage.postgres.max_open_conns", 10)
	v.SetDefault("storage.postgres.max_idle_conns", 2)
	v.SetDefault("storage.postgres.conn_max_lifetime", "30m")
	v.SetDefault("storage.redis.url", "redis://localhost:6379/0")
	v.SetDefault("storage.redis.namespace", "tokenomics")

	v.SetDefault("history.allowed_days", []int{7, 30, 90, 365})
	v.SetDefault("history.cache_size", 32)
	v.SetDefault("history.cache_ttl", "5m")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.default_days", 90)
}

// envOnlyKeys have no default but must still resolve from TOKENOMICS_* variables.
var envOnlyKeys = []string{
	"logging.time_format",
	"logging.caller",
	"server.index_token",
	"token.denom",
	"token.symbol",
	"token.coingecko_id",
	"token.burn_address",
	"token.treasury_address",
	"sources.chain_rest_url",
	"sources.evm_rpc_url",
	"sources.evm_token_address",
	"sources.pools_url",
	"storage.public_base_url",
	"storage.postgres.dsn",
	"storage.redis.password",
	"alerting.telegram.bot_token",
	"alerting.telegram.chat_id",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.WeaklyTypedInput = true
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Retry.MaxRetries <= 0 {
		return fmt.Errorf("retry.max_retries must be greater than zero")
	}
	if c.Retry.BackoffMultiplier < 1 {
		return fmt.Errorf("retry.backoff_multiplier must be at least 1")
	}
	if c.Retry.AttemptTimeout <= 0 {
		return fmt.Errorf("retry.attempt_timeout must be greater than zero")
	}
	if c.Token.Decimals < 0 {
		return fmt.Errorf("token.decimals cannot be negative")
	}
	if c.Validation.MinPriceUSD < 0 || c.Validation.MaxPriceUSD <= c.Validation.MinPriceUSD {
		return fmt.Errorf("validation price bounds are invalid: [%g, %g]", c.Validation.MinPriceUSD, c.Validation.MaxPriceUSD)
	}
	if c.Validation.MaxChangePct <= 0 {
		return fmt.Errorf("validation.max_change_pct must be greater than zero")
	}
	if c.Scheduler.Cron == "" && c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Sources.BalanceBackend {
	case "rest", "evm":
	default:
		return fmt.Errorf("sources.balance_backend must be rest or evm, got %q", c.Sources.BalanceBackend)
	}
	switch c.Storage.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be memory, postgres or redis, got %q", c.Storage.Backend)
	}
	for _, days := range c.History.AllowedDays {
		if days <= 0 {
			return fmt.Errorf("history.allowed_days entries must be positive")
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be set")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be set")
		}
	}
	return nil
}

// ResolveDays returns either the CLI override or the export default.
func (c *Config) ResolveDays(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.DefaultDays
}
