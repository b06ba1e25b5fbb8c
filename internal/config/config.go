package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"gold-rate-bot/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Rates     RatesConfig     `mapstructure:"rates"`
	Report    ReportConfig    `mapstructure:"report"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Chart     ChartConfig     `mapstructure:"chart"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// TelegramConfig 描述群组投递所用的 Telegram 连接参数。
type TelegramConfig struct {
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// RatesConfig groups the three upstream quote feeds.
type RatesConfig struct {
	Metals    MetalsConfig    `mapstructure:"metals"`
	Crypto    CryptoConfig    `mapstructure:"crypto"`
	FX        FXConfig        `mapstructure:"fx"`
	Chainlink ChainlinkConfig `mapstructure:"chainlink"`
}

// MetalsConfig covers the precious-metal spot feed.
type MetalsConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CryptoConfig covers the crypto ticker feed.
type CryptoConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// FXConfig covers the USD-base FX rate table feed.
type FXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ChainlinkConfig enables the on-chain fallback for crypto quotes.
type ChainlinkConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	RPCURL         string        `mapstructure:"rpc_url"`
	ETHUSDFeed     string        `mapstructure:"eth_usd_feed"`
	BTCUSDFeed     string        `mapstructure:"btc_usd_feed"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ReportConfig shapes the rendered report.
type ReportConfig struct {
	TimezoneOffsetHours int    `mapstructure:"timezone_offset_hours"`
	OnPartialFailure    string `mapstructure:"on_partial_failure"`
	Footer              string `mapstructure:"footer"`
}

// DeliveryConfig bounds the send-with-retry loop.
type DeliveryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// SchedulerConfig governs posting cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	RunAtStart    bool          `mapstructure:"run_at_start"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// ChartConfig controls the optional history chart attachment.
type ChartConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	HistoryPoints int  `mapstructure:"history_points"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Partial-failure policies accepted by report.on_partial_failure.
const (
	PolicyDegrade = "degrade"
	PolicySkip    = "skip"
)

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GOLDBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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
	v.SetDefault("app.name", "goldratebot")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.reconnect_delay", "5s")
	v.SetDefault("telegram.request_timeout", "15s")
	v.SetDefault("telegram.health_interval", "30s")

	v.SetDefault("rates.metals.base_url", "https://api.gold-api.com")
	v.SetDefault("rates.metals.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36")
	v.SetDefault("rates.metals.request_timeout", "10s")
	v.SetDefault("rates.crypto.base_url", "https://api.coingecko.com")
	v.SetDefault("rates.crypto.request_timeout", "10s")
	v.SetDefault("rates.fx.base_url", "https://open.er-api.com")
	v.SetDefault("rates.fx.request_timeout", "10s")
	v.SetDefault("rates.chainlink.enabled", false)
	v.SetDefault("rates.chainlink.eth_usd_feed", "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")
	v.SetDefault("rates.chainlink.btc_usd_feed", "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c")
	v.SetDefault("rates.chainlink.request_timeout", "10s")

	v.SetDefault("report.timezone_offset_hours", 3)
	v.SetDefault("report.on_partial_failure", PolicyDegrade)
	v.SetDefault("report.footer", "ℹ️ Prices are indicative and refresh every cycle.")

	v.SetDefault("delivery.attempts", 3)
	v.SetDefault("delivery.delay", "3s")

	v.SetDefault("scheduler.interval", "10m")
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.run_at_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("chart.enabled", false)
	v.SetDefault("chart.history_points", 144)

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.migrations_path", "migrations")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Delivery.Attempts <= 0 {
		return fmt.Errorf("delivery.attempts must be greater than zero")
	}
	if c.Delivery.Delay < 0 {
		return fmt.Errorf("delivery.delay cannot be negative")
	}
	switch c.Report.OnPartialFailure {
	case PolicyDegrade, PolicySkip:
	default:
		return fmt.Errorf("report.on_partial_failure must be %q or %q", PolicyDegrade, PolicySkip)
	}
	if c.Chart.Enabled && c.Chart.HistoryPoints < 2 {
		return fmt.Errorf("chart.history_points must be at least 2")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Rates.Chainlink.Enabled && c.Rates.Chainlink.RPCURL == "" {
		return fmt.Errorf("rates.chainlink.rpc_url 必须配置")
	}
	return nil
}

// ReportZone returns the fixed offset zone reports are stamped in.
func (c *Config) ReportZone() *time.Location {
	h := c.Report.TimezoneOffsetHours
	return time.FixedZone(fmt.Sprintf("UTC%+d", h), h*3600)
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
