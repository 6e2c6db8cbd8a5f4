package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"stock-orderflow/internal/logging"
	"stock-orderflow/internal/window"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Windows   []WindowConfig  `mapstructure:"windows"`
	Chips     ChipsConfig     `mapstructure:"chips"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Symbol      string `mapstructure:"symbol"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the state store.
// An empty DSN disables the database-backed store.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// FeedConfig selects and tunes the trade source.
type FeedConfig struct {
	Source           string        `mapstructure:"source"`
	CSVPath          string        `mapstructure:"csv_path"`
	ReplaySpeed      float64       `mapstructure:"replay_speed"`
	WebsocketURL     string        `mapstructure:"websocket_url"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
	MaxReconnects    int           `mapstructure:"max_reconnects"`
}

// ProcessorConfig tunes the large-order stream processor.
type ProcessorConfig struct {
	MaxBufferSize       int           `mapstructure:"max_buffer_size"`
	MaxResults          int           `mapstructure:"max_results"`
	ThresholdN          float64       `mapstructure:"threshold_n"`
	UseRobustStats      bool          `mapstructure:"use_robust_stats"`
	ThresholdTimeWindow time.Duration `mapstructure:"threshold_time_window"`
	RecomputeEvery      int           `mapstructure:"recompute_every"`
	RecomputeInterval   time.Duration `mapstructure:"recompute_interval"`
	CheckpointInterval  time.Duration `mapstructure:"checkpoint_interval"`
	CheckpointID        string        `mapstructure:"checkpoint_id"`
	RestoreOnStart      bool          `mapstructure:"restore_on_start"`
}

// WindowConfig is the file-level shape of one window definition.
type WindowConfig struct {
	Name      string        `mapstructure:"name"`
	Type      string        `mapstructure:"type"`
	Size      time.Duration `mapstructure:"size"`
	Slide     time.Duration `mapstructure:"slide"`
	Gap       time.Duration `mapstructure:"gap"`
	CountSize int           `mapstructure:"count_size"`
	Watermark string        `mapstructure:"watermark"`
	Delay     time.Duration `mapstructure:"delay"`
}

// ChipsConfig tunes the chip distribution snapshot job.
type ChipsConfig struct {
	DecayRate        float64 `mapstructure:"decay_rate"`
	DecayUnit        string  `mapstructure:"decay_unit"`
	BucketCount      int     `mapstructure:"bucket_count"`
	UseHighFrequency bool    `mapstructure:"use_high_frequency"`
	HighFreqWindow   int     `mapstructure:"high_freq_window"`
}

// SchedulerConfig governs the chip snapshot cadence.
type SchedulerConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	AlignToBucket bool          `mapstructure:"align_to_bucket"`
	StartupDelay  time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines alert thresholds and routing.
type AlertingConfig struct {
	Enabled       bool           `mapstructure:"enabled"`
	MinConfidence float64        `mapstructure:"min_confidence"`
	Cooldown      time.Duration  `mapstructure:"cooldown"`
	Channels      []string       `mapstructure:"channels"`
	Telegram      TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int    `mapstructure:"max_data_points"`
	OutputDir     string `mapstructure:"output_dir"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORDERFLOW")
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
	v.SetDefault("app.name", "orderflow")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.symbol", "600000")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("feed.source", "csv")
	v.SetDefault("feed.replay_speed", 0.0)
	v.SetDefault("feed.reconnect_backoff", "2s")
	v.SetDefault("feed.max_reconnects", 10)

	v.SetDefault("processor.max_buffer_size", 5000)
	v.SetDefault("processor.max_results", 1000)
	v.SetDefault("processor.threshold_n", 2.0)
	v.SetDefault("processor.use_robust_stats", false)
	v.SetDefault("processor.recompute_every", 100)
	v.SetDefault("processor.recompute_interval", "1s")
	v.SetDefault("processor.checkpoint_interval", "30s")
	v.SetDefault("processor.checkpoint_id", "latest")

	v.SetDefault("chips.decay_rate", 0.05)
	v.SetDefault("chips.decay_unit", "day")
	v.SetDefault("chips.bucket_count", 60)
	v.SetDefault("chips.high_freq_window", 20)

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.min_confidence", 0.5)
	v.SetDefault("alerting.cooldown", "5m")
	v.SetDefault("alerting.channels", []string{"telegram"})
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)
	v.SetDefault("export.output_dir", ".")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
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
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	switch c.Feed.Source {
	case "csv":
		// csv_path may come from a CLI flag, so it is not required here.
	case "websocket":
		if c.Feed.WebsocketURL == "" {
			return fmt.Errorf("feed.websocket_url 必须配置")
		}
	default:
		return fmt.Errorf("feed.source must be csv or websocket, got %q", c.Feed.Source)
	}
	if c.Processor.ThresholdN < 0 {
		return fmt.Errorf("processor.threshold_n cannot be negative")
	}
	if c.Chips.DecayRate <= 0 {
		return fmt.Errorf("chips.decay_rate must be greater than zero")
	}
	if c.Chips.BucketCount <= 0 {
		return fmt.Errorf("chips.bucket_count must be greater than zero")
	}
	if c.Alerting.MinConfidence < 0 || c.Alerting.MinConfidence > 1 {
		return fmt.Errorf("alerting.min_confidence must be within [0,1]")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if _, err := c.WindowConfigs(); err != nil {
		return err
	}
	return nil
}

// WindowConfigs converts the file-level window definitions into engine
// configurations, validating each one.
func (c *Config) WindowConfigs() ([]window.Config, error) {
	out := make([]window.Config, 0, len(c.Windows))
	for _, wc := range c.Windows {
		typ, err := window.ParseType(wc.Type)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", wc.Name, err)
		}
		strategy, err := window.ParseWatermarkStrategy(wc.Watermark)
		if err != nil {
			return nil, fmt.Errorf("window %s: %w", wc.Name, err)
		}
		cfg := window.Config{
			Name:      wc.Name,
			Type:      typ,
			Size:      wc.Size,
			Slide:     wc.Slide,
			Gap:       wc.Gap,
			CountSize: wc.CountSize,
			Strategy:  strategy,
			Delay:     wc.Delay,
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
