package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"flight-deals/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Detection DetectionConfig `mapstructure:"detection"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// SchedulerConfig governs the notification drain loop.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	AlignToInterval bool          `mapstructure:"align_to_interval"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// JobsConfig holds cron specs for the batch jobs. An empty spec disables the job.
type JobsConfig struct {
	Ingest     string `mapstructure:"ingest"`
	Sweep      string `mapstructure:"sweep"`
	Analyze    string `mapstructure:"analyze"`
	Reevaluate string `mapstructure:"reevaluate"`
	Digest     string `mapstructure:"digest"`
}

// DetectionConfig tunes deal detection windows.
type DetectionConfig struct {
	HistoryWindow time.Duration `mapstructure:"history_window"`
	RecentWindow  time.Duration `mapstructure:"recent_window"`
	DealTTL       time.Duration `mapstructure:"deal_ttl"`
}

// DispatchConfig controls email delivery batches.
type DispatchConfig struct {
	BatchSize   int    `mapstructure:"batch_size"`
	FrontendURL string `mapstructure:"frontend_url"`
	TrackingURL string `mapstructure:"tracking_url"`
	DigestSize  int    `mapstructure:"digest_size"`
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	From     string        `mapstructure:"from"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether a relay host is configured.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// TelegramConfig configures featured-deal announcements.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Addr            string        `mapstructure:"addr"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// ScraperConfig captures the fare feed connectivity.
type ScraperConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Timeout     time.Duration `mapstructure:"timeout"`
	UserAgent   string        `mapstructure:"user_agent"`
	Routes      []string      `mapstructure:"routes"`
	HorizonDays int           `mapstructure:"horizon_days"`
	// MaxBodyBytes caps a single feed response.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLIGHTDEALS")
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
	v.SetDefault("app.name", "flightdeals")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.conn_max_idle_time", "5m")
	v.SetDefault("database.run_migrations", false)

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_interval", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x464c4454))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("jobs.ingest", "0 1 * * *")
	v.SetDefault("jobs.sweep", "0 2 * * *")
	v.SetDefault("jobs.analyze", "0 3 * * *")
	v.SetDefault("jobs.reevaluate", "0 4 * * *")
	v.SetDefault("jobs.digest", "0 9 * * 1")

	v.SetDefault("detection.history_window", "2160h")
	v.SetDefault("detection.recent_window", "24h")
	v.SetDefault("detection.deal_ttl", "168h")

	v.SetDefault("dispatch.batch_size", 100)
	v.SetDefault("dispatch.frontend_url", "http://localhost:3000")
	v.SetDefault("dispatch.tracking_url", "http://localhost:8080")
	v.SetDefault("dispatch.digest_size", 5)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "deals@flightdeals.local")
	v.SetDefault("smtp.timeout", "15s")

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_base", "https://api.telegram.org")

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.shutdown_timeout", "10s")

	v.SetDefault("scraper.timeout", "30s")
	v.SetDefault("scraper.user_agent", "flightdeals/1.0")
	v.SetDefault("scraper.routes", []string{})
	v.SetDefault("scraper.horizon_days", 90)
	v.SetDefault("scraper.max_body_bytes", int64(4<<20))

	v.SetDefault("export.max_data_points", 100000)
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
	if c.Detection.HistoryWindow <= 0 {
		return fmt.Errorf("detection.history_window must be greater than zero")
	}
	if c.Detection.RecentWindow <= 0 {
		return fmt.Errorf("detection.recent_window must be greater than zero")
	}
	if c.Detection.DealTTL <= 0 {
		return fmt.Errorf("detection.deal_ttl must be greater than zero")
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("dispatch.batch_size must be greater than zero")
	}
	if c.Dispatch.DigestSize <= 0 {
		return fmt.Errorf("dispatch.digest_size must be greater than zero")
	}
	if c.Scraper.HorizonDays < 0 {
		return fmt.Errorf("scraper.horizon_days cannot be negative")
	}
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range c.Jobs.specs() {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("jobs.%s: invalid cron spec %q: %w", name, spec, err)
		}
	}
	return nil
}

func (j JobsConfig) specs() map[string]string {
	return map[string]string{
		"ingest":     j.Ingest,
		"sweep":      j.Sweep,
		"analyze":    j.Analyze,
		"reevaluate": j.Reevaluate,
		"digest":     j.Digest,
	}
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
