package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/samvad-hq/pokedex-seeder/internal/domain"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName   string `mapstructure:"app_name"`
	Env       string `mapstructure:"app_env"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	APIBaseURL string      `mapstructure:"api_base_url"`
	SeedMode   string      `mapstructure:"seed_mode"`
	Mode       domain.Mode `mapstructure:"-"`

	StandardProxyBase    string  `mapstructure:"standard_proxy_base"`
	PremiumProxyHost     string  `mapstructure:"premium_proxy_host"`
	PremiumProxyPort     string  `mapstructure:"premium_proxy_port"`
	PremiumProxyUsername string  `mapstructure:"premium_proxy_username"`
	PremiumProxyPassword string  `mapstructure:"premium_proxy_password"`
	PremiumMaxRPS        float64 `mapstructure:"premium_max_rps"`

	HTTPTimeoutSeconds int64         `mapstructure:"http_timeout_seconds"`
	HTTPTimeout        time.Duration `mapstructure:"-"`
	// Premium requests tunnel through an authenticated proxy and get their own budget.
	PremiumTimeoutSeconds int64         `mapstructure:"premium_timeout_seconds"`
	PremiumTimeout        time.Duration `mapstructure:"-"`
	CallMaxRetries        int           `mapstructure:"call_max_retries"`
	PhaseDelaySeconds     int64         `mapstructure:"phase_delay_seconds"`
	PhaseDelay            time.Duration `mapstructure:"-"`

	MemoryThresholdMB uint64 `mapstructure:"memory_threshold_mb"`
	MemoryCheckEvery  int    `mapstructure:"memory_check_every"`

	StoreType   string `mapstructure:"store_type"`
	SQLitePath  string `mapstructure:"sqlite_path"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
	BBoltPath   string `mapstructure:"bbolt_path"`

	CategoriesFile string `mapstructure:"categories_file"`
	ReportsFile    string `mapstructure:"reports_file"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("app_name", "pokedex-seeder")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("api_base_url", "https://pokeapi.co/api/v2")
	v.SetDefault("seed_mode", string(domain.ModeStandard))
	v.SetDefault("standard_proxy_base", "https://api.allorigins.win/get?url=")
	v.SetDefault("premium_proxy_host", "")
	v.SetDefault("premium_proxy_port", "")
	v.SetDefault("premium_proxy_username", "")
	v.SetDefault("premium_proxy_password", "")
	v.SetDefault("premium_max_rps", 20.0)
	v.SetDefault("http_timeout_seconds", 10)
	v.SetDefault("premium_timeout_seconds", 30)
	v.SetDefault("call_max_retries", 3)
	v.SetDefault("phase_delay_seconds", 3)
	v.SetDefault("memory_threshold_mb", 800)
	v.SetDefault("memory_check_every", 50)
	v.SetDefault("store_type", "sqlite")
	v.SetDefault("sqlite_path", "./data/pokedex.db")
	v.SetDefault("postgres_dsn", "")
	v.SetDefault("bbolt_path", "./data/pokedex.bolt")
	v.SetDefault("categories_file", "")
	v.SetDefault("reports_file", "")

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	mode, err := domain.ParseMode(cfg.SeedMode)
	if err != nil {
		return nil, fmt.Errorf("invalid seed_mode: %w", err)
	}
	cfg.Mode = mode

	cfg.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("api_base_url is required")
	}
	if cfg.HTTPTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid http_timeout_seconds (must be positive seconds)")
	}
	cfg.HTTPTimeout = time.Duration(cfg.HTTPTimeoutSeconds) * time.Second
	if cfg.PremiumTimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid premium_timeout_seconds (must be positive seconds)")
	}
	cfg.PremiumTimeout = time.Duration(cfg.PremiumTimeoutSeconds) * time.Second

	if cfg.PhaseDelaySeconds < 0 {
		return nil, fmt.Errorf("invalid phase_delay_seconds (must not be negative)")
	}
	cfg.PhaseDelay = time.Duration(cfg.PhaseDelaySeconds) * time.Second

	if cfg.CallMaxRetries < 0 {
		return nil, fmt.Errorf("invalid call_max_retries (must not be negative)")
	}
	if cfg.MemoryThresholdMB == 0 {
		return nil, fmt.Errorf("invalid memory_threshold_mb (must be positive)")
	}
	if cfg.MemoryCheckEvery <= 0 {
		return nil, fmt.Errorf("invalid memory_check_every (must be positive)")
	}
	if cfg.PremiumMaxRPS < 0 {
		return nil, fmt.Errorf("invalid premium_max_rps (must not be negative)")
	}

	return &cfg, nil
}

// MemoryThresholdBytes returns the RSS ceiling that triggers cache cleanup.
func (c *Config) MemoryThresholdBytes() uint64 {
	return c.MemoryThresholdMB * 1024 * 1024
}

// Redacted returns a copy safe for logging.
func (c Config) Redacted() Config {
	if c.PremiumProxyPassword != "" {
		c.PremiumProxyPassword = "***"
	}
	if c.PostgresDSN != "" {
		c.PostgresDSN = "***"
	}
	return c
}
