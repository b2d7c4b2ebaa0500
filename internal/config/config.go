// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/anime-catalog-crawler/internal/api"
	"github.com/JakeFAU/anime-catalog-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/anime-catalog-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/anime-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/anime-catalog-crawler/internal/storage/postgres"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// APIConfig controls read API middleware.
type APIConfig struct {
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig selects and tunes the storage backend.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// ScraperConfig governs the HTTP client and the scrape pipeline.
type ScraperConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	ListPath string `mapstructure:"list_path"`
	AjaxPath string `mapstructure:"ajax_path"`

	HTTPTimeout        time.Duration `mapstructure:"http_timeout"`
	HTTPConnectTimeout time.Duration `mapstructure:"http_connect_timeout"`
	PageDelayMin       time.Duration `mapstructure:"page_delay_min"`
	PageDelayMax       time.Duration `mapstructure:"page_delay_max"`
	AjaxDelayMin       time.Duration `mapstructure:"ajax_delay_min"`
	AjaxDelayMax       time.Duration `mapstructure:"ajax_delay_max"`
	MaxAttempts        int           `mapstructure:"max_attempts"`
	BackoffInitial     time.Duration `mapstructure:"backoff_initial"`
	BackoffMax         time.Duration `mapstructure:"backoff_max"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`

	UserAgent  string   `mapstructure:"user_agent"`
	UserAgents []string `mapstructure:"user_agents"`

	SeriesConcurrency  int  `mapstructure:"series_concurrency"`
	EpisodeConcurrency int  `mapstructure:"episode_concurrency"`
	AjaxConcurrency    int  `mapstructure:"ajax_concurrency"`
	FetchMirrors       bool `mapstructure:"fetch_mirrors"`
	MaxItems           int  `mapstructure:"max_items"`

	NonceAction string `mapstructure:"nonce_action"`
	EmbedAction string `mapstructure:"embed_action"`
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6_5) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Linux; Android 14; SM-S908E) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ANIMEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.port", 8080)
	v.SetDefault("api.rate_limit_requests", 120)
	v.SetDefault("api.rate_limit_window", "1m")
	v.SetDefault("api.request_timeout", "30s")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_lifetime", "30m")
	v.SetDefault("database.migrate_on_start", false)
	v.SetDefault("scraper.base_url", "https://otakudesu.best")
	v.SetDefault("scraper.list_path", "/anime-list/")
	v.SetDefault("scraper.ajax_path", "/wp-admin/admin-ajax.php")
	v.SetDefault("scraper.http_timeout", "20s")
	v.SetDefault("scraper.http_connect_timeout", "10s")
	v.SetDefault("scraper.page_delay_min", "500ms")
	v.SetDefault("scraper.page_delay_max", "1.5s")
	v.SetDefault("scraper.ajax_delay_min", "300ms")
	v.SetDefault("scraper.ajax_delay_max", "1s")
	v.SetDefault("scraper.max_attempts", 3)
	v.SetDefault("scraper.backoff_initial", "1s")
	v.SetDefault("scraper.backoff_max", "5s")
	v.SetDefault("scraper.requests_per_second", 0)
	v.SetDefault("scraper.user_agent", "anime-db-scraper/0.1 (+https://example.com/contact)")
	v.SetDefault("scraper.user_agents", defaultUserAgents)
	v.SetDefault("scraper.series_concurrency", 2)
	v.SetDefault("scraper.episode_concurrency", 2)
	v.SetDefault("scraper.ajax_concurrency", 2)
	v.SetDefault("scraper.fetch_mirrors", true)
	v.SetDefault("scraper.max_items", 0)
	v.SetDefault("scraper.nonce_action", "aa1208d27f29ca340c92c66d1926f13f")
	v.SetDefault("scraper.embed_action", "2a3505c93b0035d3f455df82bf976b84")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("database.driver must be %q or %q", DriverPostgres, DriverMemory)
	}
	if c.API.RateLimitRequests < 0 {
		return fmt.Errorf("api.rate_limit_requests must be >= 0")
	}
	if c.API.RateLimitRequests > 0 && c.API.RateLimitWindow <= 0 {
		return fmt.Errorf("api.rate_limit_window must be > 0 when rate limiting is enabled")
	}
	return c.Scraper.validate()
}

func (s ScraperConfig) validate() error {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("scraper.base_url must be an absolute URL")
	}
	if s.HTTPTimeout <= 0 || s.HTTPConnectTimeout <= 0 {
		return errors.New("scraper.http_timeout and scraper.http_connect_timeout must be > 0")
	}
	if s.PageDelayMin < 0 || s.PageDelayMax < s.PageDelayMin {
		return errors.New("scraper.page_delay_min must be >= 0 and <= scraper.page_delay_max")
	}
	if s.AjaxDelayMin < 0 || s.AjaxDelayMax < s.AjaxDelayMin {
		return errors.New("scraper.ajax_delay_min must be >= 0 and <= scraper.ajax_delay_max")
	}
	if s.MaxAttempts < 1 {
		return errors.New("scraper.max_attempts must be >= 1")
	}
	if s.BackoffInitial <= 0 || s.BackoffMax < s.BackoffInitial {
		return errors.New("scraper.backoff_initial must be > 0 and <= scraper.backoff_max")
	}
	if s.SeriesConcurrency < 1 || s.EpisodeConcurrency < 1 || s.AjaxConcurrency < 1 {
		return errors.New("scraper concurrency limits must be >= 1")
	}
	if s.MaxItems < 0 {
		return errors.New("scraper.max_items must be >= 0")
	}
	if s.UserAgent == "" && len(s.UserAgents) == 0 {
		return errors.New("scraper.user_agent or scraper.user_agents must be set")
	}
	if s.FetchMirrors && (s.NonceAction == "" || s.EmbedAction == "") {
		return errors.New("scraper.nonce_action and scraper.embed_action are required when fetch_mirrors is on")
	}
	return nil
}

// ClientConfig converts scraper settings into the HTTP client's config.
func (c Config) ClientConfig() collyfetcher.Config {
	s := c.Scraper
	return collyfetcher.Config{
		Origin:           s.BaseURL,
		UserAgents:       append([]string(nil), s.UserAgents...),
		DefaultUserAgent: s.UserAgent,
		Timeout:          s.HTTPTimeout,
		ConnectTimeout:   s.HTTPConnectTimeout,
		PageDelay:        collyfetcher.Window{Min: s.PageDelayMin, Max: s.PageDelayMax},
		AjaxDelay:        collyfetcher.Window{Min: s.AjaxDelayMin, Max: s.AjaxDelayMax},
		MaxAttempts:      s.MaxAttempts,
		BackoffInitial:   s.BackoffInitial,
		BackoffMax:       s.BackoffMax,
	}
}

// RateLimitConfig converts the per-host request rate.
func (c Config) RateLimitConfig() ratelimit.Config {
	return ratelimit.Config{DefaultRPS: c.Scraper.RequestsPerSecond, DefaultBurst: 1}
}

// PipelineConfig converts scraper settings into the pipeline's config.
func (c Config) PipelineConfig() crawler.Config {
	s := c.Scraper
	return crawler.Config{
		BaseURL:            s.BaseURL,
		ListPath:           s.ListPath,
		AjaxPath:           s.AjaxPath,
		NonceAction:        s.NonceAction,
		EmbedAction:        s.EmbedAction,
		SeriesConcurrency:  s.SeriesConcurrency,
		EpisodeConcurrency: s.EpisodeConcurrency,
		AjaxConcurrency:    s.AjaxConcurrency,
		FetchMirrors:       s.FetchMirrors,
		MaxItems:           s.MaxItems,
	}
}

// APIConfig converts read API settings.
func (c Config) APIConfig() api.Config {
	return api.Config{
		RateLimitRequests: c.API.RateLimitRequests,
		RateLimitWindow:   c.API.RateLimitWindow,
		RequestTimeout:    c.API.RequestTimeout,
	}
}

// PostgresConfig converts database settings into the pool config.
func (c Config) PostgresConfig() postgres.Config {
	return postgres.Config{
		DSN:             c.Database.DSN,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnLifetime: c.Database.MaxConnLifetime,
	}
}

// Addr is the read API listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
