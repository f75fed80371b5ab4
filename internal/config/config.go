package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the novodash warehouse service.
type Config struct {
	Server    ServerConfig
	Warehouse WarehouseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	GA4       GA4Config
	YouTube   YouTubeConfig
	RDStation RDStationConfig
	Slack     SlackConfig
	Fetch     FetchConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// WarehouseConfig locates the embedded SQLite warehouse and the on-disk
// API response cache.
type WarehouseConfig struct {
	Path     string
	CacheDir string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled      bool
	RPS          float64
	Burst        int
	RefreshRPS   float64
	RefreshBurst int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// GA4Config configures the Google Analytics 4 Data API client.
type GA4Config struct {
	PropertyID      string
	CredentialsFile string
}

// YouTubeConfig configures the YouTube Analytics API client. The
// Analytics API needs user OAuth consent; TokenFile points at the
// stored token obtained from the one-time consent flow, paired with
// the OAuth client secret in CredentialsFile. When TokenFile is empty
// the credentials file is handed to the SDK as-is.
type YouTubeConfig struct {
	CredentialsFile string
	TokenFile       string
	ChannelID       string
}

// RDStationConfig configures the RD Station CRM client.
type RDStationConfig struct {
	ClientID     string
	ClientSecret string
	TokenPath    string
	AccountID    string
	BaseURL      string
}

type SlackConfig struct {
	WebhookURL string
}

// FetchConfig holds the shared retry and pagination policy for the
// external report fetchers.
type FetchConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	PageSize     int
	MaxPages     int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("NOVODASH_HTTP_ADDR", ":8080"),
			Env:             getEnv("NOVODASH_ENV", "development"),
			ShutdownTimeout: getDurationEnv("NOVODASH_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Warehouse: WarehouseConfig{
			Path:     getEnv("NOVODASH_WAREHOUSE_PATH", "./data/warehouse/warehouse.db"),
			CacheDir: getEnv("NOVODASH_CACHE_DIR", "./data/api_cache"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("NOVODASH_REDIS_ENABLED", false),
			Addr:     getEnv("NOVODASH_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("NOVODASH_REDIS_PASSWORD", ""),
			DB:       getIntEnv("NOVODASH_REDIS_DB", 0),
			TTL:      getDurationEnv("NOVODASH_REDIS_TTL", 5*time.Minute),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("NOVODASH_AUTH_ENABLED", false),
			MasterKey: getEnv("NOVODASH_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("NOVODASH_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:      getBoolEnv("NOVODASH_RATE_LIMIT_ENABLED", true),
			RPS:          getFloatEnv("NOVODASH_RATE_LIMIT_RPS", 100),
			Burst:        getIntEnv("NOVODASH_RATE_LIMIT_BURST", 50),
			RefreshRPS:   getFloatEnv("NOVODASH_RATE_LIMIT_REFRESH_RPS", 1),
			RefreshBurst: getIntEnv("NOVODASH_RATE_LIMIT_REFRESH_BURST", 2),
		},
		Log: LogConfig{
			Level:  getEnv("NOVODASH_LOG_LEVEL", "info"),
			Format: getEnv("NOVODASH_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("NOVODASH_METRICS_ENABLED", true),
			Path:    getEnv("NOVODASH_METRICS_PATH", "/metrics"),
		},
		GA4: GA4Config{
			PropertyID:      getEnv("NOVODASH_GA4_PROPERTY_ID", ""),
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		YouTube: YouTubeConfig{
			CredentialsFile: getEnv("NOVODASH_YT_CREDENTIALS", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
			TokenFile:       getEnv("NOVODASH_YT_TOKEN_PATH", ""),
			ChannelID:       getEnv("NOVODASH_YT_CHANNEL_ID", ""),
		},
		RDStation: RDStationConfig{
			ClientID:     getEnv("NOVODASH_RD_CLIENT_ID", ""),
			ClientSecret: getEnv("NOVODASH_RD_CLIENT_SECRET", ""),
			TokenPath:    getEnv("NOVODASH_RD_TOKEN_PATH", "./data/rd_token.json"),
			AccountID:    getEnv("NOVODASH_RD_ACCOUNT_ID", ""),
			BaseURL:      getEnv("NOVODASH_RD_BASE_URL", "https://api.rd.services"),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("NOVODASH_SLACK_WEBHOOK_URL", ""),
		},
		Fetch: FetchConfig{
			MaxAttempts:  getIntEnv("NOVODASH_FETCH_MAX_ATTEMPTS", 5),
			InitialDelay: getDurationEnv("NOVODASH_FETCH_INITIAL_DELAY", 1*time.Second),
			MaxDelay:     getDurationEnv("NOVODASH_FETCH_MAX_DELAY", 30*time.Second),
			PageSize:     getIntEnv("NOVODASH_FETCH_PAGE_SIZE", 100000),
			MaxPages:     getIntEnv("NOVODASH_FETCH_MAX_PAGES", 50),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("NOVODASH_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Fetch.MaxAttempts < 1 {
		return fmt.Errorf("NOVODASH_FETCH_MAX_ATTEMPTS must be at least 1")
	}
	if c.Fetch.PageSize < 1 {
		return fmt.Errorf("NOVODASH_FETCH_PAGE_SIZE must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
