package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Provider credentials
	AlphaVantage AlphaVantageConfig
	Finnhub      FinnhubConfig
	FRED         FREDConfig
	SEC          SECConfig

	// Per-category cache settings
	Cache CacheConfig

	// Outbound HTTP settings shared by all providers
	Provider ProviderConfig

	// Optional backing stores
	Database DatabaseConfig
	Redis    RedisConfig

	// Scheduled cache warm-up
	Scheduler SchedulerConfig

	// HTTP server configuration
	HTTP HTTPConfig

	// Logging configuration
	Log LogConfig

	// Path to the universe YAML file; empty means the built-in universe
	UniverseFile string
}

// AlphaVantageConfig holds Alpha Vantage API configuration
type AlphaVantageConfig struct {
	APIKey string
}

// FinnhubConfig holds Finnhub API configuration
type FinnhubConfig struct {
	APIKey string
}

// FREDConfig holds FRED API configuration
type FREDConfig struct {
	APIKey string
}

// SECConfig holds SEC EDGAR configuration
type SECConfig struct {
	UserAgent string
}

// CacheCategoryConfig is the TTL and capacity of one category cache
type CacheCategoryConfig struct {
	TTL  time.Duration
	Size int
}

// CacheConfig holds the freshness cache settings per category
type CacheConfig struct {
	Quotes  CacheCategoryConfig
	Movers  CacheCategoryConfig
	Breadth CacheCategoryConfig
	Sectors CacheCategoryConfig
	Macro   CacheCategoryConfig
}

// ProviderConfig holds outbound request settings
type ProviderConfig struct {
	Timeout        time.Duration // per-call budget
	Retries        int           // retries after the first attempt
	InitialBackoff time.Duration
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL string
}

// RedisConfig holds the optional L2 cache configuration
type RedisConfig struct {
	URL string
}

// SchedulerConfig holds the warm-up job configuration
type SchedulerConfig struct {
	WarmupCron string // cron spec with seconds field; empty disables warm-up
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port                  int
	CORSAllowedOrigins    string
	RequestTimeoutSeconds int
}

// LogConfig holds logging configuration
type LogConfig struct {
	Production bool
	Level      string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		AlphaVantage: AlphaVantageConfig{
			APIKey: os.Getenv("ALPHA_VANTAGE_KEY"),
		},
		Finnhub: FinnhubConfig{
			APIKey: os.Getenv("FINNHUB_KEY"),
		},
		FRED: FREDConfig{
			APIKey: os.Getenv("FRED_API_KEY"),
		},
		SEC: SECConfig{
			UserAgent: getEnvString("SEC_USER_AGENT", DefaultSECUserAgent),
		},
		Cache: CacheConfig{
			Quotes:  getCacheConfig("QUOTES", 90, 500),
			Movers:  getCacheConfig("MOVERS", 30, 100),
			Breadth: getCacheConfig("BREADTH", 60, 10),
			Sectors: getCacheConfig("SECTORS", 90, 50),
			Macro:   getCacheConfig("MACRO", 300, 50),
		},
		Provider: ProviderConfig{
			Timeout:        time.Duration(getEnvInt("HTTP_TIMEOUT", 3)) * time.Second,
			Retries:        getEnvIntAllowZero("HTTP_RETRIES", 2),
			InitialBackoff: time.Duration(getEnvInt("HTTP_BACKOFF_MS", 500)) * time.Millisecond,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Scheduler: SchedulerConfig{
			WarmupCron: os.Getenv("WARMUP_CRON"),
		},
		HTTP: HTTPConfig{
			Port:                  getEnvInt("BACKEND_PORT", 8000),
			CORSAllowedOrigins:    getEnvString("CORS_ALLOWED_ORIGINS", "*"),
			RequestTimeoutSeconds: getEnvInt("REQUEST_TIMEOUT_SECONDS", 30),
		},
		Log: LogConfig{
			Production: os.Getenv("APP_ENV") == "production",
			Level:      getEnvString("LOG_LEVEL", "info"),
		},
		UniverseFile: os.Getenv("UNIVERSE_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultSECUserAgent identifies this service to EDGAR, which rejects anonymous clients
const DefaultSECUserAgent = "Market Aggregator contact@example.com"

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Provider.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Provider.Timeout)
	}
	if c.Provider.Retries < 0 || c.Provider.Retries > 9 {
		return fmt.Errorf("HTTP_RETRIES must be between 0 and 9, got %d", c.Provider.Retries)
	}
	if c.Provider.InitialBackoff <= 0 {
		return fmt.Errorf("HTTP_BACKOFF_MS must be positive, got %v", c.Provider.InitialBackoff)
	}

	categories := map[string]CacheCategoryConfig{
		"QUOTES":  c.Cache.Quotes,
		"MOVERS":  c.Cache.Movers,
		"BREADTH": c.Cache.Breadth,
		"SECTORS": c.Cache.Sectors,
		"MACRO":   c.Cache.Macro,
	}
	for name, cc := range categories {
		if cc.TTL <= 0 {
			return fmt.Errorf("CACHE_TTL_%s must be positive, got %v", name, cc.TTL)
		}
		if cc.Size <= 0 {
			return fmt.Errorf("CACHE_SIZE_%s must be positive, got %d", name, cc.Size)
		}
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("BACKEND_PORT must be a valid port, got %d", c.HTTP.Port)
	}

	return nil
}

// HasAlphaVantage returns true if Alpha Vantage configuration is available
func (c *Config) HasAlphaVantage() bool {
	return c.AlphaVantage.APIKey != ""
}

// HasFinnhub returns true if Finnhub configuration is available
func (c *Config) HasFinnhub() bool {
	return c.Finnhub.APIKey != ""
}

// HasFRED returns true if a FRED API key is available
func (c *Config) HasFRED() bool {
	return c.FRED.APIKey != ""
}

// HasDatabase returns true if database configuration is available
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasRedis returns true if the Redis L2 cache is configured
func (c *Config) HasRedis() bool {
	return c.Redis.URL != ""
}

// HasWarmup returns true if the scheduled warm-up job is enabled
func (c *Config) HasWarmup() bool {
	return c.Scheduler.WarmupCron != ""
}

func getCacheConfig(category string, defaultTTLSeconds, defaultSize int) CacheCategoryConfig {
	return CacheCategoryConfig{
		TTL:  time.Duration(getEnvInt("CACHE_TTL_"+category, defaultTTLSeconds)) * time.Second,
		Size: getEnvInt("CACHE_SIZE_"+category, defaultSize),
	}
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntAllowZero(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultValue
}

// NewTestConfig creates a Config with default values for testing
func NewTestConfig() *Config {
	return &Config{
		SEC: SECConfig{
			UserAgent: DefaultSECUserAgent,
		},
		Cache: CacheConfig{
			Quotes:  CacheCategoryConfig{TTL: 90 * time.Second, Size: 500},
			Movers:  CacheCategoryConfig{TTL: 30 * time.Second, Size: 100},
			Breadth: CacheCategoryConfig{TTL: 60 * time.Second, Size: 10},
			Sectors: CacheCategoryConfig{TTL: 90 * time.Second, Size: 50},
			Macro:   CacheCategoryConfig{TTL: 300 * time.Second, Size: 50},
		},
		Provider: ProviderConfig{
			Timeout:        3 * time.Second,
			Retries:        0,
			InitialBackoff: time.Millisecond,
		},
		HTTP: HTTPConfig{
			Port:                  8000,
			CORSAllowedOrigins:    "*",
			RequestTimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}
