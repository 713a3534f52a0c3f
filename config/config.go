package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration
type Config struct {
	// Source configuration
	SourceURL      string
	CookieURL      string
	SiteOrigin     string
	MarkerVariable string
	FetchTimeout   time.Duration
	CooldownTime   time.Duration

	// Session cookie acquisition
	SessionCookie   string
	StaticSessionID string
	ChromeWSURL     string
	ChromeBin       string

	// Geofence
	BadRegionsPath string

	// Ingestion loop
	CrawlInterval    time.Duration
	GatePollInterval time.Duration

	// Detail page descriptions
	DescriptionEnabled bool
	DescriptionRPS     float64

	// Postgres configuration; empty DSN keeps listings in memory
	PostgresDSN string

	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamMaxLength int
	ParamsKey            string
	ParamsChannel        string

	// Memcache configuration
	MemcacheAddr string

	// Seed operating parameters, applied when set
	SeedParams map[string]string

	ErrorLogPath string

	// Environment
	Environment string
}

// paramEnv maps operating parameter keys to their seed environment variables
var paramEnv = map[string]string{
	"lat":       "PARAM_LAT",
	"lon":       "PARAM_LON",
	"price_min": "PARAM_PRICE_MIN",
	"price_max": "PARAM_PRICE_MAX",
	"floor_min": "PARAM_FLOOR_MIN",
	"floor_max": "PARAM_FLOOR_MAX",
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	seed := make(map[string]string)
	for key, env := range paramEnv {
		if v := os.Getenv(env); v != "" {
			seed[key] = v
		}
	}

	return &Config{
		SourceURL:            getEnv("SOURCE_URL", "https://www.ss.com/ru/fTgTeF4QAzt4FD4eFFM=.html?map=17020&map2=17020&cat=14195&mode=3"),
		CookieURL:            getEnv("COOKIE_URL", "https://www.ss.com/ru/real-estate/flats/riga/all/fDgQeF4S.html"),
		SiteOrigin:           getEnv("SITE_ORIGIN", "https://www.ss.com"),
		MarkerVariable:       getEnv("MARKER_VARIABLE", "MARKER_DATA"),
		FetchTimeout:         getEnvSeconds("FETCH_TIMEOUT_SECONDS", 30),
		CooldownTime:         getEnvSeconds("COOLDOWN_SECONDS", 600),
		SessionCookie:        getEnv("SESSION_COOKIE", "PHPSESSID"),
		StaticSessionID:      getEnv("STATIC_SESSION_ID", ""),
		ChromeWSURL:          getEnv("CHROME_WS_URL", ""),
		ChromeBin:            getEnv("CHROME_BIN", ""),
		BadRegionsPath:       getEnv("BAD_REGIONS_PATH", "bad_regions.geojson"),
		CrawlInterval:        getEnvSeconds("CRAWL_INTERVAL_SECONDS", 4*60*60),
		GatePollInterval:     getEnvSeconds("GATE_POLL_SECONDS", 30),
		DescriptionEnabled:   getEnvBool("DESCRIPTION_ENABLED", true),
		DescriptionRPS:       getEnvFloat("DESCRIPTION_RPS", 1),
		PostgresDSN:          getEnv("POSTGRES_DSN", ""),
		RedisAddr:            getEnvAddr("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "flats"),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 1000),
		ParamsKey:            getEnv("PARAMS_KEY", "flatworker:params"),
		ParamsChannel:        getEnv("PARAMS_CHANNEL", "flatworker:params:updated"),
		MemcacheAddr:         getEnvAddr("MEMCACHE_ADDR", "localhost:11211"),
		SeedParams:           seed,
		ErrorLogPath:         getEnv("ERROR_LOG_PATH", "error.log"),
		Environment:          getEnv("FLATWORKER_ENVIRONMENT", "development"),
	}
}

// Validate rejects configurations the worker cannot run with
func (c *Config) Validate() error {
	if c.SourceURL == "" {
		return fmt.Errorf("SOURCE_URL must not be empty")
	}
	if c.SiteOrigin == "" {
		return fmt.Errorf("SITE_ORIGIN must not be empty")
	}
	if c.MarkerVariable == "" {
		return fmt.Errorf("MARKER_VARIABLE must not be empty")
	}
	if c.CrawlInterval <= 0 {
		return fmt.Errorf("CRAWL_INTERVAL_SECONDS must be positive, got %v", c.CrawlInterval)
	}
	if c.GatePollInterval <= 0 {
		return fmt.Errorf("GATE_POLL_SECONDS must be positive, got %v", c.GatePollInterval)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT_SECONDS must be positive, got %v", c.FetchTimeout)
	}
	if c.DescriptionEnabled && c.DescriptionRPS <= 0 {
		return fmt.Errorf("DESCRIPTION_RPS must be positive when descriptions are enabled")
	}
	for key, value := range c.SeedParams {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("%s: %q is not numeric", paramEnv[key], value)
		}
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAddr is getEnv for optional services: a variable that is set but
// empty, or set to "none", disables the service
func getEnvAddr(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	value = strings.TrimSpace(value)
	if strings.EqualFold(value, "none") {
		return ""
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

func getEnvSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvInt(key, defaultSeconds)) * time.Second
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}
