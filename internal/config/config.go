package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	MapAPIKey       string
	GeocodingURL    string
	ReverseGeoURL   string
	RegionSearchURL string
	MapAPITimeout   time.Duration

	ArchiveAPIURL     string
	ForecastAPIURL    string
	WeatherAPITimeout time.Duration
	Timezone          string

	RequestTimeout time.Duration

	GeoCacheBackend string        // "in_memory" or "memcached"
	GeoCacheTTL     time.Duration // 0 = never expire

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	BreakerFailureThreshold int
	BreakerOpenTimeout      time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	DefaultCity string
	DefaultDays int
	MaxDays     int
	WarmCities  []string

	ModelStorePath string // empty disables training-run persistence
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	MapAPI struct {
		GeocodingURL    string `yaml:"geocoding_url"`
		ReverseURL      string `yaml:"reverse_url"`
		RegionSearchURL string `yaml:"region_search_url"`
		Timeout         string `yaml:"timeout"`
	} `yaml:"map_api"`

	WeatherAPI struct {
		ArchiveURL  string `yaml:"archive_url"`
		ForecastURL string `yaml:"forecast_url"`
		Timeout     string `yaml:"timeout"`
		Timezone    string `yaml:"timezone"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	GeoCache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		WarmCities []string `yaml:"warm_cities"`
	} `yaml:"geo_cache"`

	Reliability struct {
		RetryMaxAttempts        int    `yaml:"retry_max_attempts"`
		RetryBaseDelay          string `yaml:"retry_base_delay"`
		RetryMaxDelay           string `yaml:"retry_max_delay"`
		RateLimitRPS            int    `yaml:"rate_limit_rps"`
		RateLimitBurst          int    `yaml:"rate_limit_burst"`
		BreakerFailureThreshold int    `yaml:"breaker_failure_threshold"`
		BreakerOpenTimeout      string `yaml:"breaker_open_timeout"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Analytics struct {
		DefaultCity string `yaml:"default_city"`
		DefaultDays int    `yaml:"default_days"`
		MaxDays     int    `yaml:"max_days"`
	} `yaml:"analytics"`

	ModelStore struct {
		Path string `yaml:"path"`
	} `yaml:"model_store"`
}

type secretsFile struct {
	MapAPIKey string `yaml:"map_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and
// config/secrets.yaml under the working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(filepath.Join(cwd, "config"))
}

// LoadDir is Load with an explicit config directory.
// Map API key comes from MAP_API_KEY env or the secrets file in dir.
func LoadDir(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "5000"
	}

	cfg.MapAPIKey = os.Getenv("MAP_API_KEY")
	if cfg.MapAPIKey == "" {
		key, err := loadAPIKeyFromSecrets(filepath.Join(dir, "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.MapAPIKey = key
	}
	if cfg.MapAPIKey == "" {
		return nil, fmt.Errorf("MAP_API_KEY required (set env or config/secrets.yaml map_api_key)")
	}

	cfg.GeocodingURL = stringOr(fc.MapAPI.GeocodingURL, "https://api.map.baidu.com/geocoding/v3/")
	cfg.ReverseGeoURL = stringOr(fc.MapAPI.ReverseURL, "https://api.map.baidu.com/reverse_geocoding/v3/")
	cfg.RegionSearchURL = stringOr(fc.MapAPI.RegionSearchURL, "https://api.map.baidu.com/api_region_search/v1/")
	cfg.MapAPITimeout = parseDurationOrZero(fc.MapAPI.Timeout, 10*time.Second)

	cfg.ArchiveAPIURL = stringOr(fc.WeatherAPI.ArchiveURL, "https://archive-api.open-meteo.com/v1/archive")
	cfg.ForecastAPIURL = stringOr(fc.WeatherAPI.ForecastURL, "https://api.open-meteo.com/v1/forecast")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 30*time.Second)
	cfg.Timezone = stringOr(fc.WeatherAPI.Timezone, "Asia/Shanghai")

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 60*time.Second)

	cfg.GeoCacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.GeoCacheBackend == "" {
		cfg.GeoCacheBackend = strings.TrimSpace(strings.ToLower(fc.GeoCache.Backend))
	}
	if cfg.GeoCacheBackend == "" {
		cfg.GeoCacheBackend = "in_memory"
	}
	cfg.GeoCacheTTL = parseDurationOrZero(fc.GeoCache.TTL, 0)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = stringOr(strings.TrimSpace(fc.GeoCache.Memcached.Addrs), "localhost:11211")
	}
	cfg.MemcachedTimeout = parseDuration(fc.GeoCache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.GeoCache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}
	cfg.WarmCities = fc.GeoCache.WarmCities

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 200*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}
	cfg.BreakerFailureThreshold = fc.Reliability.BreakerFailureThreshold
	if cfg.BreakerFailureThreshold <= 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.Reliability.BreakerOpenTimeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	cfg.DefaultCity = stringOr(strings.TrimSpace(fc.Analytics.DefaultCity), "beijing")
	cfg.DefaultDays = fc.Analytics.DefaultDays
	if cfg.DefaultDays <= 0 {
		cfg.DefaultDays = 30
	}
	cfg.MaxDays = fc.Analytics.MaxDays
	if cfg.MaxDays <= 0 {
		cfg.MaxDays = 3650
	}

	cfg.ModelStorePath = strings.TrimSpace(os.Getenv("MODEL_STORE_PATH"))
	if cfg.ModelStorePath == "" {
		cfg.ModelStorePath = strings.TrimSpace(fc.ModelStore.Path)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadAPIKeyFromSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return sec.MapAPIKey, nil
}

func stringOr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Zero or negative durations are returned as-is; validate rejects them where they matter.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised to cover
// one geocode call plus one weather call when configured too low.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.MapAPITimeout <= 0 {
		return fmt.Errorf("map_api.timeout must be positive")
	}
	if cfg.GeoCacheTTL < 0 {
		return fmt.Errorf("geo_cache.ttl must not be negative")
	}
	if floor := cfg.WeatherAPITimeout + cfg.MapAPITimeout; cfg.RequestTimeout < floor {
		cfg.RequestTimeout = floor + time.Second
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("weather_api.timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.DefaultDays > cfg.MaxDays {
		return fmt.Errorf("analytics.default_days %d exceeds max_days %d", cfg.DefaultDays, cfg.MaxDays)
	}
	switch cfg.GeoCacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("geo_cache.backend must be in_memory or memcached, got %q", cfg.GeoCacheBackend)
	}
	return nil
}
