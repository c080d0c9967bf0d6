package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // display.timezone must resolve without a system zoneinfo

	"gopkg.in/yaml.v3"
)

// Cache backends.
const (
	CacheNone      = "none"
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
)

// DefaultBackgroundImages is the rotation used when background.images is not set.
var DefaultBackgroundImages = []string{
	"https://images.unsplash.com/photo-1542281286-9e0a16bb7366?q=80&w=2000",
	"https://images.unsplash.com/photo-1541480601022-2308c0f02487?q=80&w=2000",
	"https://images.unsplash.com/photo-1511593358241-7eea1f3c84e5?q=80&w=2000",
	"https://images.unsplash.com/photo-1441974231531-c6227db76b6e?q=80&w=2000",
	"https://images.unsplash.com/photo-1419242902214-272b3f66ee7a?q=80&w=2000",
	"https://images.unsplash.com/photo-1470071459604-3b5ec3a7fe05?q=80&w=2000",
	"https://images.unsplash.com/photo-1426604966848-d7adac402bff?q=80&w=2000",
	"https://images.unsplash.com/photo-1501594907352-04cda38ebc29?q=80&w=2000",
}

// Config holds service configuration loaded from YAML and env. Immutable after Load.
type Config struct {
	Env        string
	ServerPort string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration // 0 = no client timeout

	NewsAPIKey     string
	NewsAPIURL     string
	NewsPageSize   int
	NewsMaxItems   int
	NewsAPITimeout time.Duration

	PhotosAPIKey     string
	PhotosAPIURL     string
	PhotosCount      int
	PhotosAPITimeout time.Duration

	DefaultCity             string
	DefaultNewsCategory     string
	DefaultGridNewsCategory string
	DefaultPhotoSearchTerm  string

	BackgroundImages         []string
	BackgroundInterval       time.Duration
	BackgroundPreloadTimeout time.Duration

	DisplayLocation *time.Location

	QueryMaxLength int
	RequestTimeout time.Duration

	RateLimitRPS   int
	RateLimitBurst int

	CacheBackend          string
	CacheTTL              time.Duration
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	PageTTL           time.Duration
	MaxPages          int
	PageSweepInterval time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout       time.Duration
	InFlightTimeout       time.Duration
	InFlightCheckInterval time.Duration

	TrackedLocations []string
}

type apiSection struct {
	URL      string `yaml:"url"`
	Timeout  string `yaml:"timeout"`
	PageSize int    `yaml:"page_size"`
	MaxItems int    `yaml:"max_items"`
	Count    int    `yaml:"count"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI apiSection `yaml:"weather_api"`
	NewsAPI    apiSection `yaml:"news_api"`
	PhotosAPI  apiSection `yaml:"photos_api"`

	Defaults struct {
		City                string `yaml:"city"`
		NewsCategory        string `yaml:"news_category"`
		DefaultNewsCategory string `yaml:"default_news_category"`
		PhotoSearchTerm     string `yaml:"photo_search_term"`
	} `yaml:"defaults"`

	Background struct {
		Images         []string `yaml:"images"`
		Interval       string   `yaml:"interval"`
		PreloadTimeout string   `yaml:"preload_timeout"`
	} `yaml:"background"`

	Display struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"display"`

	Validation struct {
		QueryMaxLength int `yaml:"query_max_length"`
	} `yaml:"validation"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
	} `yaml:"reliability"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Pages struct {
		TTL           string `yaml:"ttl"`
		Max           int    `yaml:"max"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"pages"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Metrics struct {
		TrackedLocations []string `yaml:"tracked_locations"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	NewsAPIKey    string `yaml:"news_api_key"`
	PhotosAPIKey  string `yaml:"photos_api_key"`
}

// Load reads configuration from config/{env}.yaml and config/secrets.yaml,
// relative to the working directory. An empty env falls back to ENV_NAME, then dev.
// API keys come from WEATHER_API_KEY, NEWS_API_KEY and PHOTOS_API_KEY or the secrets file.
func Load(env string) (*Config, error) {
	if env == "" {
		env = os.Getenv("ENV_NAME")
	}
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
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

	sec, err := loadSecrets(filepath.Join(cwd, "config", "secrets.yaml"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{Env: env}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	if cfg.WeatherAPIKey, err = apiKey("WEATHER_API_KEY", "weather_api_key", sec.WeatherAPIKey); err != nil {
		return nil, err
	}
	if cfg.NewsAPIKey, err = apiKey("NEWS_API_KEY", "news_api_key", sec.NewsAPIKey); err != nil {
		return nil, err
	}
	if cfg.PhotosAPIKey, err = apiKey("PHOTOS_API_KEY", "photos_api_key", sec.PhotosAPIKey); err != nil {
		return nil, err
	}

	cfg.WeatherAPIURL = orDefault(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 0)

	cfg.NewsAPIURL = orDefault(fc.NewsAPI.URL, "https://content.guardianapis.com/search")
	cfg.NewsPageSize = positiveOr(fc.NewsAPI.PageSize, 10)
	cfg.NewsMaxItems = positiveOr(fc.NewsAPI.MaxItems, 6)
	cfg.NewsAPITimeout = parseDurationOrZero(fc.NewsAPI.Timeout, 0)

	cfg.PhotosAPIURL = orDefault(fc.PhotosAPI.URL, "https://api.unsplash.com/photos/random")
	cfg.PhotosCount = positiveOr(fc.PhotosAPI.Count, 6)
	cfg.PhotosAPITimeout = parseDurationOrZero(fc.PhotosAPI.Timeout, 0)

	cfg.DefaultCity = orDefault(fc.Defaults.City, "Lagos")
	cfg.DefaultNewsCategory = orDefault(fc.Defaults.NewsCategory, "world")
	cfg.DefaultGridNewsCategory = orDefault(fc.Defaults.DefaultNewsCategory, "latest")
	cfg.DefaultPhotoSearchTerm = orDefault(fc.Defaults.PhotoSearchTerm, "nature")

	cfg.BackgroundImages = fc.Background.Images
	if len(cfg.BackgroundImages) == 0 {
		cfg.BackgroundImages = append([]string(nil), DefaultBackgroundImages...)
	}
	cfg.BackgroundInterval = parseDuration(fc.Background.Interval, 15*time.Second)
	cfg.BackgroundPreloadTimeout = parseDurationOrZero(fc.Background.PreloadTimeout, 0)

	tz := orDefault(fc.Display.Timezone, "UTC")
	cfg.DisplayLocation, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("display.timezone %q: %w", tz, err)
	}

	cfg.QueryMaxLength = positiveOr(fc.Validation.QueryMaxLength, 100)
	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)

	cfg.RateLimitRPS = positiveOr(fc.Reliability.RateLimitRPS, 100)
	cfg.RateLimitBurst = positiveOr(fc.Reliability.RateLimitBurst, 250)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = CacheNone
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 5*time.Minute)
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = orDefault(strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211")
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = positiveOr(fc.Cache.Memcached.MaxIdleConns, 2)

	cfg.PageTTL = parseDurationOrZero(fc.Pages.TTL, 30*time.Minute)
	cfg.MaxPages = positiveOr(fc.Pages.Max, 1000)
	cfg.PageSweepInterval = parseDuration(fc.Pages.SweepInterval, time.Minute)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = positiveOr(fc.Health.DegradedErrorPct, 50)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.TrackedLocations = fc.Metrics.TrackedLocations

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadSecrets(path string) (secretsFile, error) {
	var sec secretsFile
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return sec, nil
		}
		return sec, fmt.Errorf("read secrets file: %w", err)
	}
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return sec, fmt.Errorf("parse secrets file: %w", err)
	}
	return sec, nil
}

// apiKey prefers the environment over the secrets file.
func apiKey(envVar, secretsKey, fromFile string) (string, error) {
	if v := strings.TrimSpace(os.Getenv(envVar)); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(fromFile); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%s required (set env or config/secrets.yaml %s)", envVar, secretsKey)
}

func orDefault(s, defaultVal string) string {
	if strings.TrimSpace(s) == "" {
		return defaultVal
	}
	return s
}

func positiveOr(n, defaultVal int) int {
	if n <= 0 {
		return defaultVal
	}
	return n
}

// parseDuration returns defaultVal when s is empty, malformed or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero returns defaultVal when s is empty or malformed.
// Zero and negative values are returned as-is for validate to judge.
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

// validate checks cross-field constraints after defaults are applied.
func validate(cfg *Config) error {
	for name, d := range map[string]time.Duration{
		"weather_api.timeout":        cfg.WeatherAPITimeout,
		"news_api.timeout":           cfg.NewsAPITimeout,
		"photos_api.timeout":         cfg.PhotosAPITimeout,
		"background.preload_timeout": cfg.BackgroundPreloadTimeout,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	if cfg.PageTTL <= 0 {
		return fmt.Errorf("pages.ttl must be positive")
	}
	if len(cfg.BackgroundImages) == 0 {
		return fmt.Errorf("background.images must not be empty")
	}
	switch cfg.CacheBackend {
	case CacheNone, CacheInMemory, CacheMemcached:
		// valid
	default:
		return fmt.Errorf("cache.backend must be none, in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
