package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents the application configuration, loaded from the
// environment with sensible defaults.
type Config struct {
	// Port is the HTTP listen port
	Port string

	// Resolver settings
	PrimaryEnabled  bool
	ScrapeEnabled   bool
	CacheTTL        time.Duration
	PrimaryTimeout  time.Duration
	ScrapeTimeout   time.Duration
	OverallDeadline time.Duration

	// RateLimitPerDomain is the maximum concurrent in-flight requests per
	// upstream domain
	RateLimitPerDomain int

	// RapidAPIKey authenticates against the official booking API
	RapidAPIKey string

	// SupportedCities maps extra city names to booking destination ids,
	// merged over the built-in mapping
	SupportedCities map[string]int

	// ScrapeLocale is the language/locale scrape URLs are built with
	ScrapeLocale string

	// HTTP contains inbound rate limiting and timeout settings
	HTTP struct {
		RateLimitRPS   float64
		RateLimitBurst int
		RequestTimeout time.Duration
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		PrimaryEnabled:     getEnvBool("PRIMARY_ENABLED", true),
		ScrapeEnabled:      getEnvBool("SCRAPE_ENABLED", true),
		CacheTTL:           getEnvSeconds("CACHE_TTL_SECONDS", 60),
		PrimaryTimeout:     getEnvMillis("PRIMARY_TIMEOUT_MS", 10_000),
		ScrapeTimeout:      getEnvMillis("SCRAPE_TIMEOUT_MS", 30_000),
		OverallDeadline:    getEnvMillis("OVERALL_DEADLINE_MS", 40_000),
		RateLimitPerDomain: getEnvInt("RATE_LIMIT_PER_DOMAIN", 2),
		RapidAPIKey:        os.Getenv("RAPIDAPI_KEY"),
		ScrapeLocale:       getEnv("SCRAPE_LOCALE", "de"),
	}

	cities, err := parseCityMap(os.Getenv("SUPPORTED_CITIES"))
	if err != nil {
		return nil, err
	}
	cfg.SupportedCities = cities

	cfg.HTTP.RateLimitRPS = getEnvFloat("HTTP_RATE_LIMIT_RPS", 5)
	cfg.HTTP.RateLimitBurst = getEnvInt("HTTP_RATE_LIMIT_BURST", 10)
	cfg.HTTP.RequestTimeout = getEnvMillis("HTTP_REQUEST_TIMEOUT_MS", 45_000)

	if cfg.PrimaryEnabled && cfg.RapidAPIKey == "" {
		return nil, fmt.Errorf("RAPIDAPI_KEY is required when PRIMARY_ENABLED is true")
	}
	if cfg.RateLimitPerDomain < 1 {
		return nil, fmt.Errorf("RATE_LIMIT_PER_DOMAIN must be at least 1")
	}
	return cfg, nil
}

// parseCityMap parses "city:destid,city:destid" pairs.
func parseCityMap(raw string) (map[string]int, error) {
	cities := make(map[string]int)
	if raw == "" {
		return cities, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		name, id, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok {
			return nil, fmt.Errorf("malformed SUPPORTED_CITIES entry %q", pair)
		}
		destID, err := strconv.Atoi(strings.TrimSpace(id))
		if err != nil {
			return nil, fmt.Errorf("malformed destination id in %q", pair)
		}
		cities[strings.ToLower(strings.TrimSpace(name))] = destID
	}
	return cities, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getEnvSeconds(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Second
}

func getEnvMillis(key string, def int) time.Duration {
	return time.Duration(getEnvInt(key, def)) * time.Millisecond
}
