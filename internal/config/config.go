package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// BrasilAPI configuration.
	BrasilAPIBaseURL  string
	ZipLookupPath     string
	CitySearchPath    string
	WeatherPath       string
	ProviderTimeout   time.Duration
	ProviderRateLimit int
	ProviderCacheSize int

	// Gemini intent classification.
	GeminiAPIKey      string
	GeminiEnabled     bool
	GeminiModel       string
	GeminiBaseURL     string
	ClassifierTimeout time.Duration

	SessionTTL      time.Duration
	SessionMaxTurns int

	// Outcome publishing is enabled when KafkaBrokers is non-empty.
	KafkaBrokers      []string
	KafkaOutcomeTopic string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	providerTimeout, err := parsePositiveDuration("PROVIDER_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	classifierTimeout, err := parsePositiveDuration("CLASSIFIER_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	sessionTTL, err := parsePositiveDuration("SESSION_TTL", "30m")
	if err != nil {
		return nil, err
	}

	rateLimit, err := parseNonNegativeInt("PROVIDER_RATE_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parseNonNegativeInt("PROVIDER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	maxTurns, err := parseNonNegativeInt("SESSION_MAX_TURNS", 20)
	if err != nil {
		return nil, err
	}
	if maxTurns < 2 {
		return nil, errors.New("invalid SESSION_MAX_TURNS: must be at least 2")
	}

	geminiKey := os.Getenv("GEMINI_API_KEY")
	geminiEnabled := geminiKey != ""
	if v := os.Getenv("GEMINI_ENABLED"); v != "" {
		geminiEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		BrasilAPIBaseURL:  sharedcfg.EnvOrDefault("BRASILAPI_BASE_URL", "https://brasilapi.com.br/api"),
		ZipLookupPath:     sharedcfg.EnvOrDefault("ZIP_LOOKUP_PATH", "cep/v1"),
		CitySearchPath:    sharedcfg.EnvOrDefault("CITY_SEARCH_PATH", "cptec/v1/cidade"),
		WeatherPath:       sharedcfg.EnvOrDefault("WEATHER_PATH", "cptec/v1/clima/previsao"),
		ProviderTimeout:   providerTimeout,
		ProviderRateLimit: rateLimit,
		ProviderCacheSize: cacheSize,

		GeminiAPIKey:      geminiKey,
		GeminiEnabled:     geminiEnabled,
		GeminiModel:       sharedcfg.EnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:     sharedcfg.EnvOrDefault("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		ClassifierTimeout: classifierTimeout,

		SessionTTL:      sessionTTL,
		SessionMaxTurns: maxTurns,

		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaOutcomeTopic: sharedcfg.EnvOrDefault("KAFKA_OUTCOME_TOPIC", "assistant-outcomes"),
	}

	if cfg.GeminiEnabled && cfg.GeminiAPIKey == "" {
		return nil, errors.New("GEMINI_ENABLED is true but GEMINI_API_KEY is not set")
	}

	return cfg, nil
}

// PublishOutcomes reports whether outcome events should be written to Kafka.
func (c *Config) PublishOutcomes() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid " + key + ": must be a positive duration")
	}
	return d, nil
}

func parseNonNegativeInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + key + ": must be a non-negative integer")
	}
	return n, nil
}
