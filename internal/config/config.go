// Package config loads the collector's settings. The resulting struct is
// built once in main and passed by reference into the orchestrator, source
// clients and store; nothing reads configuration ambiently after startup.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all collector settings, populated from environment variables
// (optionally seeded from a .env file) plus the credentials file.
type Config struct {
	DataRoot        string
	RegionsFile     string
	CredentialsFile string

	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string
	INMETToken         string
	INMETBaseURL       string

	MaxAttempts       int
	RetryDelay        time.Duration
	WindowPause       time.Duration
	HistoricalYears   int
	CurrentTimeout    time.Duration
	HistoricalTimeout time.Duration

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Schedule is a cron expression; empty means a single one-shot run.
	Schedule string

	// Kafka report publishing, feature-flagged via KAFKA_ENABLED/KAFKA_BROKERS.
	KafkaBrokers     []string
	KafkaReportTopic string
	KafkaEnabled     bool

	// Warnings collects non-fatal configuration problems (missing credentials
	// file and the like) for main to log once the logger exists.
	Warnings []string
}

// credentialsFile mirrors the on-disk credentials JSON:
//
//	{"openweather": {"api_key": "..."}, "inmet": {"token": "..."}}
type credentialsFile struct {
	OpenWeather struct {
		APIKey string `json:"api_key"`
	} `json:"openweather"`
	INMET struct {
		Token string `json:"token"`
	} `json:"inmet"`
}

// Load reads configuration, applying defaults where unset. A missing
// credentials file degrades to env/default values with a warning; only
// unparseable values are errors.
func Load() (*Config, error) {
	// Best effort: a .env file is a development convenience, not a requirement.
	_ = godotenv.Load()

	maxAttempts, err := parsePositiveInt("MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	years, err := parsePositiveInt("HISTORICAL_YEARS", 15)
	if err != nil {
		return nil, err
	}
	retryDelay, err := parseDuration("RETRY_DELAY", 5*time.Second)
	if err != nil {
		return nil, err
	}
	windowPause, err := parseDuration("WINDOW_PAUSE", time.Second)
	if err != nil {
		return nil, err
	}
	currentTimeout, err := parseDuration("CURRENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	historicalTimeout, err := parseDuration("HISTORICAL_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataRoot:        envOrDefault("DATA_ROOT", "data"),
		RegionsFile:     envOrDefault("REGIONS_FILE", "config/regions.json"),
		CredentialsFile: envOrDefault("CREDENTIALS_FILE", "config/credentials.json"),

		OpenWeatherAPIKey:  os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherBaseURL: envOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org/data"),
		INMETToken:         os.Getenv("INMET_TOKEN"),
		INMETBaseURL:       envOrDefault("INMET_BASE_URL", "https://apitempo.inmet.gov.br"),

		MaxAttempts:       maxAttempts,
		RetryDelay:        retryDelay,
		WindowPause:       windowPause,
		HistoricalYears:   years,
		CurrentTimeout:    currentTimeout,
		HistoricalTimeout: historicalTimeout,

		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		Schedule: os.Getenv("SCHEDULE"),

		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaReportTopic: envOrDefault("KAFKA_REPORT_TOPIC", "collection-reports"),
	}

	cfg.KafkaEnabled = len(cfg.KafkaBrokers) > 0
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is not set")
	}

	cfg.loadCredentials()

	if cfg.DataRoot == "" {
		return nil, errors.New("DATA_ROOT must not be empty")
	}
	if cfg.OpenWeatherAPIKey == "" {
		cfg.Warnings = append(cfg.Warnings,
			"OpenWeather API key not configured; primary source will be skipped")
	}

	return cfg, nil
}

// loadCredentials overlays API keys from the credentials file. Missing or
// malformed files degrade to the env-provided values with a warning; the
// key values themselves are never placed in warnings or logs.
func (c *Config) loadCredentials() {
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("credentials file %s not readable, using environment values", c.CredentialsFile))
		return
	}
	var creds credentialsFile
	if err := json.Unmarshal(data, &creds); err != nil {
		c.Warnings = append(c.Warnings,
			fmt.Sprintf("credentials file %s malformed, using environment values", c.CredentialsFile))
		return
	}
	if creds.OpenWeather.APIKey != "" {
		c.OpenWeatherAPIKey = creds.OpenWeather.APIKey
	}
	if creds.INMET.Token != "" {
		c.INMETToken = creds.INMET.Token
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			brokers = append(brokers, p)
		}
	}
	return brokers
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}
