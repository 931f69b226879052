package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/urban-comfort-index/internal/domain"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	StoreDriver   string
	SQLiteDSN     string
	UnitCacheSize int

	// Scoring configuration.
	WindowWeeks   int
	UsePigeon     bool
	Weights       domain.Weights
	ScoreInterval time.Duration

	// Kafka ingestion and score publishing.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSignalTopic   string
	KafkaScoreTopic    string
	KafkaGroupID       string
	BatchSize          int
	BatchFlushInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	windowWeeks, err := parseInt("UCI_WINDOW_WEEKS", 4)
	if err != nil {
		return nil, err
	}
	if err := domain.ValidateWeeks("UCI_WINDOW_WEEKS", windowWeeks); err != nil {
		return nil, err
	}

	weights, err := parseWeights()
	if err != nil {
		return nil, err
	}

	scoreInterval, err := time.ParseDuration(sharedcfg.EnvOrDefault("SCORE_INTERVAL", "1h"))
	if err != nil || scoreInterval < 0 {
		return nil, errors.New("invalid SCORE_INTERVAL")
	}

	cacheSize, err := parseInt("UNIT_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		StoreDriver:   strings.ToLower(sharedcfg.EnvOrDefault("STORE_DRIVER", StoreSQLite)),
		SQLiteDSN:     sharedcfg.EnvOrDefault("SQLITE_DSN", "file:uci.db?_pragma=busy_timeout(5000)"),
		UnitCacheSize: cacheSize,

		WindowWeeks:   windowWeeks,
		UsePigeon:     os.Getenv("UCI_USE_PIGEON") == "true",
		Weights:       weights,
		ScoreInterval: scoreInterval,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSignalTopic:   sharedcfg.EnvOrDefault("KAFKA_SIGNAL_TOPIC", "urban-signals"),
		KafkaScoreTopic:    sharedcfg.EnvOrDefault("KAFKA_SCORE_TOPIC", "comfort-index-scores"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "uci-ingest"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
	}

	switch cfg.StoreDriver {
	case StoreSQLite:
		if cfg.SQLiteDSN == "" {
			return nil, errors.New("SQLITE_DSN is required when STORE_DRIVER is sqlite")
		}
	case StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.UnitCacheSize <= 0 {
		return nil, errors.New("UNIT_CACHE_SIZE must be positive")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaSignalTopic == "" {
			return nil, errors.New("KAFKA_SIGNAL_TOPIC is required")
		}
		if cfg.KafkaScoreTopic == "" {
			return nil, errors.New("KAFKA_SCORE_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func parseWeights() (domain.Weights, error) {
	w := domain.DefaultWeights()
	for key, dst := range map[string]*float64{
		"UCI_WEIGHT_HUMAN":      &w.Human,
		"UCI_WEIGHT_GEO":        &w.Geo,
		"UCI_WEIGHT_POPULATION": &w.Population,
		"UCI_WEIGHT_PIGEON":     &w.Pigeon,
	} {
		s := os.Getenv(key)
		if s == "" {
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return w, fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = v
	}
	if err := w.Validate(); err != nil {
		return w, fmt.Errorf("invalid UCI_WEIGHT_*: %w", err)
	}
	return w, nil
}
