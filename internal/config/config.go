package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted by the factories.
const (
	ResultStoreMemory = "memory"
	ResultStoreRedis  = "redis"

	ReportStoreLocal = "local"
	ReportStoreAzure = "azure"

	ClassifierNative = "native"
	ClassifierONNX   = "onnx"
)

type Config struct {
	Host               string
	Port               string
	RequestTimeout     time.Duration
	AnalysisTimeout    time.Duration
	MaxRequestBodySize int64
	LogLevel           string
	MaxWorkers         int

	UploadDir  string
	ReportsDir string

	// Result store. A zero ResultTTL means records are never evicted.
	ResultStore   string
	ResultTTL     time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ReportStore           string
	AzureStorageAccount   string
	AzureStorageKey       string
	AzureReportsContainer string

	Classifier ClassifierConfig
}

// ClassifierConfig selects and parameterises the forgery classifier.
type ClassifierConfig struct {
	Backend   string
	ModelPath string
	InputSize int
	Seed      uint64
}

func (c *Config) ServerAddress() string {
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Host:               getEnvOrDefault("HOST", "0.0.0.0"),
		Port:               getEnvOrDefault("PORT", "8080"),
		RequestTimeout:     parseDurationOrDefault("REQUEST_TIMEOUT", 60*time.Second),
		AnalysisTimeout:    parseDurationOrDefault("ANALYSIS_TIMEOUT", 45*time.Second),
		MaxRequestBodySize: parseIntOrDefault("MAX_REQUEST_BODY_SIZE", 16*1024*1024), // 16MB
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		MaxWorkers:         int(parseIntOrDefault("MAX_WORKERS", 0)),

		UploadDir:  getEnvOrDefault("UPLOAD_DIR", "uploads"),
		ReportsDir: getEnvOrDefault("REPORTS_DIR", "reports"),

		ResultStore:   strings.ToLower(getEnvOrDefault("RESULT_STORE", ResultStoreMemory)),
		ResultTTL:     parseDurationOrZero("RESULT_TTL"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       int(parseIntOrDefault("REDIS_DB", 0)),

		ReportStore:           strings.ToLower(getEnvOrDefault("REPORT_STORE", ReportStoreLocal)),
		AzureStorageAccount:   os.Getenv("AZURE_STORAGE_ACCOUNT"),
		AzureStorageKey:       os.Getenv("AZURE_STORAGE_KEY"),
		AzureReportsContainer: getEnvOrDefault("AZURE_REPORTS_CONTAINER", "reports"),

		Classifier: ClassifierConfig{
			Backend:   strings.ToLower(getEnvOrDefault("CLASSIFIER_BACKEND", ClassifierNative)),
			ModelPath: os.Getenv("CLASSIFIER_MODEL_PATH"),
			InputSize: int(parseIntOrDefault("CLASSIFIER_INPUT_SIZE", 224)),
			Seed:      uint64(parseIntOrDefault("CLASSIFIER_SEED", 0)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the cross-field constraints LoadFromEnv cannot express as defaults.
func (c *Config) Validate() error {
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.RequestTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, analysis=%s)",
			c.RequestTimeout, c.AnalysisTimeout)
	}
	if c.ResultTTL < 0 {
		return fmt.Errorf("RESULT_TTL must be >= 0 (got %s)", c.ResultTTL)
	}

	switch c.ResultStore {
	case ResultStoreMemory:
	case ResultStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required when RESULT_STORE=redis")
		}
	default:
		return fmt.Errorf("unsupported RESULT_STORE: %q", c.ResultStore)
	}

	switch c.ReportStore {
	case ReportStoreLocal:
	case ReportStoreAzure:
		if c.AzureStorageAccount == "" || c.AzureStorageKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required when REPORT_STORE=azure")
		}
	default:
		return fmt.Errorf("unsupported REPORT_STORE: %q", c.ReportStore)
	}

	switch c.Classifier.Backend {
	case ClassifierNative:
	case ClassifierONNX:
		if c.Classifier.ModelPath == "" {
			return fmt.Errorf("CLASSIFIER_MODEL_PATH is required when CLASSIFIER_BACKEND=onnx")
		}
	default:
		return fmt.Errorf("unsupported CLASSIFIER_BACKEND: %q", c.Classifier.Backend)
	}
	// three 2x2 poolings
	if c.Classifier.InputSize < 8 || c.Classifier.InputSize%8 != 0 {
		return fmt.Errorf("CLASSIFIER_INPUT_SIZE must be a positive multiple of 8 (got %d)", c.Classifier.InputSize)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseDurationOrZero(key string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return duration
		}
	}
	return 0
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
