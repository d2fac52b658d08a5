package config

import (
	"testing"
	"time"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.ServerAddress() != "0.0.0.0:8080" {
		t.Errorf("Unexpected server address: %s", cfg.ServerAddress())
	}
	if cfg.ResultStore != ResultStoreMemory {
		t.Errorf("Expected memory result store, got %s", cfg.ResultStore)
	}
	if cfg.ResultTTL != 0 {
		t.Errorf("Expected no eviction by default, got %s", cfg.ResultTTL)
	}
	if cfg.Classifier.Backend != ClassifierNative || cfg.Classifier.InputSize != 224 {
		t.Errorf("Unexpected classifier defaults: %+v", cfg.Classifier)
	}
	if cfg.MaxRequestBodySize != 16*1024*1024 {
		t.Errorf("Unexpected body size limit: %d", cfg.MaxRequestBodySize)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("RESULT_STORE", "Redis")
	t.Setenv("REDIS_ADDR", "cache:6379")
	t.Setenv("RESULT_TTL", "2h")
	t.Setenv("CLASSIFIER_INPUT_SIZE", "64")
	t.Setenv("CLASSIFIER_SEED", "42")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Expected port 9090, got %s", cfg.Port)
	}
	if cfg.ResultStore != ResultStoreRedis || cfg.RedisAddr != "cache:6379" {
		t.Errorf("Unexpected redis settings: %s %s", cfg.ResultStore, cfg.RedisAddr)
	}
	if cfg.ResultTTL != 2*time.Hour {
		t.Errorf("Expected 2h TTL, got %s", cfg.ResultTTL)
	}
	if cfg.Classifier.InputSize != 64 || cfg.Classifier.Seed != 42 {
		t.Errorf("Unexpected classifier settings: %+v", cfg.Classifier)
	}
}

func TestLoadFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "99999"}},
		{"unknown result store", map[string]string{"RESULT_STORE": "etcd"}},
		{"azure without credentials", map[string]string{"REPORT_STORE": "azure"}},
		{"onnx without model", map[string]string{"CLASSIFIER_BACKEND": "onnx"}},
		{"input size not divisible by 8", map[string]string{"CLASSIFIER_INPUT_SIZE": "100"}},
		{"negative ttl", map[string]string{"RESULT_TTL": "-1m"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFromEnv(); err == nil {
				t.Error("Expected configuration error")
			}
		})
	}
}
