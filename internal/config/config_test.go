package config

import (
	"strings"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"TYPHOON_API_KEY", "TYPHOON_API_URL", "TYPHOON_MODEL",
		"LLM_TIMEOUT_SECONDS", "OCR_LANGUAGES", "MIN_CONFIDENCE",
		"MIN_TEXT_LENGTH", "PREPROCESS_POLICY", "MAX_IMAGE_DIMENSION",
		"UPLOAD_DIR", "MAX_UPLOAD_BYTES", "UPLOAD_MAX_AGE_MINUTES",
		"HTTP_ADDR", "DATABASE_URL", "REDIS_URL", "SCAN_QUEUE",
		"QUEUE_CONCURRENCY",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.TyphoonAPIURL != "https://api.opentyphoon.ai/v1" {
		t.Errorf("TyphoonAPIURL = %q", cfg.TyphoonAPIURL)
	}
	if cfg.OCRLanguages != "tha+eng" {
		t.Errorf("OCRLanguages = %q", cfg.OCRLanguages)
	}
	if cfg.MinConfidence != 0.4 {
		t.Errorf("MinConfidence = %f", cfg.MinConfidence)
	}
	if cfg.MinTextLength != 5 {
		t.Errorf("MinTextLength = %d", cfg.MinTextLength)
	}
	if cfg.LLMTimeoutSeconds != 30 {
		t.Errorf("LLMTimeoutSeconds = %d", cfg.LLMTimeoutSeconds)
	}
	if cfg.PreprocessPolicy != "shrink" {
		t.Errorf("PreprocessPolicy = %q", cfg.PreprocessPolicy)
	}
	if cfg.MaxImageDimension != 2000 {
		t.Errorf("MaxImageDimension = %d", cfg.MaxImageDimension)
	}
	if cfg.MaxUploadBytes != 16*1024*1024 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.UploadMaxAgeMinutes != 30 {
		t.Errorf("UploadMaxAgeMinutes = %d", cfg.UploadMaxAgeMinutes)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.ScanQueue != "parcel:scans" {
		t.Errorf("ScanQueue = %q", cfg.ScanQueue)
	}
	if cfg.QueueConcurrency != 4 {
		t.Errorf("QueueConcurrency = %d", cfg.QueueConcurrency)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MIN_CONFIDENCE", "0.3")
	t.Setenv("PREPROCESS_POLICY", "upscale")
	t.Setenv("OCR_LANGUAGES", "tha")
	t.Setenv("LLM_TIMEOUT_SECONDS", "60")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.MinConfidence != 0.3 {
		t.Errorf("MinConfidence = %f", cfg.MinConfidence)
	}
	if cfg.PreprocessPolicy != "upscale" {
		t.Errorf("PreprocessPolicy = %q", cfg.PreprocessPolicy)
	}
	if cfg.OCRLanguages != "tha" {
		t.Errorf("OCRLanguages = %q", cfg.OCRLanguages)
	}
	if cfg.LLMTimeoutSeconds != 60 {
		t.Errorf("LLMTimeoutSeconds = %d", cfg.LLMTimeoutSeconds)
	}
}

func TestLoadConfigUnparsableValueFallsBack(t *testing.T) {
	t.Setenv("MIN_CONFIDENCE", "not-a-number")
	t.Setenv("MIN_TEXT_LENGTH", "five")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.MinConfidence != 0.4 {
		t.Errorf("MinConfidence = %f, want default", cfg.MinConfidence)
	}
	if cfg.MinTextLength != 5 {
		t.Errorf("MinTextLength = %d, want default", cfg.MinTextLength)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	valid := func() *Config {
		return &Config{
			LLMTimeoutSeconds:   30,
			MinConfidence:       0.4,
			MinTextLength:       5,
			PreprocessPolicy:    "shrink",
			MaxImageDimension:   2000,
			MaxUploadBytes:      16 * 1024 * 1024,
			QueueConcurrency:    4,
			UploadMaxAgeMinutes: 30,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }, "MIN_CONFIDENCE"},
		{"confidence negative", func(c *Config) { c.MinConfidence = -0.1 }, "MIN_CONFIDENCE"},
		{"zero text length", func(c *Config) { c.MinTextLength = 0 }, "MIN_TEXT_LENGTH"},
		{"zero timeout", func(c *Config) { c.LLMTimeoutSeconds = 0 }, "LLM_TIMEOUT_SECONDS"},
		{"unknown policy", func(c *Config) { c.PreprocessPolicy = "stretch" }, "PREPROCESS_POLICY"},
		{"tiny dimension", func(c *Config) { c.MaxImageDimension = 50 }, "MAX_IMAGE_DIMENSION"},
		{"tiny upload limit", func(c *Config) { c.MaxUploadBytes = 100 }, "MAX_UPLOAD_BYTES"},
		{"zero concurrency", func(c *Config) { c.QueueConcurrency = 0 }, "QUEUE_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() accepted an invalid config")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %s", err, tt.want)
			}
		})
	}

	if err := valid().Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestChatCompletionsURL(t *testing.T) {
	tests := []struct {
		base string
		want string
	}{
		{"https://api.opentyphoon.ai/v1", "https://api.opentyphoon.ai/v1/chat/completions"},
		{"https://api.opentyphoon.ai/v1/", "https://api.opentyphoon.ai/v1/chat/completions"},
		{"https://api.opentyphoon.ai/v1/chat/completions", "https://api.opentyphoon.ai/v1/chat/completions"},
		{"https://api.opentyphoon.ai/v1/chat/completions/", "https://api.opentyphoon.ai/v1/chat/completions"},
	}
	for _, tt := range tests {
		cfg := &Config{TyphoonAPIURL: tt.base}
		if got := cfg.ChatCompletionsURL(); got != tt.want {
			t.Errorf("ChatCompletionsURL(%q) = %q, want %q", tt.base, got, tt.want)
		}
	}
}
