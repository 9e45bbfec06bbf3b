package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"ADDR", "LOG_LEVEL", "REDIS_URL", "DATABASE_URL",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "ANTHROPIC_API_KEY",
		"DEFAULT_PROVIDER", "RATE_LIMIT_WINDOW", "GENERAL_RATE_LIMIT",
		"AI_RATE_LIMIT", "AUTH_RATE_LIMIT", "DISPATCHER_INTERVAL",
		"AD_LIBRARY_BASE_URL", "OTLP_ENDPOINT", "AWS_REGION",
		"REPORT_QUEUE_URL", "ALERT_TOPIC_ARN", "ENCRYPTION_KEY",
		"ADMIN_AUTH_ENABLED",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"Addr", cfg.Addr, ":8080"},
		{"LogLevel", cfg.LogLevel, "info"},
		{"RedisURL", cfg.RedisURL, ""},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"OpenAIBaseURL", cfg.OpenAIBaseURL, "https://api.openai.com/v1"},
		{"DefaultProvider", cfg.DefaultProvider, "openai"},
		{"AdLibraryBaseURL", cfg.AdLibraryBaseURL, "https://graph.facebook.com/v19.0/ads_archive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}

	if cfg.RateLimitWindow != time.Minute {
		t.Errorf("RateLimitWindow = %v, want 1m", cfg.RateLimitWindow)
	}
	if cfg.GeneralRateLimit != 60 || cfg.AIRateLimit != 20 || cfg.AuthRateLimit != 10 {
		t.Errorf("rate limits = %d/%d/%d, want 60/20/10",
			cfg.GeneralRateLimit, cfg.AIRateLimit, cfg.AuthRateLimit)
	}
	if cfg.DispatcherInterval != 15*time.Minute {
		t.Errorf("DispatcherInterval = %v, want 15m", cfg.DispatcherInterval)
	}
	if cfg.AdminAuthEnabled {
		t.Error("AdminAuthEnabled should default to false")
	}
}

func TestLoad_FromEnv(t *testing.T) {
	os.Setenv("ADDR", ":9090")
	os.Setenv("GENERAL_RATE_LIMIT", "120")
	os.Setenv("AI_RATE_LIMIT", "5")
	os.Setenv("DISPATCHER_INTERVAL", "300")
	os.Setenv("ADMIN_AUTH_ENABLED", "true")
	defer func() {
		os.Unsetenv("ADDR")
		os.Unsetenv("GENERAL_RATE_LIMIT")
		os.Unsetenv("AI_RATE_LIMIT")
		os.Unsetenv("DISPATCHER_INTERVAL")
		os.Unsetenv("ADMIN_AUTH_ENABLED")
	}()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.GeneralRateLimit != 120 {
		t.Errorf("GeneralRateLimit = %d, want 120", cfg.GeneralRateLimit)
	}
	if cfg.AIRateLimit != 5 {
		t.Errorf("AIRateLimit = %d, want 5", cfg.AIRateLimit)
	}
	if cfg.DispatcherInterval != 5*time.Minute {
		t.Errorf("DispatcherInterval = %v, want 5m", cfg.DispatcherInterval)
	}
	if !cfg.AdminAuthEnabled {
		t.Error("AdminAuthEnabled should be true")
	}
}

func TestLoad_InvalidIntFallsBack(t *testing.T) {
	os.Setenv("AI_RATE_LIMIT", "not-a-number")
	defer os.Unsetenv("AI_RATE_LIMIT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AIRateLimit != 20 {
		t.Errorf("AIRateLimit = %d, want default 20", cfg.AIRateLimit)
	}
}
