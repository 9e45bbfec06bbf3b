package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	LogLevel    string
	RedisURL    string
	DatabaseURL string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	AnthropicAPIKey string
	DefaultProvider string

	// Per-class request limits sharing one 60s sliding window.
	RateLimitWindow  time.Duration
	GeneralRateLimit int
	AIRateLimit      int
	AuthRateLimit    int

	DispatcherInterval time.Duration
	CacheTTL           time.Duration

	AdLibraryBaseURL string
	MetaAccessToken  string

	OTLPEndpoint     string
	AWSRegion        string
	ReportQueueURL   string
	AlertTopicArn    string
	EncryptionKey    string
	AdminAuthEnabled bool

	ShutdownTimeout time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Addr:               getEnv("ADDR", ":8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RedisURL:           getEnv("REDIS_URL", ""),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		DefaultProvider:    getEnv("DEFAULT_PROVIDER", "openai"),
		RateLimitWindow:    getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		GeneralRateLimit:   getIntEnv("GENERAL_RATE_LIMIT", 60),
		AIRateLimit:        getIntEnv("AI_RATE_LIMIT", 20),
		AuthRateLimit:      getIntEnv("AUTH_RATE_LIMIT", 10),
		DispatcherInterval: getDurationEnv("DISPATCHER_INTERVAL", 15*time.Minute),
		CacheTTL:           getDurationEnv("CACHE_TTL", 5*time.Minute),
		AdLibraryBaseURL:   getEnv("AD_LIBRARY_BASE_URL", "https://graph.facebook.com/v19.0/ads_archive"),
		MetaAccessToken:    getEnv("META_ACCESS_TOKEN", ""),
		OTLPEndpoint:       getEnv("OTLP_ENDPOINT", ""),
		AWSRegion:          getEnv("AWS_REGION", ""),
		ReportQueueURL:     getEnv("REPORT_QUEUE_URL", ""),
		AlertTopicArn:      getEnv("ALERT_TOPIC_ARN", ""),
		EncryptionKey:      getEnv("ENCRYPTION_KEY", ""),
		AdminAuthEnabled:   getEnv("ADMIN_AUTH_ENABLED", "false") == "true",
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
