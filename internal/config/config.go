// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	GRPCPort        string // empty disables the gRPC health listener
	MCPEnabled      bool
	CaseTTL         time.Duration
	MaxImageBytes   int64
	SpeechLang      string
	Model           ModelConfig
	RateLimit       RateLimitConfig
	SSE             SSEConfig
	ConversationLog ConversationLogConfig
}

// ModelConfig selects the hosted models used by each coordinator.
type ModelConfig struct {
	APIKey         string
	ImageModel     string
	DiagnosisModel string
	PlanModel      string
	ChatModel      string
	Timeout        time.Duration // 0 = no deadline
}

// RateLimitConfig bounds model calls per client.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// SSEConfig controls server-sent event streams.
type SSEConfig struct {
	KeepaliveInterval  time.Duration
	RetryDelay         time.Duration
	MaxRequestBodySize int64
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	cfg := &Config{
		Port:          getEnv("PORT", "8080"),
		FrontendURL:   getEnv("FRONTEND_URL", ""),
		GRPCPort:      getEnv("GRPC_PORT", "9090"),
		MCPEnabled:    getEnvBool("MCP_ENABLED", true),
		CaseTTL:       getEnvDuration("CASE_TTL", 2*time.Hour),
		MaxImageBytes: int64(getEnvInt("MAX_IMAGE_BYTES", 10<<20)),
		SpeechLang:    getEnv("SPEECH_LANG", "en-US"),
		Model: ModelConfig{
			APIKey:         apiKey,
			ImageModel:     getEnv("IMAGE_MODEL", "gemini-2.5-flash"),
			DiagnosisModel: getEnv("DIAGNOSIS_MODEL", "gemini-2.5-pro"),
			PlanModel:      getEnv("PLAN_MODEL", "gemini-2.5-pro"),
			ChatModel:      getEnv("CHAT_MODEL", "gemini-2.5-pro"),
			Timeout:        getEnvDuration("MODEL_TIMEOUT", 2*time.Minute),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		SSE: SSEConfig{
			KeepaliveInterval:  getEnvDuration("SSE_KEEPALIVE_INTERVAL", 10*time.Second),
			RetryDelay:         getEnvDuration("SSE_RETRY_DELAY", 5*time.Second),
			MaxRequestBodySize: int64(getEnvInt("SSE_MAX_REQUEST_BODY", 1<<20)),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY (or API_KEY) must be set")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0")
	}
	if c.CaseTTL <= 0 {
		return fmt.Errorf("CASE_TTL must be > 0")
	}
	if c.Model.Timeout < 0 {
		return fmt.Errorf("MODEL_TIMEOUT cannot be negative")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	if c.SSE.KeepaliveInterval <= 0 {
		return fmt.Errorf("SSE_KEEPALIVE_INTERVAL must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins accepted by the API.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
