// Package config provides environment configuration for the API server.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ShutdownTimeout    time.Duration
	BaseURL            string
	APIAuthToken       string
	Environment        string

	// Room provider settings
	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string
	CallerIdentity   string
	TokenTTL         time.Duration

	// Transfer orchestration
	TransferLockWait  time.Duration
	RoomTimeout       time.Duration
	RoomSweepInterval time.Duration

	// Summarizer settings
	GroqAPIKey         string
	GroqModel          string
	OpenAIAPIKey       string
	OpenAIModel        string
	AnthropicAPIKey    string
	AnthropicModel     string
	SummarizerTimeout  time.Duration
	SummarizerAttempts int
	SummarizerMaxInput int

	// Telephony settings
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioTimeout     int
	TwilioMaxRetries  int
	TwilioRetryDelay  time.Duration

	// Storage
	DBPath string

	// NATS settings
	NATSURL string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	ServiceName     string
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),
		BaseURL:            getEnv("BASE_URL", ""),
		APIAuthToken:       getEnv("API_AUTH_TOKEN", ""),
		Environment:        getEnv("ENVIRONMENT", "development"),

		// Room provider
		LiveKitAPIKey:    getEnv("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: getEnv("LIVEKIT_API_SECRET", ""),
		LiveKitURL:       getEnv("LIVEKIT_URL", ""),
		CallerIdentity:   getEnv("CALLER_IDENTITY", "caller"),
		TokenTTL:         getDurationEnv("TOKEN_TTL", time.Hour),

		// Transfer orchestration
		TransferLockWait:  getDurationEnv("TRANSFER_LOCK_WAIT", 30*time.Second),
		RoomTimeout:       getDurationEnv("ROOM_TIMEOUT", time.Hour),
		RoomSweepInterval: getDurationEnv("ROOM_SWEEP_INTERVAL", 5*time.Minute),

		// Summarizer
		GroqAPIKey:         getEnv("GROQ_API_KEY", ""),
		GroqModel:          getEnv("GROQ_MODEL", "llama-3.1-8b-instant"),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022"),
		SummarizerTimeout:  getDurationEnv("SUMMARIZER_TIMEOUT", 20*time.Second),
		SummarizerAttempts: getIntEnv("SUMMARIZER_MAX_ATTEMPTS", 3),
		SummarizerMaxInput: getIntEnv("SUMMARIZER_MAX_INPUT", 8000),

		// Telephony
		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER", ""),
		TwilioTimeout:     getIntEnv("TWILIO_TIMEOUT", 30),
		TwilioMaxRetries:  getIntEnv("TWILIO_MAX_RETRIES", 3),
		TwilioRetryDelay:  getDurationEnv("TWILIO_RETRY_DELAY", time.Second),

		// Storage
		DBPath: getEnv("DB_PATH", ""),

		// NATS
		NATSURL: getEnv("NATS_URL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		ServiceName:     getEnv("SERVICE_NAME", "warm-transfer-api"),
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports configuration that cannot support a running server.
// Provider credentials are optional (the matching feature is disabled
// when absent), but partial credential sets are always a mistake.
func (c *Config) Validate() error {
	if c.LiveKitAPIKey == "" || c.LiveKitAPISecret == "" {
		return fmt.Errorf("LIVEKIT_API_KEY and LIVEKIT_API_SECRET are required")
	}
	if c.TelephonyConfigured() {
		if c.TwilioPhoneNumber == "" {
			return fmt.Errorf("TWILIO_PHONE_NUMBER is required when telephony credentials are set")
		}
	} else if c.TwilioAccountSID != "" || c.TwilioAuthToken != "" {
		return fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN must be set together")
	}
	if c.TransferLockWait <= 0 {
		return fmt.Errorf("TRANSFER_LOCK_WAIT must be positive")
	}
	if c.RoomTimeout <= 0 || c.RoomSweepInterval <= 0 {
		return fmt.Errorf("ROOM_TIMEOUT and ROOM_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// TelephonyConfigured reports whether outbound calling is usable.
func (c *Config) TelephonyConfigured() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
