// Package config provides environment configuration for the widget agent.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the agent.
type Config struct {
	// Local UI boundary
	ListenAddr         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Session API
	APIBaseURL     string
	RequestTimeout time.Duration
	PollTimeout    time.Duration
	PollInterval   time.Duration

	// Widget identity
	TenantID       string
	WidgetConfigID string
	Channel        string
	WidgetSecret   string
	UserAgent      string
	ReferrerURL    string

	// Push channel (NATS)
	PushEnabled           bool
	NATSURL               string
	NATSCAFile            string
	NATSCertFile          string
	NATSKeyFile           string
	NATSToken             string
	PushSubscribeAttempts int
	PushSubscribeDelay    time.Duration

	// Offline handling
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
	FlushSpacing  time.Duration

	// Persisted state
	StatePath string

	// Rate limiting (local boundary)
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Local UI boundary
		ListenAddr:         getEnv("LISTEN_ADDR", "127.0.0.1:8090"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),

		// Session API
		APIBaseURL:     getEnv("API_BASE_URL", "http://localhost:8080"),
		RequestTimeout: getDurationEnv("REQUEST_TIMEOUT", 45*time.Second),
		PollTimeout:    getDurationEnv("POLL_TIMEOUT", 15*time.Second),
		PollInterval:   getDurationEnv("POLL_INTERVAL", 3*time.Second),

		// Widget identity
		TenantID:       getEnv("TENANT_ID", ""),
		WidgetConfigID: getEnv("WIDGET_CONFIG_ID", ""),
		Channel:        getEnv("CHANNEL", "widget"),
		WidgetSecret:   getEnv("WIDGET_SECRET", ""),
		UserAgent:      getEnv("WIDGET_USER_AGENT", "widget-agent/1.0"),
		ReferrerURL:    getEnv("WIDGET_REFERRER_URL", ""),

		// Push channel
		PushEnabled:           getBoolEnv("PUSH_ENABLED", true),
		NATSURL:               getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:            getEnv("NATS_CA_FILE", ""),
		NATSCertFile:          getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:           getEnv("NATS_KEY_FILE", ""),
		NATSToken:             getEnv("NATS_TOKEN", ""),
		PushSubscribeAttempts: getIntEnv("PUSH_SUBSCRIBE_ATTEMPTS", 5),
		PushSubscribeDelay:    getDurationEnv("PUSH_SUBSCRIBE_DELAY", 2*time.Second),

		// Offline handling
		ProbeInterval: getDurationEnv("PROBE_INTERVAL", 30*time.Second),
		ProbeTimeout:  getDurationEnv("PROBE_TIMEOUT", 5*time.Second),
		FlushSpacing:  getDurationEnv("FLUSH_SPACING", time.Second),

		// Persisted state
		StatePath: getEnv("STATE_PATH", "data/widget-state.db"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
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
