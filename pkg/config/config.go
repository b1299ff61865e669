package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all control plane configuration
type Config struct {
	// Process
	ListenAddr string `yaml:"listen_addr"`
	DataDir    string `yaml:"data_dir"`

	// Credential encryption (base64 or raw 32-byte key; see ParseEncryptionKey)
	EncryptionKey string `yaml:"encryption_key"`

	// API authentication
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`

	// Streaming
	BufferSize        int           `yaml:"buffer_size"`
	MaxTotalStreams   int           `yaml:"max_total_streams"`
	StreamIdleTTL     time.Duration `yaml:"stream_idle_ttl"`
	SubscriberQueue   int           `yaml:"subscriber_queue"`
	SendTimeout       time.Duration `yaml:"send_timeout"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// Connection management
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	OperationTimeout    time.Duration `yaml:"operation_timeout"`

	// Circuit breaker
	BreakerFailureThreshold int           `yaml:"breaker_failure_threshold"`
	BreakerRecoveryTimeout  time.Duration `yaml:"breaker_recovery_timeout"`
	BreakerSuccessThreshold int           `yaml:"breaker_success_threshold"`

	// Self-reference detection
	SelfMonitorLabels []string `yaml:"self_monitor_container_labels"`
	SelfMonitorNames  []string `yaml:"self_monitor_container_names"`

	// Permission cache
	PermissionCacheTTL time.Duration `yaml:"permission_cache_ttl"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
}

// Default returns a config populated with the documented defaults
func Default() *Config {
	return &Config{
		ListenAddr:              "127.0.0.1:8400",
		DataDir:                 "/var/lib/dockfleet",
		TokenTTL:                12 * time.Hour,
		BufferSize:              1000,
		MaxTotalStreams:         100,
		StreamIdleTTL:           300 * time.Second,
		SubscriberQueue:         256,
		SendTimeout:             5 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		HealthCheckInterval:     300 * time.Second,
		OperationTimeout:        30 * time.Second,
		BreakerFailureThreshold: 3,
		BreakerRecoveryTimeout:  30 * time.Second,
		BreakerSuccessThreshold: 2,
		SelfMonitorLabels:       []string{"io.dockfleet.control-plane"},
		SelfMonitorNames:        []string{"dockfleet", "dockfleet-server"},
		PermissionCacheTTL:      30 * time.Second,
		LogLevel:                "info",
		LogJSON:                 true,
	}
}

// Load reads configuration from an optional YAML file and applies
// environment variable overrides on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.ListenAddr = getEnvOrDefault("DOCKFLEET_LISTEN_ADDR", c.ListenAddr)
	c.DataDir = getEnvOrDefault("DOCKFLEET_DATA_DIR", c.DataDir)
	c.EncryptionKey = getEnvOrDefault("DOCKFLEET_ENCRYPTION_KEY", c.EncryptionKey)
	c.JWTSecret = getEnvOrDefault("DOCKFLEET_JWT_SECRET", c.JWTSecret)
	c.BufferSize = getEnvInt("DOCKFLEET_BUFFER_SIZE", c.BufferSize)
	c.MaxTotalStreams = getEnvInt("DOCKFLEET_MAX_TOTAL_STREAMS", c.MaxTotalStreams)
	c.StreamIdleTTL = getEnvSeconds("DOCKFLEET_STREAM_IDLE_TTL_SECONDS", c.StreamIdleTTL)
	c.HealthCheckInterval = getEnvSeconds("DOCKFLEET_HEALTH_CHECK_INTERVAL_SECONDS", c.HealthCheckInterval)
	c.BreakerFailureThreshold = getEnvInt("DOCKFLEET_BREAKER_FAILURE_THRESHOLD", c.BreakerFailureThreshold)
	c.BreakerRecoveryTimeout = getEnvSeconds("DOCKFLEET_BREAKER_RECOVERY_SECONDS", c.BreakerRecoveryTimeout)
	c.BreakerSuccessThreshold = getEnvInt("DOCKFLEET_BREAKER_SUCCESS_THRESHOLD", c.BreakerSuccessThreshold)
	if v := os.Getenv("DOCKFLEET_SELF_MONITOR_CONTAINER_LABELS"); v != "" {
		c.SelfMonitorLabels = splitAndTrim(v)
	}
	c.LogLevel = getEnvOrDefault("DOCKFLEET_LOG_LEVEL", c.LogLevel)
	c.LogJSON = getEnvBool("DOCKFLEET_LOG_JSON", c.LogJSON)
}

// Validate checks semantic constraints on the configuration
func (c *Config) Validate() error {
	if c.BufferSize <= 0 {
		return fmt.Errorf("buffer_size must be positive, got %d", c.BufferSize)
	}
	if c.MaxTotalStreams <= 0 {
		return fmt.Errorf("max_total_streams must be positive, got %d", c.MaxTotalStreams)
	}
	if c.SubscriberQueue <= 0 {
		return fmt.Errorf("subscriber_queue must be positive, got %d", c.SubscriberQueue)
	}
	if c.BreakerFailureThreshold <= 0 {
		return fmt.Errorf("breaker_failure_threshold must be positive, got %d", c.BreakerFailureThreshold)
	}
	if c.BreakerSuccessThreshold <= 0 {
		return fmt.Errorf("breaker_success_threshold must be positive, got %d", c.BreakerSuccessThreshold)
	}
	return nil
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns environment variable as boolean
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt returns environment variable as integer
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds returns environment variable (whole seconds) as duration
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return time.Duration(parsed) * time.Second
		}
	}
	return defaultValue
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
