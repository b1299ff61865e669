package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1000, cfg.BufferSize)
	assert.Equal(t, 100, cfg.MaxTotalStreams)
	assert.Equal(t, 300*time.Second, cfg.StreamIdleTTL)
	assert.Equal(t, 256, cfg.SubscriberQueue)
	assert.Equal(t, 5*time.Second, cfg.SendTimeout)
	assert.Equal(t, 300*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 3, cfg.BreakerFailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.BreakerRecoveryTimeout)
	assert.Equal(t, 2, cfg.BreakerSuccessThreshold)
	assert.Contains(t, cfg.SelfMonitorLabels, "io.dockfleet.control-plane")
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dockfleet.yaml")
	content := `
listen_addr: "0.0.0.0:9000"
buffer_size: 500
max_total_streams: 20
breaker_failure_threshold: 5
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 500, cfg.BufferSize)
	assert.Equal(t, 20, cfg.MaxTotalStreams)
	assert.Equal(t, 5, cfg.BreakerFailureThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched fields keep their defaults
	assert.Equal(t, 2, cfg.BreakerSuccessThreshold)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/dockfleet.yaml")
	assert.Error(t, err)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dockfleet.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_size: 500\n"), 0600))

	t.Setenv("DOCKFLEET_BUFFER_SIZE", "250")
	t.Setenv("DOCKFLEET_STREAM_IDLE_TTL_SECONDS", "120")
	t.Setenv("DOCKFLEET_BREAKER_RECOVERY_SECONDS", "45")
	t.Setenv("DOCKFLEET_SELF_MONITOR_CONTAINER_LABELS", "io.example.cp, io.example.agent")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.BufferSize)
	assert.Equal(t, 120*time.Second, cfg.StreamIdleTTL)
	assert.Equal(t, 45*time.Second, cfg.BreakerRecoveryTimeout)
	assert.Equal(t, []string{"io.example.cp", "io.example.agent"}, cfg.SelfMonitorLabels)
}

func TestValidateRejectsNonPositiveKnobs(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"buffer_size", func(c *Config) { c.BufferSize = 0 }},
		{"max_total_streams", func(c *Config) { c.MaxTotalStreams = -1 }},
		{"subscriber_queue", func(c *Config) { c.SubscriberQueue = 0 }},
		{"failure_threshold", func(c *Config) { c.BreakerFailureThreshold = 0 }},
		{"success_threshold", func(c *Config) { c.BreakerSuccessThreshold = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestInvalidEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("DOCKFLEET_BUFFER_SIZE", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.BufferSize)
}
