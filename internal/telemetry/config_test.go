package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.False(t, cfg.Enabled) // Disabled by default for new users without OTEL collector
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.Equal(t, "grpc", cfg.Protocol)
	assert.Equal(t, "mnemod", cfg.ServiceName)
	assert.Equal(t, "0.1.0", cfg.ServiceVersion)
	assert.True(t, cfg.Insecure) // Insecure by default for local dev
	assert.Equal(t, 1.0, cfg.Sampling.Rate)
	assert.True(t, cfg.Sampling.AlwaysOnErrors)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 15*time.Second, cfg.Metrics.ExportInterval.Duration())
	assert.Equal(t, 5*time.Second, cfg.Shutdown.Timeout.Duration())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid default config",
			mutate: func(_ *Config) {},
		},
		{
			name: "disabled config skips validation",
			mutate: func(c *Config) {
				c.Enabled = false
				c.Endpoint = ""
			},
		},
		{
			name: "enabled requires endpoint",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = ""
			},
			wantErr: true,
			errMsg:  "endpoint is required",
		},
		{
			name: "enabled requires service name",
			mutate: func(c *Config) {
				c.Enabled = true
				c.ServiceName = ""
			},
			wantErr: true,
			errMsg:  "service_name is required",
		},
		{
			name: "unknown protocol rejected",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Protocol = "carrier-pigeon"
			},
			wantErr: true,
			errMsg:  "protocol",
		},
		{
			name: "insecure remote endpoint rejected",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "otel.example.com:4317"
				c.Insecure = true
			},
			wantErr: true,
			errMsg:  "insecure connections to remote endpoints",
		},
		{
			name: "secure remote endpoint allowed",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Endpoint = "otel.example.com:4317"
				c.Insecure = false
			},
		},
		{
			name: "sampling rate above one rejected",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Sampling.Rate = 1.5
			},
			wantErr: true,
			errMsg:  "sampling.rate",
		},
		{
			name: "negative sampling rate rejected",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Sampling.Rate = -0.1
			},
			wantErr: true,
			errMsg:  "sampling.rate",
		},
		{
			name: "zero export interval rejected when metrics enabled",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Metrics.ExportInterval = 0
			},
			wantErr: true,
			errMsg:  "export_interval",
		},
		{
			name: "zero shutdown timeout rejected",
			mutate: func(c *Config) {
				c.Enabled = true
				c.Shutdown.Timeout = 0
			},
			wantErr: true,
			errMsg:  "shutdown.timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfig_IsLocalEndpoint(t *testing.T) {
	tests := []struct {
		endpoint string
		local    bool
	}{
		{"localhost:4317", true},
		{"127.0.0.1:4317", true},
		{"127.0.0.53:4317", true},
		{"[::1]:4317", true},
		{"[::1]", true},
		{"otel.example.com:4317", false},
		{"10.0.0.5:4317", false},
	}

	for _, tt := range tests {
		t.Run(tt.endpoint, func(t *testing.T) {
			cfg := &Config{Endpoint: tt.endpoint}
			assert.Equal(t, tt.local, cfg.isLocalEndpoint())
		})
	}
}
