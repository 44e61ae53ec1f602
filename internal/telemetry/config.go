package telemetry

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/mnemod/internal/config"
)

// Config controls OTLP export for a mnemod process.
type Config struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	// Protocol picks the OTLP transport: "grpc" (default) or "http/protobuf".
	Protocol       string `koanf:"protocol"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
	// Insecure disables TLS entirely. Local collectors only; Validate
	// rejects it for remote endpoints.
	Insecure bool `koanf:"insecure"`
	// TLSSkipVerify keeps TLS but skips certificate verification, for
	// collectors behind internal CAs.
	TLSSkipVerify bool           `koanf:"tls_skip_verify"`
	Sampling      SamplingConfig `koanf:"sampling"`
	Metrics       MetricsConfig  `koanf:"metrics"`
	Shutdown      ShutdownConfig `koanf:"shutdown"`
}

// SamplingConfig controls what fraction of traces is kept.
type SamplingConfig struct {
	// Rate is the head-sampling ratio, 0.0 to 1.0.
	Rate float64 `koanf:"rate"`
	// AlwaysOnErrors keeps error traces regardless of Rate.
	AlwaysOnErrors bool `koanf:"always_on_errors"`
}

// MetricsConfig controls the periodic metric reader.
type MetricsConfig struct {
	Enabled        bool            `koanf:"enabled"`
	ExportInterval config.Duration `koanf:"export_interval"`
}

// ShutdownConfig bounds how long Shutdown waits on the collector.
type ShutdownConfig struct {
	Timeout config.Duration `koanf:"timeout"`
}

// NewDefaultConfig returns defaults suitable for a local collector.
//
// Export is off until the operator opts in; most installs have no collector
// listening and a dead endpoint would stall every command at exit. Insecure
// is on because the default endpoint is loopback.
func NewDefaultConfig() *Config {
	return &Config{
		Enabled:        false,
		Endpoint:       "localhost:4317",
		Protocol:       protocolGRPC,
		ServiceName:    "mnemod",
		ServiceVersion: "0.1.0",
		Insecure:       true,
		Sampling: SamplingConfig{
			Rate:           1.0,
			AlwaysOnErrors: true,
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			ExportInterval: config.Duration(15 * time.Second),
		},
		Shutdown: ShutdownConfig{
			Timeout: config.Duration(5 * time.Second),
		},
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Endpoint == "" {
		return fmt.Errorf("endpoint is required when telemetry is enabled")
	}
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required when telemetry is enabled")
	}
	if c.ServiceVersion == "" {
		return fmt.Errorf("service_version is required when telemetry is enabled")
	}

	switch c.Protocol {
	case "", protocolGRPC, protocolHTTP:
	default:
		return fmt.Errorf("protocol must be grpc or http/protobuf, got %q", c.Protocol)
	}

	// Plaintext export of dataset ids and node names across a network is
	// never acceptable.
	if c.Insecure && !c.isLocalEndpoint() {
		return fmt.Errorf("insecure connections to remote endpoints are not allowed; set insecure=false for TLS or use a local endpoint (localhost/127.0.0.1)")
	}

	if c.Sampling.Rate < 0 || c.Sampling.Rate > 1 {
		return fmt.Errorf("sampling.rate must be between 0 and 1, got %f", c.Sampling.Rate)
	}
	if c.Metrics.Enabled && c.Metrics.ExportInterval.Duration() <= 0 {
		return fmt.Errorf("metrics.export_interval must be positive when metrics enabled")
	}
	if c.Shutdown.Timeout.Duration() <= 0 {
		return fmt.Errorf("shutdown.timeout must be positive")
	}

	return nil
}

// protocol returns the configured transport, defaulting to gRPC.
func (c *Config) protocol() string {
	if c.Protocol == "" {
		return protocolGRPC
	}
	return c.Protocol
}

// isLocalEndpoint reports whether the endpoint resolves to loopback.
// Handles host:port, bare hosts, and bracketed IPv6.
func (c *Config) isLocalEndpoint() bool {
	host, _, err := net.SplitHostPort(c.Endpoint)
	if err != nil {
		// No port, or an unbracketed IPv6 literal.
		host = strings.Trim(c.Endpoint, "[]")
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
