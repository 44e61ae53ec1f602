package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestDuration_UnmarshalText(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "seconds", input: "30s", want: 30 * time.Second},
		{name: "minutes", input: "5m", want: 5 * time.Minute},
		{name: "compound", input: "1h30m", want: 90 * time.Minute},
		{name: "zero", input: "0s", want: 0},
		{name: "negative rejected", input: "-10s", wantErr: true},
		{name: "garbage rejected", input: "soon", wantErr: true},
		{name: "bare number rejected", input: "30", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration
			err := d.UnmarshalText([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Errorf("UnmarshalText(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("UnmarshalText(%q) error = %v, want nil", tt.input, err)
			}
			if d.Duration() != tt.want {
				t.Errorf("Duration = %v, want %v", d.Duration(), tt.want)
			}
		})
	}
}

func TestDuration_RoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	text, err := d.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText() error = %v, want nil", err)
	}
	if string(text) != "1m30s" {
		t.Errorf("MarshalText() = %q, want %q", text, "1m30s")
	}

	var back Duration
	if err := back.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText() error = %v, want nil", err)
	}
	if back != d {
		t.Errorf("round trip = %v, want %v", back, d)
	}
}

func TestSecret_Redaction(t *testing.T) {
	s := Secret("super-sensitive-key")

	if s.Value() != "super-sensitive-key" {
		t.Errorf("Value() = %q, want raw secret", s.Value())
	}
	if s.String() != "[REDACTED]" {
		t.Errorf("String() = %q, want [REDACTED]", s.String())
	}
	if got := fmt.Sprintf("%v", s); got != "[REDACTED]" {
		t.Errorf("%%v = %q, want [REDACTED]", got)
	}
	if got := fmt.Sprintf("%#v", s); strings.Contains(got, "super-sensitive-key") {
		t.Errorf("%%#v leaked secret: %q", got)
	}
}

func TestSecret_EmptyStaysEmpty(t *testing.T) {
	var s Secret
	if s.IsSet() {
		t.Error("IsSet() = true for empty secret, want false")
	}
	if s.String() != "" {
		t.Errorf("String() = %q, want empty", s.String())
	}
}

func TestSecret_JSONRoundTrip(t *testing.T) {
	out, err := json.Marshal(Secret("key-123"))
	if err != nil {
		t.Fatalf("Marshal() error = %v, want nil", err)
	}
	if string(out) != `"[REDACTED]"` {
		t.Errorf("Marshal() = %s, want \"[REDACTED]\"", out)
	}

	var s Secret
	if err := json.Unmarshal([]byte(`"key-456"`), &s); err != nil {
		t.Fatalf("Unmarshal() error = %v, want nil", err)
	}
	if s.Value() != "key-456" {
		t.Errorf("Value() = %q, want key-456", s.Value())
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}

	if cfg.Relational.Provider != "sqlite" {
		t.Errorf("Relational.Provider = %q, want sqlite", cfg.Relational.Provider)
	}
	if cfg.Graph.Provider != "memory" {
		t.Errorf("Graph.Provider = %q, want memory", cfg.Graph.Provider)
	}
	if cfg.Vector.Provider != "chromem" {
		t.Errorf("Vector.Provider = %q, want chromem", cfg.Vector.Provider)
	}
	if cfg.Vector.VectorSize != 384 {
		t.Errorf("Vector.VectorSize = %d, want 384", cfg.Vector.VectorSize)
	}
	if cfg.Storage.Provider != "local" {
		t.Errorf("Storage.Provider = %q, want local", cfg.Storage.Provider)
	}
	if cfg.Deletion.BatchConcurrency != 8 {
		t.Errorf("Deletion.BatchConcurrency = %d, want 8", cfg.Deletion.BatchConcurrency)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
	if cfg.Observability.ServiceName != "mnemod" {
		t.Errorf("Observability.ServiceName = %q, want mnemod", cfg.Observability.ServiceName)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults valid",
			mutate: func(_ *Config) {},
		},
		{
			name:    "unknown relational provider",
			mutate:  func(c *Config) { c.Relational.Provider = "oracle" },
			wantErr: "relational.provider",
		},
		{
			name: "postgres requires dsn",
			mutate: func(c *Config) {
				c.Relational.Provider = "postgres"
				c.Relational.DSN = ""
			},
			wantErr: "relational.dsn",
		},
		{
			name:    "unknown graph provider",
			mutate:  func(c *Config) { c.Graph.Provider = "janus" },
			wantErr: "graph.provider",
		},
		{
			name: "neo4j requires uri",
			mutate: func(c *Config) {
				c.Graph.Provider = "neo4j"
				c.Graph.Neo4j.URI = ""
			},
			wantErr: "graph.neo4j.uri",
		},
		{
			name:    "unknown vector provider",
			mutate:  func(c *Config) { c.Vector.Provider = "pinecone" },
			wantErr: "vector.provider",
		},
		{
			name:    "vector size must be positive",
			mutate:  func(c *Config) { c.Vector.VectorSize = 0 },
			wantErr: "vector.vector_size",
		},
		{
			name: "qdrant requires host",
			mutate: func(c *Config) {
				c.Vector.Provider = "qdrant"
				c.Vector.Qdrant.Host = ""
			},
			wantErr: "vector.qdrant.host",
		},
		{
			name: "s3 requires bucket",
			mutate: func(c *Config) {
				c.Storage.Provider = "s3"
				c.Storage.S3.Bucket = ""
			},
			wantErr: "storage.s3.bucket",
		},
		{
			name:    "batch concurrency must be positive",
			mutate:  func(c *Config) { c.Deletion.BatchConcurrency = 0 },
			wantErr: "deletion.batch_concurrency",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}
