package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// setupTestHome points HOME at a temp dir so tests never touch the real
// user config. Returns the home dir path and a cleanup function.
func setupTestHome(t *testing.T) (string, func()) {
	t.Helper()

	tmpHome := t.TempDir()
	originalHome := os.Getenv("HOME")
	os.Setenv("HOME", tmpHome)

	cleanup := func() {
		if originalHome != "" {
			os.Setenv("HOME", originalHome)
		} else {
			os.Unsetenv("HOME")
		}
	}

	return tmpHome, cleanup
}

// writeTestConfig writes YAML content into the allowed config directory
// with secure permissions and returns the config path.
func writeTestConfig(t *testing.T, home, content string) string {
	t.Helper()

	configDir := filepath.Join(home, ".config", "mnemod")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	return configPath
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `relational:
  provider: sqlite
  path: /tmp/mnemod-test.db

vector:
  provider: qdrant
  vector_size: 768
  qdrant:
    host: qdrant.internal
    port: 6334

embeddings:
  timeout: 45s

observability:
  enable_telemetry: true
  service_name: mnemod-test
`)

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Relational.Path != "/tmp/mnemod-test.db" {
		t.Errorf("Relational.Path = %q, want /tmp/mnemod-test.db", cfg.Relational.Path)
	}
	if cfg.Vector.Provider != "qdrant" {
		t.Errorf("Vector.Provider = %q, want qdrant", cfg.Vector.Provider)
	}
	if cfg.Vector.VectorSize != 768 {
		t.Errorf("Vector.VectorSize = %d, want 768", cfg.Vector.VectorSize)
	}
	if cfg.Vector.Qdrant.Host != "qdrant.internal" {
		t.Errorf("Vector.Qdrant.Host = %q, want qdrant.internal", cfg.Vector.Qdrant.Host)
	}
	if cfg.Embeddings.Timeout.Duration() != 45*time.Second {
		t.Errorf("Embeddings.Timeout = %v, want 45s", cfg.Embeddings.Timeout.Duration())
	}
	if cfg.Observability.ServiceName != "mnemod-test" {
		t.Errorf("Observability.ServiceName = %q, want mnemod-test", cfg.Observability.ServiceName)
	}
	if !cfg.Observability.EnableTelemetry {
		t.Error("Observability.EnableTelemetry = false, want true")
	}
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `vector:
  provider: chromem

observability:
  service_name: yaml-service
`)

	os.Setenv("VECTOR_PROVIDER", "qdrant")
	os.Setenv("VECTOR_QDRANT_HOST", "env-host")
	os.Setenv("OBSERVABILITY_SERVICE_NAME", "env-service")
	defer os.Unsetenv("VECTOR_PROVIDER")
	defer os.Unsetenv("VECTOR_QDRANT_HOST")
	defer os.Unsetenv("OBSERVABILITY_SERVICE_NAME")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() error = %v, want nil", err)
	}

	if cfg.Vector.Provider != "qdrant" {
		t.Errorf("Vector.Provider = %q, want qdrant (from env override)", cfg.Vector.Provider)
	}
	if cfg.Vector.Qdrant.Host != "env-host" {
		t.Errorf("Vector.Qdrant.Host = %q, want env-host (from env override)", cfg.Vector.Qdrant.Host)
	}
	if cfg.Observability.ServiceName != "env-service" {
		t.Errorf("Observability.ServiceName = %q, want env-service (from env override)", cfg.Observability.ServiceName)
	}
}

func TestLoadWithFile_MissingFile(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := filepath.Join(home, ".config", "mnemod", "config.yaml")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() should not error on missing file, got: %v", err)
	}

	// Missing file falls back to defaults.
	if cfg.Relational.Provider != "sqlite" {
		t.Errorf("Relational.Provider = %q, want sqlite default", cfg.Relational.Provider)
	}
	if cfg.Vector.Provider != "chromem" {
		t.Errorf("Vector.Provider = %q, want chromem default", cfg.Vector.Provider)
	}
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `vector:
  provider: [not
  closed
`)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on invalid YAML, got nil")
	}
}

func TestLoadWithFile_Validation(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, `vector:
  provider: pinecone
`)

	if _, err := LoadWithFile(configPath); err == nil {
		t.Error("LoadWithFile() should error on unknown vector provider, got nil")
	}
}

func TestLoadWithFile_PathTraversal(t *testing.T) {
	_, cleanup := setupTestHome(t)
	defer cleanup()

	_, err := LoadWithFile("../../../../etc/passwd")
	if err == nil {
		t.Fatal("Expected error for path traversal, got nil")
	}
	if !strings.Contains(err.Error(), "must be in ~/.config/mnemod/ or /etc/mnemod/") {
		t.Errorf("Expected path validation error, got: %v", err)
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configDir := filepath.Join(home, ".config", "mnemod")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		t.Fatalf("Failed to create config dir: %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for insecure permissions, got nil")
	}
	if !strings.Contains(err.Error(), "permissions") {
		t.Errorf("Expected permissions error, got: %v", err)
	}
}

func TestLoadWithFile_SecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Skipping permission test on Windows")
	}

	home, cleanup := setupTestHome(t)
	defer cleanup()

	configPath := writeTestConfig(t, home, "logging:\n  level: debug\n")

	cfg, err := LoadWithFile(configPath)
	if err != nil {
		t.Fatalf("LoadWithFile() should succeed with 0600 permissions, got error: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	home, cleanup := setupTestHome(t)
	defer cleanup()

	largeContent := bytes.Repeat([]byte("# comment line\n"), 150000)
	configPath := writeTestConfig(t, home, string(largeContent))

	_, err := LoadWithFile(configPath)
	if err == nil {
		t.Fatal("Expected error for large file, got nil")
	}
	if !strings.Contains(err.Error(), "too large") {
		t.Errorf("Expected 'too large' error, got: %v", err)
	}
}

func TestEnvTransformer(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"RELATIONAL_PROVIDER", "relational.provider"},
		{"DELETION_BATCH_CONCURRENCY", "deletion.batch_concurrency"},
		{"GRAPH_NEO4J_URI", "graph.neo4j.uri"},
		{"GRAPH_NEO4J_PASSWORD", "graph.neo4j.password"},
		{"VECTOR_QDRANT_API_KEY", "vector.qdrant.api_key"},
		{"STORAGE_S3_BUCKET", "storage.s3.bucket"},
		{"OBSERVABILITY_ENABLE_TELEMETRY", "observability.enable_telemetry"},
		{"HOME", "home"},
	}

	for _, tt := range tests {
		if got := envTransformer(tt.env); got != tt.want {
			t.Errorf("envTransformer(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}
