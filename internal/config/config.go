// Package config provides configuration loading for mnemod.
//
// Configuration is loaded from a YAML file, then overridden by environment
// variables. Every section carries defaults that produce a fully embedded
// deployment (sqlite + in-memory graph + chromem) with no external services.
package config

import (
	"fmt"
	"time"
)

// Config holds the complete mnemod configuration.
type Config struct {
	Relational    RelationalConfig    `koanf:"relational"`
	Graph         GraphConfig         `koanf:"graph"`
	Vector        VectorConfig        `koanf:"vector"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Storage       StorageConfig       `koanf:"storage"`
	Permissions   PermissionsConfig   `koanf:"permissions"`
	Deletion      DeletionConfig      `koanf:"deletion"`
	Maintenance   MaintenanceConfig   `koanf:"maintenance"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// RelationalConfig holds metadata store configuration.
type RelationalConfig struct {
	// Provider selects the backend: "sqlite" or "postgres".
	Provider string `koanf:"provider"`

	// Path is the sqlite database file. Ignored for postgres.
	Path string `koanf:"path"`

	// DSN is the postgres connection string. Ignored for sqlite.
	DSN Secret `koanf:"dsn"`
}

// GraphConfig holds graph store configuration.
type GraphConfig struct {
	// Provider selects the backend: "memory" or "neo4j".
	Provider string `koanf:"provider"`

	Neo4j Neo4jConfig `koanf:"neo4j"`
}

// Neo4jConfig holds Neo4j driver configuration.
type Neo4jConfig struct {
	URI      string `koanf:"uri"`
	Username string `koanf:"username"`
	Password Secret `koanf:"password"`

	// Database is the default database when no tenant routing applies.
	Database string `koanf:"database"`
}

// VectorConfig holds vector store configuration.
type VectorConfig struct {
	// Provider selects the backend: "chromem" or "qdrant".
	Provider string `koanf:"provider"`

	// VectorSize is the embedding dimension. Must match the embedder.
	VectorSize int `koanf:"vector_size"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded chromem-go configuration.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig holds Qdrant gRPC client configuration.
type QdrantConfig struct {
	Host   string `koanf:"host"`
	Port   int    `koanf:"port"`
	UseTLS bool   `koanf:"use_tls"`
	APIKey Secret `koanf:"api_key"`
}

// EmbeddingsConfig holds embedding client configuration.
type EmbeddingsConfig struct {
	BaseURL string   `koanf:"base_url"`
	Model   string   `koanf:"model"`
	APIKey  Secret   `koanf:"api_key"`
	Timeout Duration `koanf:"timeout"`
}

// StorageConfig holds raw-data blob storage configuration.
type StorageConfig struct {
	// Provider selects the backend: "local" or "s3".
	Provider string `koanf:"provider"`

	// Root is the local storage directory. Ignored for s3.
	Root string `koanf:"root"`

	S3 S3Config `koanf:"s3"`
}

// S3Config holds S3 blob storage configuration.
type S3Config struct {
	Bucket   string `koanf:"bucket"`
	Region   string `koanf:"region"`
	Endpoint string `koanf:"endpoint"`
}

// PermissionsConfig holds access-control configuration.
type PermissionsConfig struct {
	// BackendIsolation routes each dataset to its own graph database and
	// vector namespace.
	BackendIsolation bool `koanf:"backend_isolation"`
}

// DeletionConfig holds deletion orchestrator configuration.
type DeletionConfig struct {
	// BatchConcurrency bounds parallel per-item deletes when emptying a
	// dataset.
	BatchConcurrency int `koanf:"batch_concurrency"`
}

// MaintenanceConfig holds unused-data pruning configuration.
type MaintenanceConfig struct {
	// TrackAccess enables last-access stamping on data reads. The pruner
	// refuses to run while this is off, since rows without timestamps
	// would all qualify as unused.
	TrackAccess bool `koanf:"track_access"`
}

// LoggingConfig holds the log level and format; the logging package maps it
// onto its full config.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`
	Endpoint        string `koanf:"endpoint"`
}

// NewDefaultConfig returns a Config with all defaults applied. The result
// runs fully embedded: sqlite metadata, in-memory graph, chromem vectors,
// local file storage.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Relational.Provider == "" {
		cfg.Relational.Provider = "sqlite"
	}
	if cfg.Relational.Path == "" {
		cfg.Relational.Path = "~/.config/mnemod/mnemod.db"
	}

	if cfg.Graph.Provider == "" {
		cfg.Graph.Provider = "memory"
	}
	if cfg.Graph.Neo4j.URI == "" {
		cfg.Graph.Neo4j.URI = "bolt://localhost:7687"
	}
	if cfg.Graph.Neo4j.Username == "" {
		cfg.Graph.Neo4j.Username = "neo4j"
	}
	if cfg.Graph.Neo4j.Database == "" {
		cfg.Graph.Neo4j.Database = "neo4j"
	}

	if cfg.Vector.Provider == "" {
		cfg.Vector.Provider = "chromem"
	}
	if cfg.Vector.VectorSize == 0 {
		cfg.Vector.VectorSize = 384 // bge-small-en-v1.5 dimensions
	}
	if cfg.Vector.Chromem.Path == "" {
		cfg.Vector.Chromem.Path = "~/.config/mnemod/vectorstore"
	}
	if cfg.Vector.Qdrant.Host == "" {
		cfg.Vector.Qdrant.Host = "localhost"
	}
	if cfg.Vector.Qdrant.Port == 0 {
		cfg.Vector.Qdrant.Port = 6334
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = "local"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "~/.config/mnemod/storage"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}

	if cfg.Deletion.BatchConcurrency == 0 {
		cfg.Deletion.BatchConcurrency = 8
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "mnemod"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Relational.Provider {
	case "sqlite":
		if c.Relational.Path == "" {
			return fmt.Errorf("relational.path required for sqlite")
		}
	case "postgres":
		if !c.Relational.DSN.IsSet() {
			return fmt.Errorf("relational.dsn required for postgres")
		}
	default:
		return fmt.Errorf("invalid relational.provider: %q (must be sqlite or postgres)", c.Relational.Provider)
	}

	switch c.Graph.Provider {
	case "memory":
	case "neo4j":
		if c.Graph.Neo4j.URI == "" {
			return fmt.Errorf("graph.neo4j.uri required for neo4j")
		}
	default:
		return fmt.Errorf("invalid graph.provider: %q (must be memory or neo4j)", c.Graph.Provider)
	}

	switch c.Vector.Provider {
	case "chromem":
	case "qdrant":
		if c.Vector.Qdrant.Host == "" {
			return fmt.Errorf("vector.qdrant.host required for qdrant")
		}
		if c.Vector.Qdrant.Port < 1 || c.Vector.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid vector.qdrant.port: %d (must be 1-65535)", c.Vector.Qdrant.Port)
		}
	default:
		return fmt.Errorf("invalid vector.provider: %q (must be chromem or qdrant)", c.Vector.Provider)
	}
	if c.Vector.VectorSize <= 0 {
		return fmt.Errorf("vector.vector_size must be positive, got %d", c.Vector.VectorSize)
	}

	switch c.Storage.Provider {
	case "local":
		if c.Storage.Root == "" {
			return fmt.Errorf("storage.root required for local storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket required for s3 storage")
		}
	default:
		return fmt.Errorf("invalid storage.provider: %q (must be local or s3)", c.Storage.Provider)
	}

	if c.Deletion.BatchConcurrency < 1 {
		return fmt.Errorf("deletion.batch_concurrency must be >= 1, got %d", c.Deletion.BatchConcurrency)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging.format: %q (must be json or console)", c.Logging.Format)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return fmt.Errorf("observability.service_name required when telemetry is enabled")
	}

	return nil
}
