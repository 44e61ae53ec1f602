package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/mnemod/internal/config"
	"github.com/fyrsmithlabs/mnemod/internal/deletion"
	"github.com/fyrsmithlabs/mnemod/internal/embeddings"
	"github.com/fyrsmithlabs/mnemod/internal/filestore"
	"github.com/fyrsmithlabs/mnemod/internal/graphstore"
	"github.com/fyrsmithlabs/mnemod/internal/logging"
	"github.com/fyrsmithlabs/mnemod/internal/maintenance"
	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
	"github.com/fyrsmithlabs/mnemod/internal/telemetry"
	"github.com/fyrsmithlabs/mnemod/internal/tenant"
	"github.com/fyrsmithlabs/mnemod/internal/vectorstore"
)

// app bundles the wired stores and services for one command invocation.
type app struct {
	logger *logging.Logger
	tel    *telemetry.Telemetry

	rel     *relational.Store
	graph   graphstore.Store
	vector  vectorstore.Store
	perms   *permissions.Service
	deleter *deletion.Service
	pruner  *maintenance.Pruner
}

// newApp loads configuration and wires every backend the configured
// providers name.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logger, err := newLogger(cfg, tel)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	zlog := logger.Underlying()

	rel, err := relational.Open(&cfg.Relational, zlog)
	if err != nil {
		return nil, err
	}

	graph, err := newGraphStore(cfg, zlog)
	if err != nil {
		return nil, err
	}

	vector, err := newVectorStore(cfg, zlog)
	if err != nil {
		return nil, err
	}

	files, err := newFileStorage(ctx, cfg, zlog)
	if err != nil {
		return nil, err
	}

	perms := permissions.NewService(rel, zlog)
	router := tenant.NewRouter(cfg.Permissions.BackendIsolation)

	deleter, err := deletion.NewService(deletion.Config{
		BatchConcurrency: cfg.Deletion.BatchConcurrency,
	}, rel, graph, vector, files, perms, router, zlog)
	if err != nil {
		return nil, err
	}

	pruner, err := maintenance.NewPruner(maintenance.Config{
		TrackAccess: cfg.Maintenance.TrackAccess,
	}, rel, deleter, files, perms, zlog)
	if err != nil {
		return nil, err
	}

	return &app{
		logger:  logger,
		tel:     tel,
		rel:     rel,
		graph:   graph,
		vector:  vector,
		perms:   perms,
		deleter: deleter,
		pruner:  pruner,
	}, nil
}

// Close releases backend resources. Failures are logged, not returned; the
// command's work is already done by the time teardown runs.
func (a *app) Close(ctx context.Context) {
	if err := a.vector.Close(); err != nil {
		a.logger.Warn(ctx, "closing vector store", zap.Error(err))
	}
	if err := a.graph.Close(); err != nil {
		a.logger.Warn(ctx, "closing graph store", zap.Error(err))
	}
	if err := a.rel.Close(); err != nil {
		a.logger.Warn(ctx, "closing relational store", zap.Error(err))
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "shutting down telemetry", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// resolveUser returns the acting principal: the --user-id flag when given,
// otherwise the built-in default user.
func (a *app) resolveUser(ctx context.Context) (permissions.User, error) {
	if userIDFlag == "" {
		return a.perms.DefaultUser(ctx)
	}
	id, err := uuid.Parse(userIDFlag)
	if err != nil {
		return permissions.User{}, fmt.Errorf("invalid --user-id: %w", err)
	}
	return permissions.User{ID: id}, nil
}

func newLogger(cfg *config.Config, tel *telemetry.Telemetry) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
	}
	logCfg.Level = level
	logCfg.Format = cfg.Logging.Format
	logCfg.Output.OTEL = cfg.Observability.EnableTelemetry
	return logging.NewLogger(logCfg, tel.LoggerProvider())
}

func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tcfg := telemetry.NewDefaultConfig()
	tcfg.Enabled = cfg.Observability.EnableTelemetry
	tcfg.ServiceVersion = version
	if cfg.Observability.ServiceName != "" {
		tcfg.ServiceName = cfg.Observability.ServiceName
	}
	if cfg.Observability.Endpoint != "" {
		tcfg.Endpoint = cfg.Observability.Endpoint
	}
	return tcfg
}

func newGraphStore(cfg *config.Config, logger *zap.Logger) (graphstore.Store, error) {
	switch cfg.Graph.Provider {
	case "memory":
		return graphstore.NewMemoryStore(cfg.Permissions.BackendIsolation, logger), nil
	case "neo4j":
		return graphstore.NewNeo4jStore(graphstore.Neo4jConfig{
			URI:          cfg.Graph.Neo4j.URI,
			Username:     cfg.Graph.Neo4j.Username,
			Password:     cfg.Graph.Neo4j.Password.Value(),
			Database:     cfg.Graph.Neo4j.Database,
			RequireScope: cfg.Permissions.BackendIsolation,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported graph provider: %q", cfg.Graph.Provider)
	}
}

func newVectorStore(cfg *config.Config, logger *zap.Logger) (vectorstore.Store, error) {
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL:    cfg.Embeddings.BaseURL,
		Model:      cfg.Embeddings.Model,
		APIKey:     cfg.Embeddings.APIKey.Value(),
		Dimensions: cfg.Vector.VectorSize,
		Timeout:    cfg.Embeddings.Timeout.Duration(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	switch cfg.Vector.Provider {
	case "chromem":
		return vectorstore.NewChromemStore(vectorstore.ChromemConfig{
			Path:         cfg.Vector.Chromem.Path,
			Compress:     cfg.Vector.Chromem.Compress,
			VectorSize:   cfg.Vector.VectorSize,
			RequireScope: cfg.Permissions.BackendIsolation,
		}, embedder, logger)
	case "qdrant":
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
			Host:         cfg.Vector.Qdrant.Host,
			Port:         cfg.Vector.Qdrant.Port,
			APIKey:       cfg.Vector.Qdrant.APIKey.Value(),
			UseTLS:       cfg.Vector.Qdrant.UseTLS,
			VectorSize:   cfg.Vector.VectorSize,
			RequireScope: cfg.Permissions.BackendIsolation,
		}, embedder, logger)
	default:
		return nil, fmt.Errorf("unsupported vector provider: %q", cfg.Vector.Provider)
	}
}

func newFileStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (filestore.Storage, error) {
	switch cfg.Storage.Provider {
	case "local":
		return filestore.NewLocalStorage(filestore.LocalConfig{
			Root: cfg.Storage.Root,
		}, logger)
	case "s3":
		return filestore.NewS3Storage(ctx, filestore.S3Config{
			Bucket:   cfg.Storage.S3.Bucket,
			Region:   cfg.Storage.S3.Region,
			Endpoint: cfg.Storage.S3.Endpoint,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported storage provider: %q", cfg.Storage.Provider)
	}
}
