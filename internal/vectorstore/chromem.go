package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// chromemTracer for OpenTelemetry instrumentation.
var chromemTracer = otel.Tracer("mnemod.vectorstore.chromem")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/mnemod/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// VectorSize is the expected embedding dimension. Must match the
	// embedder's output dimension. Default: 384.
	VectorSize int

	// RequireScope fails operations without a routing scope in the context
	// instead of using unprefixed collection names.
	RequireScope bool
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/mnemod/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore implements Store using chromem-go, an embeddable pure-Go
// vector database with gob-file persistence. No external service needed.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
}

// NewChromemStore creates a ChromemStore with the given configuration.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	expandedPath, err := expandChromemPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(expandedPath, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", expandedPath, err)
	}

	db, err := chromem.NewPersistentDB(expandedPath, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	logger.Info("chromem vector store ready",
		zap.String("path", expandedPath),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
	)
	return store, nil
}

// expandChromemPath expands ~ to the home directory.
func expandChromemPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// scopedName resolves the physical collection name for a base name.
func (s *ChromemStore) scopedName(ctx context.Context, base string) (string, error) {
	return scopedCollectionName(ctx, s.config.RequireScope, base)
}

// scopePrefix resolves the namespace prefix pruning is restricted to.
func (s *ChromemStore) scopePrefix(ctx context.Context) (string, error) {
	return scopeNamespacePrefix(ctx, s.config.RequireScope)
}

// embeddingFunc adapts the Embedder to chromem's per-collection function.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// HasCollection reports whether the collection exists.
func (s *ChromemStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return false, err
	}
	// Passing the embedding func matters: chromem-go installs an OpenAI
	// default embedder on nil for persisted collections.
	return s.db.GetCollection(name, s.embeddingFunc()) != nil, nil
}

// CreateCollection creates a collection. Returns ErrCollectionExists when
// already present.
func (s *ChromemStore) CreateCollection(ctx context.Context, collection string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	if existing := s.db.GetCollection(name, s.embeddingFunc()); existing != nil {
		return ErrCollectionExists
	}
	if _, err := s.db.CreateCollection(name, nil, s.embeddingFunc()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.logger.Debug("created chromem collection", zap.String("collection", name))
	return nil
}

// AddDataPoints embeds and upserts points, creating the collection on first
// use.
func (s *ChromemStore) AddDataPoints(ctx context.Context, collection string, points []DataPoint) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDataPoints")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("point_count", len(points)),
	)

	if len(points) == 0 {
		return ErrEmptyDataPoints
	}
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("getting/creating collection %s: %w", name, err)
	}

	texts := make([]string, len(points))
	for i, point := range points {
		if point.ID == "" {
			return fmt.Errorf("%w: data point at index %d has no id", ErrEmptyDataPoints, i)
		}
		texts[i] = point.Text
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(points) {
		return fmt.Errorf("%w: got %d embeddings for %d points", ErrEmbeddingFailed, len(embeddings), len(points))
	}

	docs := make([]chromem.Document, len(points))
	for i, point := range points {
		docs[i] = chromem.Document{
			ID:        point.ID,
			Content:   point.Text,
			Metadata:  payloadToMetadata(point.Payload),
			Embedding: embeddings[i],
		}
	}
	// Concurrency 1: the embeddings are already computed.
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding data points: %w", err)
	}

	s.logger.Debug("added data points to chromem",
		zap.String("collection", name),
		zap.Int("count", len(points)),
	)
	return nil
}

// Retrieve fetches points by id, skipping absent ids.
func (s *ChromemStore) Retrieve(ctx context.Context, collection string, ids []string) ([]DataPoint, error) {
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return nil, err
	}

	col := s.db.GetCollection(name, s.embeddingFunc())
	if col == nil {
		return nil, ErrCollectionNotFound
	}

	points := make([]DataPoint, 0, len(ids))
	for _, id := range ids {
		doc, err := col.GetByID(ctx, id)
		if err != nil {
			// chromem errors here only for absent ids.
			continue
		}
		points = append(points, DataPoint{
			ID:      doc.ID,
			Text:    doc.Content,
			Payload: metadataToPayload(doc.Metadata),
		})
	}
	return points, nil
}

// Search performs similarity search over the collection.
func (s *ChromemStore) Search(ctx context.Context, collection, query string, limit int) ([]ScoredResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("limit", limit),
	)

	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return nil, err
	}

	col := s.db.GetCollection(name, s.embeddingFunc())
	if col == nil {
		span.SetStatus(codes.Error, "collection not found")
		return nil, ErrCollectionNotFound
	}

	// chromem requires nResults <= document count.
	count := col.Count()
	if count == 0 {
		return []ScoredResult{}, nil
	}
	if limit > count {
		limit = count
	}

	results, err := col.Query(ctx, query, limit, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", name, err)
	}

	scored := make([]ScoredResult, len(results))
	for i, r := range results {
		scored[i] = ScoredResult{
			ID:      r.ID,
			Text:    r.Content,
			Score:   r.Similarity,
			Payload: metadataToPayload(r.Metadata),
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(scored)))
	return scored, nil
}

// DeleteDataPoints removes points by id. Missing collections and absent ids
// are silent no-ops.
func (s *ChromemStore) DeleteDataPoints(ctx context.Context, collection string, ids []string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteDataPoints")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("id_count", len(ids)),
	)

	if len(ids) == 0 {
		return nil
	}
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	col := s.db.GetCollection(name, s.embeddingFunc())
	if col == nil {
		s.logger.Debug("delete skipped, collection not found", zap.String("collection", name))
		return nil
	}

	if err := col.Delete(ctx, nil, nil, ids...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting data points from %s: %w", name, err)
	}

	s.logger.Debug("deleted data points from chromem",
		zap.String("collection", name),
		zap.Int("count", len(ids)),
	)
	return nil
}

// DeleteCollection drops the collection. Missing collections are a no-op.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collection string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	s.logger.Debug("deleted chromem collection", zap.String("collection", name))
	return nil
}

// ListCollections returns all physical collection names.
func (s *ChromemStore) ListCollections(ctx context.Context) ([]string, error) {
	collections := s.db.ListCollections()
	names := make([]string, 0, len(collections))
	for name := range collections {
		names = append(names, name)
	}
	return names, nil
}

// Prune drops every collection in the current scope's namespace, or every
// collection when unscoped.
func (s *ChromemStore) Prune(ctx context.Context) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Prune")
	defer span.End()

	prefix, err := s.scopePrefix(ctx)
	if err != nil {
		return err
	}

	dropped := 0
	for name := range s.db.ListCollections() {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := s.db.DeleteCollection(name); err != nil {
			span.RecordError(err)
			return fmt.Errorf("pruning collection %s: %w", name, err)
		}
		dropped++
	}

	span.SetAttributes(attribute.Int("collections_dropped", dropped))
	s.logger.Info("pruned chromem collections",
		zap.Int("dropped", dropped),
		zap.String("prefix", prefix),
	)
	return nil
}

// Close releases nothing; chromem persists on write.
func (s *ChromemStore) Close() error {
	return nil
}

// payloadToMetadata converts a payload to chromem's string metadata.
func payloadToMetadata(payload map[string]any) map[string]string {
	if payload == nil {
		return nil
	}
	result := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			result[k] = val
		case int:
			result[k] = fmt.Sprintf("%d", val)
		case int64:
			result[k] = fmt.Sprintf("%d", val)
		case float64:
			result[k] = fmt.Sprintf("%f", val)
		case bool:
			result[k] = fmt.Sprintf("%t", val)
		default:
			result[k] = fmt.Sprintf("%v", val)
		}
	}
	return result
}

// metadataToPayload converts chromem string metadata back to a payload.
func metadataToPayload(metadata map[string]string) map[string]any {
	if metadata == nil {
		return nil
	}
	result := make(map[string]any, len(metadata))
	for k, v := range metadata {
		result[k] = v
	}
	return result
}

// Ensure ChromemStore implements Store.
var _ Store = (*ChromemStore)(nil)
