package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// qdrantTracer for OpenTelemetry instrumentation.
var qdrantTracer = otel.Tracer("mnemod.vectorstore.qdrant")

// payloadTextKey and payloadIDKey are the reserved payload fields carrying
// the embedded text and the caller-supplied point id. Every delete and
// retrieve filters on payloadIDKey, so points stay addressable even when
// the caller id is not a UUID Qdrant accepts as a native point id.
const (
	payloadTextKey = "text"
	payloadIDKey   = "id"
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address. Default: "localhost".
	Host string

	// Port is the Qdrant gRPC port, not the HTTP REST port.
	// Default: 6334.
	Port int

	// APIKey authenticates against managed Qdrant. Optional.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// VectorSize is the dimensionality of embeddings. Must match the
	// embedder's output dimension. Default: 384.
	VectorSize int

	// MaxRetries caps retries of transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubling per retry.
	// Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB.
	MaxMessageSize int

	// RequireScope fails operations without a routing scope in the context
	// instead of using unprefixed collection names.
	RequireScope bool
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 384
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return nil
}

// isNotFound reports whether a gRPC error carries codes.NotFound, which
// Qdrant returns for missing collections.
func isNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// isTransient reports whether an error is worth retrying.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store against an external Qdrant server over
// native gRPC (binary protobuf, no HTTP payload limits).
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
}

// NewQdrantStore connects to Qdrant and performs a health check.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, insecure for production")
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant vector store ready",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Int("vector_size", config.VectorSize),
	)
	return store, nil
}

func (s *QdrantStore) scopedName(ctx context.Context, base string) (string, error) {
	return scopedCollectionName(ctx, s.config.RequireScope, base)
}

func (s *QdrantStore) scopePrefix(ctx context.Context) (string, error) {
	return scopeNamespacePrefix(ctx, s.config.RequireScope)
}

// retry runs an operation with exponential backoff on transient errors.
func (s *QdrantStore) retry(ctx context.Context, name string, operation func() error) error {
	backoff := s.config.RetryBackoff
	for attempt := 0; ; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// HasCollection reports whether the collection exists.
func (s *QdrantStore) HasCollection(ctx context.Context, collection string) (bool, error) {
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return false, err
	}

	var exists bool
	err = s.retry(ctx, "collection_exists", func() error {
		ok, err := s.client.CollectionExists(ctx, name)
		if err != nil {
			return err
		}
		exists = ok
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", name, err)
	}
	return exists, nil
}

// CreateCollection creates a collection sized for the configured embedding
// dimension.
func (s *QdrantStore) CreateCollection(ctx context.Context, collection string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.CreateCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return ErrCollectionExists
	}

	err = s.retry(ctx, "create_collection", func() error {
		return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(s.config.VectorSize),
				Distance: qdrant.Distance_Cosine,
			}),
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("creating collection %s: %w", name, err)
	}

	s.logger.Debug("created qdrant collection", zap.String("collection", name))
	return nil
}

// AddDataPoints embeds and upserts points, creating the collection on first
// use.
func (s *QdrantStore) AddDataPoints(ctx context.Context, collection string, points []DataPoint) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDataPoints")
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

	exists, err := s.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.CreateCollection(ctx, collection); err != nil && err != ErrCollectionExists {
			return err
		}
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

	qdrantPoints := make([]*qdrant.PointStruct, len(points))
	for i, point := range points {
		payload := make(map[string]*qdrant.Value, len(point.Payload)+2)
		payload[payloadIDKey] = qdrant.NewValueString(point.ID)
		payload[payloadTextKey] = qdrant.NewValueString(point.Text)
		for k, v := range point.Payload {
			payload[k] = valueFromAny(v)
		}
		qdrantPoints[i] = &qdrant.PointStruct{
			Id:      pointID(point.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payload,
		}
	}

	err = s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: name,
			Points:         qdrantPoints,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to %s: %w", name, err)
	}

	s.logger.Debug("added data points to qdrant",
		zap.String("collection", name),
		zap.Int("count", len(points)),
	)
	return nil
}

// idFilter matches points whose payload id is in the given set.
func idFilter(ids []string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key: payloadIDKey,
						Match: &qdrant.Match{
							MatchValue: &qdrant.Match_Keywords{
								Keywords: &qdrant.RepeatedStrings{Strings: ids},
							},
						},
					},
				},
			},
		},
	}
}

// Retrieve fetches points by id, skipping absent ids.
func (s *QdrantStore) Retrieve(ctx context.Context, collection string, ids []string) ([]DataPoint, error) {
	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	var records []*qdrant.RetrievedPoint
	err = s.retry(ctx, "scroll", func() error {
		res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: name,
			Filter:         idFilter(ids),
			Limit:          qdrant.PtrOf(uint32(len(ids))),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		records = res
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCollectionNotFound
		}
		return nil, fmt.Errorf("retrieving points from %s: %w", name, err)
	}

	points := make([]DataPoint, 0, len(records))
	for _, record := range records {
		points = append(points, dataPointFromPayload(record.Payload))
	}
	return points, nil
}

// Search performs similarity search over the collection.
func (s *QdrantStore) Search(ctx context.Context, collection, query string, limit int) ([]ScoredResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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

	queryVector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var results []*qdrant.ScoredPoint
	err = s.retry(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: name,
			Query:          qdrant.NewQuery(queryVector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		results = res
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrCollectionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", name, err)
	}

	scored := make([]ScoredResult, len(results))
	for i, point := range results {
		dp := dataPointFromPayload(point.Payload)
		scored[i] = ScoredResult{
			ID:      dp.ID,
			Text:    dp.Text,
			Score:   point.Score,
			Payload: dp.Payload,
		}
	}
	span.SetAttributes(attribute.Int("results_count", len(scored)))
	return scored, nil
}

// DeleteDataPoints removes points by id. Missing collections and absent ids
// are silent no-ops.
func (s *QdrantStore) DeleteDataPoints(ctx context.Context, collection string, ids []string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteDataPoints")
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

	err = s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: name,
			Points: &qdrant.PointsSelector{
				PointsSelectorOneOf: &qdrant.PointsSelector_Filter{
					Filter: idFilter(ids),
				},
			},
			Wait: qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		if isNotFound(err) {
			s.logger.Debug("delete skipped, collection not found", zap.String("collection", name))
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting points from %s: %w", name, err)
	}

	s.logger.Debug("deleted data points from qdrant",
		zap.String("collection", name),
		zap.Int("count", len(ids)),
	)
	return nil
}

// DeleteCollection drops the collection. Missing collections are a no-op.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	name, err := s.scopedName(ctx, collection)
	if err != nil {
		return err
	}

	err = s.retry(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", name, err)
	}

	s.logger.Debug("deleted qdrant collection", zap.String("collection", name))
	return nil
}

// ListCollections returns all physical collection names.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	var collections []string
	err := s.retry(ctx, "list_collections", func() error {
		res, err := s.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		collections = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing collections: %w", err)
	}
	return collections, nil
}

// Prune drops every collection in the current scope's namespace, or every
// collection when unscoped.
func (s *QdrantStore) Prune(ctx context.Context) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Prune")
	defer span.End()

	prefix, err := s.scopePrefix(ctx)
	if err != nil {
		return err
	}
	collections, err := s.ListCollections(ctx)
	if err != nil {
		return err
	}

	dropped := 0
	for _, name := range collections {
		if prefix != "" && !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := s.client.DeleteCollection(ctx, name); err != nil && !isNotFound(err) {
			span.RecordError(err)
			return fmt.Errorf("pruning collection %s: %w", name, err)
		}
		dropped++
	}

	span.SetAttributes(attribute.Int("collections_dropped", dropped))
	s.logger.Info("pruned qdrant collections",
		zap.Int("dropped", dropped),
		zap.String("prefix", prefix),
	)
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// pointID maps a caller id onto a Qdrant point id. Non-UUID ids hash onto a
// deterministic UUID so re-adding the same id overwrites the same point;
// the caller id stays authoritative in the payload.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

// valueFromAny converts a payload value to a Qdrant value.
func valueFromAny(v any) *qdrant.Value {
	switch val := v.(type) {
	case string:
		return qdrant.NewValueString(val)
	case int:
		return qdrant.NewValueInt(int64(val))
	case int64:
		return qdrant.NewValueInt(val)
	case float64:
		return qdrant.NewValueDouble(val)
	case bool:
		return qdrant.NewValueBool(val)
	default:
		return qdrant.NewValueString(fmt.Sprintf("%v", val))
	}
}

// dataPointFromPayload rebuilds a DataPoint from a stored payload.
func dataPointFromPayload(payload map[string]*qdrant.Value) DataPoint {
	point := DataPoint{}
	for k, v := range payload {
		var value any
		switch val := v.Kind.(type) {
		case *qdrant.Value_StringValue:
			value = val.StringValue
		case *qdrant.Value_IntegerValue:
			value = val.IntegerValue
		case *qdrant.Value_DoubleValue:
			value = val.DoubleValue
		case *qdrant.Value_BoolValue:
			value = val.BoolValue
		default:
			continue
		}
		switch k {
		case payloadIDKey:
			point.ID, _ = value.(string)
		case payloadTextKey:
			point.Text, _ = value.(string)
		default:
			if point.Payload == nil {
				point.Payload = make(map[string]any)
			}
			point.Payload[k] = value
		}
	}
	return point
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
