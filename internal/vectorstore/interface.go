// Package vectorstore provides vector index storage for data point payloads.
//
// Collections hold embedded data points keyed by string id; one collection
// exists per indexed field (for example DocumentChunk_text or Entity_name).
// Implementations resolve the physical collection name from the tenant scope
// in the context: a scoped operation prefixes the base name with the scope's
// vector namespace, so datasets with backend isolation never share a
// collection.
//
// Deletes are idempotent: removing data points from a missing collection or
// dropping a missing collection is a silent no-op.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrCollectionExists is returned when creating an existing collection.
	ErrCollectionExists = errors.New("collection already exists")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")

	// ErrEmptyDataPoints indicates empty or nil data points.
	ErrEmptyDataPoints = errors.New("empty or nil data points")

	// ErrConnectionFailed indicates backend connection issues.
	ErrConnectionFailed = errors.New("failed to connect to vector store")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")
)

// collectionNamePattern validates base collection names. Names combine a
// node type and an indexed field (EntityType_name), so mixed case is
// allowed; path separators and spaces are not.
var collectionNamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,128}$`)

// ValidateCollectionName validates a base collection name.
func ValidateCollectionName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: collection name cannot be empty", ErrInvalidCollectionName)
	}
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: collection name must match ^[A-Za-z0-9_]{1,128}$, got %q", ErrInvalidCollectionName, name)
	}
	return nil
}

// DataPoint is one embeddable record in a collection.
type DataPoint struct {
	// ID uniquely identifies the point within its collection.
	ID string

	// Text is the content embedded on insert.
	Text string

	// Payload carries additional fields stored alongside the vector.
	Payload map[string]any
}

// ScoredResult is one similarity search hit.
type ScoredResult struct {
	ID      string
	Text    string
	Score   float32
	Payload map[string]any
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name       string `json:"name"`
	PointCount int    `json:"point_count"`
	VectorSize int    `json:"vector_size"`
}

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments generates embeddings for multiple texts, one per input.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the interface for vector index operations.
//
// All methods take base collection names; the implementation applies the
// tenant scope's vector namespace before touching the backend. With
// RequireScope set, operations without a scope in the context fail closed.
//
// Implementations:
//   - ChromemStore: embedded chromem-go (default)
//   - QdrantStore: external Qdrant over gRPC
type Store interface {
	// HasCollection reports whether the collection exists.
	HasCollection(ctx context.Context, collection string) (bool, error)

	// CreateCollection creates a collection sized for the configured
	// embedding dimension. Returns ErrCollectionExists when present.
	CreateCollection(ctx context.Context, collection string) error

	// AddDataPoints embeds and upserts points. The collection is created on
	// first use.
	AddDataPoints(ctx context.Context, collection string, points []DataPoint) error

	// Retrieve fetches points by id, skipping absent ids. Returns
	// ErrCollectionNotFound when the collection does not exist.
	Retrieve(ctx context.Context, collection string, ids []string) ([]DataPoint, error)

	// Search performs similarity search over the collection.
	Search(ctx context.Context, collection, query string, limit int) ([]ScoredResult, error)

	// DeleteDataPoints removes points by id. Missing collections and absent
	// ids are silent no-ops.
	DeleteDataPoints(ctx context.Context, collection string, ids []string) error

	// DeleteCollection drops the collection and its points. Missing
	// collections are a silent no-op.
	DeleteCollection(ctx context.Context, collection string) error

	// ListCollections returns all physical collection names on the backend.
	ListCollections(ctx context.Context) ([]string, error)

	// Prune drops every collection in the current scope's namespace, or
	// every collection when the operation is unscoped.
	Prune(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
