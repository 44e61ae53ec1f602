// Package graphstore defines the interface for knowledge graph storage.
//
// Nodes are keyed by the string form of their deterministic identity; edges
// carry no stored id of their own. Deleting an absent node is a no-op on
// every implementation, which is what makes retried deletions safe.
package graphstore

import (
	"context"
	"errors"
)

// Sentinel errors for graph store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConnectionFailed indicates the graph database is unreachable.
	ErrConnectionFailed = errors.New("failed to connect to graph database")

	// ErrInvalidNodeType is returned for degree queries on unsupported types.
	ErrInvalidNodeType = errors.New("node type must be Entity or EntityType")
)

// Node types produced by ingestion.
const (
	NodeTypeEntity        = "Entity"
	NodeTypeEntityType    = "EntityType"
	NodeTypeDocumentChunk = "DocumentChunk"
	NodeTypeTextDocument  = "TextDocument"
	NodeTypePdfDocument   = "PdfDocument"
	NodeTypeTextSummary   = "TextSummary"
)

// Relationship names the deletion subsystem reasons about.
const (
	RelationshipIsPartOf   = "is_part_of"
	RelationshipContains   = "contains"
	RelationshipIsA        = "is_a"
	RelationshipInstanceOf = "instance_of"
	RelationshipMadeFrom   = "made_from"
)

// DocumentName is the graph node name of a document with the given content
// hash. Document subgraph probes look nodes up by this name.
func DocumentName(contentHash string) string {
	return "text_" + contentHash
}

// Node is one graph node.
type Node struct {
	// ID is the string form of the node's deterministic identity.
	ID string

	// Name is the human-readable node name. Documents are named by
	// DocumentName.
	Name string

	// Type is one of the NodeType constants.
	Type string

	// Properties holds any further attributes, including index_fields.
	Properties map[string]any
}

// Edge connects two nodes. Both endpoints must exist; edges referencing
// absent nodes are dropped on write.
type Edge struct {
	SourceID         string
	TargetID         string
	RelationshipName string
	Properties       map[string]any
}

// Connection is one (source, edge, target) triple incident to a queried
// node. Direction is preserved: Source is always the edge's source.
type Connection struct {
	Source *Node
	Edge   *Edge
	Target *Node
}

// DocumentSubgraph groups the nodes removed when deleting one document. The
// field order is the deletion order: summaries reference chunks and chunks
// reference the document, so later categories must outlive earlier ones.
type DocumentSubgraph struct {
	// OrphanEntities are entities contained only by this document's chunks.
	OrphanEntities []*Node

	// OrphanTypes are entity types classifying only orphan entities.
	OrphanTypes []*Node

	// MadeFromNodes are summaries derived from this document's chunks.
	MadeFromNodes []*Node

	// Chunks are the document's text chunks.
	Chunks []*Node

	// Document is the document node itself.
	Document []*Node
}

// Store is the interface for knowledge graph operations.
//
// Implementations are tenant-aware: they read the routing scope from the
// context and target the named graph database. With no scope present they
// fall back to a shared default database, unless scope enforcement is on,
// in which case they fail closed.
//
// Implementations:
//   - MemoryStore: embedded in-process graph (default)
//   - Neo4jStore: external Neo4j via the v5 driver
type Store interface {
	// AddNodes upserts nodes by id.
	AddNodes(ctx context.Context, nodes []*Node) error

	// AddEdges upserts edges keyed by (source, target, relationship name).
	// Edges whose endpoints do not exist are dropped.
	AddEdges(ctx context.Context, edges []*Edge) error

	// DeleteNode removes a node and every edge touching it. Absent nodes
	// are a no-op.
	DeleteNode(ctx context.Context, id string) error

	// DeleteNodes removes the given nodes and their edges.
	DeleteNodes(ctx context.Context, ids []string) error

	// ExtractNode fetches a node by id. Returns nil without error when the
	// node does not exist.
	ExtractNode(ctx context.Context, id string) (*Node, error)

	// ExtractNodes fetches the given nodes, skipping absent ids.
	ExtractNodes(ctx context.Context, ids []string) ([]*Node, error)

	// GetConnections lists every edge incident to the node together with
	// both endpoint nodes. An absent node yields an empty list.
	GetConnections(ctx context.Context, id string) ([]*Connection, error)

	// GetDocumentSubgraph collects the deletion grouping for the document
	// with the given content hash. Returns nil without error when no
	// document node matches.
	GetDocumentSubgraph(ctx context.Context, contentHash string) (*DocumentSubgraph, error)

	// GetDegreeOneNodes lists nodes of the given type with exactly one
	// incident edge. Only Entity and EntityType are supported.
	GetDegreeOneNodes(ctx context.Context, nodeType string) ([]*Node, error)

	// GetGraphData returns every node and edge in the scoped database.
	GetGraphData(ctx context.Context) ([]*Node, []*Edge, error)

	// DeleteGraph removes every node and edge in the scoped database.
	DeleteGraph(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
