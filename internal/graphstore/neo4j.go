package graphstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mnemod/internal/tenant"
)

// Neo4jConfig holds Neo4j driver configuration.
type Neo4jConfig struct {
	// URI is the bolt or neo4j scheme address.
	URI string

	// Username and Password authenticate against the server.
	Username string
	Password string

	// Database is the database used when no routing scope applies.
	// Default: "neo4j".
	Database string

	// RequireScope fails operations without a routing scope in the context
	// instead of falling back to Database.
	RequireScope bool

	// ConnectTimeout bounds connection establishment. Default: 10s.
	ConnectTimeout time.Duration

	// MaxPoolSize bounds the driver connection pool. Default: 50.
	MaxPoolSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *Neo4jConfig) ApplyDefaults() {
	if c.Database == "" {
		c.Database = "neo4j"
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.MaxPoolSize == 0 {
		c.MaxPoolSize = 50
	}
}

// Validate validates the configuration.
func (c *Neo4jConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("%w: uri is required", ErrInvalidConfig)
	}
	return nil
}

// Neo4jStore implements Store against an external Neo4j server.
//
// Nodes carry a single :Node label with id/name/type properties; edges are
// :RELATES relationships with a relationship_name property, which keeps the
// schema independent of dynamic labels. Routed database names must already
// exist on the server; database provisioning is an operator concern.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	config Neo4jConfig
	logger *zap.Logger

	// schemaReady tracks per-database constraint initialization.
	schemaReady sync.Map
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
func NewNeo4jStore(cfg Neo4jConfig, logger *zap.Logger) (*Neo4jStore, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = cfg.MaxPoolSize
			config.SocketConnectTimeout = cfg.ConnectTimeout
		})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	logger.Info("neo4j graph store ready", zap.String("uri", cfg.URI))
	return &Neo4jStore{driver: driver, config: cfg, logger: logger}, nil
}

func (s *Neo4jStore) databaseName(ctx context.Context) (string, error) {
	scope, err := tenant.ScopeFromContext(ctx)
	if err != nil {
		if s.config.RequireScope {
			return "", err
		}
		return s.config.Database, nil
	}
	if scope.GraphDatabase == "" {
		return s.config.Database, nil
	}
	return scope.GraphDatabase, nil
}

func (s *Neo4jStore) readSession(ctx context.Context, database string) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: database,
	})
}

func (s *Neo4jStore) writeSession(ctx context.Context, database string) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: database,
	})
}

// ensureSchema creates the node id constraint once per database. Failures
// are logged and ignored; MERGE correctness does not depend on the index.
func (s *Neo4jStore) ensureSchema(ctx context.Context, database string) {
	if _, done := s.schemaReady.Load(database); done {
		return
	}
	session := s.writeSession(ctx, database)
	defer session.Close(ctx)

	query := `CREATE CONSTRAINT mnemod_node_id IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE`
	if res, err := session.Run(ctx, query, nil); err != nil {
		s.logger.Warn("neo4j schema init failed (continuing)",
			zap.String("database", database), zap.Error(err))
		return
	} else if _, err := res.Consume(ctx); err != nil {
		s.logger.Warn("neo4j schema init failed (continuing)",
			zap.String("database", database), zap.Error(err))
		return
	}
	s.schemaReady.Store(database, struct{}{})
}

func nodeParams(n *Node) map[string]any {
	props := make(map[string]any, len(n.Properties))
	for k, v := range n.Properties {
		props[k] = v
	}
	return map[string]any{"id": n.ID, "name": n.Name, "type": n.Type, "props": props}
}

func nodeFromProps(props map[string]any) *Node {
	node := &Node{Properties: make(map[string]any)}
	for k, v := range props {
		switch k {
		case "id":
			node.ID, _ = v.(string)
		case "name":
			node.Name, _ = v.(string)
		case "type":
			node.Type, _ = v.(string)
		default:
			node.Properties[k] = v
		}
	}
	if len(node.Properties) == 0 {
		node.Properties = nil
	}
	return node
}

// runNodes executes a query whose rows carry a props column and maps each
// row to a Node.
func runNodes(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]*Node, error) {
	res, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	nodes := make([]*Node, 0, len(records))
	for _, record := range records {
		value, ok := record.Get("props")
		if !ok {
			continue
		}
		props, ok := value.(map[string]any)
		if !ok {
			continue
		}
		nodes = append(nodes, nodeFromProps(props))
	}
	return nodes, nil
}

func nodeIDs(nodes []*Node) []any {
	ids := make([]any, 0, len(nodes))
	for _, node := range nodes {
		ids = append(ids, node.ID)
	}
	return ids
}

// AddNodes upserts nodes by id.
func (s *Neo4jStore) AddNodes(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	database, err := s.databaseName(ctx)
	if err != nil {
		return err
	}
	s.ensureSchema(ctx, database)

	params := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		if node == nil || node.ID == "" {
			continue
		}
		params = append(params, nodeParams(node))
	}

	session := s.writeSession(ctx, database)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $nodes AS node
MERGE (n:Node {id: node.id})
SET n.name = node.name, n.type = node.type, n += node.props
`, map[string]any{"nodes": params})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add nodes: %w", err)
	}
	return nil
}

// AddEdges upserts edges. Edges whose endpoints do not exist are dropped by
// the MATCH.
func (s *Neo4jStore) AddEdges(ctx context.Context, edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}
	database, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	params := make([]map[string]any, 0, len(edges))
	for _, edge := range edges {
		if edge == nil {
			continue
		}
		props := make(map[string]any, len(edge.Properties))
		for k, v := range edge.Properties {
			props[k] = v
		}
		params = append(params, map[string]any{
			"source":            edge.SourceID,
			"target":            edge.TargetID,
			"relationship_name": edge.RelationshipName,
			"props":             props,
		})
	}

	session := s.writeSession(ctx, database)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $edges AS edge
MATCH (a:Node {id: edge.source})
MATCH (b:Node {id: edge.target})
MERGE (a)-[r:RELATES {relationship_name: edge.relationship_name}]->(b)
SET r += edge.props
`, map[string]any{"edges": params})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to add edges: %w", err)
	}
	return nil
}

// DeleteNode removes a node and its relationships. Absent nodes are a
// no-op.
func (s *Neo4jStore) DeleteNode(ctx context.Context, id string) error {
	return s.DeleteNodes(ctx, []string{id})
}

// DeleteNodes removes the given nodes and their relationships.
func (s *Neo4jStore) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	database, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	session := s.writeSession(ctx, database)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
UNWIND $ids AS id
MATCH (n:Node {id: id})
DETACH DELETE n
`, map[string]any{"ids": ids})
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}
	return nil
}

// ExtractNode fetches a node by id, nil when absent.
func (s *Neo4jStore) ExtractNode(ctx context.Context, id string) (*Node, error) {
	nodes, err := s.ExtractNodes(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, nil
	}
	return nodes[0], nil
}

// ExtractNodes fetches the given nodes, skipping absent ids.
func (s *Neo4jStore) ExtractNodes(ctx context.Context, ids []string) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	database, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	session := s.readSession(ctx, database)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runNodes(ctx, tx, `
UNWIND $ids AS id
MATCH (n:Node {id: id})
RETURN properties(n) AS props
`, map[string]any{"ids": ids})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to extract nodes: %w", err)
	}
	return result.([]*Node), nil
}

// GetConnections lists every relationship incident to the node with both
// endpoints, direction preserved.
func (s *Neo4jStore) GetConnections(ctx context.Context, id string) ([]*Connection, error) {
	database, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	session := s.readSession(ctx, database)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MATCH (a:Node {id: $id})-[r:RELATES]->(b:Node)
RETURN properties(a) AS source, properties(r) AS edge, properties(b) AS target
UNION
MATCH (a:Node)-[r:RELATES]->(b:Node {id: $id})
RETURN properties(a) AS source, properties(r) AS edge, properties(b) AS target
`, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}

	records := result.([]*neo4j.Record)
	connections := make([]*Connection, 0, len(records))
	for _, record := range records {
		sourceVal, _ := record.Get("source")
		edgeVal, _ := record.Get("edge")
		targetVal, _ := record.Get("target")

		sourceProps, ok := sourceVal.(map[string]any)
		if !ok {
			continue
		}
		targetProps, ok := targetVal.(map[string]any)
		if !ok {
			continue
		}
		source := nodeFromProps(sourceProps)
		target := nodeFromProps(targetProps)

		edge := &Edge{SourceID: source.ID, TargetID: target.ID}
		if edgeProps, ok := edgeVal.(map[string]any); ok {
			for k, v := range edgeProps {
				if k == "relationship_name" {
					edge.RelationshipName, _ = v.(string)
					continue
				}
				if edge.Properties == nil {
					edge.Properties = make(map[string]any)
				}
				edge.Properties[k] = v
			}
		}
		connections = append(connections, &Connection{Source: source, Edge: edge, Target: target})
	}
	return connections, nil
}

// GetDocumentSubgraph collects the deletion grouping for the document with
// the given content hash, nil when no document node matches. All stages run
// in one read transaction.
func (s *Neo4jStore) GetDocumentSubgraph(ctx context.Context, contentHash string) (*DocumentSubgraph, error) {
	database, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	session := s.readSession(ctx, database)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		documents, err := runNodes(ctx, tx, `
MATCH (d:Node)
WHERE d.type IN [$textType, $pdfType] AND d.name = $name
RETURN properties(d) AS props
LIMIT 1
`, map[string]any{
			"textType": NodeTypeTextDocument,
			"pdfType":  NodeTypePdfDocument,
			"name":     DocumentName(contentHash),
		})
		if err != nil {
			return nil, err
		}
		if len(documents) == 0 {
			return (*DocumentSubgraph)(nil), nil
		}
		document := documents[0]

		chunks, err := runNodes(ctx, tx, `
MATCH (c:Node)-[r:RELATES {relationship_name: $isPartOf}]->(d:Node {id: $docID})
RETURN DISTINCT properties(c) AS props
`, map[string]any{"isPartOf": RelationshipIsPartOf, "docID": document.ID})
		if err != nil {
			return nil, err
		}
		chunkIDs := nodeIDs(chunks)

		orphanEntities, err := runNodes(ctx, tx, `
MATCH (c:Node)-[:RELATES {relationship_name: $contains}]->(e:Node)
WHERE c.id IN $chunkIDs
WITH DISTINCT e
WHERE NOT EXISTS {
    MATCH (other:Node)-[:RELATES {relationship_name: $contains}]->(e)
    WHERE NOT other.id IN $chunkIDs
}
RETURN properties(e) AS props
`, map[string]any{"contains": RelationshipContains, "chunkIDs": chunkIDs})
		if err != nil {
			return nil, err
		}
		orphanIDs := nodeIDs(orphanEntities)

		orphanTypes, err := runNodes(ctx, tx, `
MATCH (e:Node)-[r:RELATES]->(t:Node)
WHERE e.id IN $orphanIDs
  AND r.relationship_name IN [$isA, $instanceOf]
  AND t.type = $entityType
WITH DISTINCT t
WHERE NOT EXISTS {
    MATCH (src:Node)-[r2:RELATES]->(t)
    WHERE r2.relationship_name IN [$isA, $instanceOf] AND NOT src.id IN $orphanIDs
}
RETURN properties(t) AS props
`, map[string]any{
			"orphanIDs":  orphanIDs,
			"isA":        RelationshipIsA,
			"instanceOf": RelationshipInstanceOf,
			"entityType": NodeTypeEntityType,
		})
		if err != nil {
			return nil, err
		}

		madeFrom, err := runNodes(ctx, tx, `
MATCH (m:Node)-[:RELATES {relationship_name: $madeFrom}]->(c:Node)
WHERE c.id IN $chunkIDs
RETURN DISTINCT properties(m) AS props
`, map[string]any{"madeFrom": RelationshipMadeFrom, "chunkIDs": chunkIDs})
		if err != nil {
			return nil, err
		}

		return &DocumentSubgraph{
			OrphanEntities: orphanEntities,
			OrphanTypes:    orphanTypes,
			MadeFromNodes:  madeFrom,
			Chunks:         chunks,
			Document:       []*Node{document},
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get document subgraph: %w", err)
	}
	subgraph, _ := result.(*DocumentSubgraph)
	return subgraph, nil
}

// GetDegreeOneNodes lists Entity or EntityType nodes with exactly one
// incident relationship.
func (s *Neo4jStore) GetDegreeOneNodes(ctx context.Context, nodeType string) ([]*Node, error) {
	if nodeType != NodeTypeEntity && nodeType != NodeTypeEntityType {
		return nil, ErrInvalidNodeType
	}
	database, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	session := s.readSession(ctx, database)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return runNodes(ctx, tx, `
MATCH (n:Node {type: $type})
WHERE COUNT { (n)--() } = 1
RETURN properties(n) AS props
`, map[string]any{"type": nodeType})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get degree one nodes: %w", err)
	}
	return result.([]*Node), nil
}

// GetGraphData returns every node and edge in the scoped database.
func (s *Neo4jStore) GetGraphData(ctx context.Context) ([]*Node, []*Edge, error) {
	database, err := s.databaseName(ctx)
	if err != nil {
		return nil, nil, err
	}

	session := s.readSession(ctx, database)
	defer session.Close(ctx)

	type graphData struct {
		nodes []*Node
		edges []*Edge
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		nodes, err := runNodes(ctx, tx, `MATCH (n:Node) RETURN properties(n) AS props`, nil)
		if err != nil {
			return nil, err
		}

		res, err := tx.Run(ctx, `
MATCH (a:Node)-[r:RELATES]->(b:Node)
RETURN a.id AS source, b.id AS target, properties(r) AS props
`, nil)
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}

		edges := make([]*Edge, 0, len(records))
		for _, record := range records {
			sourceVal, _ := record.Get("source")
			targetVal, _ := record.Get("target")
			propsVal, _ := record.Get("props")

			edge := &Edge{}
			edge.SourceID, _ = sourceVal.(string)
			edge.TargetID, _ = targetVal.(string)
			if props, ok := propsVal.(map[string]any); ok {
				for k, v := range props {
					if k == "relationship_name" {
						edge.RelationshipName, _ = v.(string)
						continue
					}
					if edge.Properties == nil {
						edge.Properties = make(map[string]any)
					}
					edge.Properties[k] = v
				}
			}
			edges = append(edges, edge)
		}
		return &graphData{nodes: nodes, edges: edges}, nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get graph data: %w", err)
	}

	data := result.(*graphData)
	return data.nodes, data.edges, nil
}

// DeleteGraph removes every node and edge in the scoped database.
func (s *Neo4jStore) DeleteGraph(ctx context.Context) error {
	database, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	session := s.writeSession(ctx, database)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `MATCH (n:Node) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete graph: %w", err)
	}
	return nil
}

// Close closes the underlying driver.
func (s *Neo4jStore) Close() error {
	return s.driver.Close(context.Background())
}

var _ Store = (*Neo4jStore)(nil)
