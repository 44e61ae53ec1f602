package graphstore

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mnemod/internal/tenant"
)

// defaultDatabase is the shared graph used when no routing scope applies.
const defaultDatabase = "default"

type edgeKey struct {
	source string
	target string
	rel    string
}

// memoryGraph is one tenant's graph. Edges are keyed like a multigraph: one
// edge per (source, target, relationship name), re-adding replaces.
type memoryGraph struct {
	nodes map[string]*Node
	edges map[edgeKey]*Edge
}

func newMemoryGraph() *memoryGraph {
	return &memoryGraph{
		nodes: make(map[string]*Node),
		edges: make(map[edgeKey]*Edge),
	}
}

// MemoryStore is the embedded graph store. Each routed database name maps to
// its own isolated graph; contents live for the process lifetime.
type MemoryStore struct {
	mu           sync.RWMutex
	databases    map[string]*memoryGraph
	requireScope bool
	logger       *zap.Logger
}

// NewMemoryStore creates an embedded graph store. With requireScope set,
// operations without a routing scope in the context fail closed instead of
// falling back to the shared default database.
func NewMemoryStore(requireScope bool, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		databases:    make(map[string]*memoryGraph),
		requireScope: requireScope,
		logger:       logger,
	}
}

func (s *MemoryStore) databaseName(ctx context.Context) (string, error) {
	scope, err := tenant.ScopeFromContext(ctx)
	if err != nil {
		if s.requireScope {
			return "", err
		}
		return defaultDatabase, nil
	}
	if scope.GraphDatabase == "" {
		return defaultDatabase, nil
	}
	return scope.GraphDatabase, nil
}

// graphFor resolves the scoped graph, creating it on first use. Callers must
// hold the write lock.
func (s *MemoryStore) graphFor(name string) *memoryGraph {
	graph, ok := s.databases[name]
	if !ok {
		graph = newMemoryGraph()
		s.databases[name] = graph
	}
	return graph
}

func copyNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := &Node{ID: n.ID, Name: n.Name, Type: n.Type}
	if n.Properties != nil {
		cp.Properties = make(map[string]any, len(n.Properties))
		for k, v := range n.Properties {
			cp.Properties[k] = v
		}
	}
	return cp
}

func copyEdge(e *Edge) *Edge {
	if e == nil {
		return nil
	}
	cp := &Edge{SourceID: e.SourceID, TargetID: e.TargetID, RelationshipName: e.RelationshipName}
	if e.Properties != nil {
		cp.Properties = make(map[string]any, len(e.Properties))
		for k, v := range e.Properties {
			cp.Properties[k] = v
		}
	}
	return cp
}

// AddNodes upserts nodes by id.
func (s *MemoryStore) AddNodes(ctx context.Context, nodes []*Node) error {
	if len(nodes) == 0 {
		return nil
	}
	name, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	graph := s.graphFor(name)
	for _, node := range nodes {
		if node == nil || node.ID == "" {
			continue
		}
		graph.nodes[node.ID] = copyNode(node)
	}
	return nil
}

// AddEdges upserts edges. Edges whose endpoints are not present are dropped.
func (s *MemoryStore) AddEdges(ctx context.Context, edges []*Edge) error {
	if len(edges) == 0 {
		return nil
	}
	name, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	graph := s.graphFor(name)
	dropped := 0
	for _, edge := range edges {
		if edge == nil {
			continue
		}
		if _, ok := graph.nodes[edge.SourceID]; !ok {
			dropped++
			continue
		}
		if _, ok := graph.nodes[edge.TargetID]; !ok {
			dropped++
			continue
		}
		key := edgeKey{source: edge.SourceID, target: edge.TargetID, rel: edge.RelationshipName}
		graph.edges[key] = copyEdge(edge)
	}
	if dropped > 0 {
		s.logger.Debug("dropped edges with absent endpoints", zap.Int("count", dropped))
	}
	return nil
}

// DeleteNode removes the node and every edge touching it. Absent nodes are a
// no-op.
func (s *MemoryStore) DeleteNode(ctx context.Context, id string) error {
	return s.DeleteNodes(ctx, []string{id})
}

// DeleteNodes removes the given nodes and their edges.
func (s *MemoryStore) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	name, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	graph := s.graphFor(name)
	for _, id := range ids {
		if _, ok := graph.nodes[id]; !ok {
			continue
		}
		delete(graph.nodes, id)
		for key := range graph.edges {
			if key.source == id || key.target == id {
				delete(graph.edges, key)
			}
		}
	}
	return nil
}

// ExtractNode fetches a node by id, nil when absent.
func (s *MemoryStore) ExtractNode(ctx context.Context, id string) (*Node, error) {
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil
	}
	return copyNode(graph.nodes[id]), nil
}

// ExtractNodes fetches the given nodes, skipping absent ids.
func (s *MemoryStore) ExtractNodes(ctx context.Context, ids []string) ([]*Node, error) {
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil
	}
	var nodes []*Node
	for _, id := range ids {
		if node, ok := graph.nodes[id]; ok {
			nodes = append(nodes, copyNode(node))
		}
	}
	return nodes, nil
}

// GetConnections lists every edge incident to the node with both endpoints.
func (s *MemoryStore) GetConnections(ctx context.Context, id string) ([]*Connection, error) {
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil
	}
	if _, ok := graph.nodes[id]; !ok {
		return nil, nil
	}

	var connections []*Connection
	for key, edge := range graph.edges {
		if key.source != id && key.target != id {
			continue
		}
		source, ok := graph.nodes[key.source]
		if !ok {
			continue
		}
		target, ok := graph.nodes[key.target]
		if !ok {
			continue
		}
		connections = append(connections, &Connection{
			Source: copyNode(source),
			Edge:   copyEdge(edge),
			Target: copyNode(target),
		})
	}
	return connections, nil
}

// GetDocumentSubgraph collects the deletion grouping for the document with
// the given content hash, nil when no document node matches.
func (s *MemoryStore) GetDocumentSubgraph(ctx context.Context, contentHash string) (*DocumentSubgraph, error) {
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil
	}

	documentName := DocumentName(contentHash)
	var document *Node
	for _, node := range graph.nodes {
		if (node.Type == NodeTypeTextDocument || node.Type == NodeTypePdfDocument) &&
			node.Name == documentName {
			document = node
			break
		}
	}
	if document == nil {
		return nil, nil
	}

	// Chunks point to the document via is_part_of.
	chunkSet := make(map[string]*Node)
	for key, edge := range graph.edges {
		if key.target != document.ID || edge.RelationshipName != RelationshipIsPartOf {
			continue
		}
		if chunk, ok := graph.nodes[key.source]; ok {
			chunkSet[chunk.ID] = chunk
		}
	}

	// Entities contained by those chunks.
	entitySet := make(map[string]*Node)
	for key, edge := range graph.edges {
		if edge.RelationshipName != RelationshipContains {
			continue
		}
		if _, ok := chunkSet[key.source]; !ok {
			continue
		}
		if entity, ok := graph.nodes[key.target]; ok {
			entitySet[entity.ID] = entity
		}
	}

	// An entity is orphaned when every chunk containing it is being deleted.
	orphanSet := make(map[string]*Node)
	for id, entity := range entitySet {
		orphaned := true
		for key, edge := range graph.edges {
			if key.target != id || edge.RelationshipName != RelationshipContains {
				continue
			}
			if _, ok := chunkSet[key.source]; !ok {
				orphaned = false
				break
			}
		}
		if orphaned {
			orphanSet[id] = entity
		}
	}

	// An entity type is orphaned when only orphan entities classify into it.
	typeSet := make(map[string]*Node)
	for id := range orphanSet {
		for key, edge := range graph.edges {
			if key.source != id {
				continue
			}
			if edge.RelationshipName != RelationshipIsA && edge.RelationshipName != RelationshipInstanceOf {
				continue
			}
			typeNode, ok := graph.nodes[key.target]
			if !ok || typeNode.Type != NodeTypeEntityType {
				continue
			}
			if _, seen := typeSet[typeNode.ID]; seen {
				continue
			}
			orphaned := true
			for inKey, inEdge := range graph.edges {
				if inKey.target != typeNode.ID {
					continue
				}
				if inEdge.RelationshipName != RelationshipIsA && inEdge.RelationshipName != RelationshipInstanceOf {
					continue
				}
				if _, ok := orphanSet[inKey.source]; !ok {
					orphaned = false
					break
				}
			}
			if orphaned {
				typeSet[typeNode.ID] = typeNode
			}
		}
	}

	// Summaries point to chunks via made_from.
	madeFromSet := make(map[string]*Node)
	for key, edge := range graph.edges {
		if edge.RelationshipName != RelationshipMadeFrom {
			continue
		}
		if _, ok := chunkSet[key.target]; !ok {
			continue
		}
		if summary, ok := graph.nodes[key.source]; ok {
			madeFromSet[summary.ID] = summary
		}
	}

	subgraph := &DocumentSubgraph{Document: []*Node{copyNode(document)}}
	for _, node := range orphanSet {
		subgraph.OrphanEntities = append(subgraph.OrphanEntities, copyNode(node))
	}
	for _, node := range typeSet {
		subgraph.OrphanTypes = append(subgraph.OrphanTypes, copyNode(node))
	}
	for _, node := range madeFromSet {
		subgraph.MadeFromNodes = append(subgraph.MadeFromNodes, copyNode(node))
	}
	for _, node := range chunkSet {
		subgraph.Chunks = append(subgraph.Chunks, copyNode(node))
	}
	return subgraph, nil
}

// GetDegreeOneNodes lists Entity or EntityType nodes with exactly one
// incident edge.
func (s *MemoryStore) GetDegreeOneNodes(ctx context.Context, nodeType string) ([]*Node, error) {
	if nodeType != NodeTypeEntity && nodeType != NodeTypeEntityType {
		return nil, ErrInvalidNodeType
	}
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil
	}

	var nodes []*Node
	for id, node := range graph.nodes {
		if node.Type != nodeType {
			continue
		}
		degree := 0
		for key := range graph.edges {
			if key.source == id || key.target == id {
				degree++
			}
		}
		if degree == 1 {
			nodes = append(nodes, copyNode(node))
		}
	}
	return nodes, nil
}

// GetGraphData returns every node and edge in the scoped database.
func (s *MemoryStore) GetGraphData(ctx context.Context) ([]*Node, []*Edge, error) {
	name, err := s.databaseName(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	graph, ok := s.databases[name]
	if !ok {
		return nil, nil, nil
	}
	nodes := make([]*Node, 0, len(graph.nodes))
	for _, node := range graph.nodes {
		nodes = append(nodes, copyNode(node))
	}
	edges := make([]*Edge, 0, len(graph.edges))
	for _, edge := range graph.edges {
		edges = append(edges, copyEdge(edge))
	}
	return nodes, edges, nil
}

// DeleteGraph removes every node and edge in the scoped database.
func (s *MemoryStore) DeleteGraph(ctx context.Context) error {
	name, err := s.databaseName(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.databases, name)
	return nil
}

// Close releases nothing for the embedded store.
func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
