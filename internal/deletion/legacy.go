package deletion

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mnemod/internal/graphstore"
	"github.com/fyrsmithlabs/mnemod/internal/identity"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
)

// deleteLegacy removes a document with no ledger rows by walking its
// structural subgraph. Category order matters: summaries reference chunks
// and chunks reference the document, so the document node goes last.
func (s *Service) deleteLegacy(ctx context.Context, data *relational.Data, mode Mode) (*cleanupOutcome, error) {
	subgraph, err := s.graph.GetDocumentSubgraph(ctx, data.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("probing document subgraph: %w", err)
	}
	if subgraph == nil {
		return nil, fmt.Errorf("%w: content hash %s", ErrSubgraphNotFound, data.ContentHash)
	}

	// Contains-edge keys must be derived before any node is deleted; the
	// connections they hang off disappear with the chunks.
	edgeKeys, err := s.containsEdgeKeys(ctx, subgraph.Chunks)
	if err != nil {
		return nil, err
	}

	outcome := &cleanupOutcome{
		counts:   make(map[string]int),
		edgeKeys: edgeKeys,
	}

	categories := []struct {
		label string
		nodes []*graphstore.Node
	}{
		{"orphaned entities", subgraph.OrphanEntities},
		{"orphaned entity types", subgraph.OrphanTypes},
		{"made_from nodes", subgraph.MadeFromNodes},
		{"document chunks", subgraph.Chunks},
		{"document", subgraph.Document},
	}
	for _, category := range categories {
		for _, node := range category.nodes {
			if err := s.deleteGraphNode(ctx, node, outcome); err != nil {
				return nil, err
			}
		}
		outcome.counts[category.label] = len(category.nodes)
	}

	if mode == ModeHard {
		if err := s.pruneDegreeOne(ctx, graphstore.NodeTypeEntity, "degree_one_entities", outcome); err != nil {
			return nil, err
		}
		if err := s.pruneDegreeOne(ctx, graphstore.NodeTypeEntityType, "degree_one_types", outcome); err != nil {
			return nil, err
		}
	}

	return outcome, nil
}

// deleteGraphNode deletes one node and records its id in the outcome. Node
// ids that do not parse as UUIDs are deleted but not recorded, since the
// vector and ledger follow-up key strictly on UUIDs.
func (s *Service) deleteGraphNode(ctx context.Context, node *graphstore.Node, outcome *cleanupOutcome) error {
	if err := s.graph.DeleteNode(ctx, node.ID); err != nil {
		return fmt.Errorf("deleting graph node %s: %w", node.ID, err)
	}
	id, err := uuid.Parse(node.ID)
	if err != nil {
		s.logger.Warn("skipping non-uuid graph node id",
			zap.String("node_id", node.ID),
			zap.String("node_type", node.Type))
		return nil
	}
	outcome.nodeIDs = append(outcome.nodeIDs, id)
	return nil
}

// pruneDegreeOne removes every remaining degree-one node of the given type.
// Hard mode only; the set is graph-wide within the routed scope, not scoped
// to the document being deleted.
func (s *Service) pruneDegreeOne(ctx context.Context, nodeType, label string, outcome *cleanupOutcome) error {
	nodes, err := s.graph.GetDegreeOneNodes(ctx, nodeType)
	if err != nil {
		return fmt.Errorf("listing degree-one %s nodes: %w", nodeType, err)
	}
	for _, node := range nodes {
		if err := s.deleteGraphNode(ctx, node, outcome); err != nil {
			return err
		}
	}
	outcome.counts[label] = len(nodes)
	return nil
}

// containsEdgeKeys derives the vector-index ids of every contains edge
// hanging off the given chunks. Only outgoing contains edges count; a chunk
// can itself be the target of edges that are not index entries.
func (s *Service) containsEdgeKeys(ctx context.Context, chunks []*graphstore.Node) ([]uuid.UUID, error) {
	var keys []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, chunk := range chunks {
		connections, err := s.graph.GetConnections(ctx, chunk.ID)
		if err != nil {
			return nil, fmt.Errorf("listing connections of chunk %s: %w", chunk.ID, err)
		}
		for _, conn := range connections {
			if conn.Edge == nil || conn.Source == nil || conn.Target == nil {
				continue
			}
			if conn.Edge.RelationshipName != identity.ContainsRelationship {
				continue
			}
			if conn.Source.ID != chunk.ID {
				continue
			}
			key := identity.ContainsEdgeKey(conn.Target.Name, nodeDescription(conn.Target))
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// nodeDescription reads the description property, if any.
func nodeDescription(node *graphstore.Node) string {
	if node.Properties == nil {
		return ""
	}
	desc, _ := node.Properties["description"].(string)
	return desc
}
