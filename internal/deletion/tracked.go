package deletion

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/mnemod/internal/identity"
)

// deleteTracked removes exactly the graph footprint the tracking rows
// attribute to one data item. Rows whose slug is shared with another data
// item are already excluded by the relational queries, which is what keeps
// shared nodes alive. Relational follow-up is the caller's job.
func (s *Service) deleteTracked(ctx context.Context, datasetID, dataID uuid.UUID) (*cleanupOutcome, error) {
	nodes, err := s.rel.DataRelatedNodes(ctx, datasetID, dataID)
	if err != nil {
		return nil, err
	}
	edges, err := s.rel.DataRelatedEdges(ctx, datasetID, dataID)
	if err != nil {
		return nil, err
	}

	outcome := &cleanupOutcome{
		counts: map[string]int{
			"nodes": len(nodes),
			"edges": len(edges),
		},
	}

	// Contains-edge vector keys resolve through the edge's destination
	// entity, and the entity must still be in the graph to read its name
	// and description. Derive before any mutation.
	var destRowIDs []uuid.UUID
	for _, edge := range edges {
		if edge.RelationshipName == identity.ContainsRelationship {
			destRowIDs = append(destRowIDs, edge.DestinationNodeID)
		}
	}
	if len(destRowIDs) > 0 {
		keys, err := s.trackedEdgeKeys(ctx, destRowIDs)
		if err != nil {
			return nil, err
		}
		outcome.edgeKeys = keys
	}

	slugs := make([]string, 0, len(nodes))
	for _, row := range nodes {
		slugs = append(slugs, row.Slug.String())
		outcome.nodeIDs = append(outcome.nodeIDs, row.Slug)
	}
	if len(slugs) > 0 {
		if err := s.graph.DeleteNodes(ctx, slugs); err != nil {
			return nil, fmt.Errorf("deleting tracked graph nodes: %w", err)
		}
	}

	return outcome, nil
}

// trackedEdgeKeys resolves contains-edge destination row ids to graph
// entities and derives their vector keys. Rows whose graph node is already
// gone are skipped; their index entries went with an earlier deletion.
func (s *Service) trackedEdgeKeys(ctx context.Context, rowIDs []uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.rel.GraphNodeRows(ctx, rowIDs)
	if err != nil {
		return nil, err
	}

	var keys []uuid.UUID
	seen := make(map[uuid.UUID]struct{})
	for _, row := range rows {
		node, err := s.graph.ExtractNode(ctx, row.Slug.String())
		if err != nil {
			return nil, fmt.Errorf("resolving contains-edge target %s: %w", row.Slug, err)
		}
		if node == nil {
			continue
		}
		key := identity.ContainsEdgeKey(node.Name, nodeDescription(node))
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys, nil
}
