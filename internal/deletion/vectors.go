package deletion

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultCollections are the vector collections every deletion sweeps.
// Index points share ids with their graph nodes, so deleting by node id
// works uniformly; ids absent from a collection are no-ops.
var DefaultCollections = []string{
	"DocumentChunk_text",
	"EdgeType_relationship_name",
	"EntityType_name",
	"Entity_name",
	"TextDocument_name",
	"TextSummary_text",
}

// cleanupOutcome carries what a graph cleanup removed so vector and
// relational follow-up can mirror it.
type cleanupOutcome struct {
	// counts maps a category label to how many nodes it removed.
	counts map[string]int

	// nodeIDs are the graph node ids that were deleted.
	nodeIDs []uuid.UUID

	// edgeKeys are deterministic ids of contains-edge index entries that
	// must leave the vector store alongside the nodes.
	edgeKeys []uuid.UUID
}

// syncVectors removes every deleted node id and contains-edge key from all
// default collections. Collections that do not exist yet are skipped, which
// covers fresh deployments where ingestion has not populated every index.
func (s *Service) syncVectors(ctx context.Context, outcome *cleanupOutcome) error {
	ids := make([]string, 0, len(outcome.nodeIDs)+len(outcome.edgeKeys))
	for _, id := range outcome.nodeIDs {
		ids = append(ids, id.String())
	}
	for _, key := range outcome.edgeKeys {
		ids = append(ids, key.String())
	}
	if len(ids) == 0 {
		return nil
	}

	for _, collection := range DefaultCollections {
		exists, err := s.vector.HasCollection(ctx, collection)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.vector.DeleteDataPoints(ctx, collection, ids); err != nil {
			return err
		}
		s.logger.Debug("swept vector collection",
			zap.String("collection", collection),
			zap.Int("ids", len(ids)))
	}
	return nil
}
