package deletion

import (
	"context"

	"github.com/google/uuid"
)

// Provenance classifies how a data item's graph footprint is known, which
// decides the cleanup strategy.
type Provenance int

const (
	// ProvenanceUntracked means no junction row ties the item to the
	// dataset. The item was never added or is already gone; cleanup of
	// any stale ledger rows still runs, relational bookkeeping does not.
	ProvenanceUntracked Provenance = iota

	// ProvenanceLegacy means the item has a relational row but no
	// tracked-ledger rows, so its subgraph must be discovered
	// structurally from the graph itself.
	ProvenanceLegacy

	// ProvenanceTracked means ledger rows record exactly which nodes and
	// edges the item produced, enabling precise shared-node-aware
	// deletion.
	ProvenanceTracked
)

func (p Provenance) String() string {
	switch p {
	case ProvenanceLegacy:
		return "legacy"
	case ProvenanceTracked:
		return "tracked"
	default:
		return "untracked"
	}
}

// resolveProvenance classifies a data item. Junction row absent wins over
// everything else so repeated deletes of the same item settle into the
// untracked no-op path.
func (s *Service) resolveProvenance(ctx context.Context, datasetID, dataID uuid.UUID) (Provenance, error) {
	inDataset, err := s.rel.DataInDataset(ctx, datasetID, dataID)
	if err != nil {
		return ProvenanceUntracked, err
	}
	if !inDataset {
		return ProvenanceUntracked, nil
	}

	tracked, err := s.rel.HasDataRelatedNodes(ctx, datasetID, dataID)
	if err != nil {
		return ProvenanceUntracked, err
	}
	if tracked {
		return ProvenanceTracked, nil
	}
	return ProvenanceLegacy, nil
}
