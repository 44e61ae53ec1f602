package tenant

import (
	"context"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/mnemod/internal/identity"
)

// Router computes backend placement for (dataset, owner) pairs.
//
// With isolation enabled every pair maps to its own graph database name and
// vector namespace, both derived deterministically so repeated routing for
// the same pair always lands on the same backends. With isolation disabled
// all datasets share the store defaults and routing only stamps identity
// fields for downstream logging and bookkeeping.
type Router struct {
	isolation bool
}

// NewRouter creates a router. isolation selects per-dataset backend
// placement.
func NewRouter(isolation bool) *Router {
	return &Router{isolation: isolation}
}

// IsolationEnabled reports whether per-dataset placement is in effect.
func (r *Router) IsolationEnabled() bool {
	return r.isolation
}

// Route computes the scope for the pair and returns a context carrying it.
// Idempotent: routing an already-routed context for the same pair yields an
// equivalent scope.
func (r *Router) Route(ctx context.Context, datasetID, ownerID uuid.UUID) (context.Context, error) {
	scope := &Scope{
		DatasetID: datasetID,
		OwnerID:   ownerID,
	}
	if r.isolation {
		suffix := identity.RoutingSuffix(datasetID, ownerID)
		scope.GraphDatabase = "graph_" + suffix
		scope.VectorNamespace = "vec_" + suffix
	}
	return ContextWithScope(ctx, scope)
}
