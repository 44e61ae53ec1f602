// Package deletion orchestrates removal of data across the graph, vector,
// and relational stores.
//
// Ordering is the load-bearing invariant: graph and vector cleanup always
// run before the relational row is removed, so a surviving Data row means
// the item may still have store footprint and a retry is safe. Every
// primitive delete underneath is idempotent, which lets interrupted or
// repeated deletions degrade to silent no-ops instead of errors.
package deletion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/mnemod/internal/filestore"
	"github.com/fyrsmithlabs/mnemod/internal/graphstore"
	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
	"github.com/fyrsmithlabs/mnemod/internal/tenant"
	"github.com/fyrsmithlabs/mnemod/internal/vectorstore"
	apiv1 "github.com/fyrsmithlabs/mnemod/pkg/api/v1"
)

var tracer = otel.Tracer("mnemod.deletion")

// ErrSubgraphNotFound indicates the structural probe found no subgraph for
// a document. Fatal for that document only; batch operations continue past
// it.
var ErrSubgraphNotFound = errors.New("document subgraph not found")

// Mode selects how aggressively the structural path cleans up.
type Mode string

const (
	// ModeSoft removes only the document's own subgraph.
	ModeSoft Mode = "soft"

	// ModeHard additionally removes degree-one Entity and EntityType
	// nodes left anywhere in the scoped graph. Operator-triggered
	// cleanup only.
	ModeHard Mode = "hard"
)

// Config configures the deletion service.
type Config struct {
	// BatchConcurrency bounds parallel per-item deletes when emptying a
	// dataset.
	BatchConcurrency int
}

// ApplyDefaults fills in default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 8
	}
}

// Service is the deletion orchestrator.
type Service struct {
	config  Config
	rel     *relational.Store
	graph   graphstore.Store
	vector  vectorstore.Store
	files   filestore.Storage
	perms   *permissions.Service
	router  *tenant.Router
	logger  *zap.Logger
	metrics *Metrics
}

// NewService creates the deletion orchestrator over the three stores, the
// blob storage, the permission gate, and the tenant router.
func NewService(
	cfg Config,
	rel *relational.Store,
	graph graphstore.Store,
	vector vectorstore.Store,
	files filestore.Storage,
	perms *permissions.Service,
	router *tenant.Router,
	logger *zap.Logger,
) (*Service, error) {
	if rel == nil {
		return nil, errors.New("relational store cannot be nil")
	}
	if graph == nil {
		return nil, errors.New("graph store cannot be nil")
	}
	if vector == nil {
		return nil, errors.New("vector store cannot be nil")
	}
	if files == nil {
		return nil, errors.New("file storage cannot be nil")
	}
	if perms == nil {
		return nil, errors.New("permission service cannot be nil")
	}
	if router == nil {
		return nil, errors.New("tenant router cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()

	return &Service{
		config:  cfg,
		rel:     rel,
		graph:   graph,
		vector:  vector,
		files:   files,
		perms:   perms,
		router:  router,
		logger:  logger,
		metrics: NewMetrics(logger),
	}, nil
}

// DeleteData removes one data item from the dataset: authorize, route the
// tenant context, classify provenance, clean up graph and vector state, and
// finally remove the relational row. A denial aborts before any mutation.
// Deleting an item that is already gone returns success with empty counts.
func (s *Service) DeleteData(ctx context.Context, datasetID, dataID uuid.UUID, user permissions.User, mode Mode) (*apiv1.DeletionResult, error) {
	if mode == "" {
		mode = ModeSoft
	}
	if mode != ModeSoft && mode != ModeHard {
		return nil, fmt.Errorf("%w: unknown deletion mode %q", apiv1.ErrInvalidRequest, mode)
	}

	ctx, span := tracer.Start(ctx, "deletion.DeleteData", trace.WithAttributes(
		attribute.String("dataset.id", datasetID.String()),
		attribute.String("data.id", dataID.String()),
		attribute.String("deletion.mode", string(mode)),
	))
	defer span.End()
	start := time.Now()

	dataset, err := s.perms.Authorize(ctx, user, datasetID, relational.PermissionDelete)
	if err != nil {
		err = translateError(err, user, datasetID, dataID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization failed")
		s.metrics.RecordOperation(ctx, "delete_data", "", time.Since(start), 0, err)
		return nil, err
	}

	ctx, err = s.router.Route(ctx, dataset.ID, dataset.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("routing tenant context: %w", err)
	}

	result, state, err := s.deleteItem(ctx, dataset.ID, dataID, mode)
	if err != nil {
		err = translateError(err, user, datasetID, dataID)
		span.RecordError(err)
		span.SetStatus(codes.Error, "deletion failed")
		s.metrics.RecordOperation(ctx, "delete_data", state.String(), time.Since(start), 0, err)
		return nil, err
	}

	s.metrics.RecordOperation(ctx, "delete_data", state.String(), time.Since(start), len(result.DeletedNodeIDs), nil)
	s.logger.Info("data deleted",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("data_id", dataID.String()),
		zap.String("provenance", state.String()),
		zap.String("mode", string(mode)),
		zap.Int("nodes_deleted", len(result.DeletedNodeIDs)))
	return result, nil
}

// deleteItem runs provenance dispatch, graph and vector cleanup, and the
// final relational removal for one data item. Authorization and tenant
// routing are the callers' responsibility.
func (s *Service) deleteItem(ctx context.Context, datasetID, dataID uuid.UUID, mode Mode) (*apiv1.DeletionResult, Provenance, error) {
	state, err := s.resolveProvenance(ctx, datasetID, dataID)
	if err != nil {
		return nil, state, err
	}

	var outcome *cleanupOutcome
	switch state {
	case ProvenanceLegacy:
		data, err := s.rel.GetData(ctx, dataID)
		if err != nil {
			return nil, state, err
		}
		outcome, err = s.deleteLegacy(ctx, data, mode)
		if err != nil {
			return nil, state, err
		}
	default:
		// Untracked and tracked items both resolve through the ledger;
		// untracked just has no relational row to finish with.
		outcome, err = s.deleteTracked(ctx, datasetID, dataID)
		if err != nil {
			return nil, state, err
		}
	}

	if err := s.syncVectors(ctx, outcome); err != nil {
		return nil, state, err
	}

	// Relational bookkeeping runs only after graph and vector cleanup, so
	// an interrupted call re-resolves to the same provenance on retry.
	switch state {
	case ProvenanceLegacy:
		if _, err := s.rel.TombstoneLedger(ctx, outcome.nodeIDs); err != nil {
			return nil, state, err
		}
	default:
		if err := s.rel.DeleteDataNodesAndEdges(ctx, datasetID, dataID); err != nil {
			return nil, state, err
		}
	}

	// The data row is the completion marker and goes last.
	if state != ProvenanceUntracked {
		if err := s.rel.DeleteData(ctx, dataID, datasetID); err != nil {
			return nil, state, err
		}
	}

	return &apiv1.DeletionResult{
		Status:         apiv1.StatusSuccess,
		Message:        "data deleted from graph, vector, and relational stores",
		DataID:         dataID,
		DatasetID:      datasetID,
		GraphDeletions: outcome.counts,
		DeletedNodeIDs: outcome.nodeIDs,
	}, state, nil
}

// translateError maps internal sentinels onto the public taxonomy. This is
// the single translation point; nothing below it returns apiv1 types.
func translateError(err error, user permissions.User, datasetID, dataID uuid.UUID) error {
	switch {
	case errors.Is(err, permissions.ErrPermissionDenied):
		return &apiv1.UnauthorizedDataAccessError{UserID: user.ID, DatasetID: datasetID, Cause: err}
	case errors.Is(err, permissions.ErrDatasetNotFound):
		return &apiv1.DatasetNotFoundError{DatasetID: datasetID}
	case errors.Is(err, ErrSubgraphNotFound):
		return &apiv1.DocumentSubgraphNotFoundError{DataID: dataID}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &apiv1.DataNotFoundError{DataID: dataID, DatasetID: datasetID}
	default:
		return err
	}
}
