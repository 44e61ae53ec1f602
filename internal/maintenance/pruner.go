// Package maintenance prunes documents that retrieval has stopped touching.
//
// Pruning is driven by last-access timestamps on data rows. Candidates are
// deleted through the deletion orchestrator, one membership at a time, so
// their graph and vector footprints go with them and shared content
// survives.
package maintenance

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

	"github.com/fyrsmithlabs/mnemod/internal/deletion"
	"github.com/fyrsmithlabs/mnemod/internal/filestore"
	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
	apiv1 "github.com/fyrsmithlabs/mnemod/pkg/api/v1"
)

var tracer = otel.Tracer("mnemod.maintenance")

// ErrTrackingDisabled is returned when pruning is attempted with access
// tracking off. Rows never receive timestamps then, so everything older
// than the cutoff would qualify as unused.
var ErrTrackingDisabled = errors.New("access tracking is disabled")

// ErrNothingTracked is returned when no data row carries an access
// timestamp yet. Tracking was likely enabled after the rows were written;
// pruning before anything has been stamped would sweep every old row.
var ErrNothingTracked = errors.New("no access timestamps recorded")

// Config holds pruner settings.
type Config struct {
	// TrackAccess mirrors the access-stamping switch. The pruner refuses
	// to run while it is off.
	TrackAccess bool
}

// Pruner removes documents that have not been accessed within a retention
// window.
type Pruner struct {
	config  Config
	rel     *relational.Store
	deleter *deletion.Service
	files   filestore.Storage
	perms   *permissions.Service
	logger  *zap.Logger
}

// NewPruner creates a pruner over the given stores.
func NewPruner(cfg Config, rel *relational.Store, deleter *deletion.Service, files filestore.Storage, perms *permissions.Service, logger *zap.Logger) (*Pruner, error) {
	if rel == nil {
		return nil, errors.New("relational store cannot be nil")
	}
	if deleter == nil {
		return nil, errors.New("deletion service cannot be nil")
	}
	if files == nil {
		return nil, errors.New("file storage cannot be nil")
	}
	if perms == nil {
		return nil, errors.New("permissions service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pruner{
		config:  cfg,
		rel:     rel,
		deleter: deleter,
		files:   files,
		perms:   perms,
		logger:  logger,
	}, nil
}

// candidate is one dataset membership of an unused data item. An item
// living in several datasets is pruned from each separately.
type candidate struct {
	datasetID uuid.UUID
	dataID    uuid.UUID
	location  string
}

// PruneUnused deletes data in the user's delete-permitted datasets that was
// last accessed more than olderThan ago. Rows never accessed count as
// unused once their creation predates the cutoff. With dryRun set, the
// report lists candidates without mutating anything.
//
// Deletions run in hard mode, so each document's orphaned graph neighbors
// are pruned along with it, and raw-data blobs are removed once their data
// row belongs to no remaining dataset. Per-item failures are collected in
// the report; the batch never aborts.
func (p *Pruner) PruneUnused(ctx context.Context, user permissions.User, olderThan time.Duration, dryRun bool) (*apiv1.PruneReport, error) {
	if olderThan < 0 {
		return nil, fmt.Errorf("%w: retention window cannot be negative", apiv1.ErrInvalidRequest)
	}
	if !p.config.TrackAccess {
		return nil, ErrTrackingDisabled
	}

	ctx, span := tracer.Start(ctx, "maintenance.PruneUnused", trace.WithAttributes(
		attribute.String("prune.older_than", olderThan.String()),
		attribute.Bool("prune.dry_run", dryRun),
	))
	defer span.End()

	cutoff := time.Now().UTC().Add(-olderThan)
	counts, err := p.rel.DataAccessCounts(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if counts.Tracked == 0 {
		p.logger.Warn("prune skipped, nothing tracked yet",
			zap.Int64("total_data", counts.Total))
		return nil, ErrNothingTracked
	}

	datasets, err := p.perms.AuthorizedDatasets(ctx, user, relational.PermissionDelete)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report := &apiv1.PruneReport{
		Status:    apiv1.StatusDryRun,
		Timestamp: time.Now().UTC(),
	}

	var candidates []candidate
	seen := make(map[uuid.UUID]struct{})
	for _, dataset := range datasets {
		unused, err := p.rel.UnusedData(ctx, []uuid.UUID{dataset.ID}, cutoff)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		for _, data := range unused {
			candidates = append(candidates, candidate{
				datasetID: dataset.ID,
				dataID:    data.ID,
				location:  data.RawDataLocation,
			})
			if _, ok := seen[data.ID]; !ok {
				seen[data.ID] = struct{}{}
				report.UnusedDataIDs = append(report.UnusedDataIDs, data.ID)
			}
		}
	}
	report.UnusedCount = len(candidates)

	if dryRun {
		p.logger.Info("prune dry run",
			zap.Int("unused", report.UnusedCount),
			zap.Duration("older_than", olderThan))
		return report, nil
	}

	report.Status = apiv1.StatusCompleted
	for _, c := range candidates {
		if _, err := p.deleter.DeleteData(ctx, c.datasetID, c.dataID, user, deletion.ModeHard); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", c.dataID, err))
			p.logger.Error("failed to prune data",
				zap.String("data_id", c.dataID.String()),
				zap.String("dataset_id", c.datasetID.String()),
				zap.Error(err))
			continue
		}
		report.Deleted++
		if err := p.removeBlob(ctx, c); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: removing blob: %v", c.dataID, err))
			p.logger.Error("failed to remove raw data blob",
				zap.String("data_id", c.dataID.String()),
				zap.String("location", c.location),
				zap.Error(err))
		}
	}

	p.logger.Info("prune completed",
		zap.Int("unused", report.UnusedCount),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed),
		zap.Duration("older_than", olderThan))
	return report, nil
}

// removeBlob deletes the candidate's backing raw-data object once its data
// row is fully gone. A row that still exists is referenced by another
// dataset, so its blob stays.
func (p *Pruner) removeBlob(ctx context.Context, c candidate) error {
	if c.location == "" {
		return nil
	}
	if _, err := p.rel.GetData(ctx, c.dataID); err == nil {
		return nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return p.files.Remove(ctx, c.location)
}

// Statistics reports access-pattern counts against the given retention
// window, for sizing a prune threshold before committing to one. It works
// with tracking off; a zero tracked count is itself the useful signal.
func (p *Pruner) Statistics(ctx context.Context, olderThan time.Duration) (*apiv1.PruneStats, error) {
	if olderThan < 0 {
		return nil, fmt.Errorf("%w: retention window cannot be negative", apiv1.ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "maintenance.Statistics")
	defer span.End()

	counts, err := p.rel.DataAccessCounts(ctx, time.Now().UTC().Add(-olderThan))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &apiv1.PruneStats{
		TotalData: counts.Total,
		Tracked:   counts.Tracked,
		Untracked: counts.Total - counts.Tracked,
		Unused:    counts.Unused,
		Active:    counts.Total - counts.Unused,
	}, nil
}
