package deletion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
	apiv1 "github.com/fyrsmithlabs/mnemod/pkg/api/v1"
)

// EmptyDataset removes every data item in the dataset along with the
// dataset row and its grants. Items are deleted concurrently; one failing
// item does not abort the rest, it is reported in the result instead.
func (s *Service) EmptyDataset(ctx context.Context, datasetID uuid.UUID, user permissions.User) (*apiv1.DatasetDeletionResult, error) {
	ctx, span := tracer.Start(ctx, "deletion.EmptyDataset", trace.WithAttributes(
		attribute.String("dataset.id", datasetID.String()),
	))
	defer span.End()
	start := time.Now()

	dataset, err := s.perms.Authorize(ctx, user, datasetID, relational.PermissionDelete)
	if err != nil {
		err = translateError(err, user, datasetID, uuid.Nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "authorization failed")
		s.metrics.RecordOperation(ctx, "empty_dataset", "", time.Since(start), 0, err)
		return nil, err
	}

	ctx, err = s.router.Route(ctx, dataset.ID, dataset.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("routing tenant context: %w", err)
	}

	items, err := s.rel.GetDatasetData(ctx, dataset.ID)
	if err != nil {
		return nil, err
	}

	// The dataset row goes first. Junction rows survive it, so each item's
	// cleanup can still correlate the item to this dataset.
	if err := s.rel.DeleteDataset(ctx, dataset.ID); err != nil {
		return nil, err
	}
	if err := s.rel.DeleteDatasetACLs(ctx, dataset.ID); err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		failures []string
	)
	var group errgroup.Group
	group.SetLimit(s.config.BatchConcurrency)
	for _, item := range items {
		item := item
		group.Go(func() error {
			if _, _, err := s.deleteItem(ctx, dataset.ID, item.ID, ModeSoft); err != nil {
				s.logger.Error("failed to delete data item",
					zap.String("dataset_id", dataset.ID.String()),
					zap.String("data_id", item.ID.String()),
					zap.Error(err))
				mu.Lock()
				failures = append(failures, fmt.Sprintf("%s: %v", item.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = group.Wait()

	result := &apiv1.DatasetDeletionResult{
		Status:    apiv1.StatusCompleted,
		DatasetID: dataset.ID,
		Deleted:   len(items) - len(failures),
		Failed:    len(failures),
		Errors:    failures,
	}

	s.metrics.RecordOperation(ctx, "empty_dataset", "", time.Since(start), 0, nil)
	if result.Failed > 0 {
		s.logger.Warn("dataset emptied with failures",
			zap.String("dataset_id", dataset.ID.String()),
			zap.Int("failed", result.Failed),
			zap.Int("total", len(items)),
			zap.Strings("errors", failures))
	} else {
		s.logger.Info("dataset emptied",
			zap.String("dataset_id", dataset.ID.String()),
			zap.Int("deleted", result.Deleted))
	}
	return result, nil
}

// DeleteAll empties every dataset the user holds delete permission on.
// Datasets are processed sequentially because each one routes its own
// tenant context; per-dataset failures are joined, not fail-fast.
func (s *Service) DeleteAll(ctx context.Context, user permissions.User) error {
	ctx, span := tracer.Start(ctx, "deletion.DeleteAll")
	defer span.End()

	datasets, err := s.perms.AuthorizedDatasets(ctx, user, relational.PermissionDelete)
	if err != nil {
		return err
	}

	var errs []error
	for _, dataset := range datasets {
		if _, err := s.EmptyDataset(ctx, dataset.ID, user); err != nil {
			errs = append(errs, fmt.Errorf("dataset %s: %w", dataset.ID, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete all incomplete")
		return err
	}

	s.logger.Info("all datasets deleted",
		zap.String("user_id", user.ID.String()),
		zap.Int("datasets", len(datasets)))
	return nil
}

// DeleteDataset removes the dataset record, its contents, and the raw-data
// blobs backing items that no other dataset still references. Blob removal
// failures are reported in the result but do not fail the items.
func (s *Service) DeleteDataset(ctx context.Context, dataset *relational.Dataset, user permissions.User) (*apiv1.DatasetDeletionResult, error) {
	if dataset == nil {
		return nil, fmt.Errorf("%w: dataset cannot be nil", apiv1.ErrInvalidRequest)
	}

	ctx, span := tracer.Start(ctx, "deletion.DeleteDataset", trace.WithAttributes(
		attribute.String("dataset.id", dataset.ID.String()),
	))
	defer span.End()

	// Raw-data locations must be captured before the rows go away.
	items, err := s.rel.GetDatasetData(ctx, dataset.ID)
	if err != nil {
		return nil, err
	}
	locations := make(map[uuid.UUID]string, len(items))
	for _, item := range items {
		if item.RawDataLocation != "" {
			locations[item.ID] = item.RawDataLocation
		}
	}

	result, err := s.EmptyDataset(ctx, dataset.ID, user)
	if err != nil {
		return nil, err
	}

	for dataID, location := range locations {
		// A data row that still exists is referenced by another dataset;
		// its blob stays.
		if _, err := s.rel.GetData(ctx, dataID); err == nil {
			continue
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", dataID, err))
			continue
		}
		if err := s.files.Remove(ctx, location); err != nil {
			s.logger.Error("failed to remove raw data blob",
				zap.String("data_id", dataID.String()),
				zap.String("location", location),
				zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("%s: removing blob: %v", dataID, err))
		}
	}

	return result, nil
}
