// Package permissions gates dataset access. Every deletion entry point
// authorizes through this package before touching any store, so a denial
// always leaves the graph, vector, and relational state untouched.
package permissions

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fyrsmithlabs/mnemod/internal/identity"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
)

const instrumentationName = "github.com/fyrsmithlabs/mnemod/internal/permissions"

var tracer = otel.Tracer("mnemod.permissions")

var (
	// ErrPermissionDenied indicates the user lacks the required permission
	// on the dataset.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDatasetNotFound indicates the dataset target could not be
	// resolved.
	ErrDatasetNotFound = errors.New("dataset not found")

	// ErrNotOwner indicates a grant attempted by someone other than the
	// dataset owner.
	ErrNotOwner = errors.New("grantor does not own dataset")
)

// DefaultUserID is the deterministic principal used when no user is
// supplied. Derived from the well-known default account name so every
// process agrees on it without coordination.
var DefaultUserID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("default_user@example.com"))

// User identifies the principal performing an operation.
type User struct {
	ID uuid.UUID
}

// Service answers permission questions against the relational ACL table.
type Service struct {
	store  *relational.Store
	logger *zap.Logger
	checks metric.Int64Counter
}

// NewService creates a permission service over the relational store.
func NewService(store *relational.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	checks, err := otel.Meter(instrumentationName).Int64Counter(
		"mnemod.permissions.checks_total",
		metric.WithDescription("Total permission checks by action and outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		logger.Warn("failed to create checks counter", zap.Error(err))
	}

	return &Service{store: store, logger: logger, checks: checks}
}

// DefaultUser ensures the default principal exists and returns it. CLI
// paths use it when no user id is given.
func (s *Service) DefaultUser(ctx context.Context) (User, error) {
	if err := s.store.EnsurePrincipal(ctx, DefaultUserID); err != nil {
		return User{}, err
	}
	return User{ID: DefaultUserID}, nil
}

// Authorize resolves the dataset by id and verifies the user holds action
// on it. Returns the dataset on success, ErrDatasetNotFound when no such
// dataset exists, and ErrPermissionDenied when the ACL check fails.
func (s *Service) Authorize(ctx context.Context, user User, datasetID uuid.UUID, action string) (*relational.Dataset, error) {
	ctx, span := tracer.Start(ctx, "permissions.Authorize", trace.WithAttributes(
		attribute.String("dataset.id", datasetID.String()),
		attribute.String("permission.action", action),
	))
	defer span.End()

	dataset, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "dataset lookup failed")
		return nil, err
	}

	if err := s.check(ctx, user, dataset.ID, action); err != nil {
		span.SetStatus(codes.Error, "denied")
		return nil, err
	}
	return dataset, nil
}

// AuthorizeByName resolves the dataset by (name, owner=user) and verifies
// the user holds action on it. This is the CLI addressing path; named
// datasets always resolve against the caller's own namespace.
func (s *Service) AuthorizeByName(ctx context.Context, user User, name string, action string) (*relational.Dataset, error) {
	dataset, err := s.store.GetDatasetByName(ctx, name, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrDatasetNotFound, name)
		}
		return nil, err
	}
	if err := s.check(ctx, user, dataset.ID, action); err != nil {
		return nil, err
	}
	return dataset, nil
}

// check runs the raw ACL lookup and records the outcome.
func (s *Service) check(ctx context.Context, user User, datasetID uuid.UUID, action string) error {
	ok, err := s.store.HasPermission(ctx, user.ID, datasetID, action)
	if err != nil {
		return fmt.Errorf("checking permission: %w", err)
	}

	outcome := "granted"
	if !ok {
		outcome = "denied"
	}
	if s.checks != nil {
		s.checks.Add(ctx, 1, metric.WithAttributes(
			attribute.String("action", action),
			attribute.String("outcome", outcome),
		))
	}

	if !ok {
		s.logger.Warn("permission denied",
			zap.String("user_id", user.ID.String()),
			zap.String("dataset_id", datasetID.String()),
			zap.String("action", action))
		return fmt.Errorf("%w: user %s lacks %q on dataset %s", ErrPermissionDenied, user.ID, action, datasetID)
	}
	return nil
}

// CreateDataset creates the deterministic-id dataset for (name, owner),
// ensuring the owner principal exists and granting the owner all four
// permissions. Re-creating an existing dataset is a no-op that returns the
// existing row.
func (s *Service) CreateDataset(ctx context.Context, name string, owner User) (*relational.Dataset, error) {
	if err := s.store.EnsurePrincipal(ctx, owner.ID); err != nil {
		return nil, err
	}

	dataset := &relational.Dataset{
		ID:      identity.DatasetID(name, owner.ID),
		Name:    name,
		OwnerID: owner.ID,
	}
	if err := s.store.CreateDataset(ctx, dataset); err != nil {
		return nil, err
	}

	for _, permission := range []string{
		relational.PermissionRead,
		relational.PermissionWrite,
		relational.PermissionDelete,
		relational.PermissionShare,
	} {
		if err := s.store.CreateACL(ctx, owner.ID, dataset.ID, permission); err != nil {
			return nil, fmt.Errorf("granting owner %q: %w", permission, err)
		}
	}

	s.logger.Debug("dataset ready",
		zap.String("dataset_id", dataset.ID.String()),
		zap.String("name", name),
		zap.String("owner_id", owner.ID.String()))
	return dataset, nil
}

// GrantDatasetAccess grants the named permission on each dataset to the
// principal. Only the dataset owner may grant; the first non-owned dataset
// aborts the call.
func (s *Service) GrantDatasetAccess(ctx context.Context, principalID uuid.UUID, datasetIDs []uuid.UUID, permission string, grantor User) error {
	for _, datasetID := range datasetIDs {
		dataset, err := s.store.GetDataset(ctx, datasetID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrDatasetNotFound, datasetID)
			}
			return err
		}
		if dataset.OwnerID != grantor.ID {
			return fmt.Errorf("%w: %s", ErrNotOwner, datasetID)
		}
	}

	if err := s.store.EnsurePrincipal(ctx, principalID); err != nil {
		return err
	}
	for _, datasetID := range datasetIDs {
		if err := s.store.CreateACL(ctx, principalID, datasetID, permission); err != nil {
			return fmt.Errorf("granting %q on %s: %w", permission, datasetID, err)
		}
	}
	return nil
}

// AuthorizedDatasets lists every dataset the user holds permission on.
func (s *Service) AuthorizedDatasets(ctx context.Context, user User, permission string) ([]*relational.Dataset, error) {
	ids, err := s.store.DatasetIDsWithPermission(ctx, user.ID, permission)
	if err != nil {
		return nil, err
	}
	return s.store.ListDatasets(ctx, ids)
}
