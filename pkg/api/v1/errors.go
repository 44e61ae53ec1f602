// Package v1 defines the public result types and error taxonomy for mnemod
// deletion operations.
package v1

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common API errors. Typed errors below wrap these sentinels so callers can
// match with errors.Is without holding the concrete type.
var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrDatasetNotFound          = errors.New("dataset not found")
	ErrDataNotFound             = errors.New("data not found")
	ErrDocumentSubgraphNotFound = errors.New("document subgraph not found")
	ErrUnauthorizedDataAccess   = errors.New("unauthorized data access")
)

// DatasetNotFoundError reports an unresolvable dataset target. Either ID or
// Name is set, depending on how the caller addressed the dataset.
type DatasetNotFoundError struct {
	DatasetID uuid.UUID
	Name      string
}

func (e *DatasetNotFoundError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("dataset not found: %s", e.Name)
	}
	return fmt.Sprintf("dataset not found: %s", e.DatasetID)
}

func (e *DatasetNotFoundError) Is(target error) bool {
	return target == ErrDatasetNotFound
}

// DataNotFoundError reports an unresolvable data target within a dataset.
type DataNotFoundError struct {
	DataID    uuid.UUID
	DatasetID uuid.UUID
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("data not found: %s in dataset %s", e.DataID, e.DatasetID)
}

func (e *DataNotFoundError) Is(target error) bool {
	return target == ErrDataNotFound
}

// DocumentSubgraphNotFoundError reports that the legacy structural probe
// found no subgraph for a document. Fatal for that document only; batch
// operations continue past it.
type DocumentSubgraphNotFoundError struct {
	DataID uuid.UUID
}

func (e *DocumentSubgraphNotFoundError) Error() string {
	return fmt.Sprintf("document subgraph not found for data: %s", e.DataID)
}

func (e *DocumentSubgraphNotFoundError) Is(target error) bool {
	return target == ErrDocumentSubgraphNotFound
}

// UnauthorizedDataAccessError reports a failed delete-permission check.
// It is raised before any mutation; a rejected operation leaves all three
// stores untouched.
type UnauthorizedDataAccessError struct {
	UserID    uuid.UUID
	DatasetID uuid.UUID

	// Cause is the underlying permission-layer error.
	Cause error
}

func (e *UnauthorizedDataAccessError) Error() string {
	return fmt.Sprintf("user %s does not have permission to delete from dataset %s", e.UserID, e.DatasetID)
}

func (e *UnauthorizedDataAccessError) Is(target error) bool {
	return target == ErrUnauthorizedDataAccess
}

func (e *UnauthorizedDataAccessError) Unwrap() error {
	return e.Cause
}
