// Package tenant carries per-operation tenant routing through the context.
//
// Each dataset may live in a physically distinct graph database and vector
// namespace. The router computes that placement once per operation and stamps
// it on the context; store adapters read it back instead of taking a dataset
// parameter of their own. Routing never touches process-global state, so
// concurrent operations for different tenants cannot observe each other's
// placement.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Common errors.
var (
	ErrMissingScope = errors.New("no tenant scope in context")
	ErrInvalidScope = errors.New("invalid tenant scope")
)

// scopeContextKey is the context key for tenant scope.
// Unexported struct type prevents collisions with other packages.
type scopeContextKey struct{}

// Scope identifies which physical backends one operation targets.
type Scope struct {
	// DatasetID is the dataset the operation is scoped to.
	DatasetID uuid.UUID

	// OwnerID is the dataset owner, not necessarily the caller.
	OwnerID uuid.UUID

	// GraphDatabase is the graph database name to target. Empty means the
	// shared default database (isolation disabled).
	GraphDatabase string

	// VectorNamespace prefixes vector collection names. Empty means the
	// shared default namespace (isolation disabled).
	VectorNamespace string
}

// Validate checks that the scope is usable for routing.
func (s *Scope) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: scope is nil", ErrInvalidScope)
	}
	if s.DatasetID == uuid.Nil {
		return fmt.Errorf("%w: dataset id is required", ErrInvalidScope)
	}
	if s.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner id is required", ErrInvalidScope)
	}
	return nil
}

// ContextWithScope returns a new context carrying the scope.
func ContextWithScope(ctx context.Context, scope *Scope) (context.Context, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return context.WithValue(ctx, scopeContextKey{}, scope), nil
}

// ScopeFromContext extracts the scope from the context.
//
// Fails closed: callers that require routing get an error, not a silently
// shared backend, when no scope was stamped.
func ScopeFromContext(ctx context.Context) (*Scope, error) {
	scope, ok := ctx.Value(scopeContextKey{}).(*Scope)
	if !ok || scope == nil {
		return nil, ErrMissingScope
	}
	return scope, nil
}

// CollectionName applies the scope's vector namespace to a base collection
// name. With no namespace the base name is returned unchanged.
func (s *Scope) CollectionName(base string) string {
	if s == nil || s.VectorNamespace == "" {
		return base
	}
	return s.VectorNamespace + "_" + base
}
