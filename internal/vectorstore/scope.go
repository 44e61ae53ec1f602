package vectorstore

import (
	"context"

	"github.com/fyrsmithlabs/mnemod/internal/tenant"
)

// scopedCollectionName resolves the physical collection name for a base
// name: the tenant scope's vector namespace is applied when present. With
// requireScope set, a missing scope fails closed.
func scopedCollectionName(ctx context.Context, requireScope bool, base string) (string, error) {
	if err := ValidateCollectionName(base); err != nil {
		return "", err
	}
	scope, err := tenant.ScopeFromContext(ctx)
	if err != nil {
		if requireScope {
			return "", err
		}
		return base, nil
	}
	return scope.CollectionName(base), nil
}

// scopeNamespacePrefix resolves the namespace prefix pruning is restricted
// to. Empty means no restriction.
func scopeNamespacePrefix(ctx context.Context, requireScope bool) (string, error) {
	scope, err := tenant.ScopeFromContext(ctx)
	if err != nil {
		if requireScope {
			return "", err
		}
		return "", nil
	}
	if scope.VectorNamespace == "" {
		return "", nil
	}
	return scope.VectorNamespace + "_", nil
}
