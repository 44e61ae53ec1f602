package permissions_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/mnemod/internal/config"
	"github.com/fyrsmithlabs/mnemod/internal/identity"
	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
)

func newTestService(t *testing.T) (*permissions.Service, *relational.Store) {
	t.Helper()

	cfg := &config.RelationalConfig{
		Provider: "sqlite",
		Path:     filepath.Join(t.TempDir(), "test.db"),
	}
	store, err := relational.Open(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return permissions.NewService(store, zap.NewNop()), store
}

func newUser(t *testing.T, store *relational.Store) permissions.User {
	t.Helper()

	user := permissions.User{ID: uuid.New()}
	require.NoError(t, store.EnsurePrincipal(context.Background(), user.ID))
	return user
}

func TestCreateDataset_GrantsOwnerEverything(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)
	assert.Equal(t, identity.DatasetID("research", owner.ID), dataset.ID)
	assert.Equal(t, owner.ID, dataset.OwnerID)

	for _, permission := range []string{
		relational.PermissionRead,
		relational.PermissionWrite,
		relational.PermissionDelete,
		relational.PermissionShare,
	} {
		ok, err := store.HasPermission(ctx, owner.ID, dataset.ID, permission)
		require.NoError(t, err)
		assert.True(t, ok, "owner should hold %q", permission)
	}
}

func TestCreateDataset_Idempotent(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)

	first, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)
	second, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	got, err := svc.Authorize(ctx, owner, dataset.ID, relational.PermissionDelete)
	require.NoError(t, err)
	assert.Equal(t, dataset.ID, got.ID)
	assert.Equal(t, "research", got.Name)
}

func TestAuthorize_DeniesStranger(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	stranger := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, stranger, dataset.ID, relational.PermissionDelete)
	assert.ErrorIs(t, err, permissions.ErrPermissionDenied)
}

// A permission grant is action-specific: read does not imply delete.
func TestAuthorize_ActionSpecific(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	reader := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)
	require.NoError(t, svc.GrantDatasetAccess(ctx, reader.ID, []uuid.UUID{dataset.ID}, relational.PermissionRead, owner))

	_, err = svc.Authorize(ctx, reader, dataset.ID, relational.PermissionRead)
	require.NoError(t, err)

	_, err = svc.Authorize(ctx, reader, dataset.ID, relational.PermissionDelete)
	assert.ErrorIs(t, err, permissions.ErrPermissionDenied)

	// Granting delete flips the same call to success.
	require.NoError(t, svc.GrantDatasetAccess(ctx, reader.ID, []uuid.UUID{dataset.ID}, relational.PermissionDelete, owner))
	_, err = svc.Authorize(ctx, reader, dataset.ID, relational.PermissionDelete)
	assert.NoError(t, err)
}

func TestAuthorize_MissingDataset(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	user := newUser(t, store)

	_, err := svc.Authorize(ctx, user, uuid.New(), relational.PermissionDelete)
	assert.ErrorIs(t, err, permissions.ErrDatasetNotFound)
}

func TestAuthorizeByName(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	other := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	got, err := svc.AuthorizeByName(ctx, owner, "research", relational.PermissionDelete)
	require.NoError(t, err)
	assert.Equal(t, dataset.ID, got.ID)

	// Names resolve against the caller's own namespace, so another user
	// does not see the owner's dataset by name.
	_, err = svc.AuthorizeByName(ctx, other, "research", relational.PermissionDelete)
	assert.ErrorIs(t, err, permissions.ErrDatasetNotFound)
}

func TestGrantDatasetAccess_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	reader := newUser(t, store)
	outsider := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	err = svc.GrantDatasetAccess(ctx, reader.ID, []uuid.UUID{dataset.ID}, relational.PermissionRead, outsider)
	assert.ErrorIs(t, err, permissions.ErrNotOwner)

	ok, err := store.HasPermission(ctx, reader.ID, dataset.ID, relational.PermissionRead)
	require.NoError(t, err)
	assert.False(t, ok, "failed grant must not leave an ACL behind")
}

func TestGrantDatasetAccess_MissingDatasetAborts(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	reader := newUser(t, store)

	dataset, err := svc.CreateDataset(ctx, "research", owner)
	require.NoError(t, err)

	err = svc.GrantDatasetAccess(ctx, reader.ID, []uuid.UUID{dataset.ID, uuid.New()}, relational.PermissionRead, owner)
	assert.ErrorIs(t, err, permissions.ErrDatasetNotFound)

	// Ownership of every dataset is verified before any grant lands.
	ok, err := store.HasPermission(ctx, reader.ID, dataset.ID, relational.PermissionRead)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthorizedDatasets(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	owner := newUser(t, store)
	collaborator := newUser(t, store)

	first, err := svc.CreateDataset(ctx, "first", owner)
	require.NoError(t, err)
	second, err := svc.CreateDataset(ctx, "second", owner)
	require.NoError(t, err)

	require.NoError(t, svc.GrantDatasetAccess(ctx, collaborator.ID, []uuid.UUID{first.ID}, relational.PermissionDelete, owner))
	require.NoError(t, svc.GrantDatasetAccess(ctx, collaborator.ID, []uuid.UUID{second.ID}, relational.PermissionRead, owner))

	deletable, err := svc.AuthorizedDatasets(ctx, collaborator, relational.PermissionDelete)
	require.NoError(t, err)
	require.Len(t, deletable, 1)
	assert.Equal(t, first.ID, deletable[0].ID)

	ownerDeletable, err := svc.AuthorizedDatasets(ctx, owner, relational.PermissionDelete)
	require.NoError(t, err)
	assert.Len(t, ownerDeletable, 2)

	none, err := svc.AuthorizedDatasets(ctx, newUser(t, store), relational.PermissionDelete)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDefaultUser(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	user, err := svc.DefaultUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, permissions.DefaultUserID, user.ID)

	// Stable across calls and processes.
	again, err := svc.DefaultUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
}
