// Package relational is the metadata store. It holds datasets, data items,
// their junction rows, ACLs, the tracked graph ledger, and the legacy
// relationship ledger behind a single gorm session.
//
// Deletion ordering depends on this package being the last store touched: a
// Data row still existing means its graph and vector footprint may still
// exist, so graph and vector cleanup always run before relational removal.
package relational

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fyrsmithlabs/mnemod/internal/config"
	apiv1 "github.com/fyrsmithlabs/mnemod/pkg/api/v1"
)

// Store wraps the relational database. All methods use short-lived sessions
// scoped to the caller's context; the store holds no long-lived locks.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the configured backend, runs migrations, and seeds the
// permission rows.
func Open(cfg *config.RelationalConfig, logger *zap.Logger) (*Store, error) {
	if cfg == nil {
		return nil, errors.New("relational config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var dialector gorm.Dialector
	switch cfg.Provider {
	case "sqlite":
		path := expandHome(cfg.Path)
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		// WAL plus a busy timeout so batch deletion can write from several
		// goroutines without tripping SQLITE_BUSY.
		dialector = sqlite.Open(path + "?_journal_mode=WAL&_busy_timeout=5000")
	case "postgres":
		dialector = postgres.Open(cfg.DSN.Value())
	default:
		return nil, fmt.Errorf("unsupported relational provider: %q", cfg.Provider)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// Junction and ACL rows are removed explicitly, in deletion order.
		// Database-level cascades would delete them out from under the
		// orchestrator.
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Provider, err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, err
	}

	logger.Info("relational store ready", zap.String("provider", cfg.Provider))
	return s, nil
}

// migrate creates or updates the schema and seeds the permission rows.
func (s *Store) migrate() error {
	err := s.db.AutoMigrate(
		&Principal{},
		&Permission{},
		&ACL{},
		&Dataset{},
		&Data{},
		&DatasetData{},
		&GraphNode{},
		&GraphEdge{},
		&GraphRelationshipLedger{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	for _, name := range []string{PermissionRead, PermissionWrite, PermissionDelete, PermissionShare} {
		perm := Permission{Name: name}
		if err := s.db.Where("name = ?", name).FirstOrCreate(&perm).Error; err != nil {
			return fmt.Errorf("failed to seed permission %q: %w", name, err)
		}
	}
	return nil
}

// DB exposes the underlying gorm handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database handle: %w", err)
	}
	return sqlDB.Close()
}

func (s *Store) session(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// expandHome resolves a leading ~/ against the current user's home directory.
func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// --- Principals ---

// EnsurePrincipal creates the principal row if it does not exist.
func (s *Store) EnsurePrincipal(ctx context.Context, id uuid.UUID) error {
	principal := Principal{ID: id, Type: "user"}
	if err := s.session(ctx).Where("id = ?", id).FirstOrCreate(&principal).Error; err != nil {
		return fmt.Errorf("failed to ensure principal: %w", err)
	}
	return nil
}

// --- Datasets ---

// CreateDataset inserts the dataset row if it does not exist. Idempotent for
// the deterministic-id case: re-creating the same (name, owner) pair returns
// the existing row.
func (s *Store) CreateDataset(ctx context.Context, dataset *Dataset) error {
	if dataset.ID == uuid.Nil {
		return errors.New("dataset id is required")
	}
	if err := s.session(ctx).Where("id = ?", dataset.ID).FirstOrCreate(dataset).Error; err != nil {
		return fmt.Errorf("failed to create dataset: %w", err)
	}
	return nil
}

// GetDataset fetches a dataset by id. Returns gorm.ErrRecordNotFound when no
// row exists.
func (s *Store) GetDataset(ctx context.Context, id uuid.UUID) (*Dataset, error) {
	var dataset Dataset
	if err := s.session(ctx).Where("id = ?", id).First(&dataset).Error; err != nil {
		return nil, fmt.Errorf("failed to get dataset %s: %w", id, err)
	}
	return &dataset, nil
}

// GetDatasetByName fetches a dataset by (name, owner). Returns
// gorm.ErrRecordNotFound when no row exists.
func (s *Store) GetDatasetByName(ctx context.Context, name string, ownerID uuid.UUID) (*Dataset, error) {
	var dataset Dataset
	err := s.session(ctx).Where("name = ? AND owner_id = ?", name, ownerID).First(&dataset).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset %q: %w", name, err)
	}
	return &dataset, nil
}

// ListDatasets fetches the datasets with the given ids, skipping ids with no
// row. An empty id list yields an empty result.
func (s *Store) ListDatasets(ctx context.Context, ids []uuid.UUID) ([]*Dataset, error) {
	var datasets []*Dataset
	if len(ids) == 0 {
		return datasets, nil
	}
	if err := s.session(ctx).Where("id IN ?", ids).Find(&datasets).Error; err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	return datasets, nil
}

// DeleteDataset removes the dataset row only. Junction rows survive so
// per-item cleanup can still correlate data to the dataset. Deleting an
// absent dataset is a no-op.
func (s *Store) DeleteDataset(ctx context.Context, id uuid.UUID) error {
	if err := s.session(ctx).Where("id = ?", id).Delete(&Dataset{}).Error; err != nil {
		return fmt.Errorf("failed to delete dataset %s: %w", id, err)
	}
	return nil
}

// --- Data ---

// CreateData inserts the data row if absent and links it to the dataset.
func (s *Store) CreateData(ctx context.Context, data *Data, datasetID uuid.UUID) error {
	if data.ID == uuid.Nil {
		return errors.New("data id is required")
	}
	if err := s.session(ctx).Where("id = ?", data.ID).FirstOrCreate(data).Error; err != nil {
		return fmt.Errorf("failed to create data: %w", err)
	}
	link := DatasetData{DatasetID: datasetID, DataID: data.ID}
	err := s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, data.ID).
		FirstOrCreate(&link).Error
	if err != nil {
		return fmt.Errorf("failed to link data to dataset: %w", err)
	}
	return nil
}

// GetData fetches a data row by id. Returns gorm.ErrRecordNotFound when no
// row exists.
func (s *Store) GetData(ctx context.Context, id uuid.UUID) (*Data, error) {
	var data Data
	if err := s.session(ctx).Where("id = ?", id).First(&data).Error; err != nil {
		return nil, fmt.Errorf("failed to get data %s: %w", id, err)
	}
	return &data, nil
}

// GetDatasetData lists every data row linked to the dataset.
func (s *Store) GetDatasetData(ctx context.Context, datasetID uuid.UUID) ([]*Data, error) {
	var data []*Data
	err := s.session(ctx).
		Joins("JOIN dataset_data ON dataset_data.data_id = data.id").
		Where("dataset_data.dataset_id = ?", datasetID).
		Find(&data).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset data: %w", err)
	}
	return data, nil
}

// DataInDataset reports whether the data item is linked to the dataset. This
// is the provenance test: unlinked data is caller-managed.
func (s *Store) DataInDataset(ctx context.Context, datasetID, dataID uuid.UUID) (bool, error) {
	var count int64
	err := s.session(ctx).Model(&DatasetData{}).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check dataset membership: %w", err)
	}
	return count > 0, nil
}

// DeleteData unlinks the data item from the dataset and removes the data row
// once no dataset references it. The row is the deletion completion marker,
// so callers run graph and vector cleanup first.
func (s *Store) DeleteData(ctx context.Context, dataID, datasetID uuid.UUID) error {
	err := s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Delete(&DatasetData{}).Error
	if err != nil {
		return fmt.Errorf("failed to unlink data from dataset: %w", err)
	}

	var remaining int64
	err = s.session(ctx).Model(&DatasetData{}).
		Where("data_id = ?", dataID).
		Count(&remaining).Error
	if err != nil {
		return fmt.Errorf("failed to count remaining dataset links: %w", err)
	}
	if remaining > 0 {
		s.logger.Debug("data row kept, still referenced",
			zap.String("data_id", dataID.String()),
			zap.Int64("datasets", remaining))
		return nil
	}

	if err := s.session(ctx).Where("id = ?", dataID).Delete(&Data{}).Error; err != nil {
		return fmt.Errorf("failed to delete data %s: %w", dataID, err)
	}
	return nil
}

// TouchDataAccess stamps the data row's last access time.
func (s *Store) TouchDataAccess(ctx context.Context, dataID uuid.UUID) error {
	now := time.Now().UTC()
	err := s.session(ctx).Model(&Data{}).
		Where("id = ?", dataID).
		Update("last_accessed_at", now).Error
	if err != nil {
		return fmt.Errorf("failed to touch data access: %w", err)
	}
	return nil
}

// UnusedData lists data rows in the given datasets that were last accessed
// before the cutoff. Rows never accessed count as unused once their creation
// predates the cutoff.
func (s *Store) UnusedData(ctx context.Context, datasetIDs []uuid.UUID, cutoff time.Time) ([]*Data, error) {
	var data []*Data
	if len(datasetIDs) == 0 {
		return data, nil
	}
	err := s.session(ctx).
		Joins("JOIN dataset_data ON dataset_data.data_id = data.id").
		Where("dataset_data.dataset_id IN ?", datasetIDs).
		Where(
			s.db.Where("data.last_accessed_at IS NULL AND data.created_at < ?", cutoff).
				Or("data.last_accessed_at < ?", cutoff),
		).
		Distinct("data.*").
		Find(&data).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query unused data: %w", err)
	}
	return data, nil
}

// AccessCounts summarizes access-tracking coverage across all data rows.
type AccessCounts struct {
	Total   int64
	Tracked int64
	Unused  int64
}

// DataAccessCounts counts data rows by access state. Unused applies the
// same predicate as UnusedData, without dataset scoping.
func (s *Store) DataAccessCounts(ctx context.Context, cutoff time.Time) (*AccessCounts, error) {
	var counts AccessCounts
	if err := s.session(ctx).Model(&Data{}).Count(&counts.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count data rows: %w", err)
	}
	err := s.session(ctx).Model(&Data{}).
		Where("last_accessed_at IS NOT NULL").
		Count(&counts.Tracked).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count tracked data rows: %w", err)
	}
	err = s.session(ctx).Model(&Data{}).
		Where(
			s.db.Where("last_accessed_at IS NULL AND created_at < ?", cutoff).
				Or("last_accessed_at < ?", cutoff),
		).
		Count(&counts.Unused).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unused data rows: %w", err)
	}
	return &counts, nil
}

// --- ACLs ---

// GetPermission fetches a permission row by name.
func (s *Store) GetPermission(ctx context.Context, name string) (*Permission, error) {
	var perm Permission
	if err := s.session(ctx).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, fmt.Errorf("failed to get permission %q: %w", name, err)
	}
	return &perm, nil
}

// CreateACL grants the named permission on the dataset to the principal.
// Granting an existing permission is a no-op.
func (s *Store) CreateACL(ctx context.Context, principalID, datasetID uuid.UUID, permissionName string) error {
	perm, err := s.GetPermission(ctx, permissionName)
	if err != nil {
		return err
	}
	acl := ACL{PrincipalID: principalID, PermissionID: perm.ID, DatasetID: datasetID}
	err = s.session(ctx).
		Where("principal_id = ? AND permission_id = ? AND dataset_id = ?", principalID, perm.ID, datasetID).
		FirstOrCreate(&acl).Error
	if err != nil {
		return fmt.Errorf("failed to create acl: %w", err)
	}
	return nil
}

// HasPermission reports whether the principal holds the named permission on
// the dataset.
func (s *Store) HasPermission(ctx context.Context, principalID, datasetID uuid.UUID, permissionName string) (bool, error) {
	var count int64
	err := s.session(ctx).Model(&ACL{}).
		Joins("JOIN permissions ON permissions.id = acls.permission_id").
		Where("acls.principal_id = ? AND acls.dataset_id = ? AND permissions.name = ?",
			principalID, datasetID, permissionName).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return count > 0, nil
}

// DatasetIDsWithPermission lists every dataset on which the principal holds
// the named permission.
func (s *Store) DatasetIDsWithPermission(ctx context.Context, principalID uuid.UUID, permissionName string) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := s.session(ctx).Model(&ACL{}).
		Joins("JOIN permissions ON permissions.id = acls.permission_id").
		Where("acls.principal_id = ? AND permissions.name = ?", principalID, permissionName).
		Distinct().
		Pluck("acls.dataset_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list permitted datasets: %w", err)
	}
	return ids, nil
}

// DeleteDatasetACLs removes every ACL row for the dataset.
func (s *Store) DeleteDatasetACLs(ctx context.Context, datasetID uuid.UUID) error {
	if err := s.session(ctx).Where("dataset_id = ?", datasetID).Delete(&ACL{}).Error; err != nil {
		return fmt.Errorf("failed to delete dataset acls: %w", err)
	}
	return nil
}

// --- Tracked graph ledger ---

// AddGraphNodes records tracked-ledger rows for nodes a data item
// contributed.
func (s *Store) AddGraphNodes(ctx context.Context, nodes []*GraphNode) error {
	if len(nodes) == 0 {
		return nil
	}
	if err := s.session(ctx).CreateInBatches(nodes, 200).Error; err != nil {
		return fmt.Errorf("failed to add graph nodes: %w", err)
	}
	return nil
}

// AddGraphEdges records tracked-ledger rows for edges a data item
// contributed.
func (s *Store) AddGraphEdges(ctx context.Context, edges []*GraphEdge) error {
	if len(edges) == 0 {
		return nil
	}
	if err := s.session(ctx).CreateInBatches(edges, 200).Error; err != nil {
		return fmt.Errorf("failed to add graph edges: %w", err)
	}
	return nil
}

// HasDataRelatedNodes reports whether the data item has any tracked-ledger
// rows. No rows means the item predates per-item tracking and takes the
// structural deletion path.
func (s *Store) HasDataRelatedNodes(ctx context.Context, datasetID, dataID uuid.UUID) (bool, error) {
	var count int64
	err := s.session(ctx).Model(&GraphNode{}).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check tracked nodes: %w", err)
	}
	return count > 0, nil
}

// DataRelatedNodes lists the data item's tracked nodes whose slug is not
// shared with any other data item. Shared nodes must survive the deletion,
// so they are excluded here rather than filtered later.
func (s *Store) DataRelatedNodes(ctx context.Context, datasetID, dataID uuid.UUID) ([]*GraphNode, error) {
	shared := s.db.Model(&GraphNode{}).
		Select("slug").
		Where("data_id <> ?", dataID)

	var nodes []*GraphNode
	err := s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Where("slug NOT IN (?)", shared).
		Find(&nodes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list data related nodes: %w", err)
	}
	return nodes, nil
}

// GraphNodeRows fetches tracked-ledger node rows by row id. Edge rows
// reference endpoints by row id, so resolving an edge to graph identities
// goes through here.
func (s *Store) GraphNodeRows(ctx context.Context, ids []uuid.UUID) ([]*GraphNode, error) {
	var nodes []*GraphNode
	if len(ids) == 0 {
		return nodes, nil
	}
	if err := s.session(ctx).Where("id IN ?", ids).Find(&nodes).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch graph node rows: %w", err)
	}
	return nodes, nil
}

// DataRelatedEdges lists the data item's tracked edges whose slug is not
// shared with any other data item.
func (s *Store) DataRelatedEdges(ctx context.Context, datasetID, dataID uuid.UUID) ([]*GraphEdge, error) {
	shared := s.db.Model(&GraphEdge{}).
		Select("slug").
		Where("data_id <> ?", dataID)

	var edges []*GraphEdge
	err := s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Where("slug NOT IN (?)", shared).
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list data related edges: %w", err)
	}
	return edges, nil
}

// DeleteDataNodesAndEdges removes every tracked-ledger row for the data
// item, shared or not. The shared graph nodes themselves survive; only this
// item's contribution records go.
func (s *Store) DeleteDataNodesAndEdges(ctx context.Context, datasetID, dataID uuid.UUID) error {
	res := s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Delete(&GraphEdge{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete tracked edges: %w", res.Error)
	}
	edges := res.RowsAffected

	res = s.session(ctx).
		Where("dataset_id = ? AND data_id = ?", datasetID, dataID).
		Delete(&GraphNode{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete tracked nodes: %w", res.Error)
	}

	s.logger.Debug("tracked ledger rows removed",
		zap.String("data_id", dataID.String()),
		zap.Int64("nodes", res.RowsAffected),
		zap.Int64("edges", edges))
	return nil
}

// --- Relationship ledger ---

// AppendRelationshipLedger records provenance rows for created
// relationships.
func (s *Store) AppendRelationshipLedger(ctx context.Context, rows []*GraphRelationshipLedger) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.session(ctx).CreateInBatches(rows, 200).Error; err != nil {
		return fmt.Errorf("failed to append relationship ledger: %w", err)
	}
	return nil
}

// TombstoneLedger marks ledger rows touching any of the deleted nodes. Rows
// stay in place for audit; only deleted_at changes. Returns the number of
// rows tombstoned.
func (s *Store) TombstoneLedger(ctx context.Context, nodeIDs []uuid.UUID) (int64, error) {
	if len(nodeIDs) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	res := s.session(ctx).Model(&GraphRelationshipLedger{}).
		Where("deleted_at IS NULL").
		Where("source_node_id IN ? OR destination_node_id IN ?", nodeIDs, nodeIDs).
		Update("deleted_at", now)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to tombstone relationship ledger: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// --- Preview ---

// DeletionCounts reports row totals for the CLI confirmation prompt.
func (s *Store) DeletionCounts(ctx context.Context) (*apiv1.DeletionPreview, error) {
	preview := &apiv1.DeletionPreview{}

	if err := s.session(ctx).Model(&Dataset{}).Count(&preview.Datasets).Error; err != nil {
		return nil, fmt.Errorf("failed to count datasets: %w", err)
	}
	if err := s.session(ctx).Model(&Data{}).Count(&preview.DataEntries).Error; err != nil {
		return nil, fmt.Errorf("failed to count data entries: %w", err)
	}
	if err := s.session(ctx).Model(&Principal{}).Count(&preview.Users).Error; err != nil {
		return nil, fmt.Errorf("failed to count principals: %w", err)
	}
	return preview, nil
}
