package relational

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Permission names grantable on a dataset. Dataset creation grants the owner
// all four; deletion always checks PermissionDelete.
const (
	PermissionRead   = "read"
	PermissionWrite  = "write"
	PermissionDelete = "delete"
	PermissionShare  = "share"
)

// Pipeline status values recorded per data item. The deletion path treats
// them as opaque bookkeeping; only the pruner and CLI preview read them.
const (
	StatusProcessingStarted   = "DATA_ITEM_PROCESSING_STARTED"
	StatusProcessingCompleted = "DATA_ITEM_PROCESSING_COMPLETED"
	StatusProcessingErrored   = "DATA_ITEM_PROCESSING_ERRORED"
)

// Principal is a user or group that can hold dataset permissions.
type Principal struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Type      string    `gorm:"not null;default:user" json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Principal) TableName() string { return "principals" }

func (p *Principal) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Permission is a named capability referenced by ACL rows. The four known
// names are seeded at migration time.
type Permission struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Permission) TableName() string { return "permissions" }

func (p *Permission) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// ACL grants one permission on one dataset to one principal.
type ACL struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	PrincipalID  uuid.UUID `gorm:"type:uuid;not null;index:idx_acls_grant"`
	PermissionID uuid.UUID `gorm:"type:uuid;not null;index:idx_acls_grant"`
	DatasetID    uuid.UUID `gorm:"type:uuid;not null;index:idx_acls_grant"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ACL) TableName() string { return "acls" }

func (a *ACL) BeforeCreate(*gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// Dataset groups data items under one owner. Its ID is derived
// deterministically from (name, owner) so the same logical dataset never
// forks per caller.
type Dataset struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"not null;index" json:"name"`
	OwnerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Dataset) TableName() string { return "datasets" }

// Data is one ingested item. A row may belong to several datasets through
// the dataset_data junction and is removed only when its graph and vector
// footprint is gone and no dataset references it.
type Data struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string         `json:"name"`
	Extension        string         `json:"extension"`
	MimeType         string         `json:"mime_type"`
	RawDataLocation  string         `json:"raw_data_location"`
	OwnerID          uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`
	ContentHash      string         `gorm:"index" json:"content_hash"`
	ExternalMetadata datatypes.JSON `json:"external_metadata,omitempty"`
	NodeSet          datatypes.JSON `json:"node_set,omitempty"`
	TokenCount       int            `json:"token_count"`
	DataSize         int64          `json:"data_size"`
	PipelineStatus   datatypes.JSON `json:"pipeline_status,omitempty"`
	LastAccessedAt   *time.Time     `gorm:"index" json:"last_accessed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (Data) TableName() string { return "data" }

// DatasetData links datasets to their data items. Junction rows outlive the
// dataset row during a dataset purge so per-item cleanup can still correlate
// data to the dataset being emptied.
type DatasetData struct {
	DatasetID uuid.UUID `gorm:"type:uuid;primaryKey"`
	DataID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time
}

func (DatasetData) TableName() string { return "dataset_data" }

// GraphNode is one tracked-ledger row recording that a data item contributed
// a graph node. Slug is the deterministic graph identity; the same slug
// appearing under several data ids marks a shared node.
type GraphNode struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Slug          uuid.UUID      `gorm:"type:uuid;not null;index"`
	UserID        uuid.UUID      `gorm:"type:uuid;index"`
	DataID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_graph_nodes_data"`
	DatasetID     uuid.UUID      `gorm:"type:uuid;not null;index:idx_graph_nodes_data"`
	Type          string         `gorm:"not null"`
	IndexedFields datatypes.JSON
	CreatedAt     time.Time
}

func (GraphNode) TableName() string { return "graph_nodes" }

func (n *GraphNode) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// GraphEdge is one tracked-ledger row recording that a data item contributed
// a graph edge. Source and destination reference GraphNode row ids, not
// slugs.
type GraphEdge struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	Slug              uuid.UUID `gorm:"type:uuid;not null;index"`
	UserID            uuid.UUID `gorm:"type:uuid;index"`
	DataID            uuid.UUID `gorm:"type:uuid;not null;index:idx_graph_edges_data"`
	DatasetID         uuid.UUID `gorm:"type:uuid;not null;index:idx_graph_edges_data"`
	RelationshipName  string    `gorm:"not null"`
	SourceNodeID      uuid.UUID `gorm:"type:uuid;not null"`
	DestinationNodeID uuid.UUID `gorm:"type:uuid;not null"`
	CreatedAt         time.Time
}

func (GraphEdge) TableName() string { return "graph_edges" }

func (e *GraphEdge) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

// GraphRelationshipLedger is the append-only provenance log consulted by the
// legacy deletion path. Rows are tombstoned by setting DeletedAt, never
// removed.
type GraphRelationshipLedger struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey"`
	SourceNodeID      uuid.UUID `gorm:"type:uuid;index"`
	DestinationNodeID uuid.UUID `gorm:"type:uuid;index"`
	CreatorFunction   string
	UserID            uuid.UUID `gorm:"type:uuid"`
	CreatedAt         time.Time
	DeletedAt         *time.Time
}

func (GraphRelationshipLedger) TableName() string { return "graph_relationship_ledger" }

func (l *GraphRelationshipLedger) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
