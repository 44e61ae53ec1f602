package v1

import (
	"time"

	"github.com/google/uuid"
)

// Operation statuses reported in results.
const (
	StatusSuccess   = "success"
	StatusCompleted = "completed"
	StatusDryRun    = "dry_run"
)

// DeletionResult is the outcome of deleting a single data item. A result is
// only produced on full success; partial completion surfaces as an error.
type DeletionResult struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	DataID    uuid.UUID `json:"data_id"`
	DatasetID uuid.UUID `json:"dataset_id"`

	// GraphDeletions counts deleted graph nodes per category, in the
	// legacy path ("document chunks", "orphaned entities", ...).
	GraphDeletions map[string]int `json:"graph_deletions,omitempty"`

	// DeletedNodeIDs lists every graph node removed for this item; the
	// vector sweep is driven by the same set.
	DeletedNodeIDs []uuid.UUID `json:"deleted_node_ids,omitempty"`
}

// DatasetDeletionResult is the outcome of emptying or deleting a dataset.
// Batch deletion tolerates per-item failures: Deleted and Failed partition
// the item set, and Errors carries one message per failed item.
type DatasetDeletionResult struct {
	Status    string    `json:"status"`
	DatasetID uuid.UUID `json:"dataset_id"`
	Deleted   int       `json:"deleted"`
	Failed    int       `json:"failed"`
	Errors    []string  `json:"errors,omitempty"`
}

// DeletionPreview is the count summary shown before a destructive CLI
// operation is confirmed.
type DeletionPreview struct {
	Datasets    int64 `json:"datasets"`
	DataEntries int64 `json:"data_entries"`
	Users       int64 `json:"users"`
}

// PruneReport is the outcome of an unused-data prune run.
type PruneReport struct {
	Status        string      `json:"status"` // dry_run or completed
	UnusedCount   int         `json:"unused_count"`
	Deleted       int         `json:"deleted"`
	Failed        int         `json:"failed"`
	UnusedDataIDs []uuid.UUID `json:"unused_data_ids,omitempty"`
	Errors        []string    `json:"errors,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
}

// PruneStats summarizes data access patterns, for sizing prune thresholds.
type PruneStats struct {
	TotalData int64 `json:"total_data"`
	Tracked   int64 `json:"tracked"`
	Untracked int64 `json:"untracked"`
	Unused    int64 `json:"unused"`
	Active    int64 `json:"active"`
}
