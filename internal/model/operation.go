package model

import "time"

// OperationKind is the kind of sync action recorded against one endpoint
// (spec section 3).
type OperationKind string

const (
	KindSyncToLatest     OperationKind = "sync_to_latest"
	KindSetAsLatest      OperationKind = "set_as_latest"
	KindRevertToPrevious OperationKind = "revert_to_previous"
)

// OperationStatus is the lifecycle state of an Operation (spec section 3,
// invariant O2).
type OperationStatus string

const (
	StatusPending    OperationStatus = "pending"
	StatusInProgress OperationStatus = "in_progress"
	StatusCompleted  OperationStatus = "completed"
	StatusFailed     OperationStatus = "failed"
	StatusCancelled  OperationStatus = "cancelled"
)

// IsTerminal reports whether s is one of the terminal states
// (completed | failed | cancelled); only pending/in_progress count as
// active (see IsActive).
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether s counts toward the single-flight invariant O1.
func (s OperationStatus) IsActive() bool {
	return s == StatusPending || s == StatusInProgress
}

// ConflictKind enumerates the conflict kinds spec 4.F's conflict analysis
// produces (version_mismatch, missing_package) plus the two reserved-but-
// unproduced kinds (dependency_conflict, repository_unavailable).
type ConflictKind string

const (
	ConflictVersionMismatch       ConflictKind = "version_mismatch"
	ConflictMissingPackage        ConflictKind = "missing_package"
	ConflictDependencyConflict    ConflictKind = "dependency_conflict"
	ConflictRepositoryUnavailable ConflictKind = "repository_unavailable"
)

// SyncConflict is one conflict discovered between an endpoint's current
// state and its sync target (spec 4.F "Conflict analysis").
type SyncConflict struct {
	Kind            ConflictKind `json:"kind"`
	PackageName     string       `json:"package_name"`
	CurrentVersion  string       `json:"current_version,omitempty"`
	TargetVersion   string       `json:"target_version,omitempty"`
	SuggestedAction string       `json:"suggested_action"`
	ResolvedVersion string       `json:"resolved_version,omitempty"`
}

// OperationDetails is the structured Operation.details record (spec
// section 3). All pipelines share these fields; which ones are populated
// depends on Kind and on how far the pipeline got.
type OperationDetails struct {
	CurrentSnapshotID ID             `json:"current_snapshot_id,omitempty"`
	TargetSnapshotID  ID             `json:"target_snapshot_id,omitempty"`
	Conflicts         []SyncConflict `json:"conflicts,omitempty"`
	Resolved          []SyncConflict `json:"resolved,omitempty"`
	Stage             string         `json:"stage,omitempty"`
}

// Operation (SyncOperation) is the record of one sync action against one
// endpoint (spec section 3).
type Operation struct {
	ID           ID
	PoolID       ID
	EndpointID   ID
	Kind         OperationKind
	Status       OperationStatus
	Details      OperationDetails
	ErrorMessage string
	CreatedAt    time.Time
	CompletedAt  *time.Time
}

// allowedTransitions encodes invariant O2: pending -> in_progress ->
// (completed | failed); pending -> cancelled. No other transitions.
var allowedTransitions = map[OperationStatus]map[OperationStatus]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusFailed:    true,
	},
}

// CanTransition reports whether moving from `from` to `to` is permitted by
// invariant O2.
func CanTransition(from, to OperationStatus) bool {
	row, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return row[to]
}
