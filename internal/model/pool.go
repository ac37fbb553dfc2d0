package model

import "time"

// ConflictResolution is a pool's declared policy for handling version
// conflicts discovered during sync_to_latest (spec section 3, 4.F).
type ConflictResolution string

const (
	ConflictResolutionManual ConflictResolution = "manual"
	ConflictResolutionNewest ConflictResolution = "newest"
	ConflictResolutionOldest ConflictResolution = "oldest"
)

// Valid reports whether r is one of the three recognised policy values.
func (r ConflictResolution) Valid() bool {
	switch r {
	case ConflictResolutionManual, ConflictResolutionNewest, ConflictResolutionOldest:
		return true
	}
	return false
}

// SyncPolicy is embedded on Pool (spec section 3: "sync_policy = {
// auto_sync, exclude_packages, include_aur, conflict_resolution }").
type SyncPolicy struct {
	AutoSync           bool                `json:"auto_sync"`
	ExcludePackages    map[string]struct{} `json:"-"`
	IncludeAUR         bool                `json:"include_aur"`
	ConflictResolution ConflictResolution  `json:"conflict_resolution"`
}

// DefaultSyncPolicy is the policy spec 4.D requires create_pool to fall back
// to when the caller does not supply one.
func DefaultSyncPolicy() SyncPolicy {
	return SyncPolicy{
		AutoSync:           false,
		ExcludePackages:    map[string]struct{}{},
		IncludeAUR:         false,
		ConflictResolution: ConflictResolutionManual,
	}
}

// ExcludesPackage reports whether name is in the policy's exclusion set.
func (p SyncPolicy) ExcludesPackage(name string) bool {
	_, ok := p.ExcludePackages[name]
	return ok
}

// syncPolicyJSON is the JSON-on-the-wire shape for SyncPolicy; the set of
// excluded package names is stored as a sorted slice rather than a map key
// set so the embedded JSON column (spec 4.A, 6) round-trips deterministically.
type syncPolicyJSON struct {
	AutoSync           bool               `json:"auto_sync"`
	ExcludePackages    []string           `json:"exclude_packages"`
	IncludeAUR         bool               `json:"include_aur"`
	ConflictResolution ConflictResolution `json:"conflict_resolution"`
}

// Pool is a named group of endpoints that should converge on one package
// set (spec section 3).
type Pool struct {
	ID               ID
	Name             string
	Description      string
	TargetSnapshotID ID // NilID means "no target designated yet"
	SyncPolicy       SyncPolicy
	CreatedAt        time.Time
	UpdatedAt        time.Time

	// EndpointIDs is the denormalised read populated by list_pools / get_pool
	// (spec 4.D: "each with its current endpoint-id list populated (a
	// denormalised read; the authoritative relation is Endpoint.pool_id)").
	EndpointIDs []ID
}

// HasTarget reports whether the pool currently has a designated target
// snapshot (spec invariant P1 only applies once this is true).
func (p Pool) HasTarget() bool {
	return !p.TargetSnapshotID.IsNil()
}

// AggregateStatus is the overall_status enumeration computed over a pool's
// endpoints (spec 4.D).
type AggregateStatus string

const (
	AggregateEmpty           AggregateStatus = "empty"
	AggregateFullySynced     AggregateStatus = "fully_synced"
	AggregateAllOffline      AggregateStatus = "all_offline"
	AggregatePartiallySynced AggregateStatus = "partially_synced"
	AggregateOutOfSync       AggregateStatus = "out_of_sync"
)

// PoolStatus is the aggregate progress summary spec 4.D defines for a pool.
type PoolStatus struct {
	PoolID          ID              `json:"pool_id"`
	TotalEndpoints  int             `json:"total_endpoints"`
	InSyncCount     int             `json:"in_sync_count"`
	AheadCount      int             `json:"ahead_count"`
	BehindCount     int             `json:"behind_count"`
	OfflineCount    int             `json:"offline_count"`
	SyncPercentage  float64         `json:"sync_percentage"`
	OverallStatus   AggregateStatus `json:"overall_status"`
}

// ComputePoolStatus derives the aggregate status for a pool from the
// sync_status of its current endpoints, per the mapping table in spec 4.D.
func ComputePoolStatus(poolID ID, endpoints []Endpoint) PoolStatus {
	status := PoolStatus{PoolID: poolID}
	for _, e := range endpoints {
		status.TotalEndpoints++
		switch e.SyncStatus {
		case SyncStatusInSync:
			status.InSyncCount++
		case SyncStatusAhead:
			status.AheadCount++
		case SyncStatusBehind:
			status.BehindCount++
		case SyncStatusOffline:
			status.OfflineCount++
		}
	}

	if status.TotalEndpoints == 0 {
		status.SyncPercentage = 100
		status.OverallStatus = AggregateEmpty
		return status
	}

	status.SyncPercentage = 100 * float64(status.InSyncCount) / float64(status.TotalEndpoints)

	switch {
	case status.InSyncCount == status.TotalEndpoints:
		status.OverallStatus = AggregateFullySynced
	case status.OfflineCount == status.TotalEndpoints:
		status.OverallStatus = AggregateAllOffline
	case status.InSyncCount > 0 && status.InSyncCount < status.TotalEndpoints:
		status.OverallStatus = AggregatePartiallySynced
	default:
		status.OverallStatus = AggregateOutOfSync
	}
	return status
}
