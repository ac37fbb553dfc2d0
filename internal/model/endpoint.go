package model

import "time"

// SyncStatus is an endpoint's position relative to its pool's target
// (spec section 3, GLOSSARY).
type SyncStatus string

const (
	SyncStatusInSync  SyncStatus = "in_sync"
	SyncStatusAhead   SyncStatus = "ahead"
	SyncStatusBehind  SyncStatus = "behind"
	SyncStatusOffline SyncStatus = "offline"
)

// Endpoint is a registered Arch-family host reporting package state to the
// coordinator (spec section 3).
type Endpoint struct {
	ID            ID
	Name          string
	Hostname      string
	PoolID        ID // NilID means unassigned
	LastSeen      *time.Time
	SyncStatus    SyncStatus
	AuthTokenHash string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// InPool reports whether the endpoint currently belongs to a pool.
func (e Endpoint) InPool() bool {
	return !e.PoolID.IsNil()
}

// HeartbeatEvent and the endpoint sync_status transition table (spec 4.F).
type HeartbeatEvent string

const (
	EventAssignedToPool HeartbeatEvent = "assigned_to_pool"
	EventTargetChanged  HeartbeatEvent = "target_changed"
	EventSyncCompleted  HeartbeatEvent = "sync_op_completed"
	EventSyncFailed     HeartbeatEvent = "sync_op_failed"
	EventHeartbeatLost  HeartbeatEvent = "heartbeat_lost"
	EventReSeen         HeartbeatEvent = "re_seen"
)

// NextSyncStatus applies the endpoint sync_status transition table from
// spec 4.F. Where the table has a dash ("no transition"), it returns
// current unchanged and false.
func NextSyncStatus(current SyncStatus, event HeartbeatEvent) (SyncStatus, bool) {
	transitions := map[SyncStatus]map[HeartbeatEvent]SyncStatus{
		SyncStatusInSync: {
			EventAssignedToPool: SyncStatusBehind,
			EventTargetChanged:  SyncStatusBehind,
			EventSyncCompleted:  SyncStatusInSync,
			EventHeartbeatLost:  SyncStatusOffline,
		},
		SyncStatusBehind: {
			EventAssignedToPool: SyncStatusBehind,
			EventTargetChanged:  SyncStatusBehind,
			EventSyncCompleted:  SyncStatusInSync,
			EventSyncFailed:     SyncStatusBehind,
			EventHeartbeatLost:  SyncStatusOffline,
		},
		SyncStatusAhead: {
			EventAssignedToPool: SyncStatusAhead,
			EventTargetChanged:  SyncStatusBehind,
			EventSyncCompleted:  SyncStatusInSync,
			EventSyncFailed:     SyncStatusAhead,
			EventHeartbeatLost:  SyncStatusOffline,
		},
		SyncStatusOffline: {
			EventAssignedToPool: SyncStatusBehind,
			EventTargetChanged:  SyncStatusBehind,
			EventSyncCompleted:  SyncStatusInSync,
			EventReSeen:         SyncStatusBehind,
		},
	}

	row, ok := transitions[current]
	if !ok {
		return current, false
	}
	next, ok := row[event]
	if !ok {
		return current, false
	}
	return next, true
}
