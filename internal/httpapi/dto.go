package httpapi

import (
	"time"

	"github.com/archsync/archsync-coordinator/internal/model"
)

// Wire DTOs give the JSON surface stable snake_case field names
// independent of the internal model structs' Go-idiomatic field names.

type endpointDTO struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Hostname   string     `json:"hostname"`
	PoolID     string     `json:"pool_id,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
	SyncStatus string     `json:"sync_status"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func toEndpointDTO(e model.Endpoint) endpointDTO {
	dto := endpointDTO{
		ID:         e.ID.String(),
		Name:       e.Name,
		Hostname:   e.Hostname,
		SyncStatus: string(e.SyncStatus),
		LastSeen:   e.LastSeen,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
	if e.InPool() {
		dto.PoolID = e.PoolID.String()
	}
	return dto
}

type poolDTO struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description"`
	TargetSnapshotID string           `json:"target_snapshot_id,omitempty"`
	SyncPolicy       model.SyncPolicy `json:"sync_policy"`
	EndpointIDs      []string         `json:"endpoint_ids"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

func toPoolDTO(p model.Pool) poolDTO {
	ids := make([]string, 0, len(p.EndpointIDs))
	for _, id := range p.EndpointIDs {
		ids = append(ids, id.String())
	}
	dto := poolDTO{
		ID:          p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		SyncPolicy:  p.SyncPolicy,
		EndpointIDs: ids,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	if p.HasTarget() {
		dto.TargetSnapshotID = p.TargetSnapshotID.String()
	}
	return dto
}

type operationDTO struct {
	ID           string                `json:"id"`
	PoolID       string                `json:"pool_id"`
	EndpointID   string                `json:"endpoint_id"`
	Kind         string                `json:"kind"`
	Status       string                `json:"status"`
	Details      model.OperationDetails `json:"details"`
	ErrorMessage string                `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

func toOperationDTO(op model.Operation) operationDTO {
	return operationDTO{
		ID:           op.ID.String(),
		PoolID:       op.PoolID.String(),
		EndpointID:   op.EndpointID.String(),
		Kind:         string(op.Kind),
		Status:       string(op.Status),
		Details:      op.Details,
		ErrorMessage: op.ErrorMessage,
		CreatedAt:    op.CreatedAt,
		CompletedAt:  op.CompletedAt,
	}
}

type snapshotDTO struct {
	ID            string                `json:"id"`
	PoolID        string                `json:"pool_id"`
	EndpointID    string                `json:"endpoint_id"`
	CapturedAt    time.Time             `json:"captured_at"`
	PacmanVersion string                `json:"pacman_version"`
	Architecture  string                `json:"architecture"`
	Packages      []model.PackageRecord `json:"packages"`
}

func toSnapshotDTO(snap model.Snapshot) snapshotDTO {
	return snapshotDTO{
		ID:            snap.ID.String(),
		PoolID:        snap.PoolID.String(),
		EndpointID:    snap.EndpointID.String(),
		CapturedAt:    snap.CapturedAt,
		PacmanVersion: snap.PacmanVersion,
		Architecture:  snap.Architecture,
		Packages:      snap.Packages,
	}
}

type repositoryDTO struct {
	ID          string                    `json:"id"`
	EndpointID  string                    `json:"endpoint_id"`
	RepoName    string                    `json:"repo_name"`
	PrimaryURL  string                    `json:"primary_url"`
	Mirrors     []string                  `json:"mirrors"`
	Packages    []model.RepositoryPackage `json:"packages"`
	LastUpdated time.Time                 `json:"last_updated"`
}

func toRepositoryDTO(r model.Repository) repositoryDTO {
	return repositoryDTO{
		ID:          r.ID.String(),
		EndpointID:  r.EndpointID.String(),
		RepoName:    r.RepoName,
		PrimaryURL:  r.PrimaryURL,
		Mirrors:     r.Mirrors,
		Packages:    r.Packages,
		LastUpdated: r.LastUpdated,
	}
}
