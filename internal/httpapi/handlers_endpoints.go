package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

type registerRequest struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
}

type registerResponse struct {
	Endpoint endpointDTO `json:"endpoint"`
	Token    string      `json:"token"`
}

func (s *Server) handleRegisterEndpoint(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	if req.Name == "" || req.Hostname == "" {
		writeError(w, s.log, apperr.Validationf("name and hostname are required"))
		return
	}

	endpoint, token, err := s.auth.Register(r.Context(), req.Name, req.Hostname)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, registerResponse{Endpoint: toEndpointDTO(endpoint), Token: token})
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	var poolID model.ID
	if q := r.URL.Query().Get("pool_id"); q != "" {
		parsed, err := model.ParseID(q)
		if err != nil {
			writeError(w, s.log, apperr.Validationf("invalid pool_id: %v", err))
			return
		}
		poolID = parsed
	}

	endpoints, err := s.store.ListEndpoints(r.Context(), poolID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	dtos := make([]endpointDTO, 0, len(endpoints))
	for _, e := range endpoints {
		dtos = append(dtos, toEndpointDTO(e))
	}
	writeJSON(w, s.log, http.StatusOK, dtos)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	endpoint, err := s.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, toEndpointDTO(endpoint))
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateEndpointStatus(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	status := model.SyncStatus(req.Status)
	switch status {
	case model.SyncStatusInSync, model.SyncStatusAhead, model.SyncStatusBehind, model.SyncStatusOffline:
	default:
		writeError(w, s.log, apperr.Validationf("unrecognised status %q", req.Status))
		return
	}

	if err := s.store.UpdateEndpointSyncStatus(r.Context(), id, status, time.Now().UTC()); err != nil {
		writeError(w, s.log, err)
		return
	}
	endpoint, err := s.store.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, toEndpointDTO(endpoint))
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.store.DeleteEndpoint(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}

type replaceRepositoriesRequest struct {
	Repositories []repositoryPayload `json:"repositories"`
}

type repositoryPayload struct {
	RepoName   string                    `json:"repo_name"`
	PrimaryURL string                    `json:"primary_url"`
	Mirrors    []string                  `json:"mirrors"`
	Packages   []model.RepositoryPackage `json:"packages"`
}

func (s *Server) handleReplaceRepositories(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}

	var req replaceRepositoriesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	now := time.Now().UTC()
	repos := make([]model.Repository, 0, len(req.Repositories))
	for _, rp := range req.Repositories {
		repos = append(repos, model.Repository{
			ID:          model.NewID(),
			EndpointID:  id,
			RepoName:    rp.RepoName,
			PrimaryURL:  rp.PrimaryURL,
			Mirrors:     rp.Mirrors,
			Packages:    rp.Packages,
			LastUpdated: now,
		})
	}

	if err := s.store.ReplaceEndpointRepositories(r.Context(), id, repos, now); err != nil {
		writeError(w, s.log, err)
		return
	}

	if endpoint, err := s.store.GetEndpoint(r.Context(), id); err == nil && endpoint.InPool() {
		if _, err := s.analyze.Analyze(r.Context(), endpoint.PoolID); err != nil {
			s.log.Warn("compatibility analysis failed after repository replace",
				"endpoint_id", id, "pool_id", endpoint.PoolID, "error", err)
		}
	}

	writeJSON(w, s.log, http.StatusOK, nil)
}

type saveStateRequest struct {
	PacmanVersion string                `json:"pacman_version"`
	Architecture  string                `json:"architecture"`
	Packages      []model.PackageRecord `json:"packages"`
}

// handleSaveState is the endpoint-self-scoped push route through which an
// endpoint reports its installed package set to the State Manager (spec
// 4.C "save_snapshot"); without it no snapshot can ever exist for
// sync_to_latest/set_as_latest/revert_to_previous to operate on.
func (s *Server) handleSaveState(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}

	var req saveStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}

	snap, err := s.state.SaveSnapshot(r.Context(), id, req.Packages, req.PacmanVersion, req.Architecture)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusCreated, toSnapshotDTO(snap))
}

func (s *Server) handleListRepositories(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	repos, err := s.store.ListEndpointRepositories(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	dtos := make([]repositoryDTO, 0, len(repos))
	for _, repo := range repos {
		dtos = append(dtos, toRepositoryDTO(repo))
	}
	writeJSON(w, s.log, http.StatusOK, dtos)
}

func (s *Server) handleSyncToLatest(w http.ResponseWriter, r *http.Request) {
	s.createOperation(w, r, s.sync.SyncToLatest)
}

func (s *Server) handleSetAsLatest(w http.ResponseWriter, r *http.Request) {
	s.createOperation(w, r, s.sync.SetAsLatest)
}

func (s *Server) handleRevertToPrevious(w http.ResponseWriter, r *http.Request) {
	s.createOperation(w, r, s.sync.RevertToPrevious)
}

// createOperation parses and authorises the target endpoint, then
// delegates to whichever coordinator pipeline entry point (sync,
// set-latest, revert) the route requested.
func (s *Server) createOperation(w http.ResponseWriter, r *http.Request, start func(ctx context.Context, endpointID model.ID) (model.Operation, error)) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	op, err := start(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusAccepted, toOperationDTO(op))
}
