package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/poolmgr"
)

type createPoolRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	SyncPolicy  *model.SyncPolicy `json:"sync_policy,omitempty"`
}

func (s *Server) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	var req createPoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	pool, err := s.pools.CreatePool(r.Context(), req.Name, req.Description, req.SyncPolicy)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusCreated, toPoolDTO(pool))
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.pools.ListPools(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	dtos := make([]poolDTO, 0, len(pools))
	for _, p := range pools {
		dtos = append(dtos, toPoolDTO(p))
	}
	writeJSON(w, s.log, http.StatusOK, dtos)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	pool, err := s.pools.GetPool(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, toPoolDTO(pool))
}

type updatePoolRequest struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	SyncPolicy  *model.SyncPolicy `json:"sync_policy,omitempty"`
}

func (s *Server) handleUpdatePool(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	var req updatePoolRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	pool, err := s.pools.UpdatePool(r.Context(), id, poolmgr.PoolUpdate{
		Name:        req.Name,
		Description: req.Description,
		SyncPolicy:  req.SyncPolicy,
	})
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, toPoolDTO(pool))
}

func (s *Server) handleDeletePool(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	if err := s.pools.DeletePool(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	status, err := s.pools.AggregateStatus(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, status)
}

type assignEndpointRequest struct {
	EndpointID string `json:"endpoint_id"`
}

func (s *Server) handleAssignEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	poolID, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	var req assignEndpointRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, s.log, err)
		return
	}
	endpointID, err := model.ParseID(req.EndpointID)
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint_id: %v", err))
		return
	}
	if err := s.pools.AssignEndpoint(r.Context(), poolID, endpointID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}

func (s *Server) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	vars := mux.Vars(r)
	poolID, err := model.ParseID(vars["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	endpointID, err := model.ParseID(vars["eid"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	if err := s.pools.RemoveEndpoint(r.Context(), poolID, endpointID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}

func (s *Server) handleMoveEndpoint(w http.ResponseWriter, r *http.Request) {
	if err := requireAdmin(r.Context()); err != nil {
		writeError(w, s.log, err)
		return
	}
	vars := mux.Vars(r)
	fromPoolID, err := model.ParseID(vars["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool id: %v", err))
		return
	}
	endpointID, err := model.ParseID(vars["eid"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint id: %v", err))
		return
	}
	toPoolID, err := model.ParseID(vars["target_pool_id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid target_pool_id: %v", err))
		return
	}
	if err := s.pools.MoveEndpointToPool(r.Context(), endpointID, fromPoolID, toPoolID); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}
