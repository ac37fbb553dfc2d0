package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

func (s *Server) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid operation id: %v", err))
		return
	}
	op, err := s.sync.GetOperation(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, toOperationDTO(op))
}

func (s *Server) handleCancelOperation(w http.ResponseWriter, r *http.Request) {
	id, err := model.ParseID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid operation id: %v", err))
		return
	}
	op, err := s.sync.GetOperation(r.Context(), id)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := requireSelfOrAdmin(r.Context(), op.EndpointID); err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.sync.CancelOperation(r.Context(), id); err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusNoContent, nil)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	poolID, err := model.ParseID(mux.Vars(r)["pool_id"])
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid pool_id: %v", err))
		return
	}
	analysis, err := s.analyze.Analyze(r.Context(), poolID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, s.log, http.StatusOK, analysis)
}
