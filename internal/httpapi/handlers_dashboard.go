package httpapi

import (
	"net/http"

	"github.com/archsync/archsync-coordinator/internal/model"
)

type dashboardResponse struct {
	TotalPools           int            `json:"total_pools"`
	TotalEndpoints       int            `json:"total_endpoints"`
	EndpointsBySyncStatus map[string]int `json:"endpoints_by_sync_status"`
	RecentOperations     []operationDTO `json:"recent_operations"`
}

// handleDashboard is a read-only aggregate over Pool Manager + Sync
// Coordinator reads (pool counts, endpoint counts by sync_status, recent
// operations across all pools); it opens no new write path.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	pools, err := s.pools.ListPools(r.Context())
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	endpoints, err := s.store.ListEndpoints(r.Context(), model.NilID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}

	bySyncStatus := map[string]int{}
	for _, e := range endpoints {
		bySyncStatus[string(e.SyncStatus)]++
	}

	var recent []operationDTO
	for _, p := range pools {
		ops, err := s.sync.ListPoolOperations(r.Context(), p.ID, 5)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		for _, op := range ops {
			recent = append(recent, toOperationDTO(op))
		}
	}

	writeJSON(w, s.log, http.StatusOK, dashboardResponse{
		TotalPools:            len(pools),
		TotalEndpoints:        len(endpoints),
		EndpointsBySyncStatus: bySyncStatus,
		RecentOperations:      recent,
	})
}
