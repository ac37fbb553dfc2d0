package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

// operationUpdate is the WS frame shape of spec 6: "{ type:
// operation_update, operation_id, status, progress: {stage, percentage,
// current_action}, timestamp }".
type operationUpdate struct {
	Type        string   `json:"type"`
	OperationID string   `json:"operation_id"`
	Status      string   `json:"status"`
	Progress    progress `json:"progress"`
	Timestamp   string   `json:"timestamp"`
}

type progress struct {
	Stage         string `json:"stage"`
	Percentage    int    `json:"percentage"`
	CurrentAction string `json:"current_action,omitempty"`
}

// operationHub records the last status pushed for each operation; one map
// is shared by every /ws/operations connection. The coordinator pipelines
// have no reference to the hub; each connection instead polls the
// endpoint's 10 most recent operations (ListEndpointOperations) every
// 500ms and sends a frame only when an operation's status has changed,
// matching the rest of this core's store-is-truth design rather than
// threading a pub/sub channel through every pipeline stage.
type operationHub struct {
	mu   sync.Mutex
	seen map[model.ID]model.OperationStatus
}

func newOperationHub() *operationHub {
	return &operationHub{seen: make(map[model.ID]model.OperationStatus)}
}

// upgrader builds a websocket.Upgrader whose CheckOrigin enforces the
// same cors.allowed_origins list the HTTP surface uses; an empty list
// means no browser origin is allowed to establish a WS connection,
// matching the CORS middleware's default-deny posture.
func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.corsAllowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleOperationsWS streams operation_update frames for one endpoint's
// operations, tolerating client disconnects silently (spec 6).
func (s *Server) handleOperationsWS(w http.ResponseWriter, r *http.Request) {
	endpointIDParam := r.URL.Query().Get("endpoint_id")
	endpointID, err := model.ParseID(endpointIDParam)
	if err != nil {
		writeError(w, s.log, apperr.Validationf("invalid endpoint_id: %v", err))
		return
	}
	if err := requireSelfOrAdmin(r.Context(), endpointID); err != nil {
		writeError(w, s.log, err)
		return
	}

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go s.drainClient(conn, cancel)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.pushUpdates(ctx, conn, endpointID)
		}
	}
}

// drainClient reads (and discards) incoming frames so gorilla/websocket's
// read pump notices a client disconnect; any read error cancels ctx.
func (s *Server) drainClient(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) pushUpdates(ctx context.Context, conn *websocket.Conn, endpointID model.ID) {
	ops, err := s.sync.ListEndpointOperations(ctx, endpointID, 10)
	if err != nil {
		return
	}
	for _, op := range ops {
		s.hub.mu.Lock()
		last, known := s.hub.seen[op.ID]
		changed := !known || last != op.Status
		s.hub.seen[op.ID] = op.Status
		s.hub.mu.Unlock()
		if !changed {
			continue
		}

		percentage := 0
		switch op.Status {
		case model.StatusCompleted, model.StatusFailed, model.StatusCancelled:
			percentage = 100
		case model.StatusInProgress:
			percentage = 50
		}
		update := operationUpdate{
			Type:        "operation_update",
			OperationID: op.ID.String(),
			Status:      string(op.Status),
			Progress: progress{
				Stage:      op.Details.Stage,
				Percentage: percentage,
			},
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		}
		if err := conn.WriteJSON(update); err != nil {
			return
		}
	}
}
