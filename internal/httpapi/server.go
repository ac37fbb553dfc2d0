// Package httpapi implements the HTTP/WS Surface (spec 4.H, 6): a
// gorilla/mux router over the Pool Manager, State Manager, Repository
// Analyzer, Sync Coordinator, and Endpoint Auth components.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/archsync/archsync-coordinator/internal/analyzer"
	"github.com/archsync/archsync-coordinator/internal/auth"
	"github.com/archsync/archsync-coordinator/internal/coordinator"
	"github.com/archsync/archsync-coordinator/internal/healthcheck"
	"github.com/archsync/archsync-coordinator/internal/poolmgr"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Server wires every core component to HTTP handlers.
type Server struct {
	store   *storage.Store
	pools   *poolmgr.Manager
	state   *statemgr.Manager
	analyze *analyzer.Analyzer
	sync    *coordinator.Coordinator
	auth    *auth.Authenticator
	health  *healthcheck.HealthChecker
	log     *slog.Logger

	corsAllowedOrigins []string

	hub *operationHub
}

// Deps collects the components Server routes against.
type Deps struct {
	Store       *storage.Store
	Pools       *poolmgr.Manager
	State       *statemgr.Manager
	Analyzer    *analyzer.Analyzer
	Coordinator *coordinator.Coordinator
	Auth        *auth.Authenticator
	Health      *healthcheck.HealthChecker
	Log         *slog.Logger

	// CORSAllowedOrigins is the browser origin allowlist (spec 6
	// cors.allowed_origins); nil/empty disables cross-origin requests
	// entirely rather than defaulting to "allow all".
	CORSAllowedOrigins []string
}

// NewServer builds a Server from its dependencies.
func NewServer(d Deps) *Server {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		store:              d.Store,
		pools:              d.Pools,
		state:              d.State,
		analyze:            d.Analyzer,
		sync:               d.Coordinator,
		auth:               d.Auth,
		health:             d.Health,
		log:                log,
		corsAllowedOrigins: d.CORSAllowedOrigins,
		hub:                newOperationHub(),
	}
}

// Router builds the gorilla/mux router for the full HTTP/WS surface
// (spec 6's route table).
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health/live", s.handleHealthLive).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleHealthReady).Methods(http.MethodGet)
	r.HandleFunc("/health/detailed", s.handleHealthDetailed).Methods(http.MethodGet)

	r.HandleFunc("/api/endpoints/register", s.handleRegisterEndpoint).Methods(http.MethodPost)
	r.HandleFunc("/api/endpoints", s.authenticate(s.handleListEndpoints)).Methods(http.MethodGet)
	r.HandleFunc("/api/endpoints/{id}", s.authenticate(s.handleGetEndpoint)).Methods(http.MethodGet)
	r.HandleFunc("/api/endpoints/{id}/status", s.authenticate(s.handleUpdateEndpointStatus)).Methods(http.MethodPut)
	r.HandleFunc("/api/endpoints/{id}/state", s.authenticate(s.handleSaveState)).Methods(http.MethodPost)
	r.HandleFunc("/api/endpoints/{id}/repositories", s.authenticate(s.handleReplaceRepositories)).Methods(http.MethodPost)
	r.HandleFunc("/api/endpoints/{id}/repositories", s.authenticate(s.handleListRepositories)).Methods(http.MethodGet)
	r.HandleFunc("/api/endpoints/{id}", s.authenticate(s.handleDeleteEndpoint)).Methods(http.MethodDelete)
	r.HandleFunc("/api/endpoints/{id}/sync", s.authenticate(s.handleSyncToLatest)).Methods(http.MethodPost)
	r.HandleFunc("/api/endpoints/{id}/set-latest", s.authenticate(s.handleSetAsLatest)).Methods(http.MethodPost)
	r.HandleFunc("/api/endpoints/{id}/revert", s.authenticate(s.handleRevertToPrevious)).Methods(http.MethodPost)

	r.HandleFunc("/api/pools", s.authenticate(s.handleCreatePool)).Methods(http.MethodPost)
	r.HandleFunc("/api/pools", s.authenticate(s.handleListPools)).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}", s.authenticate(s.handleGetPool)).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}", s.authenticate(s.handleUpdatePool)).Methods(http.MethodPut)
	r.HandleFunc("/api/pools/{id}", s.authenticate(s.handleDeletePool)).Methods(http.MethodDelete)
	r.HandleFunc("/api/pools/{id}/status", s.authenticate(s.handlePoolStatus)).Methods(http.MethodGet)
	r.HandleFunc("/api/pools/{id}/endpoints", s.authenticate(s.handleAssignEndpoint)).Methods(http.MethodPost)
	r.HandleFunc("/api/pools/{id}/endpoints/{eid}", s.authenticate(s.handleRemoveEndpoint)).Methods(http.MethodDelete)
	r.HandleFunc("/api/pools/{id}/endpoints/{eid}/move/{target_pool_id}", s.authenticate(s.handleMoveEndpoint)).Methods(http.MethodPut)

	r.HandleFunc("/api/operations/{id}", s.authenticate(s.handleGetOperation)).Methods(http.MethodGet)
	r.HandleFunc("/api/operations/{id}", s.authenticate(s.handleCancelOperation)).Methods(http.MethodDelete)

	r.HandleFunc("/api/repositories/analysis/{pool_id}", s.authenticate(s.handleAnalysis)).Methods(http.MethodGet)

	r.HandleFunc("/api/dashboard", s.authenticate(s.handleDashboard)).Methods(http.MethodGet)

	r.HandleFunc("/ws/operations", s.authenticate(s.handleOperationsWS))

	if len(s.corsAllowedOrigins) == 0 {
		return r
	}
	return handlers.CORS(
		handlers.AllowedOrigins(s.corsAllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(r)
}
