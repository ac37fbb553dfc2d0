package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
)

type principalKey struct{}

// principal is the authenticated caller attached to the request context:
// either a specific endpoint or the admin role (spec 4.G).
type principal struct {
	endpoint   model.Endpoint
	isAdmin    bool
	isEndpoint bool
}

func principalFromContext(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(principalKey{}).(principal)
	return p, ok
}

// authenticate extracts and verifies the bearer token, attaching the
// resulting principal to the request context. Routes that allow
// anonymous access (register, health) do not wrap with this middleware.
func (s *Server) authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, s.log, apperr.Authf("missing bearer token"))
			return
		}
		if s.auth.IsAdminToken(token) {
			ctx := context.WithValue(r.Context(), principalKey{}, principal{isAdmin: true})
			next(w, r.WithContext(ctx))
			return
		}
		endpoint, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			writeError(w, s.log, err)
			return
		}
		endpoint = s.recordLiveness(r.Context(), endpoint)
		ctx := context.WithValue(r.Context(), principalKey{}, principal{endpoint: endpoint, isEndpoint: true})
		next(w, r.WithContext(ctx))
	}
}

// recordLiveness touches the endpoint's heartbeat and, if it had been
// marked offline, applies the re_seen transition (spec 4.F) now that a
// request has proven it reachable again. Failures here are logged, not
// fatal: a missed heartbeat touch should never block the caller's request.
func (s *Server) recordLiveness(ctx context.Context, endpoint model.Endpoint) model.Endpoint {
	now := time.Now().UTC()
	if err := s.store.TouchEndpointHeartbeat(ctx, endpoint.ID, now); err != nil {
		s.log.Warn("failed to record endpoint heartbeat", "endpoint_id", endpoint.ID, "error", err)
		return endpoint
	}
	endpoint.LastSeen = &now

	next, ok := model.NextSyncStatus(endpoint.SyncStatus, model.EventReSeen)
	if !ok {
		return endpoint
	}
	if err := s.store.UpdateEndpointSyncStatus(ctx, endpoint.ID, next, now); err != nil {
		s.log.Warn("failed to apply re_seen transition", "endpoint_id", endpoint.ID, "error", err)
		return endpoint
	}
	endpoint.SyncStatus = next
	return endpoint
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// requireAdmin rejects non-admin principals; used for routes spec 6 marks
// "admin" only.
func requireAdmin(ctx context.Context) error {
	p, ok := principalFromContext(ctx)
	if !ok || !p.isAdmin {
		return apperr.Forbiddenf("admin token required")
	}
	return nil
}

// requireSelfOrAdmin enforces spec 4.G's self-scoping rule for
// endpoint-scoped routes, allowing admin to act on any endpoint.
func requireSelfOrAdmin(ctx context.Context, targetEndpointID model.ID) error {
	p, ok := principalFromContext(ctx)
	if !ok {
		return apperr.Authf("authentication required")
	}
	if p.isAdmin {
		return nil
	}
	if p.isEndpoint && p.endpoint.ID == targetEndpointID {
		return nil
	}
	return apperr.Forbiddenf("endpoint %s may not act on behalf of %s", p.endpoint.ID, targetEndpointID)
}
