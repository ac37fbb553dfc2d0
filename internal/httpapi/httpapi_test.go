package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/analyzer"
	"github.com/archsync/archsync-coordinator/internal/auth"
	"github.com/archsync/archsync-coordinator/internal/coordinator"
	"github.com/archsync/archsync-coordinator/internal/healthcheck"
	"github.com/archsync/archsync-coordinator/internal/httpapi"
	"github.com/archsync/archsync-coordinator/internal/mutator"
	"github.com/archsync/archsync-coordinator/internal/poolmgr"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

const adminToken = "admin-test-token"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Schema.Run(ctx, nil, db))

	store := storage.NewStore(db)
	state := statemgr.New(store, 0)
	pools := poolmgr.New(store, state)
	az := analyzer.New(store)
	authn := auth.New(store, "test-secret", time.Hour, []string{adminToken})
	coord := coordinator.New(store, &mutator.Stub{}, nil)
	health := healthcheck.NewHealthChecker()

	srv := httpapi.NewServer(httpapi.Deps{
		Store:       store,
		Pools:       pools,
		State:       state,
		Analyzer:    az,
		Coordinator: coord,
		Auth:        authn,
		Health:      health,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url, token string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	if out != nil {
		defer resp.Body.Close()
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestHealthLiveRequiresNoAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health/live")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegisterAndListEndpoints(t *testing.T) {
	ts := newTestServer(t)

	var reg struct {
		Endpoint struct{ ID string } `json:"endpoint"`
		Token    string              `json:"token"`
	}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{
		"name": "host-1", "hostname": "host-1.local",
	}, &reg)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.Endpoint.ID)

	var list []map[string]interface{}
	resp = doJSON(t, http.MethodGet, ts.URL+"/api/endpoints", adminToken, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list, 1)
}

func TestEndpointRouteRejectsMissingToken(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, http.MethodGet, ts.URL+"/api/endpoints", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreatePoolRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	var reg struct {
		Token string `json:"token"`
	}
	doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{
		"name": "host-2", "hostname": "host-2.local",
	}, &reg)

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/pools", reg.Token, map[string]string{"name": "pool-a"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	var pool map[string]interface{}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/pools", adminToken, map[string]string{"name": "pool-a"}, &pool)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "pool-a", pool["name"])
}

func TestSaveStateRequiresAssignmentAndSelf(t *testing.T) {
	ts := newTestServer(t)

	var reg struct {
		Endpoint struct{ ID string } `json:"endpoint"`
		Token    string              `json:"token"`
	}
	doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{"name": "c", "hostname": "c.local"}, &reg)

	body := map[string]interface{}{
		"pacman_version": "6.1.0",
		"architecture":   "x86_64",
		"packages":       []map[string]string{{"name": "gcc", "version": "11.2.0"}},
	}

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/"+reg.Endpoint.ID+"/state", reg.Token, body, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var pool map[string]interface{}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/pools", adminToken, map[string]string{"name": "pool-c"}, &pool)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	poolID := pool["id"].(string)

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/pools/"+poolID+"/endpoints", adminToken, map[string]string{"endpoint_id": reg.Endpoint.ID}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	var snap map[string]interface{}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/"+reg.Endpoint.ID+"/state", reg.Token, body, &snap)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, snap["id"])

	var otherReg struct {
		Token string `json:"token"`
	}
	doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{"name": "d", "hostname": "d.local"}, &otherReg)
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/"+reg.Endpoint.ID+"/state", otherReg.Token, body, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestEndpointSelfScopingOnStatusUpdate(t *testing.T) {
	ts := newTestServer(t)

	var regA, regB struct {
		Endpoint struct{ ID string } `json:"endpoint"`
		Token    string              `json:"token"`
	}
	doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{"name": "a", "hostname": "a.local"}, &regA)
	doJSON(t, http.MethodPost, ts.URL+"/api/endpoints/register", "", map[string]string{"name": "b", "hostname": "b.local"}, &regB)

	resp := doJSON(t, http.MethodPut, ts.URL+"/api/endpoints/"+regB.Endpoint.ID+"/status", regA.Token, map[string]string{"status": "offline"}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = doJSON(t, http.MethodPut, ts.URL+"/api/endpoints/"+regA.Endpoint.ID+"/status", regA.Token, map[string]string{"status": "offline"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
