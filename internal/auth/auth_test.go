package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/auth"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

func newTestAuthenticator(t *testing.T) (*auth.Authenticator, *storage.Store) {
	t.Helper()
	ctx := context.Background()
	db, err := storage.OpenSQLite("file::memory:?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, storage.Schema.Run(ctx, nil, db))
	store := storage.NewStore(db)
	return auth.New(store, "test-signing-secret", time.Hour, []string{"admin-token-1"}), store
}

func TestRegisterIssuesVerifiableToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	ep, token, err := a.Register(ctx, "host-1", "host-1.local")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	authed, err := a.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, ep.ID, authed.ID)
}

func TestRegisterRotatesTokenForSameNameAndHostname(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	ep1, firstToken, err := a.Register(ctx, "host-1", "host-1.local")
	require.NoError(t, err)
	ep2, secondToken, err := a.Register(ctx, "host-1", "host-1.local")
	require.NoError(t, err)

	assert.Equal(t, ep1.ID, ep2.ID)
	assert.NotEqual(t, firstToken, secondToken)

	_, err = a.Authenticate(ctx, firstToken)
	status, code := apperr.Classify(err)
	assert.Equal(t, 401, status)
	assert.Equal(t, "AUTH_ERROR", code)

	_, err = a.Authenticate(ctx, secondToken)
	require.NoError(t, err)
}

func TestRegisterAllowsSameNameWithDifferentHostname(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	first, _, err := a.Register(ctx, "host-1", "host-1.local")
	require.NoError(t, err)

	second, _, err := a.Register(ctx, "host-1", "other.local")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "other.local", second.Hostname)
}

func TestAuthenticateRejectsForgedToken(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAuthenticator(t)

	_, err := a.Authenticate(ctx, "not-a-real-token")
	status, code := apperr.Classify(err)
	assert.Equal(t, 401, status)
	assert.Equal(t, "AUTH_ERROR", code)
}

func TestAuthenticateRejectsTokenFromDifferentSigningSecret(t *testing.T) {
	ctx := context.Background()
	a, store := newTestAuthenticator(t)
	other := auth.New(store, "a-different-secret", time.Hour, nil)

	_, token, err := other.Register(ctx, "host-2", "host-2.local")
	require.NoError(t, err)

	_, err = a.Authenticate(ctx, token)
	status, code := apperr.Classify(err)
	assert.Equal(t, 401, status)
	assert.Equal(t, "AUTH_ERROR", code)
}

func TestIsAdminToken(t *testing.T) {
	a, _ := newTestAuthenticator(t)
	assert.True(t, a.IsAdminToken("admin-token-1"))
	assert.False(t, a.IsAdminToken("not-an-admin-token"))
}

func TestAuthorizeSelf(t *testing.T) {
	a := model.NewID()
	b := model.NewID()
	assert.NoError(t, auth.AuthorizeSelf(a, a))

	err := auth.AuthorizeSelf(a, b)
	status, code := apperr.Classify(err)
	assert.Equal(t, 403, status)
	assert.Equal(t, "FORBIDDEN", code)
}
