// Package auth implements Endpoint Auth & Lifecycle (spec 4.G):
// registration/token rotation, bearer-token authentication, and the
// self-scoping rule for endpoint-scoped mutations.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	jwt "github.com/dgrijalva/jwt-go"

	"github.com/archsync/archsync-coordinator/internal/apperr"
	"github.com/archsync/archsync-coordinator/internal/model"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

// Authenticator issues and verifies endpoint bearer tokens and enforces
// the admin/self-scoping rules of spec 4.G.
type Authenticator struct {
	store       *storage.Store
	signingKey  []byte
	tokenTTL    time.Duration
	adminTokens map[string]struct{}
}

// New builds an Authenticator. signingKey must be non-empty; tokenTTL
// defaults to 24h when zero, matching spec 4.G's default.
func New(store *storage.Store, signingKey string, tokenTTL time.Duration, adminTokens []string) *Authenticator {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	set := make(map[string]struct{}, len(adminTokens))
	for _, t := range adminTokens {
		set[t] = struct{}{}
	}
	return &Authenticator{
		store:       store,
		signingKey:  []byte(signingKey),
		tokenTTL:    tokenTTL,
		adminTokens: set,
	}
}

// endpointClaims is the JWT payload encoding endpoint_id and expiry
// (spec 4.G: "token encodes endpoint_id and an expiry").
type endpointClaims struct {
	EndpointID string `json:"endpoint_id"`
	jwt.StandardClaims
}

// Register creates a new endpoint, or rotates the token of an existing
// one with the same (name, hostname) pair, and returns the plaintext
// token exactly once. Only its hash is persisted (spec 4.G).
func (a *Authenticator) Register(ctx context.Context, name, hostname string) (model.Endpoint, string, error) {
	existing, err := a.store.GetEndpointByNameAndHostname(ctx, name, hostname)
	now := time.Now().UTC()

	if err == nil {
		token, hash, genErr := a.issueToken(existing.ID)
		if genErr != nil {
			return model.Endpoint{}, "", genErr
		}
		existing.AuthTokenHash = hash
		existing.UpdatedAt = now
		if err := a.store.UpdateEndpointAuth(ctx, existing.ID, hash, now); err != nil {
			return model.Endpoint{}, "", err
		}
		return existing, token, nil
	}
	if status, _ := apperr.Classify(err); status != 404 {
		return model.Endpoint{}, "", err
	}

	ep := model.Endpoint{
		ID:        model.NewID(),
		Name:      name,
		Hostname:  hostname,
		CreatedAt: now,
		UpdatedAt: now,
	}
	token, hash, err := a.issueToken(ep.ID)
	if err != nil {
		return model.Endpoint{}, "", err
	}
	ep.AuthTokenHash = hash
	if err := a.store.InsertEndpoint(ctx, ep); err != nil {
		return model.Endpoint{}, "", err
	}
	return ep, token, nil
}

func (a *Authenticator) issueToken(endpointID model.ID) (token, hash string, err error) {
	now := time.Now().UTC()
	claims := endpointClaims{
		EndpointID: endpointID.String(),
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(a.tokenTTL).Unix(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.signingKey)
	if err != nil {
		return "", "", apperr.Internalf("sign token: %v", err)
	}
	return signed, hashToken(signed), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Authenticate validates a bearer token's signature and expiry, then
// confirms its hash matches the stored hash for the endpoint it claims
// to be, in constant time. Returns Unauthorized (apperr.Auth) on any
// failure, matching spec 4.G's "authenticate(token) -> endpoint_id |
// Unauthorized".
func (a *Authenticator) Authenticate(ctx context.Context, token string) (model.Endpoint, error) {
	claims := &endpointClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Authf("unexpected signing method")
		}
		return a.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return model.Endpoint{}, apperr.Authf("invalid or expired token")
	}

	endpointID, err := model.ParseID(claims.EndpointID)
	if err != nil {
		return model.Endpoint{}, apperr.Authf("invalid token subject")
	}
	endpoint, err := a.store.GetEndpoint(ctx, endpointID)
	if err != nil {
		return model.Endpoint{}, apperr.Authf("unknown endpoint")
	}

	want := hashToken(token)
	if subtle.ConstantTimeCompare([]byte(want), []byte(endpoint.AuthTokenHash)) != 1 {
		return model.Endpoint{}, apperr.Authf("token does not match stored credential")
	}
	return endpoint, nil
}

// IsAdminToken reports whether token matches one of the configured
// static admin tokens (spec 4.G: "operator-scoped reads... require
// either a configured admin token or a valid endpoint token").
func (a *Authenticator) IsAdminToken(token string) bool {
	_, ok := a.adminTokens[token]
	return ok
}

// AuthorizeSelf enforces spec 4.G's endpoint-scoping rule: endpoint-scoped
// mutations (status updates, repository reports, self-removal) require
// the authenticated caller to equal the target endpoint.
func AuthorizeSelf(callerEndpointID, targetEndpointID model.ID) error {
	if callerEndpointID != targetEndpointID {
		return apperr.Forbiddenf("endpoint %s may not act on behalf of %s", callerEndpointID, targetEndpointID)
	}
	return nil
}
