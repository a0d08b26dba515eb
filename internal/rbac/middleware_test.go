package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	token         SessionToken
	hasSession    bool
	principal     Principal
	err           error
	principalHits int
}

func (s *stubResolver) CurrentSession(r *http.Request) (SessionToken, bool) {
	return s.token, s.hasSession
}

func (s *stubResolver) PrincipalForSession(ctx context.Context, token SessionToken) (Principal, error) {
	s.principalHits++
	if s.err != nil {
		return Principal{}, s.err
	}
	return s.principal, nil
}

type recordingObserver struct {
	outcomes []string
}

func (o *recordingObserver) ObserveDecision(outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

func okHandler(t *testing.T, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		p, ok := PrincipalFromContext(r.Context())
		require.True(t, ok)
		assert.NotEmpty(t, p.ID)
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireCapabilityUnauthenticated(t *testing.T) {
	resolver := &stubResolver{}
	observer := &recordingObserver{}
	mw := Middleware{Resolver: resolver, Observer: observer}
	called := false

	rr := httptest.NewRecorder()
	mw.RequireCapability(CapAuctionMonitor)(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/auctions/monitor", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, called)
	assert.Zero(t, resolver.principalHits, "principal lookup must not run without a session")
	assert.Equal(t, []string{OutcomeUnauthenticated}, observer.outcomes)
}

func TestRequireCapabilityPrincipalNotFound(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, err: ErrPrincipalNotFound}
	mw := Middleware{Resolver: resolver}
	called := false

	rr := httptest.NewRecorder()
	mw.RequireCapability(CapDashboardView)(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/dashboard-metrics", nil))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, called)
}

func TestRequireCapabilityMissingCapability(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleSupportAdmin}}
	mw := Middleware{Resolver: resolver}
	called := false

	rr := httptest.NewRecorder()
	mw.RequireCapability(CapAuctionFlag)(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/admin/auctions/x/flag", nil))

	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, called)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.NotContains(t, body, "detail", "403 must not reveal which capability was missing")
}

func TestRequireCapabilityBackendFailure(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, err: errors.New("connection refused")}
	observer := &recordingObserver{}
	mw := Middleware{Resolver: resolver, Observer: observer}
	called := false

	rr := httptest.NewRecorder()
	mw.RequireCapability(CapAuctionMonitor)(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/auctions/monitor", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
	assert.Equal(t, []string{OutcomeError}, observer.outcomes)
}

func TestRequireCapabilityAllowed(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleModerator}}
	mw := Middleware{Resolver: resolver}
	called := false

	rr := httptest.NewRecorder()
	mw.RequireCapability(CapAuctionMonitor)(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/auctions/monitor", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}

func TestGuardRouteRedirectsUnauthenticated(t *testing.T) {
	mw := Middleware{Resolver: &stubResolver{}, Routes: DefaultRouteMap(PolicyAllow)}
	called := false

	rr := httptest.NewRecorder()
	mw.GuardRoute(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/kyc/queue", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?next=%2Fkyc%2Fqueue", rr.Header().Get("Location"))
	assert.False(t, called)
}

func TestGuardRouteRedirectsDenied(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleModerator}}
	mw := Middleware{Resolver: resolver, Routes: DefaultRouteMap(PolicyAllow)}
	called := false

	rr := httptest.NewRecorder()
	mw.GuardRoute(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/kyc/queue", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/unauthorized", rr.Header().Get("Location"))
	assert.False(t, called)
}

func TestGuardRouteAllowsUnmappedPath(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleSupportAdmin}}
	mw := Middleware{Resolver: resolver, Routes: DefaultRouteMap(PolicyAllow)}
	called := false

	rr := httptest.NewRecorder()
	mw.GuardRoute(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
}

func TestGuardRouteDenyPolicy(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleSuperAdmin}}
	mw := Middleware{Resolver: resolver, Routes: DefaultRouteMap(PolicyDeny), DeniedPath: "/denied"}
	called := false

	rr := httptest.NewRecorder()
	mw.GuardRoute(okHandler(t, &called)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/users", nil))

	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/denied", rr.Header().Get("Location"))
}

func TestAuthorizeWithoutCapabilityOnlyNeedsPrincipal(t *testing.T) {
	resolver := &stubResolver{hasSession: true, token: SessionToken{UserID: "u1"}, principal: Principal{ID: "u1", Role: RoleSupportAdmin}}
	mw := Middleware{Resolver: resolver}

	p, err := mw.Authorize(httptest.NewRequest(http.MethodGet, "/", nil), "")
	require.NoError(t, err)
	assert.Equal(t, RoleSupportAdmin, p.Role)
}
