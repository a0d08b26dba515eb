package console

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/view"
)

type stubResolver struct {
	role    rbac.Role
	session bool
}

func (s stubResolver) CurrentSession(*http.Request) (rbac.SessionToken, bool) {
	return rbac.SessionToken{UserID: "b7e6a1c2-0d4f-4a9e-8c3b-1f2e3d4c5b6a", Source: "bearer"}, s.session
}

func (s stubResolver) PrincipalForSession(_ context.Context, token rbac.SessionToken) (rbac.Principal, error) {
	return rbac.Principal{ID: token.UserID, Email: "admin@autobid.ph", Role: s.role}, nil
}

func newRouter(t *testing.T, resolver stubResolver) http.Handler {
	t.Helper()
	routes := rbac.DefaultRouteMap(rbac.PolicyAllow)
	templates, err := view.NewEngine(routes)
	require.NoError(t, err)
	h := NewHandler(nil, templates, nil, routes)
	guard := rbac.Middleware{Resolver: resolver, Routes: routes}
	r := chi.NewRouter()
	h.MountPublic(r)
	r.Group(func(ui chi.Router) {
		ui.Use(guard.GuardRoute)
		h.MountUI(ui)
	})
	return r
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestUnauthorizedPageRendersWithoutPrincipal(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{}), "/unauthorized")

	assert.Equal(t, http.StatusForbidden, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "403")
	assert.Contains(t, body, "Access Denied")
	assert.Contains(t, body, "contact a Super Admin")
	assert.Contains(t, body, `href="/"`)
	assert.NotContains(t, body, "Sign out")
}

func TestKYCQueueRequiresKYCReview(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{role: rbac.RoleOperationsAdmin, session: true}), "/kyc/queue")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "KYC Review Queue")
	assert.Contains(t, rr.Body.String(), "Manage and approve user identity verifications.")

	rr = get(t, newRouter(t, stubResolver{role: rbac.RoleModerator, session: true}), "/kyc/queue")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/unauthorized", rr.Header().Get("Location"))
}

func TestPaymentsPageForFinance(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{role: rbac.RoleFinanceAdmin, session: true}), "/payments/verify")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Payment Verification")

	rr = get(t, newRouter(t, stubResolver{role: rbac.RoleSupportAdmin, session: true}), "/payments/verify")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}

func TestUsersPageFallsBackToDefaultPolicy(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{role: rbac.RoleModerator, session: true}), "/users")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Users")
}

func TestUnauthenticatedRedirectsToLogin(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{}), "/settings")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/auth/login?next=%2Fsettings", rr.Header().Get("Location"))
}

func TestSettingsShowsPermissionMatrix(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{role: rbac.RoleSuperAdmin, session: true}), "/settings")
	require.Equal(t, http.StatusOK, rr.Code)

	body := rr.Body.String()
	assert.Contains(t, body, "Permission Matrix")
	for _, role := range rbac.Roles() {
		assert.Contains(t, body, role.Label())
	}
	assert.Contains(t, body, "system.config")
	assert.Contains(t, body, "/audit-logs")
	assert.Contains(t, body, "audit.view")
	assert.Contains(t, body, "<strong>allow</strong>")
	assert.Contains(t, body, "admin@autobid.ph")
}

func TestSettingsDeniedForModerator(t *testing.T) {
	rr := get(t, newRouter(t, stubResolver{role: rbac.RoleModerator, session: true}), "/settings")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/unauthorized", rr.Header().Get("Location"))
}
