package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/autobid/autobid-admin/internal/auctions"
	"github.com/autobid/autobid-admin/internal/auth"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
)

const (
	routerModeratorID = "5b0e9a8c-1d2f-4e3a-9b7c-6d5e4f3a2b10"
	flaggedAuctionID  = "0f8e7d6c-5b4a-4392-8a1b-2c3d4e5f6a7b"
)

type adminRepo struct {
	user *auth.AdminUser
}

func (r adminRepo) FindByEmail(_ context.Context, email string) (*auth.AdminUser, error) {
	if !strings.EqualFold(r.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return r.user, nil
}

func (r adminRepo) FindByID(_ context.Context, id string) (*auth.AdminUser, error) {
	if r.user.ID != id {
		return nil, shared.ErrNotFound
	}
	return r.user, nil
}

func (adminRepo) TouchLogin(context.Context, string, time.Time) error { return nil }

type flagRecorder struct {
	mu      sync.Mutex
	flagged []string
}

func (f *flagRecorder) ListMonitoring(context.Context) ([]auctions.MonitorItem, error) {
	return nil, nil
}

func (f *flagRecorder) FlagAuction(_ context.Context, _ rbac.Principal, auctionID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flagged = append(f.flagged, auctionID)
	return nil
}

func (f *flagRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flagged)
}

type routerFixture struct {
	handler  http.Handler
	sessions *shared.SessionManager
	csrf     *shared.CSRFManager
	flags    *flagRecorder
}

func newRouterFixture(t *testing.T) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := adminRepo{user: &auth.AdminUser{
		ID: routerModeratorID, Email: "mod@autobid.ph", PasswordHash: string(hash),
		RoleName: "moderator", IsActive: true,
	}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sessions := shared.NewSessionManager(client, "autobid_session", "session-secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf-secret")
	templates, err := view.NewEngine(nil)
	require.NoError(t, err)
	tokens := auth.NewTokenManager("jwt-secret", time.Hour)
	authService := auth.NewService(repo)
	flags := &flagRecorder{}

	handler := NewRouter(RouterParams{
		Logger:         logger,
		SessionManager: sessions,
		CSRFManager:    csrf,
		RBACMiddleware: rbac.Middleware{
			Resolver: auth.NewCachedResolver(auth.NewSessionResolver(tokens, authService)),
			Routes:   rbac.DefaultRouteMap(rbac.PolicyAllow),
			Logger:   logger,
		},
		AuthHandler:     auth.NewHandler(logger, authService, tokens, templates, sessions, csrf),
		AuctionsHandler: auctions.NewHandler(logger, flags, templates, csrf),
	})
	return routerFixture{handler: handler, sessions: sessions, csrf: csrf, flags: flags}
}

// signedIn stores a moderator session and returns its cookie and CSRF token.
func (f routerFixture) signedIn(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	sess.SetUser(routerModeratorID)
	token, err := f.csrf.EnsureToken(sess)
	require.NoError(t, err)
	rr := httptest.NewRecorder()
	require.NoError(t, f.sessions.Commit(context.Background(), rr, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0], token
}

func flagRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/admin/auctions/"+flaggedAuctionID+"/flag",
		strings.NewReader(`{"reason":"shill bidding"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func TestRouterIssuesTokenWithoutSessionCookie(t *testing.T) {
	f := newRouterFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/token",
		strings.NewReader(`{"email":"mod@autobid.ph","password":"password123"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.NotEmpty(t, body.AccessToken)
	assert.Equal(t, "Bearer", body.TokenType)

	req = flagRequest()
	req.Header.Set("Authorization", "Bearer "+body.AccessToken)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	assert.Equal(t, 1, f.flags.count())
}

func TestRouterAnonymousFlagIsUnauthorized(t *testing.T) {
	f := newRouterFixture(t)

	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, flagRequest())
	assert.Equal(t, http.StatusUnauthorized, rr.Code, rr.Body.String())
	assert.Zero(t, f.flags.count())
}

func TestRouterSignedInFlagNeedsCSRFToken(t *testing.T) {
	f := newRouterFixture(t)
	cookie, token := f.signedIn(t)

	req := flagRequest()
	req.AddCookie(cookie)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Zero(t, f.flags.count())

	req = flagRequest()
	req.AddCookie(cookie)
	req.Header.Set(shared.CSRFHeader, token)
	rr = httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
	assert.Equal(t, 1, f.flags.count())
}
