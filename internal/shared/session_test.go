package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionHarness struct {
	mr      *miniredis.Miniredis
	manager *SessionManager
	clock   time.Time
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	h := &sessionHarness{mr: mr, clock: time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)}
	h.manager = NewSessionManager(client, "autobid_session", "session-secret", 30*time.Minute, false)
	h.manager.now = func() time.Time { return h.clock }
	return h
}

func (h *sessionHarness) roundTrip(t *testing.T, cookie *http.Cookie, mutate func(*Session)) (*Session, *http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	sess, err := h.manager.Load(context.Background(), req)
	require.NoError(t, err)
	if mutate != nil {
		mutate(sess)
	}
	rr := httptest.NewRecorder()
	require.NoError(t, h.manager.Commit(context.Background(), rr, sess))
	cookies := rr.Result().Cookies()
	require.Len(t, cookies, 1)
	return sess, cookies[0]
}

// cookieID is the session ID carried by a signed cookie.
func cookieID(c *http.Cookie) string {
	id, _, _ := strings.Cut(c.Value, ".")
	return id
}

func TestSessionKeepsIdentityAndFlashes(t *testing.T) {
	h := newSessionHarness(t)
	_, cookie := h.roundTrip(t, nil, func(s *Session) {
		s.SetUser("admin-1")
		s.SetIdentity(AdminIdentity{ID: "admin-1", Email: "mod@autobid.ph", Role: "moderator"})
		s.AddFlash(FlashMessage{Kind: "success", Message: "Auction flagged"})
	})

	sess, _ := h.roundTrip(t, cookie, nil)
	assert.Equal(t, "admin-1", sess.User())
	id, ok := sess.Identity()
	require.True(t, ok)
	assert.Equal(t, "moderator", id.Role)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "Auction flagged", flash.Message)
	assert.Nil(t, sess.PopFlash())
}

func TestSessionSwitchingUserDropsIdentity(t *testing.T) {
	s := &Session{}
	s.SetUser("admin-1")
	s.SetIdentity(AdminIdentity{ID: "admin-1", Role: "super_admin"})
	s.SetUser("admin-2")
	_, ok := s.Identity()
	assert.False(t, ok)
}

func TestSessionSlidesOnActivity(t *testing.T) {
	h := newSessionHarness(t)
	_, cookie := h.roundTrip(t, nil, func(s *Session) { s.SetUser("admin-1") })

	h.mr.FastForward(20 * time.Minute)
	h.clock = h.clock.Add(20 * time.Minute)
	h.roundTrip(t, cookie, nil)
	assert.Equal(t, 30*time.Minute, h.mr.TTL(sessionKeyPrefix+cookieID(cookie)))

	h.mr.FastForward(31 * time.Minute)
	sess, _ := h.roundTrip(t, cookie, nil)
	assert.NotEqual(t, cookieID(cookie), sess.ID)
	assert.Empty(t, sess.User())
}

func TestSessionEndsAfterMaxLifetime(t *testing.T) {
	h := newSessionHarness(t)
	h.manager.ttl = 24 * time.Hour
	_, cookie := h.roundTrip(t, nil, func(s *Session) { s.SetUser("admin-1") })
	assert.Equal(t, MaxSessionLifetime, h.mr.TTL(sessionKeyPrefix+cookieID(cookie)))

	h.clock = h.clock.Add(MaxSessionLifetime + time.Minute)
	sess, next := h.roundTrip(t, cookie, nil)
	assert.Empty(t, sess.User())
	assert.NotEqual(t, cookie.Value, next.Value)
	assert.False(t, h.mr.Exists(sessionKeyPrefix+cookieID(cookie)))
}

func TestSessionRenewAndDestroy(t *testing.T) {
	h := newSessionHarness(t)
	_, first := h.roundTrip(t, nil, nil)

	renewed, second := h.roundTrip(t, first, func(s *Session) {
		h.manager.Renew(s)
		s.SetUser("admin-1")
	})
	assert.NotEqual(t, first.Value, second.Value)
	assert.Equal(t, renewed.ID, cookieID(second))
	assert.False(t, h.mr.Exists(sessionKeyPrefix+cookieID(first)))

	_, gone := h.roundTrip(t, second, func(s *Session) { h.manager.Destroy(s) })
	assert.Equal(t, -1, gone.MaxAge)
	assert.False(t, h.mr.Exists(sessionKeyPrefix+cookieID(second)))
}

func TestSessionIgnoresMalformedCookie(t *testing.T) {
	h := newSessionHarness(t)
	sess, cookie := h.roundTrip(t, &http.Cookie{Name: "autobid_session", Value: "not-a-uuid"}, nil)
	assert.NotEqual(t, "not-a-uuid", cookie.Value)
	assert.Equal(t, sess.ID, cookieID(cookie))
}

func TestSessionRejectsUnsignedOrTamperedCookie(t *testing.T) {
	h := newSessionHarness(t)
	signedIn, cookie := h.roundTrip(t, nil, func(s *Session) { s.SetUser("admin-1") })
	require.Equal(t, signedIn.ID, cookieID(cookie))

	for name, value := range map[string]string{
		"bare id":         signedIn.ID,
		"wrong signature": signedIn.ID + ".c2lnbmF0dXJl",
		"swapped id":      "3f1c2b4a-5d6e-4f70-8a9b-0c1d2e3f4a5b." + strings.SplitN(cookie.Value, ".", 2)[1],
		"empty signature": signedIn.ID + ".",
	} {
		t.Run(name, func(t *testing.T) {
			sess, _ := h.roundTrip(t, &http.Cookie{Name: "autobid_session", Value: value}, nil)
			assert.Empty(t, sess.User())
			assert.NotEqual(t, signedIn.ID, sess.ID)
		})
	}

	sess, _ := h.roundTrip(t, cookie, nil)
	assert.Equal(t, "admin-1", sess.User())
}

func TestSessionCookieFromAnotherSecretIsIgnored(t *testing.T) {
	h := newSessionHarness(t)
	_, cookie := h.roundTrip(t, nil, func(s *Session) { s.SetUser("admin-1") })

	h.manager.secret = []byte("rotated-secret")
	sess, _ := h.roundTrip(t, cookie, nil)
	assert.Empty(t, sess.User())
}
