package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "autobid:session:"
	// MaxSessionLifetime bounds a session regardless of activity; the
	// admin signs in again afterwards.
	MaxSessionLifetime = 12 * time.Hour
)

// FlashMessage is a one-shot notice shown on the next rendered page.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// AdminIdentity is the signed-in admin as last resolved from the database.
// Role is the raw role name; callers parse it.
type AdminIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role"`
}

// SessionManager keeps console sessions in Redis behind a signed cookie
// holding the session ID. Sessions slide on activity (ttl) and end
// MaxSessionLifetime after sign-in.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	secret     []byte
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

// Session is the per-request view of one stored session.
type Session struct {
	ID      string
	record  sessionRecord
	isNew   bool
	dirty   bool
	ended   bool
	rotated string
}

type sessionRecord struct {
	AdminID  string            `json:"admin_id,omitempty"`
	Identity *AdminIdentity    `json:"identity,omitempty"`
	Values   map[string]string `json:"values,omitempty"`
	Flashes  []FlashMessage    `json:"flashes,omitempty"`
	IssuedAt time.Time         `json:"issued_at"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		secret:     []byte(secret),
		ttl:        ttl,
		secure:     secure,
		now:        time.Now,
	}
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is missing, badly signed, unknown or past its lifetime. A fresh
// session never reuses the presented ID.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	now := sm.now()
	cookie, err := r.Cookie(sm.cookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return sm.fresh(now), nil
	}
	if err != nil {
		return nil, err
	}
	id, ok := sm.sessionID(cookie.Value)
	if !ok {
		return sm.fresh(now), nil
	}

	raw, err := sm.client.Get(ctx, sm.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return sm.fresh(now), nil
	}
	if err != nil {
		return nil, fmt.Errorf("shared: load session: %w", err)
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("shared: decode session: %w", err)
	}
	if !rec.IssuedAt.IsZero() && now.Sub(rec.IssuedAt) > MaxSessionLifetime {
		// Expired sessions are dropped on the next commit.
		sess := sm.fresh(now)
		sess.rotated = id
		return sess, nil
	}
	return &Session{ID: id, record: rec}, nil
}

// Commit writes a changed session, or extends the idle TTL of an unchanged
// one, and sets the cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess == nil {
		return nil
	}
	pipe := sm.client.TxPipeline()
	if sess.rotated != "" {
		pipe.Del(ctx, sm.key(sess.rotated))
	}
	if sess.ended {
		pipe.Del(ctx, sm.key(sess.ID))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("shared: end session: %w", err)
		}
		sess.rotated = ""
		http.SetCookie(w, sm.cookie("", -1, time.Time{}))
		return nil
	}

	ttl := sm.remaining(sess)
	if ttl <= 0 {
		ttl = time.Second
	}
	if sess.dirty || sess.isNew {
		data, err := json.Marshal(sess.record)
		if err != nil {
			return fmt.Errorf("shared: encode session: %w", err)
		}
		pipe.Set(ctx, sm.key(sess.ID), data, ttl)
	} else {
		pipe.Expire(ctx, sm.key(sess.ID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("shared: store session: %w", err)
	}
	sess.dirty, sess.isNew, sess.rotated = false, false, ""
	http.SetCookie(w, sm.cookie(sm.cookieValue(sess.ID), 0, sm.now().Add(ttl)))
	return nil
}

// remaining is the idle TTL clipped to what is left of the lifetime.
func (sm *SessionManager) remaining(sess *Session) time.Duration {
	ttl := sm.ttl
	if sess.record.IssuedAt.IsZero() {
		return ttl
	}
	left := MaxSessionLifetime - sm.now().Sub(sess.record.IssuedAt)
	return min(ttl, left)
}

func (sm *SessionManager) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// cookieValue is the session ID followed by its HMAC.
func (sm *SessionManager) cookieValue(id string) string {
	return id + "." + sm.sign(id)
}

// sessionID returns the ID carried by a cookie value whose signature holds.
func (sm *SessionManager) sessionID(value string) (string, bool) {
	id, sig, ok := strings.Cut(value, ".")
	if !ok {
		return "", false
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	if !hmac.Equal([]byte(sig), []byte(sm.sign(id))) {
		return "", false
	}
	return id, true
}

func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Renew moves the session to a new ID and restarts its lifetime. Sign-in
// calls it so an ID handed out before authentication is never promoted.
func (sm *SessionManager) Renew(sess *Session) {
	if sess == nil {
		return
	}
	if !sess.isNew {
		sess.rotated = sess.ID
	}
	sess.ID = uuid.NewString()
	sess.record.IssuedAt = sm.now().UTC()
	sess.dirty = true
}

// Destroy ends the session on commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.ended = true
	}
}

// TTL is the idle timeout.
func (sm *SessionManager) TTL() time.Duration { return sm.ttl }

// CookieName is the session cookie name.
func (sm *SessionManager) CookieName() string { return sm.cookieName }

func (sm *SessionManager) fresh(now time.Time) *Session {
	return &Session{
		ID:     uuid.NewString(),
		record: sessionRecord{IssuedAt: now.UTC()},
		isNew:  true,
		dirty:  true,
	}
}

func (sm *SessionManager) key(id string) string {
	return sessionKeyPrefix + id
}

type sessionContextKey struct{}

// ContextWithSession stores sess in ctx.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the request's session or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// Set stores a string value.
func (s *Session) Set(key, value string) {
	if s.record.Values == nil {
		s.record.Values = make(map[string]string)
	}
	if old, ok := s.record.Values[key]; ok && old == value {
		return
	}
	s.record.Values[key] = value
	s.dirty = true
}

// Get returns a stored value or "".
func (s *Session) Get(key string) string {
	return s.record.Values[key]
}

// Delete removes a stored value.
func (s *Session) Delete(key string) {
	if _, ok := s.record.Values[key]; !ok {
		return
	}
	delete(s.record.Values, key)
	s.dirty = true
}

// SetUser binds the session to an admin user ID. A cached identity for a
// different admin is dropped.
func (s *Session) SetUser(id string) {
	if s.record.Identity != nil && s.record.Identity.ID != id {
		s.record.Identity = nil
	}
	s.record.AdminID = id
	s.dirty = true
}

// User returns the bound admin user ID or "".
func (s *Session) User() string {
	return s.record.AdminID
}

// SetIdentity caches the resolved admin.
func (s *Session) SetIdentity(id AdminIdentity) {
	if s.record.Identity != nil && *s.record.Identity == id {
		return
	}
	s.record.Identity = &id
	s.dirty = true
}

// Identity returns the cached admin, if any.
func (s *Session) Identity() (AdminIdentity, bool) {
	if s.record.Identity == nil {
		return AdminIdentity{}, false
	}
	return *s.record.Identity, true
}

// ClearIdentity drops the cached admin.
func (s *Session) ClearIdentity() {
	if s.record.Identity == nil {
		return
	}
	s.record.Identity = nil
	s.dirty = true
}

// Destroyed reports whether Destroy was called.
func (s *Session) Destroyed() bool {
	return s.ended
}

// AddFlash queues a flash message.
func (s *Session) AddFlash(msg FlashMessage) {
	s.record.Flashes = append(s.record.Flashes, msg)
	s.dirty = true
}

// PopFlash removes and returns the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.record.Flashes) == 0 {
		return nil
	}
	msg := s.record.Flashes[0]
	s.record.Flashes = s.record.Flashes[1:]
	s.dirty = true
	return &msg
}
