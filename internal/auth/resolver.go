package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
)

// Session sources reported on rbac.SessionToken.
const (
	SourceCookie = "cookie"
	SourceBearer = "bearer"
)

// PrincipalSource loads principals by admin user id.
type PrincipalSource interface {
	Principal(ctx context.Context, userID string) (rbac.Principal, error)
}

// SessionResolver reads the caller from a bearer token or the cookie
// session and resolves the principal on every call.
type SessionResolver struct {
	tokens     *TokenManager
	principals PrincipalSource
}

// NewSessionResolver constructs a SessionResolver. tokens may be nil to
// disable bearer authentication.
func NewSessionResolver(tokens *TokenManager, principals PrincipalSource) *SessionResolver {
	return &SessionResolver{tokens: tokens, principals: principals}
}

// CurrentSession implements rbac.Resolver. A present but invalid bearer
// token never falls back to the cookie.
func (r *SessionResolver) CurrentSession(req *http.Request) (rbac.SessionToken, bool) {
	if raw, ok := bearerToken(req); ok {
		if r.tokens == nil {
			return rbac.SessionToken{}, false
		}
		subject, err := r.tokens.Parse(raw)
		if err != nil {
			return rbac.SessionToken{}, false
		}
		return rbac.SessionToken{UserID: subject, Source: SourceBearer}, true
	}
	sess := shared.SessionFromContext(req.Context())
	if sess == nil || sess.Destroyed() {
		return rbac.SessionToken{}, false
	}
	userID := strings.TrimSpace(sess.User())
	if userID == "" {
		return rbac.SessionToken{}, false
	}
	return rbac.SessionToken{UserID: userID, Source: SourceCookie}, true
}

// PrincipalForSession implements rbac.Resolver.
func (r *SessionResolver) PrincipalForSession(ctx context.Context, token rbac.SessionToken) (rbac.Principal, error) {
	return r.principals.Principal(ctx, token.UserID)
}

// CachedResolver keeps the resolved principal in the browser session so page
// navigations skip the admin lookup. The cache is keyed by session user and
// discarded when the user changes. Bearer callers always resolve fresh.
type CachedResolver struct {
	*SessionResolver
}

// NewCachedResolver wraps base with the session cache.
func NewCachedResolver(base *SessionResolver) *CachedResolver {
	return &CachedResolver{SessionResolver: base}
}

// PrincipalForSession implements rbac.Resolver.
func (r *CachedResolver) PrincipalForSession(ctx context.Context, token rbac.SessionToken) (rbac.Principal, error) {
	if token.Source != SourceCookie {
		return r.SessionResolver.PrincipalForSession(ctx, token)
	}
	sess := shared.SessionFromContext(ctx)
	if p, ok := CachedPrincipal(sess, token.UserID); ok {
		return p, nil
	}
	p, err := r.SessionResolver.PrincipalForSession(ctx, token)
	if err != nil {
		ForgetPrincipal(sess)
		return rbac.Principal{}, err
	}
	RememberPrincipal(sess, p)
	return p, nil
}

// RememberPrincipal stores p in sess.
func RememberPrincipal(sess *shared.Session, p rbac.Principal) {
	if sess == nil {
		return
	}
	sess.SetIdentity(shared.AdminIdentity{ID: p.ID, Email: p.Email, Role: string(p.Role)})
}

// ForgetPrincipal clears any cached principal from sess.
func ForgetPrincipal(sess *shared.Session) {
	if sess == nil {
		return
	}
	sess.ClearIdentity()
}

// CachedPrincipal returns the principal cached for userID, if any.
func CachedPrincipal(sess *shared.Session, userID string) (rbac.Principal, bool) {
	if sess == nil || userID == "" {
		return rbac.Principal{}, false
	}
	id, ok := sess.Identity()
	if !ok || id.ID != userID {
		return rbac.Principal{}, false
	}
	role, err := rbac.ParseRole(id.Role)
	if err != nil {
		return rbac.Principal{}, false
	}
	return rbac.Principal{ID: userID, Email: id.Email, Role: role}, true
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	scheme, value, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// HasBearer reports whether the request authenticates with a bearer token.
func HasBearer(r *http.Request) bool {
	_, ok := bearerToken(r)
	return ok
}

var (
	_ rbac.Resolver = (*SessionResolver)(nil)
	_ rbac.Resolver = (*CachedResolver)(nil)
)
