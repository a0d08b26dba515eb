package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
)

// Decision outcomes reported to the DecisionObserver.
const (
	OutcomeAllowed         = "allowed"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeForbidden       = "forbidden"
	OutcomeError           = "error"
)

// SessionToken identifies the caller's authenticated session.
type SessionToken struct {
	UserID string
	// Source is "cookie" for browser sessions and "bearer" for API tokens.
	Source string
}

// Resolver turns a request into a session and a session into a principal.
type Resolver interface {
	CurrentSession(r *http.Request) (SessionToken, bool)
	PrincipalForSession(ctx context.Context, token SessionToken) (Principal, error)
}

// DecisionObserver records access decisions, typically as metrics.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// Middleware enforces the permission table on UI routes and API operations.
type Middleware struct {
	Resolver Resolver
	Routes   *RouteMap
	Logger   *slog.Logger
	Observer DecisionObserver

	// LoginPath receives unauthenticated UI navigations.
	LoginPath string
	// DeniedPath receives UI navigations the role may not reach.
	DeniedPath string
}

// Authorize resolves the caller and checks the required capability. An empty
// capability only requires a resolvable principal.
func (m Middleware) Authorize(r *http.Request, required Capability) (Principal, error) {
	principal, err := m.resolve(r)
	if err != nil {
		m.observe(r, err)
		return Principal{}, err
	}
	if required != "" && !principal.Can(required) {
		m.observe(r, ErrForbidden)
		return Principal{}, ErrForbidden
	}
	m.observe(r, nil)
	return principal, nil
}

// RequireCapability guards an API operation. Failures are answered with
// 401, 403 or 500 problem documents.
func (m Middleware) RequireCapability(required Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := m.Authorize(r, required)
			if err != nil {
				if !errors.Is(err, ErrUnauthenticated) && !errors.Is(err, ErrForbidden) {
					m.logger().Error("rbac authorize", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

// GuardRoute guards UI navigation using the route map. Unauthenticated
// callers go to LoginPath, denied callers to DeniedPath.
func (m Middleware) GuardRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.resolve(r)
		if err == nil && !m.Routes.CanAccess(principal.Role, r.URL.Path) {
			err = ErrForbidden
		}
		m.observe(r, err)
		switch {
		case err == nil:
			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), principal)))
		case errors.Is(err, ErrUnauthenticated):
			target := m.loginPath()
			if r.Method == http.MethodGet {
				target += "?next=" + url.QueryEscape(r.URL.RequestURI())
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		case errors.Is(err, ErrForbidden):
			http.Redirect(w, r, m.deniedPath(), http.StatusSeeOther)
		default:
			m.logger().Error("rbac guard route", slog.String("path", r.URL.Path), slog.Any("error", err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	})
}

func (m Middleware) resolve(r *http.Request) (Principal, error) {
	if m.Resolver == nil {
		return Principal{}, errors.New("rbac: resolver not configured")
	}
	token, ok := m.Resolver.CurrentSession(r)
	if !ok {
		return Principal{}, ErrUnauthenticated
	}
	principal, err := m.Resolver.PrincipalForSession(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Principal{}, ErrForbidden
		}
		return Principal{}, fmt.Errorf("rbac: resolve principal: %w", err)
	}
	return principal, nil
}

func (m Middleware) observe(r *http.Request, err error) {
	outcome := OutcomeAllowed
	switch {
	case err == nil:
	case errors.Is(err, ErrUnauthenticated):
		outcome = OutcomeUnauthenticated
	case errors.Is(err, ErrForbidden):
		outcome = OutcomeForbidden
	default:
		outcome = OutcomeError
	}
	if m.Observer != nil {
		m.Observer.ObserveDecision(outcome)
	}
	m.logger().Debug("rbac decision", slog.String("path", r.URL.Path), slog.String("outcome", outcome))
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return slog.Default()
}

func (m Middleware) loginPath() string {
	if m.LoginPath != "" {
		return m.LoginPath
	}
	return "/auth/login"
}

func (m Middleware) deniedPath() string {
	if m.DeniedPath != "" {
		return m.DeniedPath
	}
	return "/unauthorized"
}
