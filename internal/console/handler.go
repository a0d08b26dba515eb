// Package console serves the console pages that carry no domain workflow yet.
package console

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
)

// Handler renders the placeholder pages and the access denied page.
type Handler struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	routes    *rbac.RouteMap
}

// NewHandler constructs a Handler. A nil route map uses the default table.
func NewHandler(logger *slog.Logger, templates *view.Engine, csrf *shared.CSRFManager, routes *rbac.RouteMap) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = rbac.DefaultRouteMap(rbac.PolicyAllow)
	}
	return &Handler{logger: logger, templates: templates, csrf: csrf, routes: routes}
}

// MountUI registers the guarded placeholder pages.
func (h *Handler) MountUI(r chi.Router) {
	r.Get("/kyc/queue", h.page("pages/kyc_queue.html", "KYC Review Queue", nil))
	r.Get("/payments/verify", h.page("pages/payments_verify.html", "Payment Verification", nil))
	r.Get("/users", h.page("pages/users.html", "Users", nil))
	r.Get("/settings", h.showSettings)
}

// MountPublic registers pages reachable without a role check.
func (h *Handler) MountPublic(r chi.Router) {
	r.Get("/unauthorized", h.showUnauthorized)
}

func (h *Handler) page(name, title string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		td := view.NewTemplateData(r, h.csrf, title, data)
		if err := h.templates.Render(w, name, td); err != nil {
			h.logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		}
	}
}

// MatrixRow is one role's line in the permission matrix.
type MatrixRow struct {
	Role    rbac.Role
	Granted []bool
}

// RouteRow shows which capability a console path requires.
type RouteRow struct {
	Prefix     string
	Capability rbac.Capability
}

type settingsPageData struct {
	Capabilities []rbac.Capability
	Matrix       []MatrixRow
	Routes       []RouteRow
	Policy       rbac.DefaultPolicy
}

func (h *Handler) showSettings(w http.ResponseWriter, r *http.Request) {
	caps := rbac.Capabilities()
	data := settingsPageData{Capabilities: caps, Policy: h.routes.Policy()}
	for _, role := range rbac.Roles() {
		row := MatrixRow{Role: role, Granted: make([]bool, len(caps))}
		for i, c := range caps {
			row.Granted[i] = rbac.HasPermission(role, c)
		}
		data.Matrix = append(data.Matrix, row)
	}
	for _, rule := range h.routes.Rules() {
		data.Routes = append(data.Routes, RouteRow{Prefix: rule.Prefix, Capability: rule.Capability})
	}
	td := view.NewTemplateData(r, h.csrf, "Settings", data)
	if err := h.templates.Render(w, "pages/settings.html", td); err != nil {
		h.logger.Error("render settings", slog.Any("error", err))
	}
}

func (h *Handler) showUnauthorized(w http.ResponseWriter, r *http.Request) {
	td := view.NewTemplateData(r, h.csrf, "Access Denied", nil)
	if err := h.templates.RenderStatus(w, http.StatusForbidden, "pages/unauthorized.html", td); err != nil {
		h.logger.Error("render unauthorized", slog.Any("error", err))
	}
}
