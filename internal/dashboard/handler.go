package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
)

// MetricsService is the contract the handlers depend on.
type MetricsService interface {
	Latest(ctx context.Context) (Metrics, error)
	LatestOrZero(ctx context.Context) (Metrics, error)
}

// QuickAction links to a frequent task on the dashboard.
type QuickAction struct {
	Label string
	Href  string
}

var quickActions = []QuickAction{
	{Label: "Review KYC Queue", Href: "/kyc/queue"},
	{Label: "Monitor Live Auctions", Href: "/auctions/monitor"},
	{Label: "Verify Payments", Href: "/payments/verify"},
}

// Handler serves the dashboard page and metrics API.
type Handler struct {
	logger    *slog.Logger
	service   MetricsService
	templates *view.Engine
	csrf      *shared.CSRFManager
	routes    *rbac.RouteMap
}

// NewHandler constructs a Handler. A nil route map uses the default table.
func NewHandler(logger *slog.Logger, service MetricsService, templates *view.Engine, csrf *shared.CSRFManager, routes *rbac.RouteMap) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if routes == nil {
		routes = rbac.DefaultRouteMap(rbac.PolicyAllow)
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf, routes: routes}
}

// MountAPI registers GET /dashboard-metrics behind dashboard.view.
func (h *Handler) MountAPI(r chi.Router, guard rbac.Middleware) {
	r.With(guard.RequireCapability(rbac.CapDashboardView)).Get("/dashboard-metrics", h.apiMetrics)
}

// MountUI registers the dashboard page at /.
func (h *Handler) MountUI(r chi.Router) {
	r.Get("/", h.showDashboard)
}

func (h *Handler) apiMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Latest(r.Context())
	if err != nil {
		h.logger.Error("dashboard metrics", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type dashboardPageData struct {
	Metrics Metrics
	Actions []QuickAction
	Error   string
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	data := dashboardPageData{}
	m, err := h.service.LatestOrZero(r.Context())
	if err != nil {
		h.logger.Error("dashboard metrics", slog.Any("error", err))
		data.Error = "Metrics are temporarily unavailable."
	}
	data.Metrics = m
	for _, action := range quickActions {
		if h.routes.CanAccess(principal.Role, action.Href) {
			data.Actions = append(data.Actions, action)
		}
	}
	td := view.NewTemplateData(r, h.csrf, "Dashboard", data)
	if err := h.templates.Render(w, "pages/dashboard.html", td); err != nil {
		h.logger.Error("render dashboard", slog.Any("error", err))
	}
}
