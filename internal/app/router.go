package app

import (
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/autobid/autobid-admin/internal/auctions"
	audithttp "github.com/autobid/autobid-admin/internal/audit/http"
	"github.com/autobid/autobid-admin/internal/auth"
	"github.com/autobid/autobid-admin/internal/console"
	"github.com/autobid/autobid-admin/internal/dashboard"
	"github.com/autobid/autobid-admin/internal/monitor"
	"github.com/autobid/autobid-admin/internal/observability"
	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/jobs"
	"github.com/autobid/autobid-admin/web"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	RBACMiddleware rbac.Middleware

	AuthHandler      *auth.Handler
	DashboardHandler *dashboard.Handler
	AuctionsHandler  *auctions.Handler
	StreamHandler    *monitor.StreamHandler
	AuditHandler     *audithttp.Handler
	ConsoleHandler   *console.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with console defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	guard := params.RBACMiddleware

	// Streams outlive the request timeout.
	if params.StreamHandler != nil {
		params.StreamHandler.MountRoutes(r, guard)
	}

	r.Group(func(r chi.Router) {
		r.Use(RequestTimeout(params.Config))

		r.Route("/auth", params.AuthHandler.MountRoutes)
		if params.ConsoleHandler != nil {
			params.ConsoleHandler.MountPublic(r)
		}

		r.Route("/admin", func(api chi.Router) {
			if params.DashboardHandler != nil {
				params.DashboardHandler.MountAPI(api, guard)
			}
			if params.AuctionsHandler != nil {
				params.AuctionsHandler.MountAPI(api, guard)
			}
			if params.JobHandler != nil {
				api.Route("/jobs", func(jr chi.Router) {
					jr.Use(guard.RequireCapability(rbac.CapSystemConfig))
					params.JobHandler.MountRoutes(jr)
				})
			}
		})

		r.Group(func(ui chi.Router) {
			ui.Use(guard.GuardRoute)
			if params.DashboardHandler != nil {
				params.DashboardHandler.MountUI(ui)
			}
			if params.AuctionsHandler != nil {
				params.AuctionsHandler.MountUI(ui)
			}
			if params.AuditHandler != nil {
				params.AuditHandler.MountRoutes(ui)
			}
			if params.ConsoleHandler != nil {
				params.ConsoleHandler.MountUI(ui)
			}
		})
	})

	registerStaticTypes(params.Logger)
	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		params.Logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// Minimal container images ship without /etc/mime.types.
var (
	staticTypes = map[string]string{
		".css": "text/css; charset=utf-8",
		".js":  "text/javascript; charset=utf-8",
		".svg": "image/svg+xml",
	}
	staticTypesOnce sync.Once
)

func registerStaticTypes(logger *slog.Logger) {
	staticTypesOnce.Do(func() {
		for ext, typ := range staticTypes {
			if mime.TypeByExtension(ext) != "" {
				continue
			}
			if err := mime.AddExtensionType(ext, typ); err != nil {
				logger.Warn("register static mime type", slog.String("ext", ext), slog.Any("error", err))
			}
		}
	})
}

// staticCacheHandler wraps a file server with Cache-Control headers.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
