package audithttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
)

// Exports scan the whole filtered range, so each admin gets a small budget.
const (
	exportsPerWindow = 10
	exportWindow     = time.Minute
)

// MountRoutes registers the viewer and its CSV export.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Get("/audit-logs", h.handleTimeline)
	r.With(exportLimiter()).Get("/audit-logs/export.csv", h.handleExport)
}

func exportLimiter() func(http.Handler) http.Handler {
	return httprate.Limit(exportsPerWindow, exportWindow,
		httprate.WithKeyFuncs(exportKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", strconv.Itoa(int(exportWindow.Seconds())))
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Exports", "audit export limit reached, retry shortly")
		}),
	)
}

// exportKey buckets signed-in admins by ID and everyone else by IP.
func exportKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok && p.ID != "" {
		return "admin:" + p.ID, nil
	}
	ip, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + ip, nil
}
