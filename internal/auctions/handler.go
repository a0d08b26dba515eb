package auctions

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
)

// MonitoringService is the contract the handlers depend on.
type MonitoringService interface {
	ListMonitoring(ctx context.Context) ([]MonitorItem, error)
	FlagAuction(ctx context.Context, actor rbac.Principal, auctionID, reason string) error
}

// Handler serves the monitoring API and page.
type Handler struct {
	logger    *slog.Logger
	service   MonitoringService
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service MonitoringService, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, templates: templates, csrf: csrf}
}

// MountAPI registers the JSON endpoints under /admin, each behind its
// capability guard.
func (h *Handler) MountAPI(r chi.Router, guard rbac.Middleware) {
	r.With(guard.RequireCapability(rbac.CapAuctionMonitor)).Get("/auctions/monitor", h.apiList)
	r.With(
		guard.RequireCapability(rbac.CapAuctionFlag),
		httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(principalKey)),
	).Post("/auctions/{auctionID}/flag", h.apiFlag)
}

// MountUI registers the page routes. The caller applies the route guard.
func (h *Handler) MountUI(r chi.Router) {
	r.Get("/auctions/monitor", h.showMonitor)
	r.Post("/auctions/monitor/{auctionID}/flag", h.submitFlag)
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.ListMonitoring(r.Context())
	if err != nil {
		h.logger.Error("list monitoring", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if items == nil {
		items = []MonitorItem{}
	}
	httpx.JSON(w, http.StatusOK, items)
}

type flagBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) apiFlag(w http.ResponseWriter, r *http.Request) {
	principal, ok := rbac.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, rbac.ErrUnauthenticated)
		return
	}
	reason, err := readReason(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.FlagAuction(r.Context(), principal, chi.URLParam(r, "auctionID"), reason); err != nil {
		if !isClientError(err) {
			h.logger.Error("flag auction", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readReason(r *http.Request) (string, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var body flagBody
		if err := httpx.DecodeJSON(r, &body); err != nil {
			return "", err
		}
		return body.Reason, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", httpx.ErrValidation
	}
	return r.PostFormValue("reason"), nil
}

type monitorPageData struct {
	Items []MonitorItem
	Error string
	// CanFlag hides the flag form for roles that could not submit it.
	CanFlag bool
}

func (h *Handler) showMonitor(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	data := monitorPageData{CanFlag: principal.Can(rbac.CapAuctionFlag)}
	status := http.StatusOK
	items, err := h.service.ListMonitoring(r.Context())
	if err != nil {
		h.logger.Error("list monitoring", slog.Any("error", err))
		data.Error = err.Error()
		status = http.StatusInternalServerError
	}
	data.Items = items
	td := view.NewTemplateData(r, h.csrf, "Auction Monitoring", data)
	if err := h.templates.RenderStatus(w, status, "pages/auctions_monitor.html", td); err != nil {
		h.logger.Error("render monitor", slog.Any("error", err))
	}
}

func (h *Handler) submitFlag(w http.ResponseWriter, r *http.Request) {
	principal, _ := rbac.PrincipalFromContext(r.Context())
	sess := shared.SessionFromContext(r.Context())
	reason, err := readReason(r)
	if err == nil {
		err = h.service.FlagAuction(r.Context(), principal, chi.URLParam(r, "auctionID"), reason)
	}
	switch {
	case err == nil:
		addFlash(sess, "success", "Auction flagged for review.")
	case errors.Is(err, rbac.ErrForbidden):
		http.Redirect(w, r, "/unauthorized", http.StatusSeeOther)
		return
	case errors.Is(err, rbac.ErrUnauthenticated):
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	case errors.Is(err, ErrNotFound):
		addFlash(sess, "error", "Auction is not being monitored.")
	case errors.Is(err, httpx.ErrValidation):
		addFlash(sess, "error", "A reason of at most 500 characters is required.")
	default:
		h.logger.Error("flag auction", slog.Any("error", err))
		addFlash(sess, "error", "Could not flag auction: "+err.Error())
	}
	http.Redirect(w, r, "/auctions/monitor", http.StatusSeeOther)
}

func addFlash(sess *shared.Session, kind, message string) {
	if sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
}

func isClientError(err error) bool {
	return errors.Is(err, httpx.ErrValidation) || errors.Is(err, httpx.ErrNotFound) ||
		errors.Is(err, httpx.ErrForbidden) || errors.Is(err, httpx.ErrUnauthorized)
}

func principalKey(r *http.Request) (string, error) {
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		return "admin:" + p.ID, nil
	}
	return httprate.KeyByIP(r)
}
