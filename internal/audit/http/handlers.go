package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/autobid/autobid-admin/internal/audit"
	"github.com/autobid/autobid-admin/internal/platform/httpx"
	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/internal/view"
)

const (
	dayLayout       = "2006-01-02"
	defaultPageSize = 20
	maxPageSize     = 50
	defaultLookback = 7 * 24 * time.Hour
	maxRange        = 90 * 24 * time.Hour
)

// TimelineService reads the audit trail.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Exporter encodes audit rows for download.
type Exporter interface {
	WriteCSV(rows []audit.TimelineRow) ([]byte, error)
}

// Handler serves the audit log viewer at /audit-logs.
type Handler struct {
	logger    *slog.Logger
	service   TimelineService
	exporter  Exporter
	templates *view.Engine
	csrf      *shared.CSRFManager
	validator *validator.Validate
	now       func() time.Time
}

// NewHandler builds an audit log Handler.
func NewHandler(logger *slog.Logger, service TimelineService, templates *view.Engine, exporter Exporter, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		exporter:  exporter,
		templates: templates,
		csrf:      csrf,
		validator: validator.New(),
		now:       time.Now,
	}
}

// filterForm is the raw query string. Unparseable numbers arrive as -1 so
// the gte rule rejects them.
type filterForm struct {
	From         string `validate:"omitempty,datetime=2006-01-02"`
	To           string `validate:"omitempty,datetime=2006-01-02"`
	Actor        string `validate:"omitempty,max=254"`
	Action       string `validate:"omitempty,max=64"`
	ResourceType string `validate:"omitempty,max=64"`
	Page         int    `validate:"omitempty,gte=1"`
	PageSize     int    `validate:"omitempty,gte=1"`
}

// filterError names the query parameter that failed.
type filterError struct {
	param  string
	reason string
}

func (e filterError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.param, e.reason)
}

var formParams = map[string]string{
	"From":         "from",
	"To":           "to",
	"Actor":        "actor",
	"Action":       "action",
	"ResourceType": "resource_type",
	"Page":         "page",
	"PageSize":     "page_size",
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.templates == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	if !canViewAudit(r) {
		h.forbidden(w, r)
		return
	}

	filters, err := h.parseFilters(r)
	if err != nil {
		h.badFilters(w, r, filters, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.serverError(w, r, "load audit log", err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.JSON(w, http.StatusOK, result)
		return
	}
	h.render(w, r, http.StatusOK, viewModel(filters, result, ""))
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if h.service == nil || h.exporter == nil {
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
		return
	}
	if !canViewAudit(r) {
		h.forbidden(w, r)
		return
	}

	filters, err := h.parseFilters(r)
	if err != nil {
		var fe filterError
		if errors.As(err, &fe) {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", fe.Error())
			return
		}
		h.serverError(w, r, "parse audit filters", err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.serverError(w, r, "export audit log", err)
		return
	}
	body, err := h.exporter.WriteCSV(rows)
	if err != nil {
		h.serverError(w, r, "encode audit csv", err)
		return
	}

	name := fmt.Sprintf("audit-log-%s-%s.csv", filters.From.Format("20060102"), filters.To.Format("20060102"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write audit csv", slog.Any("error", err))
		return
	}
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		h.logger.Info("audit log exported",
			slog.String("admin_id", p.ID),
			slog.Int("rows", len(rows)),
			slog.String("from", filters.From.Format(dayLayout)),
			slog.String("to", filters.To.Format(dayLayout)))
	}
}

// canViewAudit repeats the audit.view check for mounts outside GuardRoute.
func canViewAudit(r *http.Request) bool {
	p, ok := rbac.PrincipalFromContext(r.Context())
	return ok && p.Can(rbac.CapAuditView)
}

// parseFilters validates the query and fills defaults: the window ends
// today (UTC) and starts seven days earlier. The returned filters carry
// whatever parsed cleanly so the form can be re-rendered on error.
func (h *Handler) parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	form := filterForm{
		From:         strings.TrimSpace(q.Get("from")),
		To:           strings.TrimSpace(q.Get("to")),
		Actor:        strings.TrimSpace(q.Get("actor")),
		Action:       strings.TrimSpace(q.Get("action")),
		ResourceType: strings.TrimSpace(q.Get("resource_type")),
		Page:         queryInt(q.Get("page")),
		PageSize:     queryInt(q.Get("page_size")),
	}
	filters := audit.TimelineFilters{
		Actor:        form.Actor,
		Action:       form.Action,
		ResourceType: form.ResourceType,
		Page:         1,
		PageSize:     defaultPageSize,
	}
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return filters, filterError{param: formParams[fieldErrs[0].Field()], reason: fieldErrs[0].Tag()}
		}
		return filters, err
	}

	filters.To = h.now().UTC().Truncate(24 * time.Hour)
	if form.To != "" {
		filters.To, _ = time.Parse(dayLayout, form.To)
	}
	filters.From = filters.To.Add(-defaultLookback)
	if form.From != "" {
		filters.From, _ = time.Parse(dayLayout, form.From)
	}
	switch {
	case filters.From.After(filters.To):
		return filters, filterError{param: "from", reason: "after to"}
	case filters.To.Sub(filters.From) > maxRange:
		return filters, filterError{param: "to", reason: "range exceeds 90 days"}
	}

	if form.Page > 0 {
		filters.Page = form.Page
	}
	if form.PageSize > 0 {
		filters.PageSize = min(form.PageSize, maxPageSize)
	}
	return filters, nil
}

func queryInt(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return -1
	}
	return n
}

func viewModel(filters audit.TimelineFilters, result audit.Result, message string) audit.ViewModel {
	return audit.ViewModel{
		Filters: audit.FiltersViewModel{
			From:         filters.From,
			To:           filters.To,
			Actor:        filters.Actor,
			Action:       filters.Action,
			ResourceType: filters.ResourceType,
		},
		Rows:   result.Rows,
		Paging: result.Paging,
		Error:  message,
	}
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, vm audit.ViewModel) {
	data := view.NewTemplateData(r, h.csrf, "Audit Logs", vm)
	if err := h.templates.RenderStatus(w, status, "pages/audit_logs.html", data); err != nil {
		h.logger.Error("render audit log", slog.Any("error", err))
	}
}

// badFilters keeps the viewer usable: the page re-renders with the
// offending parameter named and no rows.
func (h *Handler) badFilters(w http.ResponseWriter, r *http.Request, filters audit.TimelineFilters, err error) {
	var fe filterError
	if !errors.As(err, &fe) {
		h.serverError(w, r, "parse audit filters", err)
		return
	}
	if httpx.WantsJSON(r) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", fe.Error())
		return
	}
	result := audit.Result{Paging: audit.PagingInfo{Page: 1, PageSize: filters.PageSize}}
	h.render(w, r, http.StatusBadRequest, viewModel(filters, result, fe.Error()))
}

func (h *Handler) forbidden(w http.ResponseWriter, r *http.Request) {
	if httpx.WantsJSON(r) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "audit.view required")
		return
	}
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, slog.Any("error", err))
	if httpx.WantsJSON(r) {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Server Error", msg)
		return
	}
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
