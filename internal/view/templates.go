package view

import (
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/autobid/autobid-admin/internal/rbac"
	"github.com/autobid/autobid-admin/internal/shared"
	"github.com/autobid/autobid-admin/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
	routes    *rbac.RouteMap
}

// NavItem is one sidebar entry.
type NavItem struct {
	Label  string
	Href   string
	Active bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Principal   *rbac.Principal
	Nav         []NavItem
	Data        any
}

var sidebar = []NavItem{
	{Label: "Dashboard", Href: "/"},
	{Label: "Auction Monitoring", Href: "/auctions/monitor"},
	{Label: "KYC Queue", Href: "/kyc/queue"},
	{Label: "Payments", Href: "/payments/verify"},
	{Label: "Users", Href: "/users"},
	{Label: "Audit Logs", Href: "/audit-logs"},
	{Label: "Settings", Href: "/settings"},
}

var printer = message.NewPrinter(language.English)

// NewEngine parses templates at build-time. Sidebar entries are filtered
// through routes so a principal only sees pages it may open.
func NewEngine(routes *rbac.RouteMap) (*Engine, error) {
	if routes == nil {
		routes = rbac.DefaultRouteMap(rbac.PolicyAllow)
	}
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"isoDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"peso":      Peso,
		"number":    Number,
		"countdown": Countdown,
		"shortID":   ShortID,
		"roleLabel": func(r rbac.Role) string { return r.Label() },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl, routes: routes}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.Principal != nil && data.Nav == nil {
		data.Nav = e.Navigation(*data.Principal, data.CurrentPath)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// RenderStatus writes status before executing the template.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	if data.Principal != nil && data.Nav == nil {
		data.Nav = e.Navigation(*data.Principal, data.CurrentPath)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	return e.templates.ExecuteTemplate(w, name, data)
}

// Navigation returns the sidebar entries visible to p.
func (e *Engine) Navigation(p rbac.Principal, current string) []NavItem {
	items := make([]NavItem, 0, len(sidebar))
	for _, item := range sidebar {
		if !e.routes.CanAccess(p.Role, item.Href) {
			continue
		}
		item.Active = current == item.Href || (item.Href != "/" && strings.HasPrefix(current, item.Href))
		items = append(items, item)
	}
	return items
}

// Peso formats an amount as Philippine pesos with grouping, e.g. ₱12,500.00.
func Peso(amount float64) string {
	return printer.Sprintf("₱%.2f", amount)
}

// Number formats an integer with thousands separators.
func Number(n int) string {
	return printer.Sprintf("%d", n)
}

// Countdown renders remaining seconds as "Xm Ys". Negative input clamps to zero.
func Countdown(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
}

// ShortID truncates identifiers for table display.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// NewTemplateData fills the per-request fields every console page needs:
// the pending flash message, a CSRF token for forms and the principal.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	td := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		td.Flash = sess.PopFlash()
		if csrf != nil {
			td.CSRFToken, _ = csrf.EnsureToken(sess)
		}
	}
	if p, ok := rbac.PrincipalFromContext(r.Context()); ok {
		td.Principal = &p
	}
	return td
}
