package sheets

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/auth"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/internal/view"
)

// Handler serves the dashboard and the sheets grid.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	api       *apiclient.Client
	templates *view.Engine
	csrf      *shared.CSRFManager
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, api *apiclient.Client, templates *view.Engine, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, api: api, templates: templates, csrf: csrf}
}

// MountRoutes registers the dashboard and grid routes. Callers wrap r with
// auth.RequireLogin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showDashboard)
	r.Get("/sheets", h.listSheets)
}

type dashboardPage struct {
	Stats       domain.Stats
	Activity    []domain.Activity
	Unavailable bool
}

type sheetsPage struct {
	Sheets []domain.Sheet
}

func (h *Handler) showDashboard(w http.ResponseWriter, r *http.Request) {
	data := dashboardPage{}
	dash, err := h.service.Dashboard(r.Context(), h.client(r))
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		auth.Reauthenticate(w, r)
		return
	case err != nil:
		h.logger.Error("load dashboard", slog.Any("error", err))
		data.Unavailable = true
	default:
		data.Stats = dash.Stats
		data.Activity = dash.Activity
	}
	h.render(w, r, http.StatusOK, "pages/dashboard.html", "לוח בקרה", data)
}

func (h *Handler) listSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.service.Sheets(r.Context(), h.client(r))
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			auth.Reauthenticate(w, r)
			return
		}
		h.logger.Error("list sheets", slog.Any("error", err))
		h.render(w, r, http.StatusBadGateway, "pages/error.html", "שגיאה", map[string]string{
			"Message": "לא ניתן לטעון את רשימת הגליונות",
		})
		return
	}
	h.render(w, r, http.StatusOK, "pages/sheets.html", "גליונות", sheetsPage{Sheets: sheets})
}

func (h *Handler) client(r *http.Request) *apiclient.Client {
	return h.api.WithToken(shared.SessionFromContext(r.Context()).APIToken())
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	td := view.NewTemplateData(r, h.csrf, title, data)
	if err := h.templates.RenderStatus(w, status, name, td); err != nil {
		h.logger.Error("render", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}
