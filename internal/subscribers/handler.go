// Package subscribers serves the subscriber table of a sheet: incremental
// loading, filtering, inline editing, deletion, creation and export.
package subscribers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/auth"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/internal/view"
)

// Lists is the per-session registry of subscriber list controllers.
type Lists = listing.Registry[domain.Subscriber, int64]

// List is the controller driving one sheet's table for one session.
type List = listing.Controller[domain.Subscriber, int64]

// Invalidator drops cached aggregates after a mutation.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

const (
	msgLoadFailed   = "טעינת המנויים נכשלה"
	msgSearchFailed = "החיפוש נכשל, מוצגות התוצאות הקודמות"
	msgSaved        = "השינויים נשמרו"
	msgSaveFailed   = "שמירת השינויים נכשלה"
	msgDeleted      = "המנוי נמחק"
	msgDeleteFailed = "מחיקת המנוי נכשלה"
	msgAdded        = "המנוי נוסף בהצלחה"
	msgAddFailed    = "הוספת המנוי נכשלה"
	msgNotLoaded    = "המנוי אינו מופיע ברשימה הטעונה"
	msgNotNumber    = "יש להזין מספר"
	msgUnavailable  = "השרת אינו זמין כרגע, נסו שוב מאוחר יותר"
	msgSheetMissing = "הגליון לא נמצא"
	msgLookupFailed = "חיפוש המנויים נכשל"
)

// HandlerParams groups the dependencies of Handler.
type HandlerParams struct {
	Logger    *slog.Logger
	API       *apiclient.Client
	Templates *view.Engine
	CSRF      *shared.CSRFManager
	Lists     *Lists
	Options   *OptionsService
	Reporter  listing.Reporter
	Dashboard Invalidator
	PageSize  int
}

// Handler serves /sheets/{sheetID}/subscribers.
type Handler struct {
	logger    *slog.Logger
	api       *apiclient.Client
	templates *view.Engine
	csrf      *shared.CSRFManager
	lists     *Lists
	options   *OptionsService
	reporter  listing.Reporter
	dashboard Invalidator
	pageSize  int
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(p HandlerParams) *Handler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := p.Reporter
	if reporter == nil {
		reporter = listing.LogReporter{Logger: logger}
	}
	options := p.Options
	if options == nil {
		options = NewOptionsService(logger, nil)
	}
	return &Handler{
		logger:    logger,
		api:       p.API,
		templates: p.Templates,
		csrf:      p.CSRF,
		lists:     p.Lists,
		options:   options,
		reporter:  reporter,
		dashboard: p.Dashboard,
		pageSize:  p.PageSize,
		validator: domain.NewValidator(),
	}
}

// MountRoutes registers the subscriber routes. r is expected to be mounted
// at /sheets/{sheetID}/subscribers behind auth.RequireLogin.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.showTable)
	r.Get("/rows", h.moreRows)
	r.Get("/search", h.search)
	r.Post("/clear", h.clearFilters)
	r.Get("/new", h.showNew)
	r.Get("/lookup", h.lookup)
	r.Post("/", h.create)
	r.Get("/export.xlsx", h.export)
	r.Get("/{filingNumber}/edit", h.showEdit)
	r.Post("/{filingNumber}", h.save)
	r.Get("/{filingNumber}/delete", h.confirmDelete)
	r.Post("/{filingNumber}/delete", h.remove)
}

// DropSession closes every list held for sessionID.
func (h *Handler) DropSession(sessionID string) {
	h.lists.RemovePrefix(sessionID + ":")
}

type tablePage struct {
	Sheet   domain.Sheet
	Base    string
	State   listing.State[domain.Subscriber]
	Options AnswerOptions
	Editing int64
	Edit    domain.EditForm
	Errors  map[string]string
	Confirm *domain.Subscriber
}

type newPage struct {
	Sheet    domain.Sheet
	Base     string
	Query    string
	Searched bool
	Results  []domain.DirectoryEntry
	Form     domain.AddForm
	Errors   map[string]string
	Options  AnswerOptions
}

// target identifies the sheet a request is about.
type target struct {
	sheetID int64
	owner   string
	base    string
}

func (h *Handler) showTable(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	filters := filtersFrom(r.URL.Query())
	if !filters.Empty() {
		h.applyFilters(w, r, t, filters)
		return
	}
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	ctrl, created := h.list(r, t)
	failure := ""
	if created || r.URL.Query().Get("keep") != "1" || ctrl.Snapshot().OwnerID != t.owner {
		if err := ctrl.Initialize(r.Context(), t.owner); err != nil && !superseded(err) {
			if h.unauthorized(w, r, err) {
				return
			}
			failure = msgLoadFailed
		}
	}
	h.renderTable(w, r, http.StatusOK, h.tablePage(r, t, sheet, ctrl), failure)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	filters := filtersFrom(r.URL.Query())
	if filters.Empty() {
		http.Redirect(w, r, t.base+"?keep=1", http.StatusSeeOther)
		return
	}
	h.applyFilters(w, r, t, filters)
}

func (h *Handler) applyFilters(w http.ResponseWriter, r *http.Request, t target, filters listing.Filters) {
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	ctrl, created := h.list(r, t)
	failure := ""
	err := h.ensureOwner(r.Context(), ctrl, created, t)
	if err == nil {
		err = ctrl.ApplyFilters(r.Context(), filters)
	}
	if err != nil && !superseded(err) {
		if h.unauthorized(w, r, err) {
			return
		}
		failure = msgSearchFailed
	}
	h.renderTable(w, r, http.StatusOK, h.tablePage(r, t, sheet, ctrl), failure)
}

func (h *Handler) clearFilters(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	ctrl, created := h.list(r, t)
	var err error
	if created || ctrl.Snapshot().OwnerID != t.owner {
		err = ctrl.Initialize(r.Context(), t.owner)
	} else {
		err = ctrl.ClearFilters(r.Context())
	}
	if err != nil && !superseded(err) {
		if h.unauthorized(w, r, err) {
			return
		}
		shared.RedirectWithFlash(w, r, t.base+"?keep=1", "error", msgLoadFailed)
		return
	}
	http.Redirect(w, r, t.base+"?keep=1", http.StatusSeeOther)
}

// superseded reports whether err only means a newer request on the same list
// replaced this one. The page then shows the newer state without a flash.
func superseded(err error) bool {
	return errors.Is(err, listing.ErrStaleResponse)
}

// moreRows answers the scroll intent with the appended rows. The response
// carries X-Has-More so the page script knows when to stop.
func (h *Handler) moreRows(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	vp, err := viewportFrom(r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctrl, found := h.lists.Lookup(h.listKey(r, t))
	if !found || ctrl.Snapshot().OwnerID != t.owner {
		w.Header().Set("X-Has-More", "false")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	batch, err := ctrl.NearEnd(r.Context(), vp)
	switch {
	case errors.Is(err, listing.ErrStaleResponse), errors.Is(err, listing.ErrClosed):
		w.Header().Set("X-Has-More", strconv.FormatBool(ctrl.Snapshot().HasMore))
		w.WriteHeader(http.StatusNoContent)
		return
	case err != nil:
		if h.unauthorized(w, r, err) {
			return
		}
		w.Header().Set("X-Has-More", strconv.FormatBool(ctrl.Snapshot().HasMore))
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	w.Header().Set("X-Has-More", strconv.FormatBool(batch.HasMore))
	if !batch.Fetched || len(batch.Items) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	page := tablePage{
		Base:    t.base,
		State:   listing.State[domain.Subscriber]{Items: batch.Items, HasMore: batch.HasMore, Page: batch.Page},
		Options: h.options.Load(r.Context(), h.client(r)),
	}
	if err := h.templates.Render(w, "partials/subscriber_rows", view.TemplateData{Data: page}); err != nil {
		h.logger.Error("render rows", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) showEdit(w http.ResponseWriter, r *http.Request) {
	t, ctrl, row, ok := h.loadedRow(w, r)
	if !ok {
		return
	}
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	page := h.tablePage(r, t, sheet, ctrl)
	page.Editing = row.FilingNumber
	page.Edit = domain.EditFormOf(row)
	h.renderTable(w, r, http.StatusOK, page, "")
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request) {
	t, ctrl, row, ok := h.loadedRow(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, errs := editFormFrom(r.PostForm)
	if len(errs) == 0 {
		errs = domain.FormErrors(h.validator, form)
	}
	if len(errs) > 0 {
		sheet, ok := h.sheet(w, r, t)
		if !ok {
			return
		}
		page := h.tablePage(r, t, sheet, ctrl)
		page.Editing = row.FilingNumber
		page.Edit = form
		page.Errors = errs
		h.renderTable(w, r, http.StatusUnprocessableEntity, page, "")
		return
	}

	back := fmt.Sprintf("%s?keep=1#row-%d", t.base, row.FilingNumber)
	if err := ctrl.UpdateItem(r.Context(), row.FilingNumber, form.Patch(row.FilingNumber)); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		shared.RedirectWithFlash(w, r, back, "error", msgSaveFailed)
		return
	}
	h.invalidateDashboard(r.Context())
	shared.RedirectWithFlash(w, r, back, "success", msgSaved)
}

func (h *Handler) confirmDelete(w http.ResponseWriter, r *http.Request) {
	t, ctrl, row, ok := h.loadedRow(w, r)
	if !ok {
		return
	}
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	page := h.tablePage(r, t, sheet, ctrl)
	page.Confirm = &row
	h.renderTable(w, r, http.StatusOK, page, "")
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	t, ctrl, row, ok := h.loadedRow(w, r)
	if !ok {
		return
	}
	if err := ctrl.DeleteItem(r.Context(), row.FilingNumber); err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		shared.RedirectWithFlash(w, r, t.base+"?keep=1", "error", msgDeleteFailed)
		return
	}
	h.invalidateDashboard(r.Context())
	shared.RedirectWithFlash(w, r, t.base+"?keep=1", "success", msgDeleted)
}

func (h *Handler) showNew(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	api := h.client(r)
	page := newPage{
		Sheet:   sheet,
		Base:    t.base,
		Query:   strings.TrimSpace(r.URL.Query().Get("q")),
		Options: h.options.Load(r.Context(), api),
	}
	if page.Query != "" {
		results, err := api.SearchDirectory(r.Context(), page.Query)
		if err != nil {
			if h.unauthorized(w, r, err) {
				return
			}
			h.logger.Error("directory search", slog.Any("error", err))
			page.Errors = map[string]string{"general": msgLookupFailed}
		}
		page.Results = results
		page.Searched = err == nil
	}
	if code := r.URL.Query().Get("select"); code != "" {
		for _, entry := range page.Results {
			if entry.Code == code {
				page.Form = domain.AddForm{
					SubscriberCode: entry.Code,
					Name:           entry.Name,
					IDNumber:       entry.IDNumber,
					Yeshiva:        entry.Yeshiva,
					Locality:       entry.Locality,
				}
				break
			}
		}
	}
	h.renderNew(w, r, http.StatusOK, page)
}

// lookup renders only the directory results, for in-page search.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	page := newPage{Base: t.base, Query: strings.TrimSpace(r.URL.Query().Get("q"))}
	if page.Query != "" {
		results, err := h.client(r).SearchDirectory(r.Context(), page.Query)
		if err != nil {
			if h.unauthorized(w, r, err) {
				return
			}
			h.logger.Error("directory lookup", slog.Any("error", err))
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		page.Results = results
		page.Searched = true
	}
	if err := h.templates.Render(w, "partials/lookup_fragment", view.TemplateData{Data: page}); err != nil {
		h.logger.Error("render lookup", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form, errs := addFormFrom(r.PostForm)
	if len(errs) == 0 {
		errs = domain.FormErrors(h.validator, form)
	}
	if len(errs) > 0 {
		h.rerenderNew(w, r, t, form, errs, http.StatusUnprocessableEntity)
		return
	}

	ctrl, created := h.list(r, t)
	err := h.ensureOwner(r.Context(), ctrl, created, t)
	if err == nil {
		err = ctrl.AddItem(r.Context(), form.Subscriber())
	}
	switch {
	case err == nil:
		h.invalidateDashboard(r.Context())
		shared.RedirectWithFlash(w, r, t.base+"?keep=1", "success", msgAdded)
	case h.unauthorized(w, r, err):
	case errors.Is(err, listing.ErrMutationFailed):
		h.rerenderNew(w, r, t, form, map[string]string{"general": msgAddFailed}, http.StatusBadGateway)
	default:
		// Created, but the reload failed; let the table page fetch again.
		h.invalidateDashboard(r.Context())
		shared.RedirectWithFlash(w, r, t.base, "success", msgAdded)
	}
}

func (h *Handler) rerenderNew(w http.ResponseWriter, r *http.Request, t target, form domain.AddForm, errs map[string]string, status int) {
	sheet, ok := h.sheet(w, r, t)
	if !ok {
		return
	}
	h.renderNew(w, r, status, newPage{
		Sheet:   sheet,
		Base:    t.base,
		Form:    form,
		Errors:  errs,
		Options: h.options.Load(r.Context(), h.client(r)),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	t, ok := h.target(w, r)
	if !ok {
		return
	}
	filters := listing.Filters{}
	if ctrl, found := h.lists.Lookup(h.listKey(r, t)); found {
		if snap := ctrl.Snapshot(); snap.OwnerID == t.owner {
			filters = snap.Filters
		}
	}
	api := h.client(r)
	opts := h.options.Load(r.Context(), api)

	var buf bytes.Buffer
	rows, err := Export(r.Context(), api, t.sheetID, filters, opts, &buf)
	if err != nil {
		if h.unauthorized(w, r, err) {
			return
		}
		h.logger.Error("export subscribers", slog.Int64("sheet_id", t.sheetID), slog.Any("error", err))
		shared.RedirectWithFlash(w, r, t.base+"?keep=1", "error", msgUnavailable)
		return
	}
	h.logger.Info("subscribers exported", slog.Int64("sheet_id", t.sheetID), slog.Int("rows", rows))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="subscribers-%d.xlsx"`, t.sheetID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// target parses the sheet ID; it writes 404 when the ID is malformed.
func (h *Handler) target(w http.ResponseWriter, r *http.Request) (target, bool) {
	raw := chi.URLParam(r, "sheetID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return target{}, false
	}
	owner := strconv.FormatInt(id, 10)
	return target{sheetID: id, owner: owner, base: "/sheets/" + owner + "/subscribers"}, true
}

// loadedRow resolves {filingNumber} against the rows already loaded for the
// session. Rows that are not loaded cannot be edited from this page.
func (h *Handler) loadedRow(w http.ResponseWriter, r *http.Request) (target, *List, domain.Subscriber, bool) {
	t, ok := h.target(w, r)
	if !ok {
		return target{}, nil, domain.Subscriber{}, false
	}
	fn, err := strconv.ParseInt(chi.URLParam(r, "filingNumber"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return target{}, nil, domain.Subscriber{}, false
	}
	ctrl, found := h.lists.Lookup(h.listKey(r, t))
	if !found || ctrl.Snapshot().OwnerID != t.owner {
		http.Redirect(w, r, t.base, http.StatusSeeOther)
		return target{}, nil, domain.Subscriber{}, false
	}
	row, found := ctrl.Find(fn)
	if !found {
		shared.RedirectWithFlash(w, r, t.base+"?keep=1", "error", msgNotLoaded)
		return target{}, nil, domain.Subscriber{}, false
	}
	return t, ctrl, row, true
}

func (h *Handler) sheet(w http.ResponseWriter, r *http.Request, t target) (domain.Sheet, bool) {
	sheet, err := h.client(r).GetSheet(r.Context(), t.sheetID)
	if err == nil {
		return sheet, true
	}
	switch {
	case h.unauthorized(w, r, err):
	case errors.Is(err, apiclient.ErrNotFound):
		h.renderError(w, r, http.StatusNotFound, msgSheetMissing)
	default:
		h.logger.Error("get sheet", slog.Int64("sheet_id", t.sheetID), slog.Any("error", err))
		h.renderError(w, r, http.StatusBadGateway, msgUnavailable)
	}
	return domain.Sheet{}, false
}

func (h *Handler) listKey(r *http.Request, t target) string {
	sess := shared.SessionFromContext(r.Context())
	id := ""
	if sess != nil {
		id = sess.ID
	}
	return id + ":" + t.owner
}

func (h *Handler) list(r *http.Request, t target) (*List, bool) {
	api := h.client(r)
	return h.lists.Get(h.listKey(r, t), func() *List {
		return listing.New[domain.Subscriber, int64](api.Subscribers(), listing.Options[domain.Subscriber, int64]{
			PageSize: h.pageSize,
			Key:      domain.SubscriberKey,
			Merge:    domain.MergeSubscriber,
			Reporter: h.reporter,
		})
	})
}

// ensureOwner loads page 1 for a list that has not been opened on t yet.
func (h *Handler) ensureOwner(ctx context.Context, ctrl *List, created bool, t target) error {
	if !created && ctrl.Snapshot().OwnerID == t.owner {
		return nil
	}
	return ctrl.Initialize(ctx, t.owner)
}

func (h *Handler) client(r *http.Request) *apiclient.Client {
	return h.api.WithToken(shared.SessionFromContext(r.Context()).APIToken())
}

// unauthorized sends the operator back to login when the API rejected the
// session token.
func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request, err error) bool {
	if !errors.Is(err, apiclient.ErrUnauthorized) {
		return false
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		h.DropSession(sess.ID)
	}
	auth.Reauthenticate(w, r)
	return true
}

func (h *Handler) invalidateDashboard(ctx context.Context) {
	if h.dashboard == nil {
		return
	}
	if err := h.dashboard.Invalidate(ctx); err != nil {
		h.logger.Warn("invalidate dashboard cache", slog.Any("error", err))
	}
}

func (h *Handler) tablePage(r *http.Request, t target, sheet domain.Sheet, ctrl *List) tablePage {
	return tablePage{
		Sheet:   sheet,
		Base:    t.base,
		State:   ctrl.Snapshot(),
		Options: h.options.Load(r.Context(), h.client(r)),
	}
}

func (h *Handler) renderTable(w http.ResponseWriter, r *http.Request, status int, page tablePage, failure string) {
	td := view.NewTemplateData(r, h.csrf, page.Sheet.Name, page)
	if failure != "" {
		td.Flash = &shared.FlashMessage{Kind: "error", Message: failure}
	}
	if err := h.templates.RenderStatus(w, status, "pages/subscribers.html", td); err != nil {
		h.logger.Error("render subscribers", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderNew(w http.ResponseWriter, r *http.Request, status int, page newPage) {
	td := view.NewTemplateData(r, h.csrf, "הוספת מנוי", page)
	if err := h.templates.RenderStatus(w, status, "pages/subscriber_new.html", td); err != nil {
		h.logger.Error("render new subscriber", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	td := view.NewTemplateData(r, h.csrf, "שגיאה", map[string]string{"Message": message})
	if err := h.templates.RenderStatus(w, status, "pages/error.html", td); err != nil {
		h.logger.Error("render error page", slog.Any("error", err))
		http.Error(w, message, status)
	}
}

func filtersFrom(q url.Values) listing.Filters {
	filters := listing.Filters{}
	for _, field := range listing.Fields {
		if v := q.Get(string(field)); v != "" {
			filters[field] = v
		}
	}
	return filters.Normalize()
}

func viewportFrom(q url.Values) (listing.Viewport, error) {
	var vp listing.Viewport
	fields := []struct {
		name string
		dst  *float64
	}{
		{"scrollTop", &vp.ScrollTop},
		{"scrollHeight", &vp.ScrollHeight},
		{"clientHeight", &vp.ClientHeight},
	}
	for _, f := range fields {
		v, err := strconv.ParseFloat(q.Get(f.name), 64)
		if err != nil {
			return listing.Viewport{}, fmt.Errorf("invalid %s", f.name)
		}
		*f.dst = v
	}
	return vp, nil
}

func editFormFrom(form url.Values) (domain.EditForm, map[string]string) {
	errs := map[string]string{}
	out := domain.EditForm{
		NumberOfWins:           intField(form, "numberOfWins", "NumberOfWins", errs),
		ScholarshipFund:        intField(form, "scholarshipFund", "ScholarshipFund", errs),
		ParashaAnswersCode:     strings.TrimSpace(form.Get("parashaAnswersCode")),
		YiunHalacha:            form.Get("yiunHalacha") == "true",
		YiunHalachaAnswersCode: strings.TrimSpace(form.Get("yiunHalachaAnswersCode")),
		AnswersText:            strings.TrimSpace(form.Get("answersText")),
	}
	if len(errs) == 0 {
		return out, nil
	}
	return out, errs
}

func addFormFrom(form url.Values) (domain.AddForm, map[string]string) {
	edit, errs := editFormFrom(form)
	return domain.AddForm{
		SubscriberCode:         strings.TrimSpace(form.Get("subscriberCode")),
		Name:                   strings.TrimSpace(form.Get("name")),
		IDNumber:               strings.TrimSpace(form.Get("idNumber")),
		Yeshiva:                strings.TrimSpace(form.Get("yeshiva")),
		Locality:               strings.TrimSpace(form.Get("locality")),
		NumberOfWins:           edit.NumberOfWins,
		ScholarshipFund:        edit.ScholarshipFund,
		ParashaAnswersCode:     edit.ParashaAnswersCode,
		YiunHalacha:            edit.YiunHalacha,
		YiunHalachaAnswersCode: edit.YiunHalachaAnswersCode,
		AnswersText:            edit.AnswersText,
	}, errs
}

// intField parses an optional integer input; blank means zero.
func intField(form url.Values, name, field string, errs map[string]string) int {
	raw := strings.TrimSpace(form.Get(name))
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		errs[field] = msgNotNumber
		return 0
	}
	return n
}
