package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/internal/view"
)

const (
	msgInvalidCredentials = "שם משתמש או סיסמה שגויים"
	msgUnavailable        = "השרת אינו זמין כרגע, נסו שוב מאוחר יותר"
	msgRequired           = "שדה חובה"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
	onLogout       []func(sessionID string)
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// OnLogout registers fn to run with the session ID being destroyed.
func (h *Handler) OnLogout(fn func(sessionID string)) {
	h.onLogout = append(h.onLogout, fn)
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Username string `validate:"required,max=100"`
	Password string `validate:"required,max=200"`
	Next     string
}

type loginPageData struct {
	Form   loginForm
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil && sess.APIToken() != "" {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	form := loginForm{Next: safeNext(r.URL.Query().Get("next"))}
	h.render(w, r, http.StatusOK, loginPageData{Form: form})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
		Next:     safeNext(r.PostFormValue("next")),
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[fieldErr.Field()] = msgRequired
			}
		}
	}
	if len(errs) > 0 {
		h.render(w, r, http.StatusBadRequest, loginPageData{Form: loginForm{Username: form.Username, Next: form.Next}, Errors: errs})
		return
	}

	identity, err := h.service.Authenticate(r.Context(), form.Username, form.Password)
	if err != nil {
		status := http.StatusBadRequest
		errs["general"] = msgInvalidCredentials
		if !errors.Is(err, ErrInvalidCredentials) {
			h.logger.Error("login failed", slog.String("username", form.Username), slog.Any("error", err))
			status = http.StatusBadGateway
			errs["general"] = msgUnavailable
		}
		h.render(w, r, status, loginPageData{Form: loginForm{Username: form.Username, Next: form.Next}, Errors: errs})
		return
	}

	h.sessionManager.Renew(sess)
	sess.SetIdentity(identity.Username, identity.DisplayName, identity.Token)
	h.logger.Info("operator signed in", slog.String("username", identity.Username))

	next := form.Next
	if next == "" {
		next = "/"
	}
	shared.RedirectWithFlash(w, r, next, "success", "ברוך הבא, "+identity.DisplayName)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.Revoke(r.Context(), sess.APIToken()); err != nil {
			h.logger.Warn("revoke api token", slog.Any("error", err))
		}
		for _, fn := range h.onLogout {
			fn(sess.ID)
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, data loginPageData) {
	td := view.NewTemplateData(r, h.csrfManager, "כניסה", data)
	if err := h.templates.RenderStatus(w, status, "pages/login.html", td); err != nil {
		h.logger.Error("render login", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// safeNext keeps only same-site absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}
