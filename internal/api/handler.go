package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

type principalKey struct{}

type tokenKey struct{}

// PrincipalFromContext returns the authenticated operator.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// Handler serves the /api routes.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers the API routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/auth/login", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireToken)
		r.Post("/auth/logout", h.logout)

		r.Get("/dashboard/stats", h.stats)
		r.Get("/dashboard/activity", h.activity)

		r.Get("/sheets", h.listSheets)
		r.Route("/sheets/{sheetID}", func(r chi.Router) {
			r.Get("/", h.getSheet)
			r.Get("/subscribers", h.listSubscribers)
			r.Post("/subscribers", h.createSubscriber)
			r.Put("/subscribers/{filingNumber}", h.updateSubscriber)
			r.Delete("/subscribers/{filingNumber}", h.deleteSubscriber)
		})

		r.Get("/subscribers/search", h.searchDirectory)
		r.Get("/options/parasha", h.parashaOptions)
		r.Get("/options/halacha", h.halachaOptions)
	})
}

// RequireToken rejects requests without a live bearer token.
func (h *Handler) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		token = strings.TrimSpace(token)
		principal, err := h.service.Authenticate(r.Context(), token)
		if err != nil {
			h.respond(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		ctx = context.WithValue(ctx, tokenKey{}, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) respond(w http.ResponseWriter, err error) {
	var invalid *ValidationError
	if errors.As(err, &invalid) {
		httpx.ValidationProblem(w, invalid.Fields)
		return
	}
	httpx.RespondError(w, h.logger, err)
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.respond(w, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		fields := map[string]string{}
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				fields[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		httpx.ValidationProblem(w, fields)
		return
	}
	result, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "שם משתמש או סיסמה שגויים")
			return
		}
		h.respond(w, err)
		return
	}
	h.logger.Info("api login", slog.String("username", result.User.Username))
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := r.Context().Value(tokenKey{}).(string)
	if err := h.service.Logout(r.Context(), token); err != nil {
		h.respond(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) activity(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r, "limit")
	if err != nil {
		h.respond(w, err)
		return
	}
	items, err := h.service.RecentActivity(r.Context(), limit)
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.service.Sheets(r.Context())
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheets)
}

func (h *Handler) getSheet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sheetID")
	if err != nil {
		h.respond(w, err)
		return
	}
	sheet, err := h.service.Sheet(r.Context(), id)
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sheet)
}

func (h *Handler) listSubscribers(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sheetID")
	if err != nil {
		h.respond(w, err)
		return
	}
	page, err := optionalInt(r, "page")
	if err != nil {
		h.respond(w, err)
		return
	}
	pageSize, err := optionalInt(r, "pageSize")
	if err != nil {
		h.respond(w, err)
		return
	}
	q := r.URL.Query()
	filter := SubscriberFilter{
		FilingNumber:   q.Get("filingNumber"),
		SubscriberCode: q.Get("subscriberCode"),
		Name:           q.Get("name"),
		IDNumber:       q.Get("idNumber"),
	}
	result, err := h.service.Subscribers(r.Context(), id, filter, page, pageSize)
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) createSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sheetID")
	if err != nil {
		h.respond(w, err)
		return
	}
	var sub domain.Subscriber
	if err := httpx.DecodeJSON(w, r, &sub); err != nil {
		h.respond(w, err)
		return
	}
	created, err := h.service.CreateSubscriber(r.Context(), id, sub)
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sheetID")
	if err != nil {
		h.respond(w, err)
		return
	}
	filing, err := pathID(r, "filingNumber")
	if err != nil {
		h.respond(w, err)
		return
	}
	var sub domain.Subscriber
	if err := httpx.DecodeJSON(w, r, &sub); err != nil {
		h.respond(w, err)
		return
	}
	sub.FilingNumber = filing
	if err := h.service.UpdateSubscriber(r.Context(), id, sub); err != nil {
		h.respond(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deleteSubscriber(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "sheetID")
	if err != nil {
		h.respond(w, err)
		return
	}
	filing, err := pathID(r, "filingNumber")
	if err != nil {
		h.respond(w, err)
		return
	}
	if err := h.service.DeleteSubscriber(r.Context(), id, filing); err != nil {
		h.respond(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) searchDirectory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.SearchDirectory(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.respond(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) parashaOptions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, domain.ParashaAnswers)
}

func (h *Handler) halachaOptions(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, domain.HalachaAnswers)
}

func pathID(r *http.Request, param string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		return 0, &httpx.BadRequestError{Err: errors.New(param + " must be a positive integer")}
	}
	return id, nil
}

func optionalInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &httpx.BadRequestError{Err: errors.New(name + " must be an integer")}
	}
	return n, nil
}
