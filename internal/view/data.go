package view

import (
	"net/http"

	"github.com/sheetdesk/sheetdesk/internal/shared"
)

// NewTemplateData fills the fields every page needs from the request
// session: CSRF token, pending flash and the signed-in user.
func NewTemplateData(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{
		Title:       title,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if sess == nil {
		return td
	}
	if csrf != nil {
		td.CSRFToken, _ = csrf.EnsureToken(r.Context(), sess)
	}
	td.Flash = sess.PopFlash()
	td.User = sess.DisplayName()
	return td
}
