package auth

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/sheetdesk/sheetdesk/internal/shared"
)

const msgSessionExpired = "פג תוקף ההתחברות, יש להתחבר מחדש"

// RequireLogin lets a request through only when the session carries an API
// token. Page requests are redirected to the login form; script requests get
// 401.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.SessionFromContext(r.Context()).APIToken() != "" {
			next.ServeHTTP(w, r)
			return
		}
		denyOrRedirect(w, r)
	})
}

// Reauthenticate drops the stored identity after the API rejected its token
// and sends the operator back to the login form.
func Reauthenticate(w http.ResponseWriter, r *http.Request) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetIdentity("", "", "")
		sess.AddFlash(shared.FlashMessage{Kind: "info", Message: msgSessionExpired})
	}
	denyOrRedirect(w, r)
}

func denyOrRedirect(w http.ResponseWriter, r *http.Request) {
	if wantsFragment(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	target := "/auth/login"
	if r.Method == http.MethodGet && r.URL.Path != "/" {
		target += "?next=" + url.QueryEscape(r.URL.RequestURI())
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// wantsFragment reports whether r came from the page script rather than a
// navigation.
func wantsFragment(r *http.Request) bool {
	if r.Header.Get("Sec-Fetch-Mode") == "cors" || r.Header.Get("Sec-Fetch-Dest") == "empty" {
		return true
	}
	return strings.HasSuffix(r.URL.Path, "/rows") || strings.HasSuffix(r.URL.Path, "/lookup")
}
