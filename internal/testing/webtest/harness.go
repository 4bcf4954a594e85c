// Package webtest drives dashboard handlers through a Redis-backed session
// the way the production middleware does. It is imported by tests only.
package webtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/sheetdesk/sheetdesk/internal/shared"
)

// Harness carries the session cookie between requests.
type Harness struct {
	T        testing.TB
	Redis    *miniredis.Miniredis
	Client   *redis.Client
	Sessions *shared.SessionManager
	CSRF     *shared.CSRFManager
	Router   chi.Router

	mu        sync.Mutex
	sessionID string
}

// New starts miniredis and a router. Register routes on h.Router.
func New(t testing.TB) *Harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &Harness{
		T:        t,
		Redis:    mr,
		Client:   client,
		Sessions: shared.NewSessionManager(client, "test_session", "secret", time.Hour, false),
		CSRF:     shared.NewCSRFManager("csrfsecret"),
		Router:   chi.NewRouter(),
	}
}

// Do serves req with the harness session attached and persists the session
// afterwards. Requests may run concurrently.
func (h *Harness) Do(req *http.Request) *httptest.ResponseRecorder {
	h.T.Helper()
	if id := h.SessionID(); id != "" {
		req.AddCookie(&http.Cookie{Name: h.Sessions.CookieName(), Value: id})
	}
	sess, err := h.Sessions.Load(req.Context(), req)
	if err != nil {
		h.T.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	h.Router.ServeHTTP(rec, req)
	if err := h.Sessions.Commit(context.Background(), httptest.NewRecorder(), req, sess); err != nil {
		h.T.Fatalf("commit session: %v", err)
	}
	h.setSessionID(sess.ID)
	return rec
}

// Get issues a GET request.
func (h *Harness) Get(target string) *httptest.ResponseRecorder {
	h.T.Helper()
	return h.Do(httptest.NewRequest(http.MethodGet, target, nil))
}

// PostForm issues a form POST request.
func (h *Harness) PostForm(target string, form url.Values) *httptest.ResponseRecorder {
	h.T.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.Do(req)
}

// Session loads the current session without modifying it.
func (h *Harness) Session() *shared.Session {
	h.T.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if id := h.SessionID(); id != "" {
		req.AddCookie(&http.Cookie{Name: h.Sessions.CookieName(), Value: id})
	}
	sess, err := h.Sessions.Load(context.Background(), req)
	if err != nil {
		h.T.Fatalf("load session: %v", err)
	}
	return sess
}

// SessionID returns the ID of the session carried by the harness.
func (h *Harness) SessionID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID
}

func (h *Harness) setSessionID(id string) {
	h.mu.Lock()
	h.sessionID = id
	h.mu.Unlock()
}

// SignIn stores an identity in the harness session.
func (h *Harness) SignIn(username, displayName, token string) {
	h.T.Helper()
	sess := h.Session()
	sess.SetIdentity(username, displayName, token)
	if err := h.Sessions.Commit(context.Background(), httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), sess); err != nil {
		h.T.Fatalf("commit session: %v", err)
	}
	h.setSessionID(sess.ID)
}
