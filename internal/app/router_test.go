package app_test

import (
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/app"
	"github.com/sheetdesk/sheetdesk/internal/auth"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
	"github.com/sheetdesk/sheetdesk/internal/observability"
	"github.com/sheetdesk/sheetdesk/internal/platform/cache"
	"github.com/sheetdesk/sheetdesk/internal/shared"
	"github.com/sheetdesk/sheetdesk/internal/sheets"
	"github.com/sheetdesk/sheetdesk/internal/subscribers"
	"github.com/sheetdesk/sheetdesk/internal/view"
)

var csrfPattern = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func stubSheetsAPI() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"user":{"id":1,"username":"admin","name":"מנהל המערכת"},"token":"tok"}`))
	})
	mux.HandleFunc("/api/dashboard/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"totalSheets":4,"totalSubscribers":5250,"activeSheets":3,"monthlyGrowth":12.5}`))
	})
	mux.HandleFunc("/api/dashboard/activity", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	return mux
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	api := httptest.NewServer(stubSheetsAPI())
	t.Cleanup(api.Close)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second, RateLimit: 1000, ListPageSize: 50}
	sessions := shared.NewSessionManager(rdb, "sheetdesk_session", "secret", time.Hour, false)
	csrf := shared.NewCSRFManager("csrf")
	templates, err := view.NewEngine()
	require.NoError(t, err)

	client := apiclient.New(api.URL)
	metrics := observability.NewMetrics("sheetdesk")
	sheetsService := sheets.NewService(cache.NewJSON(rdb, "test:dashboard", time.Minute))
	subs := subscribers.NewHandler(subscribers.HandlerParams{
		API:       client,
		Templates: templates,
		CSRF:      csrf,
		Lists:     listing.NewRegistry[domain.Subscriber, int64](time.Minute),
		Options:   subscribers.NewOptionsService(nil, cache.NewJSON(rdb, "test:options", time.Minute)),
		Reporter:  observability.NewListReporter(nil, metrics),
		Dashboard: sheetsService,
		PageSize:  cfg.ListPageSize,
	})

	router := app.NewRouter(app.RouterParams{
		Config:             cfg,
		Templates:          templates,
		SessionManager:     sessions,
		CSRFManager:        csrf,
		AuthHandler:        auth.NewHandler(nil, auth.NewService(client), templates, sessions, csrf),
		SheetsHandler:      sheets.NewHandler(nil, sheetsService, client, templates, csrf),
		SubscribersHandler: subs,
		Metrics:            metrics,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newBrowser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestAnonymousVisitorIsSentToLogin(t *testing.T) {
	srv := newServer(t)
	browser := newBrowser(t)

	resp, err := browser.Get(srv.URL + "/sheets")
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/auth/login", resp.Request.URL.Path)
	assert.Equal(t, "/sheets", resp.Request.URL.Query().Get("next"))
	assert.Regexp(t, csrfPattern, body)
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}

func TestLoginRequiresCSRFToken(t *testing.T) {
	srv := newServer(t)
	browser := newBrowser(t)

	resp, err := browser.PostForm(srv.URL+"/auth/login", url.Values{"username": {"admin"}, "password": {"password"}})
	require.NoError(t, err)
	readBody(t, resp)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLoginLandsOnDashboard(t *testing.T) {
	srv := newServer(t)
	browser := newBrowser(t)

	resp, err := browser.Get(srv.URL + "/auth/login")
	require.NoError(t, err)
	match := csrfPattern.FindStringSubmatch(readBody(t, resp))
	require.Len(t, match, 2)

	resp, err = browser.PostForm(srv.URL+"/auth/login", url.Values{
		"csrf_token": {match[1]},
		"username":   {"admin"},
		"password":   {"password"},
	})
	require.NoError(t, err)
	body := readBody(t, resp)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/", resp.Request.URL.Path)
	assert.Contains(t, body, "ברוך הבא, מנהל המערכת")
	assert.Contains(t, body, "5,250")
}

func TestOperationalEndpoints(t *testing.T) {
	srv := newServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))

	resp, err = http.Get(srv.URL + "/static/js/scroll.js")
	require.NoError(t, err)
	readBody(t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	assert.Contains(t, readBody(t, resp), "sheetdesk_http_requests_total")
}
