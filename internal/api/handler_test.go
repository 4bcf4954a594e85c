package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

type fakeQueue struct {
	mu     sync.Mutex
	sheets []int64
}

func (q *fakeQueue) EnqueueSheetRecount(_ context.Context, sheetID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sheets = append(q.sheets, sheetID)
	return nil
}

type apiFixture struct {
	t      *testing.T
	router http.Handler
	store  *MemoryStore
	queue  *fakeQueue
	redis  *miniredis.Miniredis
	token  string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewMemoryStore()
	queue := &fakeQueue{}
	service := NewService(ServiceParams{
		Store:       store,
		Tokens:      NewTokenStore(client, time.Hour),
		Jobs:        queue,
		MaxPageSize: 500,
	})
	require.NoError(t, service.EnsureUser(context.Background(), "admin", "מנהל המערכת", "password"))

	f := &apiFixture{
		t:      t,
		router: NewRouter(RouterParams{Handler: NewHandler(nil, service), Config: &Config{RateLimit: 1000}}),
		store:  store,
		queue:  queue,
		redis:  mr,
	}
	return f
}

func (f *apiFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) signIn() {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "password"})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	var result LoginResult
	require.NoError(f.t, json.Unmarshal(rec.Body.Bytes(), &result))
	f.token = result.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestLoginIssuesToken(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "password"})

	require.Equal(t, http.StatusOK, rec.Code)
	result := decode[LoginResult](t, rec)
	assert.Equal(t, "מנהל המערכת", result.User.Name)
	assert.Equal(t, "admin", result.User.Username)
	_, err := uuid.Parse(result.Token)
	assert.NoError(t, err)
	assert.True(t, f.redis.Exists(tokenPrefix+result.Token))
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "admin", "password": "nope"})

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, "שם משתמש או סיסמה שגויים", problem.Detail)

	rec = f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": "ghost", "password": "password"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginValidatesPayload(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodPost, "/api/auth/login", map[string]string{"username": " "})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, "required", problem.Errors["username"])
	assert.Equal(t, "required", problem.Errors["password"])
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	f := newAPIFixture(t)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/sheets", nil).Code)

	f.token = uuid.NewString()
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/sheets", nil).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodPost, "/api/auth/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/sheets", nil).Code)
}

func TestSheetsCarryLiveCounts(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	sheets := decode[[]domain.Sheet](t, f.do(http.MethodGet, "/api/sheets", nil))
	require.Len(t, sheets, 4)
	assert.Equal(t, 5250, sheets[0].SubscriberCount)
	assert.Equal(t, "וירא", sheets[3].Parasha)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/sheets/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/sheets/abc", nil).Code)
}

func TestDashboardEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	stats := decode[domain.Stats](t, f.do(http.MethodGet, "/api/dashboard/stats", nil))
	assert.Equal(t, 4, stats.TotalSheets)
	assert.Equal(t, 5250+4180+6320+7420, stats.TotalSubscribers)
	assert.Equal(t, 4, stats.ActiveSheets)

	activity := decode[[]domain.Activity](t, f.do(http.MethodGet, "/api/dashboard/activity?limit=2", nil))
	require.Len(t, activity, 2)
	assert.Equal(t, domain.ActivitySheetCreated, activity[0].Type)
	assert.True(t, activity[0].Timestamp.After(activity[1].Timestamp))
}

func TestSubscriberPaging(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	page := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?page=1&pageSize=50", nil))
	assert.Len(t, page.Data, 50)
	assert.Equal(t, 5250, page.TotalCount)
	assert.True(t, page.HasMore)
	assert.Equal(t, int64(1000), page.Data[0].FilingNumber)

	last := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?page=105&pageSize=50", nil))
	assert.Len(t, last.Data, 50)
	assert.False(t, last.HasMore)
	assert.Equal(t, int64(6249), last.Data[49].FilingNumber)

	beyond := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?page=200&pageSize=50", nil))
	assert.Empty(t, beyond.Data)
	assert.NotNil(t, beyond.Data)
}

func TestSubscriberFilters(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	byFiling := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?filingNumber=100", nil))
	assert.Equal(t, 10, byFiling.TotalCount)

	byName := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?name=%D7%9E%D7%A0%D7%95%D7%99+12&pageSize=200", nil))
	assert.Equal(t, 111, byName.TotalCount)
	assert.False(t, byName.HasMore)

	byCode := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?subscriberCode=sub0007", nil))
	require.Equal(t, 1, byCode.TotalCount)
	assert.Equal(t, "SUB0007", byCode.Data[0].SubscriberCode)
}

func TestSubscriberPagingRejectsBadInput(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/sheets/1/subscribers?page=x", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodGet, "/api/sheets/1/subscribers?pageSize=1000", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/sheets/42/subscribers", nil).Code)
}

func TestCreateSubscriberAssignsFilingNumber(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	rec := f.do(http.MethodPost, "/api/sheets/1/subscribers", domain.Subscriber{
		SubscriberCode: "SUB9001",
		Name:           "יחיאל כהן",
		NumberOfWins:   2,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[domain.Subscriber](t, rec)
	assert.Equal(t, int64(6250), created.FilingNumber)
	assert.Equal(t, []int64{1}, f.queue.sheets)

	activity := decode[[]domain.Activity](t, f.do(http.MethodGet, "/api/dashboard/activity?limit=1", nil))
	require.Len(t, activity, 1)
	assert.Equal(t, domain.ActivitySubscriberAdded, activity[0].Type)
	assert.Equal(t, `גיליון תשפ"ד - בראשית`, activity[0].SheetName)

	dup := f.do(http.MethodPost, "/api/sheets/1/subscribers", domain.Subscriber{SubscriberCode: "SUB9001", NumberOfWins: 1})
	assert.Equal(t, http.StatusConflict, dup.Code)
}

func TestDirectoryEntriesCanJoinSeededSheets(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	entries := decode[[]domain.DirectoryEntry](t, f.do(http.MethodGet, "/api/subscribers/search?q=DIR", nil))
	require.Len(t, entries, 3)
	for _, sheetID := range []int64{1, 2, 3, 4} {
		for _, e := range entries {
			rec := f.do(http.MethodPost, fmt.Sprintf("/api/sheets/%d/subscribers", sheetID), domain.Subscriber{
				SubscriberCode: e.Code,
				Name:           e.Name,
				IDNumber:       e.IDNumber,
				YiunHalacha:    true,
			})
			assert.Equal(t, http.StatusCreated, rec.Code, "sheet %d code %s: %s", sheetID, e.Code, rec.Body.String())
		}
	}
}

func TestCreateSubscriberValidates(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	rec := f.do(http.MethodPost, "/api/sheets/1/subscribers", domain.Subscriber{Name: "ללא קוד"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decode[httpx.ProblemDetail](t, rec)
	assert.Equal(t, domain.MsgSubscriberRequired, problem.Errors["SubscriberCode"])
	assert.Equal(t, domain.MsgNothingToRecord, problem.Errors["Values"])
	assert.Empty(t, f.queue.sheets)
}

func TestUpdateSubscriberMergesEditableFields(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	rec := f.do(http.MethodPut, "/api/sheets/1/subscribers/1000", domain.Subscriber{
		Name:               "ignored",
		NumberOfWins:       9,
		ParashaAnswersCode: "D",
		AnswersText:        "עודכן",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	page := decode[SubscriberPage](t, f.do(http.MethodGet, "/api/sheets/1/subscribers?filingNumber=1000&pageSize=1", nil))
	require.NotEmpty(t, page.Data)
	row := page.Data[0]
	assert.Equal(t, "מנוי 1", row.Name)
	assert.Equal(t, 9, row.NumberOfWins)
	assert.Equal(t, "D", row.ParashaAnswersCode)
	assert.Equal(t, "עודכן", row.AnswersText)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/api/sheets/1/subscribers/1000", domain.Subscriber{ParashaAnswersCode: "Z"}).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPut, "/api/sheets/1/subscribers/1", domain.Subscriber{}).Code)
}

func TestDeleteSubscriber(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/sheets/2/subscribers/1000", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/sheets/2/subscribers/1000", nil).Code)

	sheet := decode[domain.Sheet](t, f.do(http.MethodGet, "/api/sheets/2", nil))
	assert.Equal(t, 4179, sheet.SubscriberCount)
	assert.Equal(t, []int64{2}, f.queue.sheets)
}

func TestDirectorySearchAndOptions(t *testing.T) {
	f := newAPIFixture(t)
	f.signIn()

	found := decode[[]domain.DirectoryEntry](t, f.do(http.MethodGet, "/api/subscribers/search?q=%D7%9B%D7%94%D7%9F", nil))
	require.Len(t, found, 1)
	assert.Equal(t, "DIR0001", found[0].Code)

	byID := decode[[]domain.DirectoryEntry](t, f.do(http.MethodGet, "/api/subscribers/search?q=98765", nil))
	require.Len(t, byID, 1)
	assert.Equal(t, "משה לוי", byID[0].Name)

	blank := f.do(http.MethodGet, "/api/subscribers/search?q=", nil)
	assert.JSONEq(t, `[]`, blank.Body.String())

	parasha := decode[domain.Options](t, f.do(http.MethodGet, "/api/options/parasha", nil))
	assert.Len(t, parasha, 4)
	halacha := decode[domain.Options](t, f.do(http.MethodGet, "/api/options/halacha", nil))
	assert.Equal(t, "H1", halacha[0].Value)
}

func TestUnknownRouteIsProblem(t *testing.T) {
	f := newAPIFixture(t)
	rec := f.do(http.MethodGet, "/nowhere", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}
