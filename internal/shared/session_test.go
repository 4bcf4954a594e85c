package shared

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) (*SessionManager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSessionManager(client, "sheetdesk_session", "secret", time.Hour, false), mr
}

// roundTrip commits sess and loads it back through the cookie it set.
func roundTrip(t *testing.T, sm *SessionManager, sess *Session) *Session {
	t.Helper()
	ctx := context.Background()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sm.Commit(ctx, rec, req, sess))

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded, err := sm.Load(ctx, next)
	require.NoError(t, err)
	return loaded
}

func TestSessionPersistsIdentity(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, err := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	sess.SetIdentity("admin", "מנהל המערכת", "tok-1")
	loaded := roundTrip(t, sm, sess)

	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "admin", loaded.User())
	assert.Equal(t, "מנהל המערכת", loaded.DisplayName())
	assert.Equal(t, "tok-1", loaded.APIToken())
}

func TestFlashSurvivesRedirect(t *testing.T) {
	sm, _ := newTestManager(t)
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))

	sess.AddFlash(FlashMessage{Kind: "success", Message: "המנוי נמחק"})
	loaded := roundTrip(t, sm, sess)

	flash := loaded.PopFlash()
	require.NotNil(t, flash)
	assert.Equal(t, "המנוי נמחק", flash.Message)

	again := roundTrip(t, sm, loaded)
	assert.Nil(t, again.PopFlash())
}

func TestRenewDropsPreviousRecord(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	loaded := roundTrip(t, sm, sess)
	oldID := loaded.ID

	sm.Renew(loaded)
	renewed := roundTrip(t, sm, loaded)

	assert.NotEqual(t, oldID, renewed.ID)
	assert.False(t, mr.Exists("sheetdesk:session:"+oldID))
	assert.True(t, mr.Exists("sheetdesk:session:"+renewed.ID))
}

func TestUnknownCookieGetsFreshSession(t *testing.T) {
	sm, _ := newTestManager(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.CookieName(), Value: "attacker-chosen"})

	sess, err := sm.Load(context.Background(), req)
	require.NoError(t, err)

	assert.NotEqual(t, "attacker-chosen", sess.ID)
}

func TestDestroyExpiresCookie(t *testing.T) {
	sm, mr := newTestManager(t)
	sess, _ := sm.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	loaded := roundTrip(t, sm, sess)

	sm.Destroy(loaded)
	rec := httptest.NewRecorder()
	require.NoError(t, sm.Commit(context.Background(), rec, httptest.NewRequest(http.MethodPost, "/", nil), loaded))

	assert.False(t, mr.Exists("sheetdesk:session:"+loaded.ID))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	sm, _ := newTestManager(t)
	csrf := NewCSRFManager("csrf-secret")
	ctx := context.Background()
	sess, _ := sm.Load(ctx, httptest.NewRequest(http.MethodGet, "/", nil))

	token, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	again, _ := csrf.EnsureToken(ctx, sess)
	assert.Equal(t, token, again)

	assert.NoError(t, csrf.VerifyToken(ctx, sess, token))
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, ""), ErrCSRFTokenMissing)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token+"x"), ErrCSRFTokenMismatch)

	sm.Renew(sess)
	assert.ErrorIs(t, csrf.VerifyToken(ctx, sess, token), ErrCSRFTokenMismatch)
	rotated, err := csrf.EnsureToken(ctx, sess)
	require.NoError(t, err)
	assert.NotEqual(t, token, rotated)
}
