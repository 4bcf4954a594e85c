package apiclient_test

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

	"github.com/sheetdesk/sheetdesk/internal/api"
	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
)

// newLiveAPI serves the real API router over the seeded memory store.
func newLiveAPI(t *testing.T) *apiclient.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	service := api.NewService(api.ServiceParams{
		Store:  api.NewMemoryStore(),
		Tokens: api.NewTokenStore(rdb, time.Hour),
	})
	require.NoError(t, service.EnsureUser(context.Background(), "admin", "מנהל המערכת", "password"))
	srv := httptest.NewServer(api.NewRouter(api.RouterParams{Handler: api.NewHandler(nil, service)}))
	t.Cleanup(srv.Close)
	return apiclient.New(srv.URL)
}

func TestClientAgainstLiveAPI(t *testing.T) {
	ctx := context.Background()
	anon := newLiveAPI(t)

	_, err := anon.Login(ctx, "admin", "wrong")
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)

	login, err := anon.Login(ctx, "admin", "password")
	require.NoError(t, err)
	assert.Equal(t, "מנהל המערכת", login.User.Name)
	c := anon.WithToken(login.Token)

	page, err := c.ListSubscribers(ctx, 1, 1, 50, listing.Filters{listing.FieldName: "מנוי 12"})
	require.NoError(t, err)
	assert.Equal(t, 111, page.TotalCount)
	assert.True(t, page.HasMore)
	assert.Len(t, page.Items, 50)

	added, err := c.AddSubscriber(ctx, 1, domain.Subscriber{SubscriberCode: "DIR0002", Name: "משה לוי", YiunHalacha: true})
	require.NoError(t, err)
	assert.Equal(t, int64(6250), added.FilingNumber)

	_, err = c.AddSubscriber(ctx, 1, domain.Subscriber{SubscriberCode: "DIR0002", NumberOfWins: 1})
	var remote *apiclient.Error
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusConflict, remote.Status)
	_, err = c.AddSubscriber(ctx, 1, domain.Subscriber{SubscriberCode: "SUB0001", NumberOfWins: 1})
	assert.ErrorIs(t, err, apiclient.ErrRemote)

	added.NumberOfWins = 4
	require.NoError(t, c.UpdateSubscriber(ctx, 1, added))
	require.NoError(t, c.DeleteSubscriber(ctx, 1, added.FilingNumber))
	assert.ErrorIs(t, c.DeleteSubscriber(ctx, 1, added.FilingNumber), apiclient.ErrNotFound)

	_, err = c.GetSheet(ctx, 77)
	assert.ErrorIs(t, err, apiclient.ErrNotFound)

	entries, err := c.SearchDirectory(ctx, "DIR0003")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "אברהם ברק", entries[0].Name)

	require.NoError(t, c.Logout(ctx))
	_, err = c.DashboardStats(ctx)
	assert.ErrorIs(t, err, apiclient.ErrUnauthorized)
}
