package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
)

// LoginResult is returned by a successful login.
type LoginResult struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var out LoginResult
	body := map[string]string{"username": username, "password": password}
	err := c.do(ctx, "login", http.MethodPost, "/api/auth/login", nil, body, &out)
	return out, err
}

// Logout revokes the bound token.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/api/auth/logout", nil, nil, nil)
}

// DashboardStats returns the dashboard counters.
func (c *Client) DashboardStats(ctx context.Context) (domain.Stats, error) {
	var out domain.Stats
	err := c.do(ctx, "dashboard stats", http.MethodGet, "/api/dashboard/stats", nil, nil, &out)
	return out, err
}

// RecentActivity returns the newest activity entries, at most limit when
// limit is positive.
func (c *Client) RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error) {
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	var out []domain.Activity
	err := c.do(ctx, "recent activity", http.MethodGet, "/api/dashboard/activity", query, nil, &out)
	return out, err
}

// ListSheets returns every sheet.
func (c *Client) ListSheets(ctx context.Context) ([]domain.Sheet, error) {
	var out []domain.Sheet
	err := c.do(ctx, "list sheets", http.MethodGet, "/api/sheets", nil, nil, &out)
	return out, err
}

// GetSheet returns one sheet.
func (c *Client) GetSheet(ctx context.Context, id int64) (domain.Sheet, error) {
	var out domain.Sheet
	err := c.do(ctx, "get sheet", http.MethodGet, sheetPath(id), nil, nil, &out)
	return out, err
}

// ListSubscribers fetches one page of a sheet's subscribers.
func (c *Client) ListSubscribers(ctx context.Context, sheetID int64, page, pageSize int, filters listing.Filters) (listing.Page[domain.Subscriber], error) {
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"pageSize": {strconv.Itoa(pageSize)},
	}
	for field, value := range filters.Normalize() {
		query.Set(string(field), value)
	}
	var raw json.RawMessage
	if err := c.do(ctx, "list subscribers", http.MethodGet, sheetPath(sheetID)+"/subscribers", query, nil, &raw); err != nil {
		return listing.Page[domain.Subscriber]{}, err
	}
	out, err := decodePage[domain.Subscriber](raw, page)
	if err != nil {
		return out, &Error{Op: "list subscribers", Status: http.StatusOK, Err: err}
	}
	return out, nil
}

// UpdateSubscriber saves the editable fields of s.
func (c *Client) UpdateSubscriber(ctx context.Context, sheetID int64, s domain.Subscriber) error {
	path := fmt.Sprintf("%s/subscribers/%d", sheetPath(sheetID), s.FilingNumber)
	return c.do(ctx, "update subscriber", http.MethodPut, path, nil, s, nil)
}

// DeleteSubscriber removes a subscriber row.
func (c *Client) DeleteSubscriber(ctx context.Context, sheetID, filingNumber int64) error {
	path := fmt.Sprintf("%s/subscribers/%d", sheetPath(sheetID), filingNumber)
	return c.do(ctx, "delete subscriber", http.MethodDelete, path, nil, nil, nil)
}

// AddSubscriber creates a row and returns it with its assigned filing number.
func (c *Client) AddSubscriber(ctx context.Context, sheetID int64, s domain.Subscriber) (domain.Subscriber, error) {
	var out domain.Subscriber
	err := c.do(ctx, "add subscriber", http.MethodPost, sheetPath(sheetID)+"/subscribers", nil, s, &out)
	return out, err
}

// SearchDirectory looks up people by code, name or id number.
func (c *Client) SearchDirectory(ctx context.Context, q string) ([]domain.DirectoryEntry, error) {
	var out []domain.DirectoryEntry
	err := c.do(ctx, "search directory", http.MethodGet, "/api/subscribers/search", url.Values{"q": {q}}, nil, &out)
	return out, err
}

// ParashaAnswers returns the parasha answer codes.
func (c *Client) ParashaAnswers(ctx context.Context) (domain.Options, error) {
	var out domain.Options
	err := c.do(ctx, "parasha answers", http.MethodGet, "/api/options/parasha", nil, nil, &out)
	return out, err
}

// HalachaAnswers returns the halacha study answer codes.
func (c *Client) HalachaAnswers(ctx context.Context) (domain.Options, error) {
	var out domain.Options
	err := c.do(ctx, "halacha answers", http.MethodGet, "/api/options/halacha", nil, nil, &out)
	return out, err
}

func sheetPath(id int64) string {
	return "/api/sheets/" + strconv.FormatInt(id, 10)
}

type pageEnvelope[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"totalCount"`
	HasMore    bool `json:"hasMore"`
	Page       int  `json:"page"`
}

// decodePage accepts the paginated envelope or a bare array. A bare array is
// a complete result, so it never reports more pages.
func decodePage[T any](raw json.RawMessage, requested int) (listing.Page[T], error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return listing.Page[T]{}, err
		}
		return listing.Page[T]{Items: items, TotalCount: len(items), Page: requested}, nil
	}
	var env pageEnvelope[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return listing.Page[T]{}, err
	}
	if env.Page == 0 {
		env.Page = requested
	}
	return listing.Page[T]{Items: env.Data, TotalCount: env.TotalCount, HasMore: env.HasMore, Page: env.Page}, nil
}
