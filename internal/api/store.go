package api

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sheetdesk/sheetdesk/internal/domain"
)

// ActivityRetention is how long activity rows are kept by the prune job.
const ActivityRetention = 90 * 24 * time.Hour

// UserRecord is a stored operator account.
type UserRecord struct {
	ID           int64
	Username     string
	Name         string
	PasswordHash []byte
}

// SubscriberFilter narrows a subscriber listing. Empty fields match
// everything.
type SubscriberFilter struct {
	FilingNumber   string
	SubscriberCode string
	Name           string
	IDNumber       string
}

// Matches applies the filter to s the way the SQL store does: filing number
// is a prefix match, the rest are case-insensitive substring matches.
func (f SubscriberFilter) Matches(s domain.Subscriber) bool {
	if f.FilingNumber != "" && !strings.HasPrefix(strconv.FormatInt(s.FilingNumber, 10), f.FilingNumber) {
		return false
	}
	return containsFold(s.SubscriberCode, f.SubscriberCode) &&
		containsFold(s.Name, f.Name) &&
		containsFold(s.IDNumber, f.IDNumber)
}

func containsFold(value, part string) bool {
	if part == "" {
		return true
	}
	return strings.Contains(strings.ToLower(value), strings.ToLower(part))
}

// SubscriberPage is one page of a sheet's subscribers ordered by filing
// number.
type SubscriberPage struct {
	Data       []domain.Subscriber `json:"data"`
	TotalCount int                 `json:"totalCount"`
	HasMore    bool                `json:"hasMore"`
	Page       int                 `json:"page"`
}

func newSubscriberPage(items []domain.Subscriber, total, page, pageSize int) SubscriberPage {
	if items == nil {
		items = []domain.Subscriber{}
	}
	return SubscriberPage{Data: items, TotalCount: total, HasMore: page*pageSize < total, Page: page}
}

// Store persists sheets, subscribers, the directory, users and activity.
// Mutations record act in the same unit of work; act.ID and act.Timestamp
// are assigned by the store when zero.
type Store interface {
	UserByUsername(ctx context.Context, username string) (UserRecord, error)
	UpsertUser(ctx context.Context, username, name string, passwordHash []byte) error

	Stats(ctx context.Context, now time.Time) (domain.Stats, error)
	RecentActivity(ctx context.Context, limit int) ([]domain.Activity, error)

	Sheets(ctx context.Context) ([]domain.Sheet, error)
	Sheet(ctx context.Context, id int64) (domain.Sheet, error)

	Subscribers(ctx context.Context, sheetID int64, filter SubscriberFilter, page, pageSize int) (SubscriberPage, error)
	CreateSubscriber(ctx context.Context, sheetID int64, s domain.Subscriber, act domain.Activity) (domain.Subscriber, error)
	UpdateSubscriber(ctx context.Context, sheetID int64, s domain.Subscriber, act domain.Activity) error
	DeleteSubscriber(ctx context.Context, sheetID, filingNumber int64, act domain.Activity) error

	SearchDirectory(ctx context.Context, query string, limit int) ([]domain.DirectoryEntry, error)

	RecountSheet(ctx context.Context, sheetID int64) (int, error)
	PruneActivity(ctx context.Context, before time.Time) (int64, error)
}

// growth returns the percentage by which total grew over the last month,
// given the net number of rows added during it.
func growth(total, netAdded int) float64 {
	base := total - netAdded
	if base <= 0 {
		return 0
	}
	return math.Round(float64(netAdded)*1000/float64(base)) / 10
}
