// Package sheets serves the dashboard overview and the sheets grid.
package sheets

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/platform/cache"
)

// RecentActivityLimit is the number of feed entries shown on the dashboard.
const RecentActivityLimit = 10

// Dashboard is the overview shown after login.
type Dashboard struct {
	Stats    domain.Stats      `json:"stats"`
	Activity []domain.Activity `json:"activity"`
}

// Service loads dashboard data through the API client of the caller.
type Service struct {
	cache *cache.JSON
}

// NewService constructs a Service. A nil cache disables caching.
func NewService(c *cache.JSON) *Service {
	return &Service{cache: c}
}

// Dashboard fetches stats and recent activity concurrently. The combined
// result is cached; it is the same for every operator.
func (s *Service) Dashboard(ctx context.Context, api *apiclient.Client) (Dashboard, error) {
	var out Dashboard
	err := s.cache.Fetch(ctx, &out, func(ctx context.Context) (any, error) {
		return loadDashboard(ctx, api)
	}, "dashboard")
	return out, err
}

// Invalidate drops the cached dashboard so the next view reloads it.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// Sheets lists every sheet.
func (s *Service) Sheets(ctx context.Context, api *apiclient.Client) ([]domain.Sheet, error) {
	sheets, err := api.ListSheets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	return sheets, nil
}

func loadDashboard(ctx context.Context, api *apiclient.Client) (Dashboard, error) {
	var out Dashboard
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, err := api.DashboardStats(gctx)
		if err != nil {
			return fmt.Errorf("dashboard stats: %w", err)
		}
		out.Stats = stats
		return nil
	})
	g.Go(func() error {
		activity, err := api.RecentActivity(gctx, RecentActivityLimit)
		if err != nil {
			return fmt.Errorf("recent activity: %w", err)
		}
		out.Activity = activity
		return nil
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}
	return out, nil
}
