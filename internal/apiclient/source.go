package apiclient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/sheetdesk/sheetdesk/internal/domain"
	"github.com/sheetdesk/sheetdesk/internal/listing"
)

// SubscriberSource adapts the client to listing.DataSource. The owner ID is
// the decimal sheet ID.
type SubscriberSource struct {
	client *Client
}

var _ listing.DataSource[domain.Subscriber, int64] = (*SubscriberSource)(nil)

// Subscribers returns a data source bound to c's token.
func (c *Client) Subscribers() *SubscriberSource {
	return &SubscriberSource{client: c}
}

// FetchPage implements listing.DataSource.
func (s *SubscriberSource) FetchPage(ctx context.Context, q listing.Query) (listing.Page[domain.Subscriber], error) {
	sheetID, err := parseOwner(q.OwnerID)
	if err != nil {
		return listing.Page[domain.Subscriber]{}, err
	}
	return s.client.ListSubscribers(ctx, sheetID, q.Page, q.PageSize, q.Filters)
}

// UpdateItem implements listing.DataSource.
func (s *SubscriberSource) UpdateItem(ctx context.Context, ownerID string, key int64, patch domain.Subscriber) error {
	sheetID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}
	patch.FilingNumber = key
	return s.client.UpdateSubscriber(ctx, sheetID, patch)
}

// DeleteItem implements listing.DataSource.
func (s *SubscriberSource) DeleteItem(ctx context.Context, ownerID string, key int64) error {
	sheetID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}
	return s.client.DeleteSubscriber(ctx, sheetID, key)
}

// CreateItem implements listing.DataSource.
func (s *SubscriberSource) CreateItem(ctx context.Context, ownerID string, payload domain.Subscriber) error {
	sheetID, err := parseOwner(ownerID)
	if err != nil {
		return err
	}
	_, err = s.client.AddSubscriber(ctx, sheetID, payload)
	return err
}

func parseOwner(ownerID string) (int64, error) {
	id, err := strconv.ParseInt(ownerID, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("apiclient: invalid sheet id %q", ownerID)
	}
	return id, nil
}
