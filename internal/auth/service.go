package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/sheetdesk/sheetdesk/internal/apiclient"
)

// Service authenticates operators against the sheets API.
type Service struct {
	api *apiclient.Client
}

// NewService constructs a new Service.
func NewService(api *apiclient.Client) *Service {
	return &Service{api: api}
}

// Authenticate exchanges username/password for an API token.
func (s *Service) Authenticate(ctx context.Context, username, password string) (Identity, error) {
	res, err := s.api.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, apiclient.ErrUnauthorized) {
			return Identity{}, ErrInvalidCredentials
		}
		return Identity{}, fmt.Errorf("authenticate: %w", err)
	}
	name := res.User.Name
	if name == "" {
		name = res.User.Username
	}
	return Identity{Username: res.User.Username, DisplayName: name, Token: res.Token}, nil
}

// Revoke invalidates token on the API.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.api.WithToken(token).Logout(ctx)
}
