package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sheetdesk/sheetdesk/internal/platform/httpx"
)

const tokenPrefix = "sheetsapi:token:"

// Principal is the operator a bearer token belongs to.
type Principal struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// TokenStore issues opaque bearer tokens kept in Redis with a TTL.
type TokenStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTokenStore constructs a TokenStore. A non-positive ttl defaults to 12
// hours.
func NewTokenStore(client *redis.Client, ttl time.Duration) *TokenStore {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenStore{client: client, ttl: ttl}
}

// Issue creates a token for p.
func (s *TokenStore) Issue(ctx context.Context, p Principal) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, tokenPrefix+token, payload, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Resolve returns the principal of token. Unknown and expired tokens wrap
// httpx.ErrUnauthorized.
func (s *TokenStore) Resolve(ctx context.Context, token string) (Principal, error) {
	if _, err := uuid.Parse(token); err != nil {
		return Principal{}, fmt.Errorf("malformed token: %w", httpx.ErrUnauthorized)
	}
	payload, err := s.client.Get(ctx, tokenPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return Principal{}, fmt.Errorf("unknown token: %w", httpx.ErrUnauthorized)
	}
	if err != nil {
		return Principal{}, fmt.Errorf("resolve token: %w", err)
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, fmt.Errorf("decode token: %w", err)
	}
	return p, nil
}

// Revoke deletes token. Revoking an unknown token is not an error.
func (s *TokenStore) Revoke(ctx context.Context, token string) error {
	return s.client.Del(ctx, tokenPrefix+token).Err()
}
