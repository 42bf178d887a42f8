package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/evikzub/CVTransformer/internal/domain"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

const keyPrefix = "identity:"

// DefaultIdentityTTL bounds how long a login to remote id mapping is trusted.
const DefaultIdentityTTL = time.Hour

// IdentityCache implements repository.IdentityCache using Redis. Only the
// public identity of a remote account is stored, never a credential.
type IdentityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdentityCache creates a new Redis-backed identity cache.
func NewIdentityCache(client *redis.Client, ttl time.Duration) *IdentityCache {
	if ttl <= 0 {
		ttl = DefaultIdentityTTL
	}
	return &IdentityCache{
		client: client,
		ttl:    ttl,
	}
}

// Get retrieves the identity cached for login.
func (c *IdentityCache) Get(ctx context.Context, login string) (*domain.RemoteIdentity, error) {
	data, err := c.client.Get(ctx, keyPrefix+login).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("identity", login)
		}
		return nil, fmt.Errorf("redis get identity: %w", err)
	}

	var identity domain.RemoteIdentity
	if err := json.Unmarshal(data, &identity); err != nil {
		return nil, fmt.Errorf("unmarshal identity: %w", err)
	}

	return &identity, nil
}

// Set caches identity under its login with the configured TTL.
func (c *IdentityCache) Set(ctx context.Context, identity *domain.RemoteIdentity) error {
	if identity == nil || identity.Login == "" {
		return apperrors.InvalidInput("identity login is required")
	}

	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+identity.Login, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set identity: %w", err)
	}

	return nil
}
