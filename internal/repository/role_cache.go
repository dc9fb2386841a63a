package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/etution/etution-api/internal/models"
)

// RoleCache stores resolved roles in Redis keyed by email. A nil client
// degrades to a cache miss on every lookup so the resolver still works
// without Redis.
type RoleCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRoleCache constructs a role cache.
func NewRoleCache(client *redis.Client, ttl time.Duration) *RoleCache {
	return &RoleCache{client: client, ttl: ttl}
}

func roleKey(email string) string {
	return "role:" + email
}

// Get returns the cached role for an email, reporting whether it was found.
func (c *RoleCache) Get(ctx context.Context, email string) (models.Role, bool) {
	if c.client == nil {
		return "", false
	}
	raw, err := c.client.Get(ctx, roleKey(email)).Result()
	if err != nil {
		return "", false
	}
	role := models.Role(raw)
	if !role.Valid() {
		return "", false
	}
	return role, true
}

// Set stores the resolved role for an email.
func (c *RoleCache) Set(ctx context.Context, email string, role models.Role) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Set(ctx, roleKey(email), string(role), c.ttl).Err(); err != nil {
		return fmt.Errorf("cache role for %s: %w", email, err)
	}
	return nil
}

// Invalidate drops the cached role for an email. Called when an admin
// changes a user's role or the account is deleted.
func (c *RoleCache) Invalidate(ctx context.Context, email string) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Del(ctx, roleKey(email)).Err(); err != nil {
		return fmt.Errorf("invalidate role for %s: %w", email, err)
	}
	return nil
}
