package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
)

type mockRoleRepo struct {
	roles   map[string]models.Role
	err     error
	delay   time.Duration
	lookups int
}

func (m *mockRoleRepo) FindRoleByEmail(ctx context.Context, email string) (models.Role, error) {
	m.lookups++
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if m.err != nil {
		return "", m.err
	}
	role, ok := m.roles[email]
	if !ok {
		return "", sql.ErrNoRows
	}
	return role, nil
}

type memRoleCache struct {
	entries map[string]models.Role
	setErr  error
}

func newMemRoleCache() *memRoleCache {
	return &memRoleCache{entries: make(map[string]models.Role)}
}

func (c *memRoleCache) Get(ctx context.Context, email string) (models.Role, bool) {
	role, ok := c.entries[email]
	return role, ok
}

func (c *memRoleCache) Set(ctx context.Context, email string, role models.Role) error {
	if c.setErr != nil {
		return c.setErr
	}
	c.entries[email] = role
	return nil
}

func (c *memRoleCache) Invalidate(ctx context.Context, email string) error {
	delete(c.entries, email)
	return nil
}

func TestRoleServiceResolveKnownRole(t *testing.T) {
	repo := &mockRoleRepo{roles: map[string]models.Role{"tutor@example.com": models.RoleTutor}}
	svc := NewRoleService(repo, newMemRoleCache(), zap.NewNop(), time.Second)

	role := svc.Resolve(context.Background(), "Tutor@Example.com")
	assert.Equal(t, models.RoleTutor, role)
}

func TestRoleServiceFailsOpenToStudent(t *testing.T) {
	repo := &mockRoleRepo{roles: map[string]models.Role{}}
	svc := NewRoleService(repo, newMemRoleCache(), zap.NewNop(), time.Second)

	assert.Equal(t, models.RoleStudent, svc.Resolve(context.Background(), "ghost@example.com"))

	repo = &mockRoleRepo{err: errors.New("db down")}
	svc = NewRoleService(repo, newMemRoleCache(), zap.NewNop(), time.Second)
	assert.Equal(t, models.RoleStudent, svc.Resolve(context.Background(), "anyone@example.com"))
}

func TestRoleServiceTimeoutFallsBack(t *testing.T) {
	repo := &mockRoleRepo{roles: map[string]models.Role{"admin@example.com": models.RoleAdmin}, delay: 200 * time.Millisecond}
	svc := NewRoleService(repo, newMemRoleCache(), zap.NewNop(), 10*time.Millisecond)

	assert.Equal(t, models.RoleStudent, svc.Resolve(context.Background(), "admin@example.com"))
}

func TestRoleServiceCachesSingleLookup(t *testing.T) {
	repo := &mockRoleRepo{roles: map[string]models.Role{"admin@example.com": models.RoleAdmin}}
	cache := newMemRoleCache()
	svc := NewRoleService(repo, cache, zap.NewNop(), time.Second)

	for i := 0; i < 5; i++ {
		assert.Equal(t, models.RoleAdmin, svc.Resolve(context.Background(), "admin@example.com"))
	}
	assert.Equal(t, 1, repo.lookups, "repeated resolutions for one identity hit the backend once")

	// The fallback outcome is cached too.
	for i := 0; i < 3; i++ {
		svc.Resolve(context.Background(), "ghost@example.com")
	}
	assert.Equal(t, 2, repo.lookups)
}

func TestRoleServiceInvalidate(t *testing.T) {
	repo := &mockRoleRepo{roles: map[string]models.Role{"admin@example.com": models.RoleAdmin}}
	cache := newMemRoleCache()
	svc := NewRoleService(repo, cache, zap.NewNop(), time.Second)

	svc.Resolve(context.Background(), "admin@example.com")
	svc.Invalidate(context.Background(), "admin@example.com")
	svc.Resolve(context.Background(), "admin@example.com")
	assert.Equal(t, 2, repo.lookups)
}

func TestRoleServiceEmptyEmail(t *testing.T) {
	repo := &mockRoleRepo{}
	svc := NewRoleService(repo, newMemRoleCache(), zap.NewNop(), time.Second)

	assert.Equal(t, models.RoleStudent, svc.Resolve(context.Background(), "  "))
	assert.Zero(t, repo.lookups)
}
