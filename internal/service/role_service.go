package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
)

type roleLookupRepository interface {
	FindRoleByEmail(ctx context.Context, email string) (models.Role, error)
}

type roleCache interface {
	Get(ctx context.Context, email string) (models.Role, bool)
	Set(ctx context.Context, email string, role models.Role) error
	Invalidate(ctx context.Context, email string) error
}

// RoleService resolves the marketplace role for an authenticated identity.
// The role is never embedded in the access token; it is looked up by email,
// cached per identity, and defaults to student on any failure. An unknown
// role must never be treated as elevated, so the fail-safe direction is
// always towards the least-privileged role.
type RoleService struct {
	repo          roleLookupRepository
	cache         roleCache
	logger        *zap.Logger
	lookupTimeout time.Duration
	metrics       *MetricsService
}

// NewRoleService constructs a RoleService.
func NewRoleService(repo roleLookupRepository, cache roleCache, logger *zap.Logger, lookupTimeout time.Duration) *RoleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if lookupTimeout <= 0 {
		lookupTimeout = 3 * time.Second
	}
	return &RoleService{repo: repo, cache: cache, logger: logger, lookupTimeout: lookupTimeout}
}

// SetMetrics attaches an optional metrics sink.
func (s *RoleService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Resolve returns the role for an email. Exactly one backend lookup happens
// per uncached identity; the outcome, including the student fallback for a
// missing record, error, or timeout, is cached until invalidated. Resolve
// never returns an error: lookup failure is non-fatal and resolves to
// student.
func (s *RoleService) Resolve(ctx context.Context, email string) models.Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.RoleStudent
	}

	if cached, ok := s.cache.Get(ctx, email); ok {
		s.metrics.RecordRoleLookup("cache_hit")
		return cached
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	role, err := s.repo.FindRoleByEmail(lookupCtx, email)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("role lookup failed, defaulting to student",
				zap.String("email", email), zap.Error(err))
		}
		role = models.RoleStudent
		s.metrics.RecordRoleLookup("fallback")
	} else {
		s.metrics.RecordRoleLookup("db_hit")
	}
	if !role.Valid() {
		role = models.RoleStudent
	}

	if err := s.cache.Set(ctx, email, role); err != nil {
		s.logger.Warn("failed to cache resolved role", zap.String("email", email), zap.Error(err))
	}

	return role
}

// Invalidate drops the cached role for an email so the next resolution hits
// the backend again. Called when an admin changes or removes an account.
func (s *RoleService) Invalidate(ctx context.Context, email string) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, email); err != nil {
		s.logger.Warn("failed to invalidate cached role", zap.String("email", email), zap.Error(err))
	}
}
