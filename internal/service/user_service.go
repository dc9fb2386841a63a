package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
	appErrors "github.com/etution/etution-api/pkg/errors"
)

type userAccountRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListTutors(ctx context.Context, limit int) ([]models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) error
	UpdateProfile(ctx context.Context, id, displayName, photoURL string, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type roleInvalidator interface {
	Invalidate(ctx context.Context, email string)
}

// UserService covers account operations: the public tutor directory,
// self-service profile edits, and the admin management surface. Role
// changes and deactivations invalidate the cached role so the next
// authorization check observes the new state.
type UserService struct {
	repo      userAccountRepository
	roles     roleInvalidator
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
}

// NewUserService constructs a UserService.
func NewUserService(repo userAccountRepository, roles roleInvalidator, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, roles: roles, validator: validate, logger: logger, audit: audit}
}

// LatestTutors returns the newest active tutor accounts. The listing is
// public, so it never errors on role.
func (s *UserService) LatestTutors(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 50 {
		limit = 12
	}
	tutors, err := s.repo.ListTutors(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tutors")
	}
	return tutors, nil
}

// UpdateProfile edits the actor's own display name and photo.
func (s *UserService) UpdateProfile(ctx context.Context, actor *models.JWTClaims, req models.UpdateProfileRequest) (*models.User, error) {
	if actor == nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "authentication required")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.findUser(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}
	if user.DisplayName == req.DisplayName && user.PhotoURL == req.PhotoURL {
		return user, nil
	}

	if err := s.repo.UpdateProfile(ctx, user.ID, req.DisplayName, req.PhotoURL, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	oldValues, _ := json.Marshal(map[string]string{"display_name": user.DisplayName, "photo_url": user.PhotoURL})
	newValues, _ := json.Marshal(map[string]string{"display_name": req.DisplayName, "photo_url": req.PhotoURL})
	s.audit.Record(&models.AuditLog{
		UserID:     &user.ID,
		Action:     models.AuditActionProfileUpdate,
		Resource:   "user",
		ResourceID: &user.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})

	user.DisplayName = req.DisplayName
	user.PhotoURL = req.PhotoURL
	return user, nil
}

// List returns accounts matching the filter. Admin only.
func (s *UserService) List(ctx context.Context, filter models.UserFilter, role models.Role) ([]models.User, *models.Pagination, error) {
	if role != models.RoleAdmin {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can list users")
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// ChangeRole assigns a new role to an account. Admin only.
func (s *UserService) ChangeRole(ctx context.Context, userID string, newRole models.Role, actor *models.JWTClaims, role models.Role) (*models.User, error) {
	if role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can change roles")
	}
	if !newRole.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Role == newRole {
		return user, nil
	}

	if err := s.repo.UpdateRole(ctx, userID, newRole, time.Now().UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	s.roles.Invalidate(ctx, user.Email)

	oldValues, _ := json.Marshal(map[string]string{"role": string(user.Role)})
	newValues, _ := json.Marshal(map[string]string{"role": string(newRole)})
	s.audit.Record(&models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionRoleChange,
		Resource:   "user",
		ResourceID: &user.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})

	user.Role = newRole
	return user, nil
}

// Delete deactivates an account, revokes its refresh tokens, and drops its
// cached role. Admin only.
func (s *UserService) Delete(ctx context.Context, userID string, actor *models.JWTClaims, role models.Role) error {
	if role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete users")
	}
	if actor != nil && actor.UserID == userID {
		return appErrors.Clone(appErrors.ErrConflict, "admins cannot delete their own account")
	}

	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}
	if err := s.repo.RevokeUserRefreshTokens(ctx, userID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens for deleted user", zap.String("user_id", userID), zap.Error(err))
	}
	s.roles.Invalidate(ctx, user.Email)

	s.audit.Record(&models.AuditLog{
		UserID:     auditActor(actor),
		Action:     models.AuditActionUserDelete,
		Resource:   "user",
		ResourceID: &user.ID,
		NewValues:  json.RawMessage(`{"active":"false"}`),
	})
	return nil
}

func (s *UserService) findUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func auditActor(claims *models.JWTClaims) *string {
	if claims == nil {
		return nil
	}
	return &claims.UserID
}
