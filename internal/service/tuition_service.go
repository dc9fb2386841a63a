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

type tuitionRepository interface {
	FindByID(ctx context.Context, id string) (*models.TuitionPost, error)
	List(ctx context.Context, filter models.TuitionFilter) ([]models.TuitionPost, int, error)
	Create(ctx context.Context, post *models.TuitionPost) error
	Update(ctx context.Context, post *models.TuitionPost) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.TuitionStatus, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string, from models.TuitionStatus) (bool, error)
}

// TuitionService owns the tuition post lifecycle: a student creates a
// pending post, an admin moderates it, and only the owning student may edit
// or withdraw it while it is still pending.
type TuitionService struct {
	repo      tuitionRepository
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
	metrics   *MetricsService
}

// NewTuitionService constructs a TuitionService.
func NewTuitionService(repo tuitionRepository, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *TuitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TuitionService{repo: repo, validator: validate, logger: logger, audit: audit}
}

// SetMetrics attaches an optional metrics sink.
func (s *TuitionService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Create posts a new tuition request on behalf of a student.
func (s *TuitionService) Create(ctx context.Context, req models.CreateTuitionRequest, actor *models.JWTClaims, role models.Role) (*models.TuitionPost, error) {
	if role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can post tuitions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tuition payload")
	}

	post := &models.TuitionPost{
		OwnerID:     actor.UserID,
		OwnerEmail:  actor.Email,
		Subject:     req.Subject,
		ClassLevel:  req.ClassLevel,
		Location:    req.Location,
		Salary:      req.Salary,
		DaysPerWeek: req.DaysPerWeek,
		Description: req.Description,
		Status:      models.TuitionPending,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create tuition post")
	}
	return post, nil
}

// List returns posts visible to the actor. Anonymous and wrong-role callers
// only ever see approved posts; owners additionally see their own posts in
// any status; admins see everything.
func (s *TuitionService) List(ctx context.Context, filter models.TuitionFilter, actor *models.JWTClaims, role models.Role) ([]models.TuitionPost, *models.Pagination, error) {
	if role != models.RoleAdmin {
		ownScoped := actor != nil && filter.OwnerEmail == actor.Email && filter.OwnerEmail != ""
		if !ownScoped {
			approved := models.TuitionApproved
			filter.Status = &approved
		}
	}

	posts, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list tuition posts")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return posts, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one post. Pending and rejected posts are invisible to anyone
// but the owner and admins, and invisibility reads as not-found.
func (s *TuitionService) Get(ctx context.Context, id string, actor *models.JWTClaims, role models.Role) (*models.TuitionPost, error) {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tuitionVisibleTo(post, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
	}
	return post, nil
}

// Update edits a post. Only the owning student may edit, and only while the
// post is still pending moderation.
func (s *TuitionService) Update(ctx context.Context, id string, req models.UpdateTuitionRequest, actor *models.JWTClaims, role models.Role) (*models.TuitionPost, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid tuition payload")
	}

	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tuitionVisibleTo(post, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
	}
	if role != models.RoleStudent || actor.Email != post.OwnerEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student can edit this post")
	}
	if post.Status != models.TuitionPending {
		return nil, appErrors.IllegalTransition(entityTuition, post.ID, string(post.Status), "edited")
	}

	post.Subject = req.Subject
	post.ClassLevel = req.ClassLevel
	post.Location = req.Location
	post.Salary = req.Salary
	post.DaysPerWeek = req.DaysPerWeek
	post.Description = req.Description

	updated, err := s.repo.Update(ctx, post)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update tuition post")
	}
	if !updated {
		// Lost a race with moderation; report the status the post moved to.
		current, ferr := s.findPost(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		return nil, appErrors.IllegalTransition(entityTuition, post.ID, string(current.Status), "edited")
	}
	return post, nil
}

// Moderate applies an admin approve/reject decision to a pending post.
func (s *TuitionService) Moderate(ctx context.Context, id string, req models.ModerateTuitionRequest, actor *models.JWTClaims, role models.Role) (*models.TuitionPost, error) {
	if role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can moderate tuition posts")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid moderation payload")
	}

	post, err := s.findPost(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := guardTuitionTransition(post, req.Status); err != nil {
		return nil, err
	}

	moved, err := s.repo.UpdateStatus(ctx, id, post.Status, req.Status, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update tuition status")
	}
	if !moved {
		// A concurrent moderation won; re-read for the accurate error.
		current, readErr := s.findPost(ctx, id)
		if readErr != nil {
			return nil, readErr
		}
		return nil, appErrors.IllegalTransition(entityTuition, id, string(current.Status), string(req.Status))
	}

	s.metrics.RecordTransition(entityTuition, string(req.Status))

	oldValues, _ := json.Marshal(map[string]string{"status": string(post.Status)})
	newValues, _ := json.Marshal(map[string]string{"status": string(req.Status)})
	s.audit.Record(&models.AuditLog{
		UserID:     &actor.UserID,
		Action:     models.AuditActionModerate,
		Resource:   entityTuition,
		ResourceID: &post.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
	})

	post.Status = req.Status
	return post, nil
}

// Delete withdraws a post. Pending posts may be deleted by the owning
// student or an admin; approved posts only by an admin; rejected posts are
// kept for the record.
func (s *TuitionService) Delete(ctx context.Context, id string, actor *models.JWTClaims, role models.Role) error {
	post, err := s.findPost(ctx, id)
	if err != nil {
		return err
	}
	if !tuitionVisibleTo(post, actor, role) {
		return appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
	}

	switch post.Status {
	case models.TuitionPending:
		isOwner := role == models.RoleStudent && actor.Email == post.OwnerEmail
		if !isOwner && role != models.RoleAdmin {
			return appErrors.Clone(appErrors.ErrForbidden, "not allowed to delete this post")
		}
	case models.TuitionApproved:
		if role != models.RoleAdmin {
			return appErrors.Clone(appErrors.ErrForbidden, "only admins can delete an approved post")
		}
	default:
		return appErrors.IllegalTransition(entityTuition, post.ID, string(post.Status), "deleted")
	}

	deleted, err := s.repo.Delete(ctx, id, post.Status)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete tuition post")
	}
	if !deleted {
		current, ferr := s.findPost(ctx, id)
		if ferr != nil {
			return ferr
		}
		return appErrors.IllegalTransition(entityTuition, post.ID, string(current.Status), "deleted")
	}
	return nil
}

func (s *TuitionService) findPost(ctx context.Context, id string) (*models.TuitionPost, error) {
	post, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition post")
	}
	return post, nil
}
