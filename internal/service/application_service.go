package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
	appErrors "github.com/etution/etution-api/pkg/errors"
)

type applicationRepository interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByTuitionAndTutor(ctx context.Context, tuitionID, tutorID string) (*models.Application, error)
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
	Create(ctx context.Context, app *models.Application) error
	UpdateSalary(ctx context.Context, id string, salary int64, updatedAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, updatedAt time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type applicationTuitionReader interface {
	FindByID(ctx context.Context, id string) (*models.TuitionPost, error)
}

// ApplicationService owns tutor bids: a tutor applies to an approved post,
// the owning student may reject, and approval happens only through a
// confirmed payment.
type ApplicationService struct {
	repo      applicationRepository
	tuitions  applicationTuitionReader
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
}

// NewApplicationService constructs an ApplicationService.
func NewApplicationService(repo applicationRepository, tuitions applicationTuitionReader, validate *validator.Validate, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApplicationService{repo: repo, tuitions: tuitions, validator: validate, logger: logger}
}

// SetMetrics attaches an optional metrics sink.
func (s *ApplicationService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Apply files a tutor's bid on an approved tuition post. A tutor may hold at
// most one application per post.
func (s *ApplicationService) Apply(ctx context.Context, req models.ApplyRequest, actor *models.JWTClaims, role models.Role) (*models.Application, error) {
	if role != models.RoleTutor {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only tutors can apply to tuitions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	post, err := s.tuitions.FindByID(ctx, req.TuitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tuition post")
	}
	if post.Status != models.TuitionApproved {
		if post.Status == models.TuitionPending {
			// Unapproved posts are invisible to tutors; do not leak them.
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tuition post not found")
		}
		return nil, appErrors.IllegalTransition(entityTuition, post.ID, string(post.Status), "applied")
	}

	if _, err := s.repo.FindByTuitionAndTutor(ctx, post.ID, actor.UserID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "already applied to this tuition")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}

	app := &models.Application{
		TuitionID:      post.ID,
		TuitionSubject: post.Subject,
		TutorID:        actor.UserID,
		TutorEmail:     actor.Email,
		TutorName:      actor.DisplayName,
		StudentID:      post.OwnerID,
		StudentEmail:   post.OwnerEmail,
		ExpectedSalary: req.ExpectedSalary,
		Status:         models.ApplicationPending,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	return app, nil
}

// List returns applications scoped to what the actor may see: admins see
// everything, students see applications against their posts, tutors see
// their own bids.
func (s *ApplicationService) List(ctx context.Context, filter models.ApplicationFilter, actor *models.JWTClaims, role models.Role) ([]models.Application, *models.Pagination, error) {
	switch role {
	case models.RoleAdmin:
		// Unrestricted.
	case models.RoleStudent:
		filter.StudentEmail = actor.Email
		filter.TutorEmail = ""
	case models.RoleTutor:
		filter.TutorEmail = actor.Email
		filter.StudentEmail = ""
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list applications")
	}

	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return apps, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one application. Invisibility reads as not-found.
func (s *ApplicationService) Get(ctx context.Context, id string, actor *models.JWTClaims, role models.Role) (*models.Application, error) {
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applicationVisibleTo(app, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	return app, nil
}

// Update mutates an application. The owning student may reject a pending
// bid; the owning tutor may revise the expected salary while it is pending.
// Direct approval is never legal: approval only happens through a confirmed
// payment.
func (s *ApplicationService) Update(ctx context.Context, id string, req models.UpdateApplicationRequest, actor *models.JWTClaims, role models.Role) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	app, err := s.findApplication(ctx, id)
	if err != nil {
		return nil, err
	}
	if !applicationVisibleTo(app, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}

	if req.Status != nil {
		return s.updateStatus(ctx, app, *req.Status, actor, role)
	}
	if req.ExpectedSalary != nil {
		return s.updateSalary(ctx, app, *req.ExpectedSalary, actor, role)
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, "nothing to update")
}

func (s *ApplicationService) updateStatus(ctx context.Context, app *models.Application, to models.ApplicationStatus, actor *models.JWTClaims, role models.Role) (*models.Application, error) {
	if to == models.ApplicationApproved {
		// Only a confirmed payment may approve.
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(app.Status), string(to))
	}
	if role != models.RoleStudent || actor.Email != app.StudentEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student can reject an application")
	}
	if err := guardApplicationTransition(app, to); err != nil {
		return nil, err
	}

	moved, err := s.repo.UpdateStatus(ctx, app.ID, app.Status, to, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}
	if !moved {
		current, readErr := s.findApplication(ctx, app.ID)
		if readErr != nil {
			return nil, readErr
		}
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(current.Status), string(to))
	}

	s.metrics.RecordTransition(entityApplication, string(to))

	app.Status = to
	return app, nil
}

func (s *ApplicationService) updateSalary(ctx context.Context, app *models.Application, salary int64, actor *models.JWTClaims, role models.Role) (*models.Application, error) {
	if role != models.RoleTutor || actor.Email != app.TutorEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the applying tutor can revise the expected salary")
	}
	if app.Status != models.ApplicationPending {
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(app.Status), "edited")
	}

	updated, err := s.repo.UpdateSalary(ctx, app.ID, salary, time.Now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update expected salary")
	}
	if !updated {
		current, readErr := s.findApplication(ctx, app.ID)
		if readErr != nil {
			return nil, readErr
		}
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(current.Status), "edited")
	}

	app.ExpectedSalary = salary
	return app, nil
}

// Delete withdraws a pending bid. Only the applying tutor may withdraw, and
// only while the application is still pending.
func (s *ApplicationService) Delete(ctx context.Context, id string, actor *models.JWTClaims, role models.Role) error {
	app, err := s.findApplication(ctx, id)
	if err != nil {
		return err
	}
	if !applicationVisibleTo(app, actor, role) {
		return appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if role != models.RoleTutor || actor.Email != app.TutorEmail {
		return appErrors.Clone(appErrors.ErrForbidden, "only the applying tutor can withdraw an application")
	}

	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete application")
	}
	if !deleted {
		current, readErr := s.findApplication(ctx, id)
		if readErr != nil {
			return readErr
		}
		return appErrors.IllegalTransition(entityApplication, id, string(current.Status), "deleted")
	}
	return nil
}

func (s *ApplicationService) findApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}
