package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/models"
	appErrors "github.com/etution/etution-api/pkg/errors"
)

type mockApplicationRepo struct {
	apps map[string]*models.Application
}

func newMockApplicationRepo(apps ...*models.Application) *mockApplicationRepo {
	repo := &mockApplicationRepo{apps: make(map[string]*models.Application)}
	for _, a := range apps {
		repo.apps[a.ID] = a
	}
	return repo
}

func (m *mockApplicationRepo) FindByID(ctx context.Context, id string) (*models.Application, error) {
	app, ok := m.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (m *mockApplicationRepo) FindByTuitionAndTutor(ctx context.Context, tuitionID, tutorID string) (*models.Application, error) {
	for _, a := range m.apps {
		if a.TuitionID == tuitionID && a.TutorID == tutorID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockApplicationRepo) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	var out []models.Application
	for _, a := range m.apps {
		if filter.StudentEmail != "" && a.StudentEmail != filter.StudentEmail {
			continue
		}
		if filter.TutorEmail != "" && a.TutorEmail != filter.TutorEmail {
			continue
		}
		if filter.Status != nil && a.Status != *filter.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (m *mockApplicationRepo) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = "a-new"
	}
	copied := *app
	m.apps[app.ID] = &copied
	return nil
}

func (m *mockApplicationRepo) UpdateSalary(ctx context.Context, id string, salary int64, updatedAt time.Time) (bool, error) {
	app, ok := m.apps[id]
	if !ok || app.Status != models.ApplicationPending {
		return false, nil
	}
	app.ExpectedSalary = salary
	return true, nil
}

func (m *mockApplicationRepo) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, updatedAt time.Time) (bool, error) {
	app, ok := m.apps[id]
	if !ok || app.Status != from {
		return false, nil
	}
	app.Status = to
	return true, nil
}

func (m *mockApplicationRepo) Delete(ctx context.Context, id string) (bool, error) {
	app, ok := m.apps[id]
	if !ok || app.Status != models.ApplicationPending {
		return false, nil
	}
	delete(m.apps, id)
	return true, nil
}

func pendingApplication(id string) *models.Application {
	return &models.Application{
		ID:             id,
		TuitionID:      "t1",
		TuitionSubject: "Physics",
		TutorID:        "u-tutor@example.com",
		TutorEmail:     "tutor@example.com",
		TutorName:      "Tutor One",
		StudentID:      "u-student@example.com",
		StudentEmail:   "student@example.com",
		ExpectedSalary: 5000,
		Status:         models.ApplicationPending,
	}
}

func newApplicationService(repo *mockApplicationRepo, tuitions *mockTuitionRepo) *ApplicationService {
	if tuitions == nil {
		tuitions = newMockTuitionRepo()
	}
	return NewApplicationService(repo, tuitions, validator.New(), zap.NewNop())
}

func TestApplyRequiresApprovedPost(t *testing.T) {
	approved := pendingPost("t1", "student@example.com")
	approved.Status = models.TuitionApproved
	tuitions := newMockTuitionRepo(approved, pendingPost("t2", "student@example.com"))
	svc := newApplicationService(newMockApplicationRepo(), tuitions)
	tutor := studentClaims("tutor@example.com")

	app, err := svc.Apply(context.Background(), models.ApplyRequest{TuitionID: "t1", ExpectedSalary: 5500}, tutor, models.RoleTutor)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationPending, app.Status)
	assert.Equal(t, "Physics", app.TuitionSubject)
	assert.Equal(t, "student@example.com", app.StudentEmail)

	// Pending posts are invisible to tutors.
	_, err = svc.Apply(context.Background(), models.ApplyRequest{TuitionID: "t2", ExpectedSalary: 5500}, tutor, models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	// Rejected posts surface the transition.
	rejected := pendingPost("t3", "student@example.com")
	rejected.Status = models.TuitionRejected
	tuitions.posts["t3"] = rejected
	_, err = svc.Apply(context.Background(), models.ApplyRequest{TuitionID: "t3", ExpectedSalary: 5500}, tutor, models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
}

func TestApplyDuplicateConflict(t *testing.T) {
	approved := pendingPost("t1", "student@example.com")
	approved.Status = models.TuitionApproved
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, newMockTuitionRepo(approved))

	_, err := svc.Apply(context.Background(), models.ApplyRequest{TuitionID: "t1", ExpectedSalary: 5000}, studentClaims("tutor@example.com"), models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestApplyTutorOnly(t *testing.T) {
	svc := newApplicationService(newMockApplicationRepo(), nil)

	_, err := svc.Apply(context.Background(), models.ApplyRequest{TuitionID: "t1", ExpectedSalary: 5000}, studentClaims("student@example.com"), models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationListScoping(t *testing.T) {
	other := pendingApplication("a2")
	other.StudentEmail = "someone@example.com"
	other.TutorEmail = "else@example.com"
	repo := newMockApplicationRepo(pendingApplication("a1"), other)
	svc := newApplicationService(repo, nil)

	apps, _, err := svc.List(context.Background(), models.ApplicationFilter{}, studentClaims("student@example.com"), models.RoleStudent)
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "a1", apps[0].ID)

	apps, _, err = svc.List(context.Background(), models.ApplicationFilter{}, studentClaims("tutor@example.com"), models.RoleTutor)
	require.NoError(t, err)
	assert.Len(t, apps, 1)

	apps, _, err = svc.List(context.Background(), models.ApplicationFilter{}, studentClaims("admin@example.com"), models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, apps, 2)
}

func TestApplicationGetInvisibleReadsNotFound(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)

	_, err := svc.Get(context.Background(), "a1", studentClaims("stranger@example.com"), models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApplicationDirectApprovalIllegal(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)
	approved := models.ApplicationApproved

	// Not even the owning student may approve directly.
	_, err := svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{Status: &approved}, studentClaims("student@example.com"), models.RoleStudent)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErr.Code)
	assert.Equal(t, models.ApplicationPending, repo.apps["a1"].Status, "state unchanged after the refused approval")
}

func TestApplicationStudentReject(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)
	rejected := models.ApplicationRejected

	app, err := svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{Status: &rejected}, studentClaims("student@example.com"), models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, models.ApplicationRejected, app.Status)

	// Rejection is terminal.
	_, err = svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{Status: &rejected}, studentClaims("student@example.com"), models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
}

func TestApplicationRejectOwningStudentOnly(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)
	rejected := models.ApplicationRejected

	_, err := svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{Status: &rejected}, studentClaims("tutor@example.com"), models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestApplicationTutorSalaryEdit(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)
	salary := int64(7000)

	app, err := svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{ExpectedSalary: &salary}, studentClaims("tutor@example.com"), models.RoleTutor)
	require.NoError(t, err)
	assert.Equal(t, int64(7000), app.ExpectedSalary)

	// Not once the application moved on.
	repo.apps["a1"].Status = models.ApplicationApproved
	_, err = svc.Update(context.Background(), "a1", models.UpdateApplicationRequest{ExpectedSalary: &salary}, studentClaims("tutor@example.com"), models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
}

func TestApplicationWithdraw(t *testing.T) {
	repo := newMockApplicationRepo(pendingApplication("a1"))
	svc := newApplicationService(repo, nil)

	// Only the applying tutor.
	err := svc.Delete(context.Background(), "a1", studentClaims("student@example.com"), models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Delete(context.Background(), "a1", studentClaims("tutor@example.com"), models.RoleTutor))
	assert.Empty(t, repo.apps)
}

func TestApplicationWithdrawApprovedIllegal(t *testing.T) {
	app := pendingApplication("a1")
	app.Status = models.ApplicationApproved
	repo := newMockApplicationRepo(app)
	svc := newApplicationService(repo, nil)

	err := svc.Delete(context.Background(), "a1", studentClaims("tutor@example.com"), models.RoleTutor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrIllegalTransition.Code, appErrors.FromError(err).Code)
}
