package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etution/etution-api/internal/models"
	appErrors "github.com/etution/etution-api/pkg/errors"
)

type mockUserAdminRepo struct {
	users          map[string]*models.User
	deleted        []string
	revokedUsers   []string
	roleUpdates    int
	profileUpdates int
}

func newMockUserAdminRepo(users ...*models.User) *mockUserAdminRepo {
	repo := &mockUserAdminRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (m *mockUserAdminRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (m *mockUserAdminRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range m.users {
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (m *mockUserAdminRepo) ListTutors(ctx context.Context, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range m.users {
		if u.Role != models.RoleTutor || !u.Active {
			continue
		}
		out = append(out, *u)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockUserAdminRepo) UpdateProfile(ctx context.Context, id, displayName, photoURL string, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.DisplayName = displayName
	u.PhotoURL = photoURL
	m.profileUpdates++
	return nil
}

func (m *mockUserAdminRepo) UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	m.roleUpdates++
	return nil
}

func (m *mockUserAdminRepo) Delete(ctx context.Context, id string) error {
	delete(m.users, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockUserAdminRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

type captureInvalidator struct {
	emails []string
}

func (c *captureInvalidator) Invalidate(ctx context.Context, email string) {
	c.emails = append(c.emails, email)
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Email: "admin@example.com"}
}

func testUser(id, email string, role models.Role) *models.User {
	return &models.User{ID: id, Email: email, DisplayName: "User " + id, Role: role, Active: true}
}

func TestUserListAdminOnly(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleStudent))
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, &captureAudit{})

	users, page, err := svc.List(context.Background(), models.UserFilter{}, models.RoleAdmin)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, page.TotalCount)

	_, _, err = svc.List(context.Background(), models.UserFilter{}, models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChangeRoleInvalidatesCache(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleStudent))
	roles := &captureInvalidator{}
	audit := &captureAudit{}
	svc := NewUserService(repo, roles, nil, nil, audit)

	user, err := svc.ChangeRole(context.Background(), "u1", models.RoleTutor, adminClaims(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTutor, user.Role)
	assert.Equal(t, models.RoleTutor, repo.users["u1"].Role)
	assert.Equal(t, []string{"a@example.com"}, roles.emails)
	assert.Contains(t, audit.actions(), models.AuditActionRoleChange)
}

func TestChangeRoleSameRoleNoOp(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleTutor))
	roles := &captureInvalidator{}
	audit := &captureAudit{}
	svc := NewUserService(repo, roles, nil, nil, audit)

	user, err := svc.ChangeRole(context.Background(), "u1", models.RoleTutor, adminClaims(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTutor, user.Role)
	assert.Zero(t, repo.roleUpdates)
	assert.Empty(t, roles.emails)
	assert.Empty(t, audit.actions())
}

func TestChangeRoleValidation(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleStudent))
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, &captureAudit{})

	_, err := svc.ChangeRole(context.Background(), "u1", models.Role("owner"), adminClaims(), models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.ChangeRole(context.Background(), "u1", models.RoleTutor, studentClaims("a@example.com"), models.RoleStudent)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ChangeRole(context.Background(), "missing", models.RoleTutor, adminClaims(), models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestDeleteUserRevokesSessions(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleTutor))
	roles := &captureInvalidator{}
	audit := &captureAudit{}
	svc := NewUserService(repo, roles, nil, nil, audit)

	err := svc.Delete(context.Background(), "u1", adminClaims(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, repo.deleted)
	assert.Equal(t, []string{"u1"}, repo.revokedUsers)
	assert.Equal(t, []string{"a@example.com"}, roles.emails)
	assert.Contains(t, audit.actions(), models.AuditActionUserDelete)
}

func TestDeleteSelfRejected(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("admin-1", "admin@example.com", models.RoleAdmin))
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, &captureAudit{})

	err := svc.Delete(context.Background(), "admin-1", adminClaims(), models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestLatestTutorsPublic(t *testing.T) {
	inactive := testUser("u3", "gone@example.com", models.RoleTutor)
	inactive.Active = false
	repo := newMockUserAdminRepo(
		testUser("u1", "tutor@example.com", models.RoleTutor),
		testUser("u2", "student@example.com", models.RoleStudent),
		inactive,
	)
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, &captureAudit{})

	tutors, err := svc.LatestTutors(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, tutors, 1)
	assert.Equal(t, "tutor@example.com", tutors[0].Email)
}

func TestUpdateProfile(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleStudent))
	audit := &captureAudit{}
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, audit)
	claims := &models.JWTClaims{UserID: "u1", Email: "a@example.com"}

	user, err := svc.UpdateProfile(context.Background(), claims, models.UpdateProfileRequest{
		DisplayName: "New Name",
		PhotoURL:    "https://cdn.example.com/a.png",
	})
	require.NoError(t, err)
	assert.Equal(t, "New Name", user.DisplayName)
	assert.Equal(t, "New Name", repo.users["u1"].DisplayName)
	assert.Equal(t, "https://cdn.example.com/a.png", repo.users["u1"].PhotoURL)
	assert.Contains(t, audit.actions(), models.AuditActionProfileUpdate)
}

func TestUpdateProfileValidation(t *testing.T) {
	repo := newMockUserAdminRepo(testUser("u1", "a@example.com", models.RoleStudent))
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, &captureAudit{})
	claims := &models.JWTClaims{UserID: "u1", Email: "a@example.com"}

	_, err := svc.UpdateProfile(context.Background(), claims, models.UpdateProfileRequest{DisplayName: "X", PhotoURL: "not-a-url"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Zero(t, repo.profileUpdates)

	_, err = svc.UpdateProfile(context.Background(), nil, models.UpdateProfileRequest{DisplayName: "New Name"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestUpdateProfileSameValuesNoOp(t *testing.T) {
	user := testUser("u1", "a@example.com", models.RoleStudent)
	repo := newMockUserAdminRepo(user)
	audit := &captureAudit{}
	svc := NewUserService(repo, &captureInvalidator{}, nil, nil, audit)
	claims := &models.JWTClaims{UserID: "u1", Email: "a@example.com"}

	_, err := svc.UpdateProfile(context.Background(), claims, models.UpdateProfileRequest{DisplayName: user.DisplayName, PhotoURL: user.PhotoURL})
	require.NoError(t, err)
	assert.Zero(t, repo.profileUpdates)
	assert.Empty(t, audit.actions())
}
