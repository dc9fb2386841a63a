package handler

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/internal/service"
)

type userRepoStub struct {
	users map[string]*models.User
}

func newUserRepoStub(users ...*models.User) *userRepoStub {
	s := &userRepoStub{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (s *userRepoStub) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *userRepoStub) ListTutors(ctx context.Context, limit int) ([]models.User, error) {
	var out []models.User
	for _, u := range s.users {
		if u.Role == models.RoleTutor && u.Active {
			out = append(out, *u)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *userRepoStub) UpdateRole(ctx context.Context, id string, role models.Role, updatedAt time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.Role = role
	return nil
}

func (s *userRepoStub) UpdateProfile(ctx context.Context, id, displayName, photoURL string, updatedAt time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.DisplayName = displayName
	u.PhotoURL = photoURL
	return nil
}

func (s *userRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.users, id)
	return nil
}

func (s *userRepoStub) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	return nil
}

type invalidatorStub struct{}

func (invalidatorStub) Invalidate(ctx context.Context, email string) {}

func newUserHandler(repo *userRepoStub) *UserHandler {
	return NewUserHandler(service.NewUserService(repo, invalidatorStub{}, nil, nil, auditStub{}), nil)
}

func TestLatestTutorsEndpoint(t *testing.T) {
	repo := newUserRepoStub(
		&models.User{ID: "t1", Email: "tutor@example.com", DisplayName: "Tutor One", Role: models.RoleTutor, Active: true},
		&models.User{ID: "s1", Email: "student@example.com", Role: models.RoleStudent, Active: true},
	)
	h := newUserHandler(repo)

	c, w := testContext(t, http.MethodGet, "/tutors/latest", nil)
	h.Tutors(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tutor@example.com")
	assert.NotContains(t, w.Body.String(), "student@example.com")
}

func TestUpdateProfileEndpoint(t *testing.T) {
	repo := newUserRepoStub(&models.User{ID: "u-a@example.com", Email: "a@example.com", DisplayName: "Old Name", Role: models.RoleStudent, Active: true})
	h := newUserHandler(repo)

	body := []byte(`{"display_name":"New Name","photo_url":"https://cdn.example.com/a.png"}`)
	c, w := testContext(t, http.MethodPatch, "/users/profile", body)
	signIn(c, "a@example.com", models.RoleStudent)
	h.UpdateProfile(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "New Name")
	assert.Equal(t, "New Name", repo.users["u-a@example.com"].DisplayName)
}

func TestUpdateProfileEndpointValidation(t *testing.T) {
	repo := newUserRepoStub(&models.User{ID: "u-a@example.com", Email: "a@example.com", DisplayName: "Old Name", Role: models.RoleStudent, Active: true})
	h := newUserHandler(repo)

	c, w := testContext(t, http.MethodPatch, "/users/profile", []byte(`{"display_name":"","photo_url":"not-a-url"}`))
	signIn(c, "a@example.com", models.RoleStudent)
	h.UpdateProfile(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Old Name", repo.users["u-a@example.com"].DisplayName)
}
