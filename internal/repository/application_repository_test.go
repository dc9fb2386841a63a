package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etution/etution-api/internal/models"
)

func applicationRows(now time.Time, status models.ApplicationStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "tuition_id", "tuition_subject", "tutor_id", "tutor_email", "tutor_name", "student_id", "student_email", "expected_salary", "status", "created_at", "updated_at"}).
		AddRow("a1", "t1", "Physics", "u2", "tutor@example.com", "Tutor", "u1", "student@example.com", int64(5000), string(status), now, now)
}

func TestFindApplicationByTuitionAndTutor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, tuition_id, tuition_subject, tutor_id, tutor_email, tutor_name, student_id, student_email, expected_salary, status, created_at, updated_at FROM applications WHERE tuition_id = $1 AND tutor_id = $2 LIMIT 1")).
		WithArgs("t1", "u2").
		WillReturnRows(applicationRows(time.Now(), models.ApplicationPending))

	app, err := repo.FindByTuitionAndTutor(context.Background(), "t1", "u2")
	require.NoError(t, err)
	assert.Equal(t, "a1", app.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindApplicationMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM applications WHERE id").
		WithArgs("absent").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "absent")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateSalaryOnlyWhilePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET expected_salary = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'")).
		WithArgs("a1", int64(6000), now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdateSalary(context.Background(), "a1", 6000, now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationUpdateStatusGuarded(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2")).
		WithArgs("a1", string(models.ApplicationPending), string(models.ApplicationApproved), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.UpdateStatus(context.Background(), "a1", models.ApplicationPending, models.ApplicationApproved, now)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationDeleteOnlyWhilePending(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewApplicationRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM applications WHERE id = $1 AND status = 'pending'")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Delete(context.Background(), "a1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
