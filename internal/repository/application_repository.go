package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/etution/etution-api/internal/models"
)

// ApplicationRepository provides database access for tutor applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository creates a new instance of ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, tuition_id, tuition_subject, tutor_id, tutor_email, tutor_name, student_id, student_email, expected_salary, status, created_at, updated_at`

// FindByID returns an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE id = $1 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by id: %w", err)
	}
	return &app, nil
}

// FindByTuitionAndTutor returns a tutor's existing application on a post.
func (r *ApplicationRepository) FindByTuitionAndTutor(ctx context.Context, tuitionID, tutorID string) (*models.Application, error) {
	query := fmt.Sprintf(`SELECT %s FROM applications WHERE tuition_id = $1 AND tutor_id = $2 LIMIT 1`, applicationColumns)
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, tuitionID, tutorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find application by tuition and tutor: %w", err)
	}
	return &app, nil
}

// List returns applications for one side of the marketplace.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	baseQuery := `FROM applications WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.StudentEmail != "" {
		conditions = append(conditions, fmt.Sprintf("student_email = $%d", len(args)+1))
		args = append(args, filter.StudentEmail)
	}
	if filter.TutorEmail != "" {
		conditions = append(conditions, fmt.Sprintf("tutor_email = $%d", len(args)+1))
		args = append(args, filter.TutorEmail)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", applicationColumns, baseQuery, pageSize, offset)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}

	return apps, total, nil
}

// Create inserts a new application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	const query = `INSERT INTO applications (id, tuition_id, tuition_subject, tutor_id, tutor_email, tutor_name, student_id, student_email, expected_salary, status, created_at, updated_at) VALUES (:id, :tuition_id, :tuition_subject, :tutor_id, :tutor_email, :tutor_name, :student_id, :student_email, :expected_salary, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdateSalary revises the expected salary while the application is still
// pending. The status guard keeps a concurrent approval from being edited.
func (r *ApplicationRepository) UpdateSalary(ctx context.Context, id string, salary int64, updatedAt time.Time) (bool, error) {
	const query = `UPDATE applications SET expected_salary = $2, updated_at = $3 WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id, salary, updatedAt)
	if err != nil {
		return false, fmt.Errorf("update application salary: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update application salary: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus moves an application between statuses, guarded by the
// expected current status.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, updatedAt time.Time) (bool, error) {
	const query = `UPDATE applications SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, updatedAt)
	if err != nil {
		return false, fmt.Errorf("update application status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update application status: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a pending application. Approved and rejected applications
// are never deleted.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) (bool, error) {
	const query = `DELETE FROM applications WHERE id = $1 AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("delete application: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete application: %w", err)
	}
	return affected > 0, nil
}
