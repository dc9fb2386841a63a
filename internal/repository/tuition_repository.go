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

// TuitionRepository provides database access for tuition posts.
type TuitionRepository struct {
	db *sqlx.DB
}

// NewTuitionRepository creates a new instance of TuitionRepository.
func NewTuitionRepository(db *sqlx.DB) *TuitionRepository {
	return &TuitionRepository{db: db}
}

const tuitionColumns = `id, owner_id, owner_email, subject, class_level, location, salary, days_per_week, description, status, created_at, updated_at`

// FindByID returns a tuition post by identifier.
func (r *TuitionRepository) FindByID(ctx context.Context, id string) (*models.TuitionPost, error) {
	query := fmt.Sprintf(`SELECT %s FROM tuition_posts WHERE id = $1 LIMIT 1`, tuitionColumns)
	var post models.TuitionPost
	if err := r.db.GetContext(ctx, &post, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find tuition by id: %w", err)
	}
	return &post, nil
}

// List returns tuition posts based on filters with total count.
func (r *TuitionRepository) List(ctx context.Context, filter models.TuitionFilter) ([]models.TuitionPost, int, error) {
	baseQuery := `FROM tuition_posts WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.OwnerEmail != "" {
		conditions = append(conditions, fmt.Sprintf("owner_email = $%d", len(args)+1))
		args = append(args, filter.OwnerEmail)
	}
	if filter.Subject != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(subject) = $%d", len(args)+1))
		args = append(args, strings.ToLower(filter.Subject))
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(subject) LIKE $%d OR LOWER(location) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"salary":     true,
		"subject":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", tuitionColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var posts []models.TuitionPost
	if err := r.db.SelectContext(ctx, &posts, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list tuitions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count tuitions: %w", err)
	}

	return posts, total, nil
}

// Create inserts a new tuition post.
func (r *TuitionRepository) Create(ctx context.Context, post *models.TuitionPost) error {
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	const query = `INSERT INTO tuition_posts (id, owner_id, owner_email, subject, class_level, location, salary, days_per_week, description, status, created_at, updated_at) VALUES (:id, :owner_id, :owner_email, :subject, :class_level, :location, :salary, :days_per_week, :description, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, post); err != nil {
		return fmt.Errorf("create tuition: %w", err)
	}
	return nil
}

// Update revises the student-editable fields of a post while it is still
// pending. Returns false when the post already moved out of pending.
func (r *TuitionRepository) Update(ctx context.Context, post *models.TuitionPost) (bool, error) {
	post.UpdatedAt = time.Now().UTC()
	const query = `UPDATE tuition_posts SET subject = :subject, class_level = :class_level, location = :location, salary = :salary, days_per_week = :days_per_week, description = :description, updated_at = :updated_at WHERE id = :id AND status = 'pending'`
	res, err := r.db.NamedExecContext(ctx, query, post)
	if err != nil {
		return false, fmt.Errorf("update tuition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update tuition: %w", err)
	}
	return affected > 0, nil
}

// UpdateStatus applies an admin moderation decision. The expected current
// status guards against concurrent moderation of the same post.
func (r *TuitionRepository) UpdateStatus(ctx context.Context, id string, from, to models.TuitionStatus, updatedAt time.Time) (bool, error) {
	const query = `UPDATE tuition_posts SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from, to, updatedAt)
	if err != nil {
		return false, fmt.Errorf("update tuition status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update tuition status: %w", err)
	}
	return affected > 0, nil
}

// Delete removes a tuition post only while it still has the status the
// caller last observed, so a concurrent moderation voids the delete.
func (r *TuitionRepository) Delete(ctx context.Context, id string, from models.TuitionStatus) (bool, error) {
	const query = `DELETE FROM tuition_posts WHERE id = $1 AND status = $2`
	res, err := r.db.ExecContext(ctx, query, id, from)
	if err != nil {
		return false, fmt.Errorf("delete tuition: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete tuition: %w", err)
	}
	return affected > 0, nil
}
