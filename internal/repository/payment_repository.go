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

// PaymentRepository provides database access for payment records. The
// payments table carries a unique constraint on application_id; that
// constraint is the sole serialization point for concurrent confirmations
// of the same application.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new instance of PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, application_id, amount, currency, transaction_id, tracking_id, payer_id, payer_email, payee_id, payee_email, created_at`

// Create inserts a payment record. It reports false without error when a
// payment already exists for the application, so a replayed confirmation is
// a no-op rather than a duplicate.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO payments (id, application_id, amount, currency, transaction_id, tracking_id, payer_id, payer_email, payee_id, payee_email, created_at) VALUES (:id, :application_id, :amount, :currency, :transaction_id, :tracking_id, :payer_id, :payer_email, :payee_id, :payee_email, :created_at) ON CONFLICT (application_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		return false, fmt.Errorf("create payment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create payment: %w", err)
	}
	return affected > 0, nil
}

// FindByID returns a payment by identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by id: %w", err)
	}
	return &payment, nil
}

// FindByApplicationID returns the payment completing an application, if any.
func (r *PaymentRepository) FindByApplicationID(ctx context.Context, applicationID string) (*models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE application_id = $1 LIMIT 1`, paymentColumns)
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, applicationID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find payment by application: %w", err)
	}
	return &payment, nil
}

// List returns payments scoped to a payer or payee.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	baseQuery := `FROM payments WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.PayerEmail != "" {
		conditions = append(conditions, fmt.Sprintf("payer_email = $%d", len(args)+1))
		args = append(args, filter.PayerEmail)
	}
	if filter.PayeeEmail != "" {
		conditions = append(conditions, fmt.Sprintf("payee_email = $%d", len(args)+1))
		args = append(args, filter.PayeeEmail)
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

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", paymentColumns, baseQuery, pageSize, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	return payments, total, nil
}

// ListAll returns every payment, newest first, for the admin report export.
func (r *PaymentRepository) ListAll(ctx context.Context) ([]models.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments ORDER BY created_at DESC`, paymentColumns)
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query); err != nil {
		return nil, fmt.Errorf("list all payments: %w", err)
	}
	return payments, nil
}
