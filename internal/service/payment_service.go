package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/etution/etution-api/internal/gateway"
	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/pkg/config"
	appErrors "github.com/etution/etution-api/pkg/errors"
	"github.com/etution/etution-api/pkg/export"
)

type paymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) (bool, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	FindByApplicationID(ctx context.Context, applicationID string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	ListAll(ctx context.Context) ([]models.Payment, error)
}

type paymentApplicationStore interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
	UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, updatedAt time.Time) (bool, error)
}

// PaymentService drives the hosted checkout flow. Confirming a payment is
// the only path that approves an application, and confirmation is
// idempotent: the unique payment-per-application constraint elects a single
// writer and every replay observes the completed state.
type PaymentService struct {
	repo      paymentRepository
	apps      paymentApplicationStore
	gateway   gateway.Client
	cfg       config.PaymentsConfig
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
	pdf       *export.PDFExporter
	csv       *export.CSVExporter
	metrics   *MetricsService
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(repo paymentRepository, apps paymentApplicationStore, gw gateway.Client, cfg config.PaymentsConfig, validate *validator.Validate, logger *zap.Logger, audit auditRecorder) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PaymentService{
		repo:      repo,
		apps:      apps,
		gateway:   gw,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		audit:     audit,
		pdf:       export.NewPDFExporter(),
		csv:       export.NewCSVExporter(),
	}
}

// SetMetrics attaches an optional metrics sink.
func (s *PaymentService) SetMetrics(m *MetricsService) {
	s.metrics = m
}

// Checkout opens a hosted checkout session for a pending application. Only
// the student who owns the tuition post may pay.
func (s *PaymentService) Checkout(ctx context.Context, req models.CheckoutRequest, actor *models.JWTClaims, role models.Role) (*models.CheckoutResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checkout payload")
	}

	app, err := s.findApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !applicationVisibleTo(app, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	if role != models.RoleStudent || actor.Email != app.StudentEmail {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student can pay for an application")
	}

	switch app.Status {
	case models.ApplicationPending:
	case models.ApplicationApproved:
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is already paid")
	default:
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(app.Status), "paid")
	}
	if _, err := s.repo.FindByApplicationID(ctx, app.ID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application is already paid")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing payment")
	}

	session, err := s.gateway.CreateSession(ctx, gateway.SessionRequest{
		ApplicationID: app.ID,
		Amount:        app.ExpectedSalary,
		Currency:      s.cfg.Currency,
		Description:   fmt.Sprintf("Tuition: %s (%s)", app.TuitionSubject, app.TutorName),
		PayerEmail:    app.StudentEmail,
		PayeeEmail:    app.TutorEmail,
		SuccessURL:    s.cfg.SuccessURL,
		CancelURL:     s.cfg.CancelURL,
	})
	if err != nil {
		return nil, appErrors.FromError(err)
	}

	return &models.CheckoutResponse{SessionID: session.ID, CheckoutURL: session.CheckoutURL}, nil
}

// Confirm exchanges a returned checkout session for a payment record and, on
// first confirmation, approves the application. Replays return the completed
// state with AlreadyCompleted set instead of erroring.
func (s *PaymentService) Confirm(ctx context.Context, sessionID string, actor *models.JWTClaims, role models.Role) (*models.ConfirmPaymentResult, error) {
	if sessionID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_id is required")
	}

	confirmation, err := s.gateway.ConfirmSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.FromError(err)
	}
	if !confirmation.Paid {
		return nil, appErrors.Clone(appErrors.ErrConflict, "checkout session is not paid")
	}

	app, err := s.findApplication(ctx, confirmation.ApplicationID)
	if err != nil {
		return nil, err
	}
	if !applicationVisibleTo(app, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	switch app.Status {
	case models.ApplicationPending, models.ApplicationApproved:
	default:
		return nil, appErrors.IllegalTransition(entityApplication, app.ID, string(app.Status), "paid")
	}

	payment := &models.Payment{
		ApplicationID: app.ID,
		Amount:        confirmation.Amount,
		Currency:      confirmation.Currency,
		TransactionID: confirmation.TransactionID,
		TrackingID:    newTrackingID(),
		PayerID:       app.StudentID,
		PayerEmail:    app.StudentEmail,
		PayeeID:       app.TutorID,
		PayeeEmail:    app.TutorEmail,
	}

	inserted, err := s.repo.Create(ctx, payment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	if !inserted {
		existing, err := s.repo.FindByApplicationID(ctx, app.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load existing payment")
		}
		return &models.ConfirmPaymentResult{
			ApplicationID:    app.ID,
			Status:           models.ApplicationApproved,
			TransactionID:    existing.TransactionID,
			TrackingID:       existing.TrackingID,
			Amount:           existing.Amount,
			AlreadyCompleted: true,
		}, nil
	}

	// This writer won the insert; promote the application. A false means the
	// status moved concurrently, so report whatever it moved to instead of
	// claiming approval.
	status := app.Status
	moved, err := s.apps.UpdateStatus(ctx, app.ID, models.ApplicationPending, models.ApplicationApproved, time.Now().UTC())
	switch {
	case err != nil:
		s.logger.Error("payment recorded but application promotion failed",
			zap.String("application_id", app.ID),
			zap.String("payment_id", payment.ID),
			zap.Error(err))
	case moved:
		status = models.ApplicationApproved
	default:
		if current, ferr := s.apps.FindByID(ctx, app.ID); ferr == nil {
			status = current.Status
		}
	}

	s.metrics.RecordPaymentConfirmed()
	if status == models.ApplicationApproved {
		s.metrics.RecordTransition(entityApplication, string(models.ApplicationApproved))
	}

	newValues, _ := json.Marshal(map[string]string{
		"transaction_id": payment.TransactionID,
		"tracking_id":    payment.TrackingID,
		"amount":         strconv.FormatInt(payment.Amount, 10),
	})
	var userID *string
	if actor != nil {
		userID = &actor.UserID
	}
	s.audit.Record(&models.AuditLog{
		UserID:     userID,
		Action:     models.AuditActionPayment,
		Resource:   entityApplication,
		ResourceID: &app.ID,
		NewValues:  newValues,
	})

	return &models.ConfirmPaymentResult{
		ApplicationID: app.ID,
		Status:        status,
		TransactionID: payment.TransactionID,
		TrackingID:    payment.TrackingID,
		Amount:        payment.Amount,
	}, nil
}

// List returns payments visible to the actor: students see what they paid,
// tutors see what they were paid, admins see everything.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter, actor *models.JWTClaims, role models.Role) ([]models.Payment, *models.Pagination, error) {
	switch role {
	case models.RoleAdmin:
	case models.RoleStudent:
		filter.PayerEmail = actor.Email
		filter.PayeeEmail = ""
	case models.RoleTutor:
		filter.PayeeEmail = actor.Email
		filter.PayerEmail = ""
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list payments")
	}

	payments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return payments, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Receipt renders a PDF receipt for one payment, visible to its payer,
// payee, and admins.
func (s *PaymentService) Receipt(ctx context.Context, paymentID string, actor *models.JWTClaims, role models.Role) ([]byte, error) {
	payment, err := s.repo.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	if !paymentVisibleTo(payment, actor, role) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
	}

	data := export.Dataset{
		Headers: []string{"Field", "Value"},
		Rows: [][]string{
			{"Receipt", payment.TrackingID},
			{"Transaction", payment.TransactionID},
			{"Application", payment.ApplicationID},
			{"Paid by", payment.PayerEmail},
			{"Paid to", payment.PayeeEmail},
			{"Amount", fmt.Sprintf("%d %s", payment.Amount, payment.Currency)},
			{"Date", payment.CreatedAt.Format(time.RFC1123)},
		},
	}
	out, err := s.pdf.Render(data, "Payment Receipt")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return out, nil
}

// Report renders the admin-wide payments report as CSV.
func (s *PaymentService) Report(ctx context.Context, role models.Role) ([]byte, error) {
	if role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can export the payments report")
	}

	payments, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	data := export.Dataset{
		Headers: []string{"tracking_id", "transaction_id", "application_id", "payer_email", "payee_email", "amount", "currency", "created_at"},
	}
	for _, p := range payments {
		data.Rows = append(data.Rows, []string{
			p.TrackingID,
			p.TransactionID,
			p.ApplicationID,
			p.PayerEmail,
			p.PayeeEmail,
			strconv.FormatInt(p.Amount, 10),
			p.Currency,
			p.CreatedAt.Format(time.RFC3339),
		})
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render report")
	}
	return out, nil
}

func (s *PaymentService) findApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func paymentVisibleTo(payment *models.Payment, claims *models.JWTClaims, role models.Role) bool {
	if role == models.RoleAdmin {
		return true
	}
	if claims == nil {
		return false
	}
	return claims.Email == payment.PayerEmail || claims.Email == payment.PayeeEmail
}

func newTrackingID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "TRK-" + strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return "TRK-" + hex.EncodeToString(buf)
}
