package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/etution/etution-api/internal/gateway"
	"github.com/etution/etution-api/internal/models"
	"github.com/etution/etution-api/internal/service"
	"github.com/etution/etution-api/pkg/config"
)

type paymentRepoStub struct {
	payments map[string]*models.Payment
}

func newPaymentRepoStub(payments ...*models.Payment) *paymentRepoStub {
	stub := &paymentRepoStub{payments: make(map[string]*models.Payment)}
	for _, p := range payments {
		stub.payments[p.ApplicationID] = p
	}
	return stub
}

func (s *paymentRepoStub) Create(ctx context.Context, payment *models.Payment) (bool, error) {
	if _, exists := s.payments[payment.ApplicationID]; exists {
		return false, nil
	}
	copied := *payment
	s.payments[payment.ApplicationID] = &copied
	return true, nil
}

func (s *paymentRepoStub) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	for _, p := range s.payments {
		if p.ID == id {
			copied := *p
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *paymentRepoStub) FindByApplicationID(ctx context.Context, applicationID string) (*models.Payment, error) {
	p, ok := s.payments[applicationID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *p
	return &copied, nil
}

func (s *paymentRepoStub) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	var out []models.Payment
	for _, p := range s.payments {
		out = append(out, *p)
	}
	return out, len(out), nil
}

func (s *paymentRepoStub) ListAll(ctx context.Context) ([]models.Payment, error) {
	var out []models.Payment
	for _, p := range s.payments {
		out = append(out, *p)
	}
	return out, nil
}

type appStoreStub struct {
	apps map[string]*models.Application
}

func (s *appStoreStub) FindByID(ctx context.Context, id string) (*models.Application, error) {
	app, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *app
	return &copied, nil
}

func (s *appStoreStub) UpdateStatus(ctx context.Context, id string, from, to models.ApplicationStatus, updatedAt time.Time) (bool, error) {
	app, ok := s.apps[id]
	if !ok || app.Status != from {
		return false, nil
	}
	app.Status = to
	return true, nil
}

type gatewayStub struct {
	confirmations map[string]*gateway.Confirmation
}

func (g *gatewayStub) CreateSession(ctx context.Context, req gateway.SessionRequest) (*gateway.Session, error) {
	return &gateway.Session{ID: "sess-" + req.ApplicationID, CheckoutURL: "https://pay.example.com/checkout"}, nil
}

func (g *gatewayStub) ConfirmSession(ctx context.Context, sessionID string) (*gateway.Confirmation, error) {
	conf, ok := g.confirmations[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return conf, nil
}

func newPaymentHandler(repo *paymentRepoStub, apps *appStoreStub, gw *gatewayStub) *PaymentHandler {
	cfg := config.PaymentsConfig{Currency: "BDT", SuccessURL: "https://app.example.com/ok", CancelURL: "https://app.example.com/cancel"}
	return NewPaymentHandler(service.NewPaymentService(repo, apps, gw, cfg, nil, nil, auditStub{}))
}

func pendingApp() *models.Application {
	return &models.Application{
		ID: "a1", TuitionID: "t1", TuitionSubject: "Physics",
		TutorID: "u-tutor", TutorEmail: "tutor@example.com", TutorName: "Tutor",
		StudentID: "u-student", StudentEmail: "student@example.com",
		ExpectedSalary: 5000, Status: models.ApplicationPending,
	}
}

func TestPaymentHandlerCheckout(t *testing.T) {
	apps := &appStoreStub{apps: map[string]*models.Application{"a1": pendingApp()}}
	handler := newPaymentHandler(newPaymentRepoStub(), apps, &gatewayStub{})

	body, _ := json.Marshal(models.CheckoutRequest{ApplicationID: "a1"})
	c, w := testContext(t, http.MethodPost, "/payments/checkout", body)
	signIn(c, "student@example.com", models.RoleStudent)

	handler.Checkout(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "sess-a1")
}

func TestPaymentHandlerConfirmMissingSession(t *testing.T) {
	handler := newPaymentHandler(newPaymentRepoStub(), &appStoreStub{apps: map[string]*models.Application{}}, &gatewayStub{})

	c, w := testContext(t, http.MethodPatch, "/payments/success", []byte(`{}`))
	signIn(c, "student@example.com", models.RoleStudent)

	handler.Confirm(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPaymentHandlerConfirmApproves(t *testing.T) {
	apps := &appStoreStub{apps: map[string]*models.Application{"a1": pendingApp()}}
	gw := &gatewayStub{confirmations: map[string]*gateway.Confirmation{
		"sess-a1": {SessionID: "sess-a1", ApplicationID: "a1", Amount: 5000, Currency: "BDT", TransactionID: "txn-1", Paid: true},
	}}
	handler := newPaymentHandler(newPaymentRepoStub(), apps, gw)

	c, w := testContext(t, http.MethodPatch, "/payments/success", []byte(`{"session_id":"sess-a1"}`))
	signIn(c, "student@example.com", models.RoleStudent)

	handler.Confirm(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "approved")
	assert.Equal(t, models.ApplicationApproved, apps.apps["a1"].Status)
}

func TestPaymentHandlerReceiptContentType(t *testing.T) {
	repo := newPaymentRepoStub(&models.Payment{
		ID: "p1", ApplicationID: "a1", Amount: 5000, Currency: "BDT", TrackingID: "TRK-1",
		PayerEmail: "student@example.com", PayeeEmail: "tutor@example.com",
	})
	handler := newPaymentHandler(repo, &appStoreStub{apps: map[string]*models.Application{}}, &gatewayStub{})

	c, w := testContext(t, http.MethodGet, "/payments/p1/receipt", nil)
	c.Params = gin.Params{{Key: "id", Value: "p1"}}
	signIn(c, "student@example.com", models.RoleStudent)

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "receipt.pdf")
}

func TestPaymentHandlerReportAdminOnly(t *testing.T) {
	handler := newPaymentHandler(newPaymentRepoStub(), &appStoreStub{apps: map[string]*models.Application{}}, &gatewayStub{})

	c, w := testContext(t, http.MethodGet, "/admin/reports/payments", nil)
	signIn(c, "tutor@example.com", models.RoleTutor)

	handler.Report(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
