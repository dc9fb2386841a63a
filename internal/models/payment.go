package models

import "time"

// Payment is an append-only record of a confirmed gateway transaction. At
// most one payment exists per application, enforced by a unique constraint
// on application_id.
type Payment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	Amount        int64     `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	TransactionID string    `db:"transaction_id" json:"transaction_id"`
	TrackingID    string    `db:"tracking_id" json:"tracking_id"`
	PayerID       string    `db:"payer_id" json:"payer_id"`
	PayerEmail    string    `db:"payer_email" json:"payer_email"`
	PayeeID       string    `db:"payee_id" json:"payee_id"`
	PayeeEmail    string    `db:"payee_email" json:"payee_email"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// PaymentFilter captures payer/payee-scoped listing criteria.
type PaymentFilter struct {
	PayerEmail string
	PayeeEmail string
	Page       int
	PageSize   int
}

// CheckoutRequest starts a hosted checkout for one pending application.
type CheckoutRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
}

// CheckoutResponse carries the hosted checkout redirect URL.
type CheckoutResponse struct {
	SessionID   string `json:"session_id"`
	CheckoutURL string `json:"checkout_url"`
}

// ConfirmPaymentResult is returned from the payment-success exchange. A
// replayed confirmation reports AlreadyCompleted instead of erroring.
type ConfirmPaymentResult struct {
	ApplicationID    string            `json:"application_id"`
	Status           ApplicationStatus `json:"status"`
	TransactionID    string            `json:"transaction_id"`
	TrackingID       string            `json:"tracking_id"`
	Amount           int64             `json:"amount"`
	AlreadyCompleted bool              `json:"already_completed"`
}
