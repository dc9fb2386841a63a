package models

import "time"

// Audit actions recorded by the asynchronous audit writer.
const (
	AuditActionRegister       = "REGISTER"
	AuditActionLogin          = "LOGIN"
	AuditActionLogout         = "LOGOUT"
	AuditActionPasswordChange = "PASSWORD_CHANGE"
	AuditActionRoleChange     = "ROLE_CHANGE"
	AuditActionProfileUpdate  = "PROFILE_UPDATE"
	AuditActionUserDelete     = "USER_DELETE"
	AuditActionModerate       = "MODERATE"
	AuditActionPayment        = "PAYMENT"
)

// AuditLog is an append-only trail entry for sensitive actions.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
