package models

import "time"

// ApplicationStatus tracks a tutor's bid on an approved tuition post.
type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a tutor's bid on an approved tuition post. Once approved it
// becomes immutable except for payment completion fields.
type Application struct {
	ID             string            `db:"id" json:"id"`
	TuitionID      string            `db:"tuition_id" json:"tuition_id"`
	TuitionSubject string            `db:"tuition_subject" json:"tuition_subject"`
	TutorID        string            `db:"tutor_id" json:"tutor_id"`
	TutorEmail     string            `db:"tutor_email" json:"tutor_email"`
	TutorName      string            `db:"tutor_name" json:"tutor_name"`
	StudentID      string            `db:"student_id" json:"student_id"`
	StudentEmail   string            `db:"student_email" json:"student_email"`
	ExpectedSalary int64             `db:"expected_salary" json:"expected_salary"`
	Status         ApplicationStatus `db:"status" json:"status"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time         `db:"updated_at" json:"updated_at"`
}

// ApplicationFilter captures owner-scoped listing criteria.
type ApplicationFilter struct {
	StudentEmail string
	TutorEmail   string
	Status       *ApplicationStatus
	Page         int
	PageSize     int
}

// ApplyRequest is the tutor-facing application payload.
type ApplyRequest struct {
	TuitionID      string `json:"tuition_id" validate:"required"`
	ExpectedSalary int64  `json:"expected_salary" validate:"required,gt=0"`
}

// UpdateApplicationRequest mutates an application. A student may reject; a
// tutor may revise the expected salary while the application is pending.
// Approval is deliberately absent: it only happens through a confirmed
// payment.
type UpdateApplicationRequest struct {
	Status         *ApplicationStatus `json:"status" validate:"omitempty,oneof=approved rejected"`
	ExpectedSalary *int64             `json:"expected_salary" validate:"omitempty,gt=0"`
}
