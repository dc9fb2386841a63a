package models

import "time"

// TuitionStatus tracks the admin moderation state of a tuition post.
type TuitionStatus string

const (
	TuitionPending  TuitionStatus = "pending"
	TuitionApproved TuitionStatus = "approved"
	TuitionRejected TuitionStatus = "rejected"
)

// TuitionPost is a student's request for a tutor, listed publicly once an
// admin approves it.
type TuitionPost struct {
	ID           string        `db:"id" json:"id"`
	OwnerID      string        `db:"owner_id" json:"owner_id"`
	OwnerEmail   string        `db:"owner_email" json:"owner_email"`
	Subject      string        `db:"subject" json:"subject"`
	ClassLevel   string        `db:"class_level" json:"class_level"`
	Location     string        `db:"location" json:"location"`
	Salary       int64         `db:"salary" json:"salary"`
	DaysPerWeek  int           `db:"days_per_week" json:"days_per_week"`
	Description  string        `db:"description" json:"description,omitempty"`
	Status       TuitionStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`
}

// TuitionFilter captures filtering criteria for listing tuition posts.
type TuitionFilter struct {
	Status     *TuitionStatus
	OwnerEmail string
	Subject    string
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// CreateTuitionRequest is the student-facing post payload.
type CreateTuitionRequest struct {
	Subject     string `json:"subject" validate:"required"`
	ClassLevel  string `json:"class_level" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Salary      int64  `json:"salary" validate:"required,gt=0"`
	DaysPerWeek int    `json:"days_per_week" validate:"required,min=1,max=7"`
	Description string `json:"description"`
}

// UpdateTuitionRequest edits a pending post.
type UpdateTuitionRequest struct {
	Subject     string `json:"subject" validate:"required"`
	ClassLevel  string `json:"class_level" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Salary      int64  `json:"salary" validate:"required,gt=0"`
	DaysPerWeek int    `json:"days_per_week" validate:"required,min=1,max=7"`
	Description string `json:"description"`
}

// ModerateTuitionRequest is the admin approve/reject payload.
type ModerateTuitionRequest struct {
	Status TuitionStatus `json:"status" validate:"required,oneof=approved rejected"`
}
