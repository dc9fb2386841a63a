package models

import "time"

// Role represents the marketplace actor roles.
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known marketplace roles.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTutor, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	DisplayName  string     `db:"display_name" json:"display_name"`
	PhotoURL     string     `db:"photo_url" json:"photo_url,omitempty"`
	Role         Role       `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UpdateProfileRequest carries the fields a signed-in user may change on
// their own account.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name" validate:"required,min=2,max=100"`
	PhotoURL    string `json:"photo_url" validate:"omitempty,url"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *Role
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
