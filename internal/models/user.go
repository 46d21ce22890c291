package models

// UserRole represents the available roles for attendance access control.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleStudent UserRole = "student"
)

// Valid returns true when the role is a supported value.
func (r UserRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	default:
		return false
	}
}

// Actor is the caller identity attached to every operation. It is never
// persisted by this core; handlers build it from validated claims.
type Actor struct {
	ID   string   `json:"id"`
	Role UserRole `json:"role"`
}

// UserProfile carries the display fields resolved for stats and mail.
type UserProfile struct {
	ID       string `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	FullName string `db:"full_name" json:"full_name"`
	Email    string `db:"email" json:"email"`
	Role     string `db:"role" json:"role"`
}

// DisplayName prefers the full name over the login-style username.
func (p UserProfile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}
