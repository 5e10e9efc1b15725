package models

import "time"

// Student account statuses
const (
	StudentStatusActive    = "active"
	StudentStatusInactive  = "inactive"
	StudentStatusSuspended = "suspended"
)

// Student represents a library member
type Student struct {
	ID           int64      `json:"id" db:"id"`
	StudentID    string     `json:"student_id" db:"student_id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	Email        string     `json:"email" db:"email"`
	Phone        string     `json:"phone" db:"phone"`
	Department   string     `json:"department" db:"department"`
	Status       string     `json:"status" db:"status"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName joins first and last name
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// CanBorrow reports whether the account is in good standing
func (s *Student) CanBorrow() bool {
	return s.IsActive && s.Status == StudentStatusActive
}

// Admin represents a library administrator
type Admin struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	PasswordHash string     `json:"-" db:"password"`
	FullName     string     `json:"full_name" db:"full_name"`
	Email        string     `json:"email" db:"email"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty" db:"last_login"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}
