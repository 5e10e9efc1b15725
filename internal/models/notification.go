package models

import "time"

// Notification types
const (
	NotificationFine    = "fine"
	NotificationIssue   = "issue"
	NotificationReturn  = "return"
	NotificationGeneral = "general"
)

// Notification is a message addressed to a student
type Notification struct {
	ID        int64      `json:"id" db:"id"`
	StudentID int64      `json:"student_id" db:"student_id"`
	Title     string     `json:"title" db:"title"`
	Message   string     `json:"message" db:"message"`
	Type      string     `json:"type" db:"notification_type"`
	IsRead    bool       `json:"is_read" db:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty" db:"read_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
