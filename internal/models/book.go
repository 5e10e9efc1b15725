package models

import "time"

// Author represents a book author
type Author struct {
	ID        int64      `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Bio       string     `json:"bio" db:"bio"`
	BirthDate *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// Book represents a catalog entry and its copy counts
type Book struct {
	ID              int64     `json:"id" db:"id"`
	Title           string    `json:"title" db:"title"`
	AuthorID        int64     `json:"author_id" db:"author_id"`
	ISBN            string    `json:"isbn" db:"isbn"`
	Publisher       string    `json:"publisher" db:"publisher"`
	PublicationYear *int      `json:"publication_year,omitempty" db:"publication_year"`
	Category        string    `json:"category" db:"category"`
	Description     string    `json:"description" db:"description"`
	TotalCopies     int       `json:"total_copies" db:"total_copies"`
	AvailableCopies int       `json:"available_copies" db:"available_copies"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IsAvailable reports whether at least one copy can be lent
func (b *Book) IsAvailable() bool {
	return b.AvailableCopies > 0
}

// BookStatus is the lending state of a book from one student's point of view
type BookStatus string

const (
	BookStatusIssueRequested BookStatus = "issue_requested"
	BookStatusIssued         BookStatus = "issued"
	BookStatusRequestIssue   BookStatus = "request_issue"
	BookStatusNotAvailable   BookStatus = "not_available"
	BookStatusNone           BookStatus = "none"
)

// StatusFor derives the status shown to a student. active is the student's
// active request for the book, if any.
func (b *Book) StatusFor(active *IssueRequest) BookStatus {
	if active != nil {
		switch active.Status {
		case LoanStatusRequested:
			return BookStatusIssueRequested
		case LoanStatusIssued, LoanStatusOverdue:
			return BookStatusIssued
		}
	}
	if b.IsAvailable() {
		return BookStatusRequestIssue
	}
	return BookStatusNotAvailable
}
