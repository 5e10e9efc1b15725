package models

import "time"

// LoanStatus is the state of an issue request
type LoanStatus string

const (
	LoanStatusRequested LoanStatus = "requested"
	LoanStatusIssued    LoanStatus = "issued"
	LoanStatusReturned  LoanStatus = "returned"
	LoanStatusRejected  LoanStatus = "rejected"
	LoanStatusOverdue   LoanStatus = "overdue"
)

// ActiveLoanStatuses count against the one-request-per-book rule
var ActiveLoanStatuses = []LoanStatus{LoanStatusRequested, LoanStatusIssued, LoanStatusOverdue}

// IsActive reports whether the status is non-terminal
func (s LoanStatus) IsActive() bool {
	return s == LoanStatusRequested || s == LoanStatusIssued || s == LoanStatusOverdue
}

// IsTerminal reports whether no further transition is possible
func (s LoanStatus) IsTerminal() bool {
	return s == LoanStatusReturned || s == LoanStatusRejected
}

// OnLoan reports whether the book is out with the student
func (s LoanStatus) OnLoan() bool {
	return s == LoanStatusIssued || s == LoanStatusOverdue
}

// IssueRequest is a loan record, from request to return
type IssueRequest struct {
	ID                 int64      `json:"id" db:"id"`
	BookID             int64      `json:"book_id" db:"book_id"`
	StudentID          int64      `json:"student_id" db:"student_id"`
	Status             LoanStatus `json:"status" db:"status"`
	RequestDate        time.Time  `json:"request_date" db:"request_date"`
	IssueDate          *time.Time `json:"issue_date,omitempty" db:"issue_date"`
	ExpectedReturnDate *time.Time `json:"expected_return_date,omitempty" db:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty" db:"actual_return_date"`
	Notes              string     `json:"notes" db:"notes"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// DateOf truncates t to its calendar date at midnight UTC
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// DaysOverdue returns how many days past the expected return date today is.
// Returning on the expected date itself is on time.
func (r *IssueRequest) DaysOverdue(today time.Time) int {
	if r.ExpectedReturnDate == nil {
		return 0
	}
	days := DaysBetween(*r.ExpectedReturnDate, today)
	if days < 0 {
		return 0
	}
	return days
}

// DaysRemaining is defined only for issued loans; negative means overdue
// but not yet reevaluated.
func (r *IssueRequest) DaysRemaining(today time.Time) (int, bool) {
	if r.Status != LoanStatusIssued || r.ExpectedReturnDate == nil {
		return 0, false
	}
	return DaysBetween(today, *r.ExpectedReturnDate), true
}

// DeriveStatus computes the status a loan should have on the given day.
// Only an issued loan past its expected return date changes (to overdue).
func DeriveStatus(r *IssueRequest, today time.Time) LoanStatus {
	if r.Status == LoanStatusIssued && r.DaysOverdue(today) > 0 {
		return LoanStatusOverdue
	}
	return r.Status
}
