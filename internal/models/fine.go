package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment methods accepted for fines
const (
	PaymentMethodCash   = "cash"
	PaymentMethodCard   = "card"
	PaymentMethodBkash  = "bkash"
	PaymentMethodOnline = "online"
)

// Fine is a monetary charge against a student. IssueRequestID is nil for
// custom fines created by an admin.
type Fine struct {
	ID             int64           `json:"id" db:"id"`
	IssueRequestID *int64          `json:"issue_request_id,omitempty" db:"issue_request_id"`
	StudentID      int64           `json:"student_id" db:"student_id"`
	Amount         decimal.Decimal `json:"amount" db:"amount"`
	DaysOverdue    int             `json:"days_overdue" db:"days_overdue"`
	Description    string          `json:"description" db:"description"`
	IsPaid         bool            `json:"is_paid" db:"is_paid"`
	PaymentDate    *time.Time      `json:"payment_date,omitempty" db:"payment_date"`
	PaymentMethod  string          `json:"payment_method" db:"payment_method"`
	ExternalTxID   string          `json:"external_tx_id,omitempty" db:"external_tx_id"`
	InvoiceNumber  string          `json:"invoice_number" db:"invoice_number"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// FineSummary aggregates fines for the admin overview
type FineSummary struct {
	Fines        []Fine          `json:"fines"`
	TotalUnpaid  decimal.Decimal `json:"total_unpaid"`
	TotalPaid    decimal.Decimal `json:"total_paid"`
	PendingCount int             `json:"pending_count"`
}

// OverdueFineAmount is days × rate, computed in fixed point
func OverdueFineAmount(daysOverdue int, ratePerDay decimal.Decimal) decimal.Decimal {
	if daysOverdue <= 0 {
		return decimal.Zero
	}
	return ratePerDay.Mul(decimal.NewFromInt(int64(daysOverdue)))
}
