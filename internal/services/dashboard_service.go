package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/libraryhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const recentLoansLimit = 5

// LibrarySummary is the public headline figures of the library
type LibrarySummary struct {
	TotalBooks    int `json:"total_books"`
	ActiveMembers int `json:"active_members"`
	ActiveBorrows int `json:"active_borrows"`
	Authors       int `json:"authors"`
}

// AdminDashboard is the circulation overview for administrators
type AdminDashboard struct {
	TotalBooks      int             `json:"total_books"`
	ActiveStudents  int             `json:"active_students"`
	ActiveIssues    int             `json:"active_issues"`
	PendingRequests int             `json:"pending_requests"`
	OverdueIssues   int             `json:"overdue_issues"`
	UnpaidFines     decimal.Decimal `json:"unpaid_fines"`
	RecentRequests  []LoanView      `json:"recent_requests"`
	RecentIssues    []LoanView      `json:"recent_issues"`
}

// StudentDashboard is a student's own lending overview
type StudentDashboard struct {
	Student         *models.Student `json:"student"`
	ActiveIssues    []LoanView      `json:"active_issues"`
	PendingRequests []LoanView      `json:"pending_requests"`
	UnpaidFines     []models.Fine   `json:"unpaid_fines"`
	TotalUnpaid     decimal.Decimal `json:"total_unpaid"`
}

// DashboardService aggregates counts across the catalog, loans and fines.
// Late loans are reevaluated first so overdue figures are current.
type DashboardService struct {
	db     *sql.DB
	auth   Authorizer
	loans  *LoanService
	logger *zap.Logger
}

func NewDashboardService(db *sql.DB, auth Authorizer, loans *LoanService, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		db:     db,
		auth:   auth,
		loans:  loans,
		logger: logger.Named("dashboard"),
	}
}

// Summary is open to everyone
func (s *DashboardService) Summary(ctx context.Context) (*LibrarySummary, error) {
	var sum LibrarySummary
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM books),
		(SELECT COUNT(*) FROM students WHERE status = 'active'),
		(SELECT COUNT(*) FROM issue_requests WHERE status = 'issued'),
		(SELECT COUNT(*) FROM authors)`).
		Scan(&sum.TotalBooks, &sum.ActiveMembers, &sum.ActiveBorrows, &sum.Authors)
	if err != nil {
		return nil, fmt.Errorf("library summary: %w", err)
	}
	return &sum, nil
}

func (s *DashboardService) AdminDashboard(ctx context.Context, actor models.Identity) (*AdminDashboard, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	if n, err := s.loans.reevaluateLate(ctx, actor); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.Info("late loans reevaluated", zap.Int("count", n))
	}

	var d AdminDashboard
	err := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM books),
		(SELECT COUNT(*) FROM students WHERE status = 'active'),
		(SELECT COUNT(*) FROM issue_requests WHERE status = 'issued'),
		(SELECT COUNT(*) FROM issue_requests WHERE status = 'requested'),
		(SELECT COUNT(*) FROM issue_requests WHERE status = 'overdue'),
		(SELECT COALESCE(SUM(amount), 0) FROM fines WHERE is_paid = false)`).
		Scan(&d.TotalBooks, &d.ActiveStudents, &d.ActiveIssues, &d.PendingRequests, &d.OverdueIssues, &d.UnpaidFines)
	if err != nil {
		return nil, fmt.Errorf("dashboard counts: %w", err)
	}

	d.RecentRequests, err = s.recentLoans(ctx, actor, " WHERE ir.status = 'requested' ORDER BY ir.request_date DESC LIMIT $1")
	if err != nil {
		return nil, err
	}
	d.RecentIssues, err = s.recentLoans(ctx, actor, " WHERE ir.status = 'issued' ORDER BY ir.issue_date DESC LIMIT $1")
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *DashboardService) recentLoans(ctx context.Context, actor models.Identity, clause string) ([]LoanView, error) {
	rows, err := s.db.QueryContext(ctx, loanViewQuery+clause, recentLoansLimit)
	if err != nil {
		return nil, fmt.Errorf("recent loans: %w", err)
	}
	return s.loans.presentLoans(ctx, actor, rows)
}

func (s *DashboardService) StudentDashboard(ctx context.Context, actor models.Identity) (*StudentDashboard, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", actor.ID)
	student, err := scanStudent(row)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "load student")
	}

	rows, err := s.db.QueryContext(ctx,
		loanViewQuery+" WHERE ir.student_id = $1 AND ir.status IN ('requested', 'issued', 'overdue') ORDER BY ir.request_date DESC",
		actor.ID)
	if err != nil {
		return nil, fmt.Errorf("student loans: %w", err)
	}
	views, err := s.loans.presentLoans(ctx, actor, rows)
	if err != nil {
		return nil, err
	}

	d := &StudentDashboard{
		Student:         student,
		ActiveIssues:    []LoanView{},
		PendingRequests: []LoanView{},
	}
	for _, v := range views {
		if v.Status == models.LoanStatusRequested {
			d.PendingRequests = append(d.PendingRequests, v)
		} else {
			d.ActiveIssues = append(d.ActiveIssues, v)
		}
	}

	// fines are read after the loans so overdue amounts include today
	fineRows, err := s.db.QueryContext(ctx,
		"SELECT "+fineColumns+" FROM fines WHERE student_id = $1 AND is_paid = false ORDER BY created_at DESC",
		actor.ID)
	if err != nil {
		return nil, fmt.Errorf("student fines: %w", err)
	}
	d.UnpaidFines, err = collect(fineRows, scanFine)
	if err != nil {
		return nil, fmt.Errorf("scan fines: %w", err)
	}
	d.TotalUnpaid = decimal.Zero
	for _, f := range d.UnpaidFines {
		d.TotalUnpaid = d.TotalUnpaid.Add(f.Amount)
	}
	return d, nil
}
