package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"go.uber.org/zap"
)

// LoanService owns the issue request lifecycle and is the only writer of
// books.available_copies after a book is created.
type LoanService struct {
	db     *sql.DB
	auth   Authorizer
	fines  *FineService
	logger *zap.Logger
	audit  *audit.AuditLogger
	cfg    *config.LendingConfig
	now    func() time.Time
}

// Loan list filters
const (
	LoanFilterAll      = "all"
	LoanFilterPending  = "pending"
	LoanFilterActive   = "active"
	LoanFilterOverdue  = "overdue"
	LoanFilterReturned = "returned"
)

// LoanView is an issue request as presented to callers
type LoanView struct {
	models.IssueRequest
	BookTitle     string `json:"book_title"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
	DaysOverdue   int    `json:"days_overdue"`
}

// ReturnResult is the returned loan and the fine it accrued, if any
type ReturnResult struct {
	Loan *models.IssueRequest `json:"loan"`
	Fine *models.Fine         `json:"fine,omitempty"`
}

func NewLoanService(db *sql.DB, auth Authorizer, fines *FineService, cfg *config.LendingConfig, auditLogger *audit.AuditLogger, logger *zap.Logger) *LoanService {
	if cfg == nil {
		cfg = config.DefaultLendingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(logger)
	}
	return &LoanService{
		db:     db,
		auth:   auth,
		fines:  fines,
		logger: logger.Named("loans"),
		audit:  auditLogger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// RequestLoan files a request for the book. Copies are only taken when an
// admin accepts it.
func (s *LoanService) RequestLoan(ctx context.Context, actor models.Identity, bookID int64) (*models.IssueRequest, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	book, err := lockBook(ctx, tx, bookID)
	if err != nil {
		return nil, err
	}
	if !book.IsAvailable() {
		return nil, ErrUnavailable
	}

	var duplicate bool
	err = tx.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM issue_requests WHERE student_id = $1 AND book_id = $2 AND status IN ('requested', 'issued', 'overdue'))",
		actor.ID, bookID).Scan(&duplicate)
	if err != nil {
		return nil, fmt.Errorf("check active request: %w", err)
	}
	if duplicate {
		return nil, ErrDuplicateRequest
	}

	unpaid, err := totalUnpaidFines(ctx, tx, actor.ID)
	if err != nil {
		return nil, err
	}
	if unpaid.IsPositive() {
		return nil, ErrOutstandingFine
	}

	now := s.now()
	row := tx.QueryRowContext(ctx,
		`INSERT INTO issue_requests (book_id, student_id, status, request_date, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', $4, $4) RETURNING `+loanColumns,
		bookID, actor.ID, models.LoanStatusRequested, now)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("create issue request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogTransition(actor.String(), loan.ID, "", string(loan.Status))
	return loan, nil
}

// AcceptRequest issues the book, taking one copy off the shelf
func (s *LoanService) AcceptRequest(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	loan, err := lockLoan(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusRequested {
		return nil, ErrInvalidTransition
	}

	book, err := lockBook(ctx, tx, loan.BookID)
	if err != nil {
		return nil, err
	}
	if !book.IsAvailable() {
		return nil, ErrNoCopiesLeft
	}

	now := s.now()
	result, err := tx.ExecContext(ctx,
		"UPDATE books SET available_copies = available_copies - 1, updated_at = $1 WHERE id = $2 AND available_copies > 0",
		now, book.ID)
	if err != nil {
		return nil, fmt.Errorf("take copy: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, ErrNoCopiesLeft
	}

	today := models.DateOf(now)
	expected := today.AddDate(0, 0, s.cfg.LoanPeriodDays)
	row := tx.QueryRowContext(ctx,
		"UPDATE issue_requests SET status = $1, issue_date = $2, expected_return_date = $3, updated_at = $4 WHERE id = $5 RETURNING "+loanColumns,
		models.LoanStatusIssued, today, expected, now, loan.ID)
	issued, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("issue request: %w", err)
	}

	message := fmt.Sprintf("%q has been issued to you. Please return it by %s.", book.Title, expected.Format("2006-01-02"))
	if err := notify(ctx, tx, loan.StudentID, models.NotificationIssue, "Book issued", message, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogTransition(actor.String(), issued.ID, string(loan.Status), string(issued.Status))
	return issued, nil
}

func (s *LoanService) RejectRequest(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	loan, err := lockLoan(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if loan.Status != models.LoanStatusRequested {
		return nil, ErrInvalidTransition
	}

	row := tx.QueryRowContext(ctx,
		"UPDATE issue_requests SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+loanColumns,
		models.LoanStatusRejected, s.now(), loan.ID)
	rejected, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("reject request: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogTransition(actor.String(), rejected.ID, string(loan.Status), string(rejected.Status))
	return rejected, nil
}

// ReturnBook closes the loan. A late return settles the overdue fine at its
// final amount before the copy goes back on the shelf.
func (s *LoanService) ReturnBook(ctx context.Context, actor models.Identity, requestID int64) (*ReturnResult, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	loan, err := lockLoan(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if !loan.Status.OnLoan() {
		return nil, ErrInvalidTransition
	}

	now := s.now()
	today := models.DateOf(now)

	var fine *models.Fine
	if days := loan.DaysOverdue(today); days > 0 {
		if fine, err = s.fines.upsertOverdueFineTx(ctx, tx, actor.String(), loan, days); err != nil {
			return nil, err
		}
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE books SET available_copies = available_copies + 1, updated_at = $1 WHERE id = $2 AND available_copies < total_copies",
		now, loan.BookID)
	if err != nil {
		return nil, fmt.Errorf("restore copy: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		s.logger.Error("return would exceed total copies", zap.Int64("book_id", loan.BookID), zap.Int64("request_id", loan.ID))
		return nil, ErrCopyCountViolation
	}

	row := tx.QueryRowContext(ctx,
		"UPDATE issue_requests SET status = $1, actual_return_date = $2, updated_at = $3 WHERE id = $4 RETURNING "+loanColumns,
		models.LoanStatusReturned, today, now, loan.ID)
	returned, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("return request: %w", err)
	}

	message := "Your book has been returned. Thank you."
	if fine != nil && !fine.IsPaid {
		message = fmt.Sprintf("Your book was returned %d day(s) late. A fine of %s %s is due.",
			fine.DaysOverdue, fine.Amount.StringFixed(2), s.cfg.Currency)
	}
	if err := notify(ctx, tx, loan.StudentID, models.NotificationReturn, "Book returned", message, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogTransition(actor.String(), returned.ID, string(loan.Status), string(returned.Status))
	return &ReturnResult{Loan: returned, Fine: fine}, nil
}

// ReevaluateOverdue is the admin entry point to reevaluate
func (s *LoanService) ReevaluateOverdue(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	return s.reevaluate(ctx, actor.String(), requestID)
}

// reevaluate marks a late loan overdue and brings its fine up to date. It is
// idempotent: loans that are on time, returned or rejected are left alone.
func (s *LoanService) reevaluate(ctx context.Context, actor string, requestID int64) (*models.IssueRequest, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	loan, err := lockLoan(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	today := models.DateOf(now)
	days := loan.DaysOverdue(today)
	if !loan.Status.OnLoan() || days == 0 {
		return loan, nil
	}

	if next := models.DeriveStatus(loan, today); next != loan.Status {
		row := tx.QueryRowContext(ctx,
			"UPDATE issue_requests SET status = $1, updated_at = $2 WHERE id = $3 RETURNING "+loanColumns,
			next, now, loan.ID)
		updated, err := scanLoan(row)
		if err != nil {
			return nil, fmt.Errorf("mark overdue: %w", err)
		}
		s.audit.LogTransition(actor, loan.ID, string(loan.Status), string(next))
		loan = updated
	}

	if _, err := s.fines.upsertOverdueFineTx(ctx, tx, actor, loan, days); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return loan, nil
}

const loanViewQuery = `SELECT ir.id, ir.book_id, ir.student_id, ir.status, ir.request_date, ir.issue_date, ir.expected_return_date,
	ir.actual_return_date, ir.notes, ir.created_at, ir.updated_at, b.title
	FROM issue_requests ir JOIN books b ON b.id = ir.book_id`

// ListLoans lists requests for admins. Loans out with students are
// reevaluated before they are shown.
func (s *LoanService) ListLoans(ctx context.Context, actor models.Identity, filter string) ([]LoanView, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	var where string
	switch strings.ToLower(strings.TrimSpace(filter)) {
	case "", LoanFilterAll:
		filter = LoanFilterAll
	case LoanFilterPending:
		filter, where = LoanFilterPending, " WHERE ir.status = 'requested'"
	case LoanFilterActive:
		filter, where = LoanFilterActive, " WHERE ir.status IN ('issued', 'overdue')"
	case LoanFilterOverdue:
		filter, where = LoanFilterOverdue, " WHERE ir.status IN ('issued', 'overdue')"
	case LoanFilterReturned:
		filter, where = LoanFilterReturned, " WHERE ir.status = 'returned'"
	default:
		return nil, ValidationError("filter", "filter must be one of all, pending, active, overdue, returned")
	}

	rows, err := s.db.QueryContext(ctx, loanViewQuery+where+" ORDER BY ir.request_date DESC")
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	views, err := s.presentLoans(ctx, actor, rows)
	if err != nil {
		return nil, err
	}

	if filter != LoanFilterOverdue {
		return views, nil
	}
	overdue := views[:0]
	for _, v := range views {
		if v.Status == models.LoanStatusOverdue {
			overdue = append(overdue, v)
		}
	}
	return overdue, nil
}

// StudentLoans lists the acting student's requests
func (s *LoanService) StudentLoans(ctx context.Context, actor models.Identity) ([]LoanView, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, loanViewQuery+" WHERE ir.student_id = $1 ORDER BY ir.request_date DESC", actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list student loans: %w", err)
	}
	return s.presentLoans(ctx, actor, rows)
}

// GetLoan is open to admins and the borrowing student
func (s *LoanService) GetLoan(ctx context.Context, actor models.Identity, requestID int64) (*LoanView, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAnonymous); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, loanViewQuery+" WHERE ir.id = $1", requestID)
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	views, err := s.presentLoans(ctx, actor, rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, ErrLoanNotFound
	}
	if actor.IsStudent() && views[0].StudentID != actor.ID {
		return nil, ErrLoanNotFound
	}
	return &views[0], nil
}

// reevaluateLate brings every loan past its due date up to date, so
// that counts by status reflect overdue loans.
func (s *LoanService) reevaluateLate(ctx context.Context, actor models.Identity) (int, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM issue_requests WHERE status IN ('issued', 'overdue') AND expected_return_date < $1",
		models.DateOf(s.now()))
	if err != nil {
		return 0, fmt.Errorf("find late loans: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan late loan: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("find late loans: %w", err)
	}

	for _, id := range ids {
		if _, err := s.reevaluate(ctx, actor.String(), id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

func (s *LoanService) presentLoans(ctx context.Context, actor models.Identity, rows *sql.Rows) ([]LoanView, error) {
	views, err := collect(rows, scanLoanView)
	if err != nil {
		return nil, fmt.Errorf("scan loans: %w", err)
	}

	today := models.DateOf(s.now())
	for i := range views {
		v := &views[i]
		if v.Status.OnLoan() && v.IssueRequest.DaysOverdue(today) > 0 {
			loan, err := s.reevaluate(ctx, actor.String(), v.ID)
			if err != nil {
				return nil, err
			}
			v.IssueRequest = *loan
		}
		v.DaysOverdue = v.IssueRequest.DaysOverdue(today)
		if remaining, ok := v.IssueRequest.DaysRemaining(today); ok {
			v.DaysRemaining = &remaining
		}
	}
	return views, nil
}

func scanLoanView(row rowScanner) (*LoanView, error) {
	var (
		v                                   LoanView
		issueDate, expectedDate, actualDate sql.NullTime
	)
	err := row.Scan(&v.ID, &v.BookID, &v.StudentID, &v.Status, &v.RequestDate, &issueDate,
		&expectedDate, &actualDate, &v.Notes, &v.CreatedAt, &v.UpdatedAt, &v.BookTitle)
	if err != nil {
		return nil, err
	}
	v.IssueDate = timePtr(issueDate)
	v.ExpectedReturnDate = timePtr(expectedDate)
	v.ActualReturnDate = timePtr(actualDate)
	return &v, nil
}

func lockLoan(ctx context.Context, tx *sql.Tx, id int64) (*models.IssueRequest, error) {
	row := tx.QueryRowContext(ctx, "SELECT "+loanColumns+" FROM issue_requests WHERE id = $1 FOR UPDATE", id)
	loan, err := scanLoan(row)
	if err != nil {
		return nil, notFound(err, ErrLoanNotFound, "lock issue request")
	}
	return loan, nil
}
