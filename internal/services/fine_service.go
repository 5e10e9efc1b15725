package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/libraryhub/backend/internal/audit"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

type FineService struct {
	db        *sql.DB
	auth      Authorizer
	validator *ValidationHelper
	logger    *zap.Logger
	audit     *audit.AuditLogger
	cfg       *config.LendingConfig
	now       func() time.Time
}

// CustomFineRequest is an admin-issued charge not tied to a loan
type CustomFineRequest struct {
	StudentID   int64           `json:"student_id" validate:"required,gt=0"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"required,max=500"`
}

// MarkPaidRequest records how a fine was settled
type MarkPaidRequest struct {
	Method     string `json:"payment_method" validate:"required,oneof=cash card bkash online"`
	ExternalID string `json:"external_tx_id" validate:"max=100"`
}

func NewFineService(db *sql.DB, auth Authorizer, cfg *config.LendingConfig, auditLogger *audit.AuditLogger, logger *zap.Logger) *FineService {
	if cfg == nil {
		cfg = config.DefaultLendingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewAuditLogger(logger)
	}
	return &FineService{
		db:        db,
		auth:      auth,
		validator: NewValidationHelper(),
		logger:    logger.Named("fines"),
		audit:     auditLogger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// UpsertOverdueFine sets the request's fine to days × rate in its own transaction
func (s *FineService) UpsertOverdueFine(ctx context.Context, loan *models.IssueRequest, daysOverdue int) (*models.Fine, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	fine, err := s.upsertOverdueFineTx(ctx, tx, "system", loan, daysOverdue)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return fine, nil
}

// upsertOverdueFineTx writes the one fine a request may have. The amount is
// recomputed from days, never added to. A paid fine, or one already counting
// more days, is left as it is and returned.
func (s *FineService) upsertOverdueFineTx(ctx context.Context, tx *sql.Tx, actor string, loan *models.IssueRequest, daysOverdue int) (*models.Fine, error) {
	if daysOverdue <= 0 {
		return nil, fmt.Errorf("upsert overdue fine: days overdue must be positive, got %d", daysOverdue)
	}

	now := s.now()
	amount := models.OverdueFineAmount(daysOverdue, s.cfg.FineRatePerDay)
	invoice := fmt.Sprintf("INV-AUTO-%d-%s", loan.ID, now.Format("20060102150405"))
	description := fmt.Sprintf("Overdue fine: %d day(s) late", daysOverdue)

	row := tx.QueryRowContext(ctx,
		`INSERT INTO fines (issue_request_id, student_id, amount, days_overdue, description, is_paid, invoice_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7, $7)
		ON CONFLICT (issue_request_id) DO UPDATE
		SET amount = EXCLUDED.amount, days_overdue = EXCLUDED.days_overdue, description = EXCLUDED.description, updated_at = EXCLUDED.updated_at
		WHERE fines.is_paid = false AND fines.days_overdue <= EXCLUDED.days_overdue
		RETURNING `+fineColumns,
		loan.ID, loan.StudentID, amount, daysOverdue, description, invoice, now)
	fine, err := scanFine(row)
	if errors.Is(err, sql.ErrNoRows) {
		row = tx.QueryRowContext(ctx, "SELECT "+fineColumns+" FROM fines WHERE issue_request_id = $1", loan.ID)
		if fine, err = scanFine(row); err != nil {
			return nil, fmt.Errorf("load existing fine: %w", err)
		}
		return fine, nil
	}
	if err != nil {
		return nil, fmt.Errorf("upsert overdue fine: %w", err)
	}

	s.audit.LogFine(actor, fine.ID, loan.ID, fine.Amount, "ACCRUED")
	return fine, nil
}

// CreateCustomFine charges a student and notifies them in one transaction
func (s *FineService) CreateCustomFine(ctx context.Context, actor models.Identity, req CustomFineRequest) (*models.Fine, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&req); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, ValidationError("amount", "amount must be greater than zero")
	}
	amount := req.Amount.Round(2)
	if amount.GreaterThan(maxFineAmount) {
		return nil, ValidationError("amount", "amount must not exceed "+maxFineAmount.StringFixed(2))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var studentCode string
	err = tx.QueryRowContext(ctx, "SELECT student_id FROM students WHERE id = $1", req.StudentID).Scan(&studentCode)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "load student")
	}

	now := s.now()
	invoice := fmt.Sprintf("INV-%s-%s%06d", studentCode, now.Format("20060102150405"), now.Nanosecond()/1000)
	row := tx.QueryRowContext(ctx,
		`INSERT INTO fines (issue_request_id, student_id, amount, days_overdue, description, is_paid, invoice_number, created_at, updated_at)
		VALUES (NULL, $1, $2, 0, $3, false, $4, $5, $5) RETURNING `+fineColumns,
		req.StudentID, amount, req.Description, invoice, now)
	fine, err := scanFine(row)
	if err != nil {
		if isUniqueViolation(err, "fines_invoice_number_key") {
			return nil, ValidationError("invoice_number", "invoice number collision, retry")
		}
		return nil, fmt.Errorf("create fine: %w", err)
	}

	message := fmt.Sprintf("A fine of %s %s has been added to your account: %s", amount.StringFixed(2), s.cfg.Currency, req.Description)
	if err := notify(ctx, tx, req.StudentID, models.NotificationFine, "New fine", message, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	s.audit.LogFine(actor.String(), fine.ID, 0, fine.Amount, "ISSUED")
	return fine, nil
}

// MarkPaid settles a fine on behalf of an admin
func (s *FineService) MarkPaid(ctx context.Context, actor models.Identity, fineID int64, req MarkPaidRequest) (*models.Fine, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&req); err != nil {
		return nil, err
	}
	return s.markPaid(ctx, actor.String(), fineID, req.Method, req.ExternalID)
}

// markPaid returns the fine with ErrFineAlreadyPaid, and writes nothing, when
// the fine was settled before.
func (s *FineService) markPaid(ctx context.Context, actor string, fineID int64, method, externalID string) (*models.Fine, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+fineColumns+" FROM fines WHERE id = $1 FOR UPDATE", fineID)
	fine, err := scanFine(row)
	if err != nil {
		return nil, notFound(err, ErrFineNotFound, "lock fine")
	}
	if fine.IsPaid {
		return fine, ErrFineAlreadyPaid
	}

	now := s.now()
	row = tx.QueryRowContext(ctx,
		"UPDATE fines SET is_paid = true, payment_date = $1, payment_method = $2, external_tx_id = $3, updated_at = $1 WHERE id = $4 RETURNING "+fineColumns,
		now, method, externalID, fineID)
	if fine, err = scanFine(row); err != nil {
		return nil, fmt.Errorf("mark fine paid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	var loanID int64
	if fine.IssueRequestID != nil {
		loanID = *fine.IssueRequestID
	}
	s.audit.LogFine(actor, fine.ID, loanID, fine.Amount, "PAID")
	return fine, nil
}

func (s *FineService) DeleteFine(ctx context.Context, actor models.Identity, fineID int64) error {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM fines WHERE id = $1", fineID)
	if err != nil {
		return fmt.Errorf("delete fine: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrFineNotFound
	}
	s.audit.LogFine(actor.String(), fineID, 0, decimal.Zero, "DELETED")
	return nil
}

func (s *FineService) getFine(ctx context.Context, fineID int64) (*models.Fine, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fineColumns+" FROM fines WHERE id = $1", fineID)
	fine, err := scanFine(row)
	if err != nil {
		return nil, notFound(err, ErrFineNotFound, "get fine")
	}
	return fine, nil
}

// ListFines returns every fine with paid and unpaid totals
func (s *FineService) ListFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+fineColumns+" FROM fines ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list fines: %w", err)
	}
	fines, err := collect(rows, scanFine)
	if err != nil {
		return nil, err
	}
	return summarize(fines), nil
}

// StudentFines returns the acting student's fines
func (s *FineService) StudentFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityStudent); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+fineColumns+" FROM fines WHERE student_id = $1 ORDER BY created_at DESC", actor.ID)
	if err != nil {
		return nil, fmt.Errorf("list student fines: %w", err)
	}
	fines, err := collect(rows, scanFine)
	if err != nil {
		return nil, err
	}
	return summarize(fines), nil
}

func summarize(fines []models.Fine) *models.FineSummary {
	summary := &models.FineSummary{Fines: fines, TotalUnpaid: decimal.Zero, TotalPaid: decimal.Zero}
	for _, f := range fines {
		if f.IsPaid {
			summary.TotalPaid = summary.TotalPaid.Add(f.Amount)
		} else {
			summary.TotalUnpaid = summary.TotalUnpaid.Add(f.Amount)
			summary.PendingCount++
		}
	}
	return summary
}

const fineAmountColumn = "D"

// largest value a NUMERIC(10,2) column holds
var maxFineAmount = decimal.RequireFromString("99999999.99")

var fineExportHeaders = []string{"Invoice", "Student ID", "Student", "Amount", "Days Overdue", "Description", "Status", "Method", "Paid On", "Created"}

// ExportFines renders every fine as an xlsx workbook
func (s *FineService) ExportFines(ctx context.Context, actor models.Identity) (*bytes.Buffer, string, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, "", err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT f.invoice_number, st.student_id, st.first_name, st.last_name, f.amount, f.days_overdue, f.description,
		f.is_paid, f.payment_method, f.payment_date, f.created_at
		FROM fines f JOIN students st ON st.id = f.student_id ORDER BY f.created_at DESC`)
	if err != nil {
		return nil, "", fmt.Errorf("export fines: %w", err)
	}
	defer rows.Close()

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Fines"
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, "", fmt.Errorf("drop default sheet: %w", err)
	}

	for col, width := range map[string]float64{"A": 34, "C": 24, "F": 40} {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, "", fmt.Errorf("set column width: %w", err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, "", fmt.Errorf("header style: %w", err)
	}
	// builtin format 2 is "0.00"
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 2})
	if err != nil {
		return nil, "", fmt.Errorf("amount style: %w", err)
	}

	for i, h := range fineExportHeaders {
		if err := f.SetCellValue(sheetName, cell(colName(i), 1), h); err != nil {
			return nil, "", fmt.Errorf("write header: %w", err)
		}
	}
	if err := f.SetCellStyle(sheetName, "A1", cell(colName(len(fineExportHeaders)-1), 1), headerStyle); err != nil {
		return nil, "", fmt.Errorf("style header: %w", err)
	}

	row := 2
	for rows.Next() {
		var (
			invoice, studentCode, first, last, description, method string
			amount                                                 decimal.Decimal
			days                                                   int
			paid                                                   bool
			paidOn                                                 sql.NullTime
			created                                                time.Time
		)
		if err := rows.Scan(&invoice, &studentCode, &first, &last, &amount, &days, &description, &paid, &method, &paidOn, &created); err != nil {
			return nil, "", fmt.Errorf("scan fine: %w", err)
		}

		status, paidCell := "Unpaid", "-"
		if paid {
			status = "Paid"
		}
		if paidOn.Valid {
			paidCell = paidOn.Time.Format("2006-01-02")
		}
		values := []any{invoice, studentCode, first + " " + last, nil, days, description, status, method, paidCell, created.Format("2006-01-02")}
		for i, v := range values {
			if v == nil {
				continue
			}
			if err := f.SetCellValue(sheetName, cell(colName(i), row), v); err != nil {
				return nil, "", fmt.Errorf("write fine row: %w", err)
			}
		}

		// the amount goes in as its decimal text so it is stored as a number
		// without passing through float64
		amountCell := cell(fineAmountColumn, row)
		if err := f.SetCellDefault(sheetName, amountCell, amount.StringFixed(2)); err != nil {
			return nil, "", fmt.Errorf("write amount: %w", err)
		}
		if err := f.SetCellStyle(sheetName, amountCell, amountCell, amountStyle); err != nil {
			return nil, "", fmt.Errorf("style amount: %w", err)
		}
		row++
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("export fines: %w", err)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("failed to write fines workbook", zap.Error(err))
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}

	filename := fmt.Sprintf("fines_%s.xlsx", s.now().Format("20060102"))
	return buf, filename, nil
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}
