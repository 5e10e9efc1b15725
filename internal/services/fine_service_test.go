package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/libraryhub/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func newTestFineService(t *testing.T, now func() time.Time) (*FineService, sqlmock.Sqlmock) {
	t.Helper()
	db, dbMock := newMockDB(t)
	svc := NewFineService(db, allowAll(), testConfig(), nil, nil)
	svc.now = now
	return svc, dbMock
}

func TestFineService_UpsertOverdueFine(t *testing.T) {
	loan := &models.IssueRequest{ID: 5, StudentID: 42, BookID: 7, Status: models.LoanStatusOverdue}

	t.Run("reevaluating twice keeps one row and a stable amount", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(20, 9))

		for i := 0; i < 2; i++ {
			dbMock.ExpectBegin()
			dbMock.ExpectQuery(q("ON CONFLICT (issue_request_id) DO UPDATE")).
				WithArgs(int64(5), int64(42), dec("30"), 6, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
				WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))
			dbMock.ExpectCommit()
		}

		first, err := svc.UpsertOverdueFine(context.Background(), loan, 6)
		require.NoError(t, err)
		second, err := svc.UpsertOverdueFine(context.Background(), loan, 6)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.True(t, first.Amount.Equal(second.Amount))
		assert.True(t, dec("30").Equal(second.Amount))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("paid fine is left as it is", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(25, 9))
		paidOn := day(21)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("INSERT INTO fines")).
			WithArgs(int64(5), int64(42), dec("55"), 11, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows(cols(fineColumns)))
		dbMock.ExpectQuery(q("FROM fines WHERE issue_request_id = $1")).
			WithArgs(int64(5)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, paidOn))
		dbMock.ExpectCommit()

		fine, err := svc.UpsertOverdueFine(context.Background(), loan, 11)
		require.NoError(t, err)
		assert.True(t, fine.IsPaid)
		assert.True(t, dec("30").Equal(fine.Amount))
		assert.Equal(t, 6, fine.DaysOverdue)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("non positive days are refused", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(10, 9))

		dbMock.ExpectBegin()
		dbMock.ExpectRollback()

		_, err := svc.UpsertOverdueFine(context.Background(), loan, 0)
		assert.Error(t, err)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestFineService_CreateCustomFine(t *testing.T) {
	t.Run("creates fine and notification together", func(t *testing.T) {
		now := time.Date(2026, 3, 5, 14, 30, 15, 123456000, time.UTC)
		svc, dbMock := newTestFineService(t, func() time.Time { return now })

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("SELECT student_id FROM students WHERE id = $1")).
			WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("STU-001"))
		dbMock.ExpectQuery(q("INSERT INTO fines")).
			WithArgs(int64(42), dec("12.5"), "Damaged cover", "INV-STU-001-20260305143015123456", now).
			WillReturnRows(fineRow(12, nil, "12.50", 0, false, nil))
		dbMock.ExpectExec(q("INSERT INTO notifications")).
			WithArgs(int64(42), "New fine", sqlmock.AnyArg(), models.NotificationFine, now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		dbMock.ExpectCommit()

		fine, err := svc.CreateCustomFine(context.Background(), testAdmin, CustomFineRequest{
			StudentID:   42,
			Amount:      dec("12.5"),
			Description: "Damaged cover",
		})
		require.NoError(t, err)
		assert.Nil(t, fine.IssueRequestID)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("amount must be positive", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(1, 9))

		_, err := svc.CreateCustomFine(context.Background(), testAdmin, CustomFineRequest{
			StudentID:   42,
			Amount:      dec("0"),
			Description: "Nothing",
		})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("amount must fit the column", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(1, 9))

		_, err := svc.CreateCustomFine(context.Background(), testAdmin, CustomFineRequest{
			StudentID:   42,
			Amount:      dec("100000000"),
			Description: "Lost rare edition",
		})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("description is required", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(1, 9))

		_, err := svc.CreateCustomFine(context.Background(), testAdmin, CustomFineRequest{StudentID: 42, Amount: dec("3")})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("notification failure rolls the fine back", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(1, 9))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("SELECT student_id FROM students")).
			WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("STU-001"))
		dbMock.ExpectQuery(q("INSERT INTO fines")).
			WillReturnRows(fineRow(12, nil, "3.00", 0, false, nil))
		dbMock.ExpectExec(q("INSERT INTO notifications")).WillReturnError(sql.ErrConnDone)
		dbMock.ExpectRollback()

		_, err := svc.CreateCustomFine(context.Background(), testAdmin, CustomFineRequest{StudentID: 42, Amount: dec("3"), Description: "Late"})
		assert.ErrorIs(t, err, sql.ErrConnDone)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("students cannot issue fines", func(t *testing.T) {
		db, dbMock := newMockDB(t)
		auth := new(MockAuthorizer)
		auth.On("Authorize", mock.Anything, testStudent, models.IdentityAdmin).Return(ErrForbidden)
		svc := NewFineService(db, auth, testConfig(), nil, nil)

		_, err := svc.CreateCustomFine(context.Background(), testStudent, CustomFineRequest{StudentID: 42, Amount: dec("3"), Description: "x"})
		assert.ErrorIs(t, err, ErrForbidden)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestFineService_MarkPaid(t *testing.T) {
	t.Run("second call reports already paid and changes nothing", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(22, 10))
		paidAt := day(22).Add(10 * time.Hour)

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("FROM fines WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(11)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))
		dbMock.ExpectQuery(q("UPDATE fines SET is_paid = true, payment_date = $1, payment_method = $2, external_tx_id = $3")).
			WithArgs(paidAt, "cash", "", int64(11)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, paidAt))
		dbMock.ExpectCommit()

		fine, err := svc.MarkPaid(context.Background(), testAdmin, 11, MarkPaidRequest{Method: "cash"})
		require.NoError(t, err)
		assert.True(t, fine.IsPaid)
		assert.Equal(t, paidAt, *fine.PaymentDate)

		svc.now = at(23, 8)
		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("FROM fines WHERE id = $1 FOR UPDATE")).
			WithArgs(int64(11)).
			WillReturnRows(fineRow(11, int64(5), "30.00", 6, true, paidAt))
		dbMock.ExpectRollback()

		again, err := svc.MarkPaid(context.Background(), testAdmin, 11, MarkPaidRequest{Method: "card"})
		assert.ErrorIs(t, err, ErrFineAlreadyPaid)
		require.NotNil(t, again)
		assert.Equal(t, paidAt, *again.PaymentDate)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("unknown payment method", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(22, 10))

		_, err := svc.MarkPaid(context.Background(), testAdmin, 11, MarkPaidRequest{Method: "cheque"})
		assert.Equal(t, KindValidation, KindOf(err))
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("missing fine", func(t *testing.T) {
		svc, dbMock := newTestFineService(t, at(22, 10))

		dbMock.ExpectBegin()
		dbMock.ExpectQuery(q("FROM fines WHERE id = $1 FOR UPDATE")).
			WillReturnRows(sqlmock.NewRows(cols(fineColumns)))
		dbMock.ExpectRollback()

		_, err := svc.MarkPaid(context.Background(), testAdmin, 404, MarkPaidRequest{Method: "cash"})
		assert.ErrorIs(t, err, ErrFineNotFound)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})
}

func TestFineService_DeleteFine(t *testing.T) {
	svc, dbMock := newTestFineService(t, at(1, 9))

	dbMock.ExpectExec(q("DELETE FROM fines WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, svc.DeleteFine(context.Background(), testAdmin, 11))

	dbMock.ExpectExec(q("DELETE FROM fines WHERE id = $1")).
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, svc.DeleteFine(context.Background(), testAdmin, 11), ErrFineNotFound)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestFineService_ListFines(t *testing.T) {
	svc, dbMock := newTestFineService(t, at(1, 9))

	rows := fineRow(11, int64(5), "30.00", 6, false, nil).
		AddRow(int64(12), nil, int64(42), "12.50", 0, "Damaged cover", true, day(3), "cash", "", "INV-STU-001-1", day(0), day(0)).
		AddRow(int64(13), nil, int64(43), "5.25", 0, "Lost card", false, nil, "", "", "INV-STU-002-1", day(0), day(0))
	dbMock.ExpectQuery(q("FROM fines ORDER BY created_at DESC")).WillReturnRows(rows)

	summary, err := svc.ListFines(context.Background(), testAdmin)
	require.NoError(t, err)
	assert.Len(t, summary.Fines, 3)
	assert.True(t, dec("35.25").Equal(summary.TotalUnpaid))
	assert.True(t, dec("12.50").Equal(summary.TotalPaid))
	assert.Equal(t, 2, summary.PendingCount)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestFineService_StudentFines(t *testing.T) {
	svc, dbMock := newTestFineService(t, at(1, 9))

	dbMock.ExpectQuery(q("FROM fines WHERE student_id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(fineRow(11, int64(5), "30.00", 6, false, nil))

	summary, err := svc.StudentFines(context.Background(), testStudent)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.PendingCount)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}

func TestFineService_ExportFines(t *testing.T) {
	svc, dbMock := newTestFineService(t, at(1, 9))

	rows := sqlmock.NewRows([]string{"invoice_number", "student_id", "first_name", "last_name", "amount", "days_overdue",
		"description", "is_paid", "payment_method", "payment_date", "created_at"}).
		AddRow("INV-AUTO-5-1", "STU-001", "John", "Doe", "30.00", 6, "Overdue fine", false, "", nil, day(0)).
		AddRow("INV-STU-001-1", "STU-001", "John", "Doe", "12.50", 0, "Damaged cover", true, "cash", day(1), day(0))
	dbMock.ExpectQuery(q("FROM fines f JOIN students st ON st.id = f.student_id")).WillReturnRows(rows)

	buf, filename, err := svc.ExportFines(context.Background(), testAdmin)
	require.NoError(t, err)
	assert.Equal(t, "fines_20260302.xlsx", filename)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	header, _ := f.GetCellValue("Fines", "A1")
	assert.Equal(t, "Invoice", header)
	invoice, _ := f.GetCellValue("Fines", "A3")
	assert.Equal(t, "INV-STU-001-1", invoice)
	status, _ := f.GetCellValue("Fines", "G3")
	assert.Equal(t, "Paid", status)
	student, _ := f.GetCellValue("Fines", "C2")
	assert.Equal(t, "John Doe", student)

	amount, err := f.GetCellValue("Fines", "D3", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "12.50", amount)
	formatted, _ := f.GetCellValue("Fines", "D2")
	assert.Equal(t, "30.00", formatted)
	assert.NoError(t, dbMock.ExpectationsWereMet())
}
