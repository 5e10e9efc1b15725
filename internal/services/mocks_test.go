package services

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/libraryhub/backend/internal/config"
	"github.com/libraryhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, actor models.Identity, want models.IdentityKind) error {
	args := m.Called(ctx, actor, want)
	return args.Error(0)
}

var (
	testAdmin   = models.AdminIdentity(1)
	testStudent = models.StudentIdentity(42)
)

// allowAll lets any identity through
func allowAll() *MockAuthorizer {
	auth := new(MockAuthorizer)
	auth.On("Authorize", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return auth
}

// day returns midnight UTC n days after 2026-03-01, plus an optional hour
func day(n int) time.Time {
	return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func at(n, hour int) func() time.Time {
	return func() time.Time { return day(n).Add(time.Duration(hour) * time.Hour) }
}

func q(sql string) string {
	return regexp.QuoteMeta(sql)
}

func cols(list string) []string {
	return strings.Split(list, ", ")
}

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func testConfig() *config.LendingConfig {
	return config.DefaultLendingConfig()
}

func bookRow(id int64, total, available int) *sqlmock.Rows {
	return sqlmock.NewRows(cols(bookColumns)).
		AddRow(id, "The Go Programming Language", int64(3), "9780134190440", "Addison-Wesley", nil,
			"Programming", "", total, available, day(0), day(0))
}

type loanFixture struct {
	id, bookID, studentID int64
	status                models.LoanStatus
	issued                *time.Time
	expected              *time.Time
	returned              *time.Time
}

func (f loanFixture) row() *sqlmock.Rows {
	return sqlmock.NewRows(cols(loanColumns)).AddRow(f.values()...)
}

func (f loanFixture) values() []driver.Value {
	var issued, expected, returned driver.Value
	if f.issued != nil {
		issued = *f.issued
	}
	if f.expected != nil {
		expected = *f.expected
	}
	if f.returned != nil {
		returned = *f.returned
	}
	return []driver.Value{f.id, f.bookID, f.studentID, string(f.status), day(0), issued, expected, returned, "", day(0), day(0)}
}

func (f loanFixture) with(status models.LoanStatus) loanFixture {
	f.status = status
	return f
}

// issuedLoan was issued on day 0 and is due on day 14
func issuedLoan(id int64) loanFixture {
	issued, expected := day(0), day(14)
	return loanFixture{id: id, bookID: 7, studentID: 42, status: models.LoanStatusIssued, issued: &issued, expected: &expected}
}

func fineRow(id int64, requestID any, amount string, days int, paid bool, paidOn any) *sqlmock.Rows {
	method := ""
	if paid {
		method = models.PaymentMethodCash
	}
	return sqlmock.NewRows(cols(fineColumns)).
		AddRow(id, requestID, int64(42), amount, days, "Overdue fine", paid, paidOn, method, "", "INV-AUTO-5-20260321000000", day(0), day(0))
}

func studentRow(id int64, status string, isActive bool, hash string) *sqlmock.Rows {
	return sqlmock.NewRows(cols(studentColumns)).
		AddRow(id, "STU-001", "jdoe", hash, "John", "Doe", "jdoe@example.com", "", "CSE", status, isActive, nil, day(0), day(0))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
