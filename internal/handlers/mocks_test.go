package handlers

import (
	"bytes"
	"context"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
	"github.com/stretchr/testify/mock"
)

type MockSessions struct{ mock.Mock }

func (m *MockSessions) Login(ctx context.Context, req services.LoginRequest, previousToken string) (*services.LoginResponse, error) {
	args := m.Called(ctx, req, previousToken)
	resp, _ := args.Get(0).(*services.LoginResponse)
	return resp, args.Error(1)
}

func (m *MockSessions) Logout(ctx context.Context, token string) error {
	return m.Called(ctx, token).Error(0)
}

// CurrentIdentity maps fixed tokens without recording calls
func (m *MockSessions) CurrentIdentity(_ context.Context, token string) models.Identity {
	switch token {
	case "admin-token":
		return models.AdminIdentity(1)
	case "student-token":
		return models.StudentIdentity(42)
	}
	return models.Anonymous
}

type MockMembers struct{ mock.Mock }

func (m *MockMembers) Register(ctx context.Context, req services.RegisterRequest) (*models.Student, error) {
	args := m.Called(ctx, req)
	s, _ := args.Get(0).(*models.Student)
	return s, args.Error(1)
}

func (m *MockMembers) ResetPassword(ctx context.Context, req services.ResetPasswordRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *MockMembers) GetStudent(ctx context.Context, actor models.Identity, id int64) (*models.Student, error) {
	args := m.Called(ctx, actor, id)
	s, _ := args.Get(0).(*models.Student)
	return s, args.Error(1)
}

func (m *MockMembers) SearchStudents(ctx context.Context, actor models.Identity, query string) ([]models.Student, error) {
	args := m.Called(ctx, actor, query)
	s, _ := args.Get(0).([]models.Student)
	return s, args.Error(1)
}

func (m *MockMembers) UpdateStudent(ctx context.Context, actor models.Identity, id int64, in services.StudentUpdate) (*models.Student, error) {
	args := m.Called(ctx, actor, id, in)
	s, _ := args.Get(0).(*models.Student)
	return s, args.Error(1)
}

func (m *MockMembers) UpdateStatus(ctx context.Context, actor models.Identity, id int64, status string) (*models.Student, error) {
	args := m.Called(ctx, actor, id, status)
	s, _ := args.Get(0).(*models.Student)
	return s, args.Error(1)
}

func (m *MockMembers) SetPassword(ctx context.Context, actor models.Identity, id int64, password string) error {
	return m.Called(ctx, actor, id, password).Error(0)
}

func (m *MockMembers) DeleteStudent(ctx context.Context, actor models.Identity, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

type MockCatalog struct{ mock.Mock }

func (m *MockCatalog) CreateAuthor(ctx context.Context, actor models.Identity, in services.AuthorInput) (*models.Author, error) {
	args := m.Called(ctx, actor, in)
	a, _ := args.Get(0).(*models.Author)
	return a, args.Error(1)
}

func (m *MockCatalog) UpdateAuthor(ctx context.Context, actor models.Identity, id int64, in services.AuthorInput) (*models.Author, error) {
	args := m.Called(ctx, actor, id, in)
	a, _ := args.Get(0).(*models.Author)
	return a, args.Error(1)
}

func (m *MockCatalog) DeleteAuthor(ctx context.Context, actor models.Identity, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockCatalog) GetAuthor(ctx context.Context, id int64) (*models.Author, error) {
	args := m.Called(ctx, id)
	a, _ := args.Get(0).(*models.Author)
	return a, args.Error(1)
}

func (m *MockCatalog) ListAuthors(ctx context.Context) ([]models.Author, error) {
	args := m.Called(ctx)
	a, _ := args.Get(0).([]models.Author)
	return a, args.Error(1)
}

func (m *MockCatalog) CreateBook(ctx context.Context, actor models.Identity, in services.BookInput) (*models.Book, error) {
	args := m.Called(ctx, actor, in)
	b, _ := args.Get(0).(*models.Book)
	return b, args.Error(1)
}

func (m *MockCatalog) UpdateBook(ctx context.Context, actor models.Identity, id int64, in services.BookInput) (*models.Book, error) {
	args := m.Called(ctx, actor, id, in)
	b, _ := args.Get(0).(*models.Book)
	return b, args.Error(1)
}

func (m *MockCatalog) DeleteBook(ctx context.Context, actor models.Identity, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockCatalog) ListBooks(ctx context.Context, filter services.BookQuery) ([]models.Book, error) {
	args := m.Called(ctx, filter)
	b, _ := args.Get(0).([]models.Book)
	return b, args.Error(1)
}

func (m *MockCatalog) Categories(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	c, _ := args.Get(0).([]string)
	return c, args.Error(1)
}

func (m *MockCatalog) BookFor(ctx context.Context, actor models.Identity, id int64) (*services.BookView, error) {
	args := m.Called(ctx, actor, id)
	v, _ := args.Get(0).(*services.BookView)
	return v, args.Error(1)
}

type MockLoans struct{ mock.Mock }

func (m *MockLoans) loan(args mock.Arguments) (*models.IssueRequest, error) {
	l, _ := args.Get(0).(*models.IssueRequest)
	return l, args.Error(1)
}

func (m *MockLoans) RequestLoan(ctx context.Context, actor models.Identity, bookID int64) (*models.IssueRequest, error) {
	return m.loan(m.Called(ctx, actor, bookID))
}

func (m *MockLoans) AcceptRequest(ctx context.Context, actor models.Identity, id int64) (*models.IssueRequest, error) {
	return m.loan(m.Called(ctx, actor, id))
}

func (m *MockLoans) RejectRequest(ctx context.Context, actor models.Identity, id int64) (*models.IssueRequest, error) {
	return m.loan(m.Called(ctx, actor, id))
}

func (m *MockLoans) ReevaluateOverdue(ctx context.Context, actor models.Identity, id int64) (*models.IssueRequest, error) {
	return m.loan(m.Called(ctx, actor, id))
}

func (m *MockLoans) ReturnBook(ctx context.Context, actor models.Identity, id int64) (*services.ReturnResult, error) {
	args := m.Called(ctx, actor, id)
	r, _ := args.Get(0).(*services.ReturnResult)
	return r, args.Error(1)
}

func (m *MockLoans) ListLoans(ctx context.Context, actor models.Identity, filter string) ([]services.LoanView, error) {
	args := m.Called(ctx, actor, filter)
	v, _ := args.Get(0).([]services.LoanView)
	return v, args.Error(1)
}

func (m *MockLoans) StudentLoans(ctx context.Context, actor models.Identity) ([]services.LoanView, error) {
	args := m.Called(ctx, actor)
	v, _ := args.Get(0).([]services.LoanView)
	return v, args.Error(1)
}

func (m *MockLoans) GetLoan(ctx context.Context, actor models.Identity, id int64) (*services.LoanView, error) {
	args := m.Called(ctx, actor, id)
	v, _ := args.Get(0).(*services.LoanView)
	return v, args.Error(1)
}

type MockFines struct{ mock.Mock }

func (m *MockFines) CreateCustomFine(ctx context.Context, actor models.Identity, req services.CustomFineRequest) (*models.Fine, error) {
	args := m.Called(ctx, actor, req)
	f, _ := args.Get(0).(*models.Fine)
	return f, args.Error(1)
}

func (m *MockFines) MarkPaid(ctx context.Context, actor models.Identity, id int64, req services.MarkPaidRequest) (*models.Fine, error) {
	args := m.Called(ctx, actor, id, req)
	f, _ := args.Get(0).(*models.Fine)
	return f, args.Error(1)
}

func (m *MockFines) DeleteFine(ctx context.Context, actor models.Identity, id int64) error {
	return m.Called(ctx, actor, id).Error(0)
}

func (m *MockFines) ListFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error) {
	args := m.Called(ctx, actor)
	s, _ := args.Get(0).(*models.FineSummary)
	return s, args.Error(1)
}

func (m *MockFines) StudentFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error) {
	args := m.Called(ctx, actor)
	s, _ := args.Get(0).(*models.FineSummary)
	return s, args.Error(1)
}

func (m *MockFines) ExportFines(ctx context.Context, actor models.Identity) (*bytes.Buffer, string, error) {
	args := m.Called(ctx, actor)
	b, _ := args.Get(0).(*bytes.Buffer)
	return b, args.String(1), args.Error(2)
}

type MockPayments struct{ mock.Mock }

func (m *MockPayments) InitiatePayment(ctx context.Context, actor models.Identity, fineID int64) (*services.PaymentInstruction, error) {
	args := m.Called(ctx, actor, fineID)
	p, _ := args.Get(0).(*services.PaymentInstruction)
	return p, args.Error(1)
}

func (m *MockPayments) OnPaymentCallback(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error) {
	args := m.Called(ctx, req)
	r, _ := args.Get(0).(*services.CallbackResult)
	return r, args.Error(1)
}

type MockNotifications struct{ mock.Mock }

func (m *MockNotifications) ListNotifications(ctx context.Context, actor models.Identity) ([]models.Notification, error) {
	args := m.Called(ctx, actor)
	n, _ := args.Get(0).([]models.Notification)
	return n, args.Error(1)
}

func (m *MockNotifications) MarkNotificationRead(ctx context.Context, actor models.Identity, id int64) (*models.Notification, error) {
	args := m.Called(ctx, actor, id)
	n, _ := args.Get(0).(*models.Notification)
	return n, args.Error(1)
}

type MockDashboards struct{ mock.Mock }

func (m *MockDashboards) Summary(ctx context.Context) (*services.LibrarySummary, error) {
	args := m.Called(ctx)
	s, _ := args.Get(0).(*services.LibrarySummary)
	return s, args.Error(1)
}

func (m *MockDashboards) AdminDashboard(ctx context.Context, actor models.Identity) (*services.AdminDashboard, error) {
	args := m.Called(ctx, actor)
	d, _ := args.Get(0).(*services.AdminDashboard)
	return d, args.Error(1)
}

func (m *MockDashboards) StudentDashboard(ctx context.Context, actor models.Identity) (*services.StudentDashboard, error) {
	args := m.Called(ctx, actor)
	d, _ := args.Get(0).(*services.StudentDashboard)
	return d, args.Error(1)
}
