package services

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/models"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const (
	authorColumns       = "id, name, bio, birth_date, created_at, updated_at"
	bookColumns         = "id, title, author_id, isbn, publisher, publication_year, category, description, total_copies, available_copies, created_at, updated_at"
	studentColumns      = "id, student_id, username, password, first_name, last_name, email, phone, department, status, is_active, last_login, created_at, updated_at"
	loanColumns         = "id, book_id, student_id, status, request_date, issue_date, expected_return_date, actual_return_date, notes, created_at, updated_at"
	fineColumns         = "id, issue_request_id, student_id, amount, days_overdue, description, is_paid, payment_date, payment_method, external_tx_id, invoice_number, created_at, updated_at"
	notificationColumns = "id, student_id, title, message, notification_type, is_read, read_at, created_at"
)

// qualify prefixes every column in a column list with alias
func qualify(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func scanAuthor(row rowScanner) (*models.Author, error) {
	var (
		a         models.Author
		birthDate sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Bio, &birthDate, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.BirthDate = timePtr(birthDate)
	return &a, nil
}

func scanBook(row rowScanner) (*models.Book, error) {
	var (
		b    models.Book
		year sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.Title, &b.AuthorID, &b.ISBN, &b.Publisher, &year, &b.Category,
		&b.Description, &b.TotalCopies, &b.AvailableCopies, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		b.PublicationYear = &y
	}
	return &b, nil
}

func scanStudent(row rowScanner) (*models.Student, error) {
	var (
		st        models.Student
		lastLogin sql.NullTime
	)
	err := row.Scan(&st.ID, &st.StudentID, &st.Username, &st.PasswordHash, &st.FirstName, &st.LastName,
		&st.Email, &st.Phone, &st.Department, &st.Status, &st.IsActive, &lastLogin, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, err
	}
	st.LastLogin = timePtr(lastLogin)
	return &st, nil
}

func scanLoan(row rowScanner) (*models.IssueRequest, error) {
	var (
		r                                   models.IssueRequest
		issueDate, expectedDate, actualDate sql.NullTime
	)
	err := row.Scan(&r.ID, &r.BookID, &r.StudentID, &r.Status, &r.RequestDate, &issueDate,
		&expectedDate, &actualDate, &r.Notes, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	r.IssueDate = timePtr(issueDate)
	r.ExpectedReturnDate = timePtr(expectedDate)
	r.ActualReturnDate = timePtr(actualDate)
	return &r, nil
}

func scanFine(row rowScanner) (*models.Fine, error) {
	var (
		f           models.Fine
		requestID   sql.NullInt64
		paymentDate sql.NullTime
	)
	err := row.Scan(&f.ID, &requestID, &f.StudentID, &f.Amount, &f.DaysOverdue, &f.Description, &f.IsPaid,
		&paymentDate, &f.PaymentMethod, &f.ExternalTxID, &f.InvoiceNumber, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if requestID.Valid {
		id := requestID.Int64
		f.IssueRequestID = &id
	}
	f.PaymentDate = timePtr(paymentDate)
	return &f, nil
}

func scanNotification(row rowScanner) (*models.Notification, error) {
	var (
		n      models.Notification
		readAt sql.NullTime
	)
	if err := row.Scan(&n.ID, &n.StudentID, &n.Title, &n.Message, &n.Type, &n.IsRead, &readAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	n.ReadAt = timePtr(readAt)
	return &n, nil
}

// collect drains rows through scan, closing rows
func collect[T any](rows *sql.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// queryer is satisfied by both *sql.DB and *sql.Tx
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}
