package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/libraryhub/backend/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type MembershipService struct {
	db        *sql.DB
	auth      Authorizer
	validator *ValidationHelper
	logger    *zap.Logger
	now       func() time.Time
}

// RegisterRequest represents the student registration payload
// @Description Student registration structure
type RegisterRequest struct {
	StudentID  string `json:"student_id" validate:"required,max=20" example:"STU-2024-001"`
	Username   string `json:"username" validate:"required,min=3,max=50,alphanum" example:"jdoe"`
	Email      string `json:"email" validate:"required,email,max=254" example:"jdoe@example.com"`
	Password   string `json:"password" validate:"required,min=8" example:"password123"`
	FirstName  string `json:"first_name" validate:"required,max=100" example:"John"`
	LastName   string `json:"last_name" validate:"required,max=100" example:"Doe"`
	Phone      string `json:"phone" validate:"max=15" example:"01700000000"`
	Department string `json:"department" validate:"max=100" example:"CSE"`
}

// ResetPasswordRequest is the self-service reset payload
type ResetPasswordRequest struct {
	Username    string `json:"username" validate:"required"`
	StudentID   string `json:"student_id" validate:"required"`
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// StudentUpdate is the admin edit of a student profile. Password is only
// changed when set.
type StudentUpdate struct {
	StudentID  string `json:"student_id" validate:"required,max=20"`
	Username   string `json:"username" validate:"required,min=3,max=50,alphanum"`
	Email      string `json:"email" validate:"required,email,max=254"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	LastName   string `json:"last_name" validate:"required,max=100"`
	Phone      string `json:"phone" validate:"max=15"`
	Department string `json:"department" validate:"max=100"`
	Status     string `json:"status" validate:"required,oneof=active inactive suspended"`
	Password   string `json:"password,omitempty" validate:"omitempty,min=8"`
}

type statusInput struct {
	Status string `validate:"required,oneof=active inactive suspended"`
}

type passwordInput struct {
	Password string `validate:"required,min=8"`
}

func NewMembershipService(db *sql.DB, auth Authorizer, logger *zap.Logger) *MembershipService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MembershipService{
		db:        db,
		auth:      auth,
		validator: NewValidationHelper(),
		logger:    logger.Named("membership"),
		now:       time.Now,
	}
}

// Register creates an active student. Duplicates are reported for the first
// clashing field in the order username, student_id, email.
func (s *MembershipService) Register(ctx context.Context, req RegisterRequest) (*models.Student, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := s.validator.validateInput(&req); err != nil {
		return nil, err
	}

	uniques := []struct {
		column, value, message string
	}{
		{"username", req.Username, "username is already taken"},
		{"student_id", req.StudentID, "student ID is already registered"},
		{"email", req.Email, "email is already registered"},
	}
	for _, u := range uniques {
		var exists bool
		query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM students WHERE %s = $1)", u.column)
		if err := s.db.QueryRowContext(ctx, query, u.value).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check %s: %w", u.column, err)
		}
		if exists {
			return nil, ValidationError(u.column, u.message)
		}
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO students (student_id, username, password, first_name, last_name, email, phone, department, status, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10, $10) RETURNING `+studentColumns,
		req.StudentID, req.Username, hash, req.FirstName, req.LastName, req.Email, req.Phone, req.Department,
		models.StudentStatusActive, now)
	student, err := scanStudent(row)
	if err != nil {
		for _, u := range uniques {
			if isUniqueViolation(err, "students_"+u.column+"_key") {
				return nil, ValidationError(u.column, u.message)
			}
		}
		return nil, fmt.Errorf("create student: %w", err)
	}

	s.logger.Info("student registered", zap.Int64("id", student.ID), zap.String("student_id", student.StudentID))
	return student, nil
}

// VerifyCredential returns the student when password matches
func (s *MembershipService) VerifyCredential(ctx context.Context, username, password string) (*models.Student, error) {
	student, err := s.byUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrStudentNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !VerifyPassword(password, student.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return student, nil
}

// SetPassword is the admin reset; no old password required
func (s *MembershipService) SetPassword(ctx context.Context, actor models.Identity, id int64, password string) error {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return err
	}
	if err := s.validator.validateInput(&passwordInput{Password: password}); err != nil {
		return err
	}
	if err := s.storePassword(ctx, id, password); err != nil {
		return err
	}
	s.logger.Info("student password reset by admin", zap.Int64("id", id), zap.Stringer("actor", actor))
	return nil
}

// ResetPassword lets a student change a password given the old one
func (s *MembershipService) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := s.validator.validateInput(&req); err != nil {
		return err
	}

	student, err := s.VerifyCredential(ctx, req.Username, req.OldPassword)
	if err != nil {
		return err
	}
	if student.StudentID != strings.TrimSpace(req.StudentID) {
		return ErrInvalidCredentials
	}
	return s.storePassword(ctx, student.ID, req.NewPassword)
}

func (s *MembershipService) storePassword(ctx context.Context, id int64, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	result, err := s.db.ExecContext(ctx, "UPDATE students SET password = $1, updated_at = $2 WHERE id = $3", hash, s.now(), id)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrStudentNotFound
	}
	return nil
}

// UpdateStatus changes the account status; is_active follows it
func (s *MembershipService) UpdateStatus(ctx context.Context, actor models.Identity, id int64, status string) (*models.Student, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	if err := s.validator.validateInput(&statusInput{Status: status}); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		"UPDATE students SET status = $1, is_active = $2, updated_at = $3 WHERE id = $4 RETURNING "+studentColumns,
		status, status != models.StudentStatusInactive, s.now(), id)
	student, err := scanStudent(row)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "update status")
	}

	s.logger.Info("student status changed", zap.Int64("id", id), zap.String("status", status), zap.Stringer("actor", actor))
	return student, nil
}

// UpdateStudent rewrites a student's profile. Duplicates against other
// students are reported like Register.
func (s *MembershipService) UpdateStudent(ctx context.Context, actor models.Identity, id int64, in StudentUpdate) (*models.Student, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.validator.validateInput(&in); err != nil {
		return nil, err
	}

	uniques := []struct {
		column, value, message string
	}{
		{"username", in.Username, "username is already taken"},
		{"student_id", in.StudentID, "student ID is already registered"},
		{"email", in.Email, "email is already registered"},
	}
	for _, u := range uniques {
		var exists bool
		query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM students WHERE %s = $1 AND id <> $2)", u.column)
		if err := s.db.QueryRowContext(ctx, query, u.value, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check %s: %w", u.column, err)
		}
		if exists {
			return nil, ValidationError(u.column, u.message)
		}
	}

	query := `UPDATE students SET student_id = $1, username = $2, email = $3, first_name = $4, last_name = $5,
		phone = $6, department = $7, status = $8, is_active = $9, updated_at = $10`
	args := []any{in.StudentID, in.Username, in.Email, in.FirstName, in.LastName, in.Phone, in.Department,
		in.Status, in.Status != models.StudentStatusInactive, s.now()}
	if in.Password != "" {
		hash, err := HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		args = append(args, hash)
		query += fmt.Sprintf(", password = $%d", len(args))
	}
	args = append(args, id)
	query += fmt.Sprintf(" WHERE id = $%d RETURNING ", len(args)) + studentColumns

	student, err := scanStudent(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		for _, u := range uniques {
			if isUniqueViolation(err, "students_"+u.column+"_key") {
				return nil, ValidationError(u.column, u.message)
			}
		}
		return nil, notFound(err, ErrStudentNotFound, "update student")
	}

	s.logger.Info("student profile updated", zap.Int64("id", id), zap.Bool("password_changed", in.Password != ""), zap.Stringer("actor", actor))
	return student, nil
}

// TotalUnpaidFines sums every unpaid fine of the student
func (s *MembershipService) TotalUnpaidFines(ctx context.Context, studentID int64) (decimal.Decimal, error) {
	return totalUnpaidFines(ctx, s.db, studentID)
}

func totalUnpaidFines(ctx context.Context, q queryer, studentID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := q.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM fines WHERE student_id = $1 AND is_paid = false",
		studentID).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum unpaid fines: %w", err)
	}
	return total, nil
}

// GetStudent is open to admins and to the student themself
func (s *MembershipService) GetStudent(ctx context.Context, actor models.Identity, id int64) (*models.Student, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAnonymous); err != nil {
		return nil, err
	}
	if actor.IsStudent() && actor.ID != id {
		return nil, ErrForbidden
	}

	row := s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE id = $1", id)
	student, err := scanStudent(row)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "get student")
	}
	return student, nil
}

// SearchStudents matches active students on student_id, username, name or email
func (s *MembershipService) SearchStudents(ctx context.Context, actor models.Identity, query string) ([]models.Student, error) {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return nil, err
	}

	pattern := "%" + strings.TrimSpace(query) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+studentColumns+` FROM students
		WHERE status = 'active' AND (student_id ILIKE $1 OR username ILIKE $1 OR first_name ILIKE $1 OR last_name ILIKE $1 OR email ILIKE $1)
		ORDER BY student_id LIMIT 50`,
		pattern)
	if err != nil {
		return nil, fmt.Errorf("search students: %w", err)
	}
	return collect(rows, scanStudent)
}

// DeleteStudent removes the student with their loans, fines and notifications.
// Copies the student still has out go back on the shelf in the same
// transaction, since the cascade takes their loans with it.
func (s *MembershipService) DeleteStudent(ctx context.Context, actor models.Identity, id int64) error {
	if err := s.auth.Authorize(ctx, actor, models.IdentityAdmin); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT book_id FROM issue_requests WHERE student_id = $1 AND status IN ('issued', 'overdue') FOR UPDATE",
		id)
	if err != nil {
		return fmt.Errorf("load open loans: %w", err)
	}
	var bookIDs []int64
	for rows.Next() {
		var bookID int64
		if err := rows.Scan(&bookID); err != nil {
			rows.Close()
			return fmt.Errorf("scan open loan: %w", err)
		}
		bookIDs = append(bookIDs, bookID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load open loans: %w", err)
	}

	now := s.now()
	for _, bookID := range bookIDs {
		_, err := tx.ExecContext(ctx,
			"UPDATE books SET available_copies = available_copies + 1, updated_at = $1 WHERE id = $2 AND available_copies < total_copies",
			now, bookID)
		if err != nil {
			return fmt.Errorf("restore copy: %w", err)
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM students WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrStudentNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Info("student deleted", zap.Int64("id", id), zap.Int("copies_restored", len(bookIDs)), zap.Stringer("actor", actor))
	return nil
}

func (s *MembershipService) byUsername(ctx context.Context, username string) (*models.Student, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+studentColumns+" FROM students WHERE username = $1", username)
	student, err := scanStudent(row)
	if err != nil {
		return nil, notFound(err, ErrStudentNotFound, "load student")
	}
	return student, nil
}
