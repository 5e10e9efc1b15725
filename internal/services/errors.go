package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Kind classifies a failure for the caller
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition_failed"
	KindNotFound     Kind = "not_found"
	KindAuth         Kind = "auth_failure"
	KindForbidden    Kind = "forbidden"
	KindInternal     Kind = "internal"
)

// Error is a classified failure. Code is stable and machine readable.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Code so wrapped copies of a sentinel still match
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func newError(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrUnavailable        = newError(KindPrecondition, "unavailable", "book is not available")
	ErrDuplicateRequest   = newError(KindPrecondition, "duplicate_request", "an active request for this book already exists")
	ErrOutstandingFine    = newError(KindPrecondition, "outstanding_fine", "unpaid fines must be cleared before requesting books")
	ErrInvalidTransition  = newError(KindPrecondition, "invalid_transition", "request is not in the expected state")
	ErrNoCopiesLeft       = newError(KindPrecondition, "no_copies_left", "no copies left to issue")
	ErrCopyCountViolation = newError(KindInternal, "copy_count_violation", "available copies would leave [0, total]")
	ErrFineAlreadyPaid    = newError(KindPrecondition, "already_paid", "fine is already paid")
	ErrFineNotOwned       = newError(KindForbidden, "fine_not_owned", "fine belongs to another student")
	ErrPaymentUnavailable = newError(KindPrecondition, "payment_unavailable", "payment service is unavailable")

	ErrBookNotFound         = newError(KindNotFound, "book_not_found", "book not found")
	ErrAuthorNotFound       = newError(KindNotFound, "author_not_found", "author not found")
	ErrStudentNotFound      = newError(KindNotFound, "student_not_found", "student not found")
	ErrLoanNotFound         = newError(KindNotFound, "loan_not_found", "issue request not found")
	ErrFineNotFound         = newError(KindNotFound, "fine_not_found", "fine not found")
	ErrNotificationNotFound = newError(KindNotFound, "notification_not_found", "notification not found")
	ErrPaymentNotFound      = newError(KindNotFound, "payment_not_found", "unknown or expired payment reference")

	ErrInvalidCredentials = newError(KindAuth, "invalid_credentials", "invalid username or password")
	ErrAccountInactive    = newError(KindAuth, "account_inactive", "account is inactive")
	ErrAccountSuspended   = newError(KindAuth, "account_suspended", "account is suspended")
	ErrUnauthenticated    = newError(KindAuth, "unauthenticated", "login required")
	ErrForbidden          = newError(KindForbidden, "forbidden", "operation not permitted for this identity")
)

// ValidationError reports bad or duplicate input on a named field
func ValidationError(field, message string) *Error {
	return &Error{Kind: KindValidation, Code: "invalid_" + field, Message: message}
}

// KindOf returns the kind of err, KindInternal when unclassified
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// notFound maps sql.ErrNoRows to the given sentinel and wraps anything else
func notFound(err error, sentinel *Error, op string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueViolation reports a postgres unique_violation on the named constraint
// (any constraint when name is empty)
func isUniqueViolation(err error, name string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return name == "" || pqErr.Constraint == name
}
