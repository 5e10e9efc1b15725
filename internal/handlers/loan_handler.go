package handlers

import (
	"context"
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Loans interface {
	RequestLoan(ctx context.Context, actor models.Identity, bookID int64) (*models.IssueRequest, error)
	AcceptRequest(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error)
	RejectRequest(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error)
	ReturnBook(ctx context.Context, actor models.Identity, requestID int64) (*services.ReturnResult, error)
	ReevaluateOverdue(ctx context.Context, actor models.Identity, requestID int64) (*models.IssueRequest, error)
	ListLoans(ctx context.Context, actor models.Identity, filter string) ([]services.LoanView, error)
	StudentLoans(ctx context.Context, actor models.Identity) ([]services.LoanView, error)
	GetLoan(ctx context.Context, actor models.Identity, requestID int64) (*services.LoanView, error)
}

type LoanHandler struct {
	loans Loans
}

func NewLoanHandler(loans Loans) *LoanHandler {
	return &LoanHandler{loans: loans}
}

// RequestBook files an issue request for the calling student
// @Summary Request a book
// @Tags Loans
// @Security BearerAuth
// @Produce json
// @Param id path int true "Book ID"
// @Success 201 {object} models.IssueRequest
// @Failure 409 {object} services.ErrorResponse
// @Router /books/{id}/request [post]
func (h *LoanHandler) RequestBook(w http.ResponseWriter, r *http.Request) {
	bookID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	loan, err := h.loans.RequestLoan(r.Context(), actor(r), bookID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// ListLoans lists requests for admins
// @Summary List loans
// @Tags Loans
// @Security BearerAuth
// @Produce json
// @Param filter query string false "all, pending, active, overdue or returned"
// @Success 200 {array} services.LoanView
// @Router /loans [get]
func (h *LoanHandler) ListLoans(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("filter")
	if filter == "" {
		filter = services.LoanFilterAll
	}

	loans, err := h.loans.ListLoans(r.Context(), actor(r), filter)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// @Summary My loans
// @Tags Loans
// @Security BearerAuth
// @Produce json
// @Success 200 {array} services.LoanView
// @Router /me/loans [get]
func (h *LoanHandler) MyLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := h.loans.StudentLoans(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loans)
}

// @Summary Get loan
// @Tags Loans
// @Security BearerAuth
// @Produce json
// @Param id path int true "Request ID"
// @Success 200 {object} services.LoanView
// @Router /loans/{id} [get]
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	loan, err := h.loans.GetLoan(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// Accept issues a requested book
// @Summary Accept request
// @Tags Loans
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.IssueRequest
// @Failure 409 {object} services.ErrorResponse
// @Router /loans/{id}/accept [post]
func (h *LoanHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.AcceptRequest)
}

// @Summary Reject request
// @Tags Loans
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.IssueRequest
// @Router /loans/{id}/reject [post]
func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.RejectRequest)
}

// @Summary Re-evaluate overdue
// @Tags Loans
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} models.IssueRequest
// @Router /loans/{id}/reevaluate [post]
func (h *LoanHandler) Reevaluate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.loans.ReevaluateOverdue)
}

// Return records a returned book and any fine it accrued
// @Summary Return book
// @Tags Loans
// @Security BearerAuth
// @Param id path int true "Request ID"
// @Success 200 {object} services.ReturnResult
// @Router /loans/{id}/return [post]
func (h *LoanHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	result, err := h.loans.ReturnBook(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *LoanHandler) transition(w http.ResponseWriter, r *http.Request, apply func(context.Context, models.Identity, int64) (*models.IssueRequest, error)) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	loan, err := apply(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}
