package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Fines interface {
	CreateCustomFine(ctx context.Context, actor models.Identity, req services.CustomFineRequest) (*models.Fine, error)
	MarkPaid(ctx context.Context, actor models.Identity, fineID int64, req services.MarkPaidRequest) (*models.Fine, error)
	DeleteFine(ctx context.Context, actor models.Identity, fineID int64) error
	ListFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error)
	StudentFines(ctx context.Context, actor models.Identity) (*models.FineSummary, error)
	ExportFines(ctx context.Context, actor models.Identity) (*bytes.Buffer, string, error)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type FineHandler struct {
	fines Fines
}

func NewFineHandler(fines Fines) *FineHandler {
	return &FineHandler{fines: fines}
}

// ListFines returns every fine with totals
// @Summary List fines
// @Tags Fines
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.FineSummary
// @Failure 403 {object} services.ErrorResponse
// @Router /fines [get]
func (h *FineHandler) ListFines(w http.ResponseWriter, r *http.Request) {
	summary, err := h.fines.ListFines(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// @Summary My fines
// @Tags Fines
// @Security BearerAuth
// @Produce json
// @Success 200 {object} models.FineSummary
// @Router /me/fines [get]
func (h *FineHandler) MyFines(w http.ResponseWriter, r *http.Request) {
	summary, err := h.fines.StudentFines(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// ExportFines downloads all fines as a spreadsheet
// @Summary Export fines
// @Tags Fines
// @Security BearerAuth
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success 200 {file} file
// @Router /fines/export [get]
func (h *FineHandler) ExportFines(w http.ResponseWriter, r *http.Request) {
	buf, filename, err := h.fines.ExportFines(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// CreateFine charges a student a custom fine
// @Summary Create custom fine
// @Tags Fines
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body services.CustomFineRequest true "Fine"
// @Success 201 {object} models.Fine
// @Failure 400 {object} services.ErrorResponse
// @Router /fines [post]
func (h *FineHandler) CreateFine(w http.ResponseWriter, r *http.Request) {
	var req services.CustomFineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fine, err := h.fines.CreateCustomFine(r.Context(), actor(r), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fine)
}

// MarkPaid records an offline payment
// @Summary Mark fine paid
// @Tags Fines
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Fine ID"
// @Param request body services.MarkPaidRequest true "Payment"
// @Success 200 {object} models.Fine
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id}/pay [post]
func (h *FineHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req services.MarkPaidRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fine, err := h.fines.MarkPaid(r.Context(), actor(r), id, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fine)
}

func (h *FineHandler) DeleteFine(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.fines.DeleteFine(r.Context(), actor(r), id); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
