package handlers

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Payments interface {
	InitiatePayment(ctx context.Context, actor models.Identity, fineID int64) (*services.PaymentInstruction, error)
	OnPaymentCallback(ctx context.Context, req services.CallbackRequest) (*services.CallbackResult, error)
}

const callbackTokenHeader = "X-Callback-Token"

type PaymentHandler struct {
	payments      Payments
	callbackToken string
}

// NewPaymentHandler builds the payment endpoints. A non-empty callbackToken
// must be presented by the gateway on every callback.
func NewPaymentHandler(payments Payments, callbackToken string) *PaymentHandler {
	return &PaymentHandler{payments: payments, callbackToken: callbackToken}
}

// Initiate issues a gateway reference for one of the caller's fines
// @Summary Pay a fine online
// @Description Returns a reference, a QR code encoding it and a pacs.008 instruction
// @Tags Payments
// @Security BearerAuth
// @Produce json
// @Param id path int true "Fine ID"
// @Success 201 {object} services.PaymentInstruction
// @Failure 403 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /fines/{id}/payments [post]
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	fineID, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	instruction, err := h.payments.InitiatePayment(r.Context(), actor(r), fineID)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, instruction)
}

// Callback receives the gateway's status report for a reference
// @Summary Payment gateway callback
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body services.CallbackRequest true "Status report"
// @Success 200 {object} services.CallbackResult
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /payments/callback [post]
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	if h.callbackToken != "" {
		presented := r.Header.Get(callbackTokenHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.callbackToken)) != 1 {
			services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
			return
		}
	}

	var req services.CallbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.payments.OnPaymentCallback(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
