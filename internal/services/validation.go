package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Error message
	Code    string            `json:"code,omitempty"`    // Stable error code
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// validateInput runs struct validation and reports the first failing field
// as a classified validation error
func (vh *ValidationHelper) validateInput(s any) error {
	err := vh.validator.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return &Error{
			Kind:    KindValidation,
			Code:    "invalid_" + f.Field(),
			Message: fmt.Sprintf("Field Validation Failed on '%s' tag", f.Tag()),
			Err:     err,
		}
	}
	return &Error{Kind: KindValidation, Code: "invalid_input", Message: "validation failed", Err: err}
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: message}
	var verrs validator.ValidationErrors
	if errors.As(validationErr, &verrs) {
		errorResp.Details = make(map[string]string)
		for _, err := range verrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}
	var svcErr *Error
	if errors.As(validationErr, &svcErr) {
		errorResp.Code = svcErr.Code
	}

	json.NewEncoder(w).Encode(errorResp)
}

// StatusCode maps an error kind to the HTTP status the web layer returns
func StatusCode(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindPrecondition:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders any service error with the status its kind implies
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	message := "An Internal Error Occurred"
	var svcErr *Error
	if errors.As(err, &svcErr) && status != http.StatusInternalServerError {
		message = svcErr.Message
	}
	SendErrorResponse(w, message, status, err)
}
