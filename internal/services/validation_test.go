package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSignup struct {
	Username string `validate:"required,min=3"`
	Email    string `validate:"required,email"`
	Copies   int    `validate:"required,gte=1"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&testSignup{Username: "jdoe", Email: "jdoe@example.com", Copies: 2})
		assert.NoError(t, err)
	})

	t.Run("every failing field is reported", func(t *testing.T) {
		err := vh.ValidateStruct(&testSignup{Username: "j"})
		require.Error(t, err)

		var verrs validator.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Len(t, verrs, 3)
	})

	t.Run("invalid email format", func(t *testing.T) {
		err := vh.ValidateStruct(&testSignup{Username: "jdoe", Email: "not-an-email", Copies: 1})

		var verrs validator.ValidationErrors
		require.True(t, errors.As(err, &verrs))
		assert.Len(t, verrs, 1)
		assert.Equal(t, "Email", verrs[0].Field())
		assert.Equal(t, "email", verrs[0].Tag())
	})
}

func TestValidationHelper_validateInput(t *testing.T) {
	vh := NewValidationHelper()

	err := vh.validateInput(&testSignup{Username: "jdoe", Email: "jdoe@example.com"})
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))

	var svcErr *Error
	require.True(t, errors.As(err, &svcErr))
	assert.Equal(t, "invalid_Copies", svcErr.Code)

	assert.NoError(t, vh.validateInput(&testSignup{Username: "jdoe", Email: "jdoe@example.com", Copies: 1}))
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Empty(t, response.Code)
		assert.Nil(t, response.Details)
	})

	t.Run("validation details", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&testSignup{Username: "j", Email: "bad"})

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, response.Details, "Username")
		assert.Contains(t, response.Details, "Email")
		assert.Contains(t, response.Details, "Copies")
	})
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ValidationError("isbn", "isbn already exists"), http.StatusBadRequest},
		{ErrDuplicateRequest, http.StatusConflict},
		{ErrFineAlreadyPaid, http.StatusConflict},
		{ErrBookNotFound, http.StatusNotFound},
		{ErrInvalidCredentials, http.StatusUnauthorized},
		{ErrForbidden, http.StatusForbidden},
		{ErrCopyCountViolation, http.StatusInternalServerError},
		{errors.New("connection reset"), http.StatusInternalServerError},
		{fmt.Errorf("accept request: %w", ErrNoCopiesLeft), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Run("classified", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, ErrOutstandingFine)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "outstanding_fine", response.Code)
		assert.Equal(t, ErrOutstandingFine.Message, response.Error)
	})

	t.Run("internal details stay hidden", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, errors.New("pq: relation \"books\" does not exist"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "An Internal Error Occurred", response.Error)
	})
}
