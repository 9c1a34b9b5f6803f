package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{"INVALID_RANGE", http.StatusBadRequest},
		{"IMPORT_CONFIGURATION", http.StatusUnprocessableEntity},
		{"INVALID_DIRECTION", http.StatusUnprocessableEntity},
		{"BALANCE_DIVERGENCE", http.StatusConflict},
		{"ALREADY_CLASSIFIED", http.StatusConflict},
		{"NOT_FOUND", http.StatusNotFound},
		{"APPROVAL_SAME_IDENTITY", http.StatusForbidden},
		{"MISSING_OPERATION_CONTEXT", http.StatusUnauthorized},
		{"FILE_TOO_LARGE", http.StatusRequestEntityTooLarge},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestErrorResponse_JSON(t *testing.T) {
	resp := NewErrorResponseWithRequestID("INVALID_RANGE", "period_to lies before period_from", "req-1")
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["success"])
	errObj := decoded["error"].(map[string]any)
	assert.Equal(t, "INVALID_RANGE", errObj["code"])
	assert.Equal(t, "req-1", errObj["request_id"])
	_, hasData := decoded["data"]
	assert.False(t, hasData)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 41, 2, 20)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 3, resp.Meta.TotalPages)
	assert.True(t, resp.Success)
}

func TestNewValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Request validation failed", "req-2", []ValidationDetail{{Field: "amount", Message: "This field is required"}})
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Len(t, resp.Error.Details, 1)
}
