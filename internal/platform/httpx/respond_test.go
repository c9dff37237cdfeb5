package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProblem(t *testing.T) {
	rec := httptest.NewRecorder()
	Problem(rec, http.StatusConflict, "Conflict", "period locked")

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, "Conflict", pd.Title)
	assert.Equal(t, http.StatusConflict, pd.Status)
	assert.Equal(t, "period locked", pd.Detail)
}

func TestRespondError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{ErrNotFound, http.StatusNotFound},
		{ErrDuplicate, http.StatusConflict},
		{ErrConflict, http.StatusConflict},
		{ErrValidation, http.StatusBadRequest},
		{ErrForbidden, http.StatusForbidden},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		assert.Equal(t, tc.code, rec.Code, "error %v", tc.err)
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, fmt.Errorf("pq: connection refused"))

	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Empty(t, pd.Detail)
}

func TestValidationProblem(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
		Year int    `validate:"min=1990"`
	}
	err := validator.New().Struct(payload{Year: 1900})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationProblem(rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var pd ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pd))
	assert.Equal(t, "required", pd.Fields["Name"])
	assert.Equal(t, "min", pd.Fields["Year"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Memo string `json:"memo"`
	}
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"memo":"x","bogus":1}`))
	assert.Error(t, DecodeJSON(r, &target))

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"memo":"x"}`))
	require.NoError(t, DecodeJSON(r, &target))
	assert.Equal(t, "x", target.Memo)
}
