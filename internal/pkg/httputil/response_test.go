package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, map[string]int{"records": 2})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"records":2}`, rec.Body.String())
}

func TestErrorCode(t *testing.T) {
	rec := httptest.NewRecorder()
	ErrorCode(rec, http.StatusConflict, "locked", "a run is already in progress")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "locked", body.Code)
}

func TestInternalErrorHidesDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	InternalError(rec, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestText(t *testing.T) {
	rec := httptest.NewRecorder()
	Text(rec, http.StatusOK, "text/markdown; charset=utf-8", "# Report")
	assert.Equal(t, "# Report", rec.Body.String())
	assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
}
