package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	err := WriteJSON(w, http.StatusOK, map[string]string{"message": "success"})

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "success")
}

func TestErrorWriters(t *testing.T) {
	tests := []struct {
		name   string
		write  func(w http.ResponseWriter)
		status int
		code   string
	}{
		{"bad request", func(w http.ResponseWriter) { WriteBadRequest(w, "nope") }, http.StatusBadRequest, "bad_request"},
		{"unauthorized", func(w http.ResponseWriter) { WriteUnauthorized(w, "who") }, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", func(w http.ResponseWriter) { WriteForbidden(w, "no") }, http.StatusForbidden, "forbidden"},
		{"rate limited", func(w http.ResponseWriter) { WriteTooManyRequests(w, "slow") }, http.StatusTooManyRequests, "rate_limited"},
		{"internal", func(w http.ResponseWriter) { WriteInternalError(w) }, http.StatusInternalServerError, "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			w.Header().Set(RequestIDHeader, "req-9")
			tt.write(w)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Code)
			assert.Equal(t, "req-9", body.RequestID)
		})
	}
}

func TestWriteUnauthorized_Challenge(t *testing.T) {
	w := httptest.NewRecorder()
	WriteUnauthorized(w, "missing token")
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
}

func TestWriteList(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteList(w, []int{1, 2}, 5, Page{Limit: 2}))

	var body struct {
		Items []int `json:"items"`
		Total int   `json:"total"`
		Limit int   `json:"limit"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []int{1, 2}, body.Items)
	assert.Equal(t, 5, body.Total)
	assert.Equal(t, 2, body.Limit)
}

func TestWriteNoContent(t *testing.T) {
	w := httptest.NewRecorder()
	WriteNoContent(w)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())
}
