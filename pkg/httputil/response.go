package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// ListResponse wraps a page of results with the unpaged total
type ListResponse struct {
	Items  interface{} `json:"items"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit,omitempty"`
	Offset int         `json:"offset,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorResponse writes a structured error
func WriteErrorResponse(w http.ResponseWriter, status int, resp ErrorResponse) {
	if resp.RequestID == "" {
		resp.RequestID = w.Header().Get(RequestIDHeader)
	}
	_ = WriteJSON(w, status, resp)
}

// WriteErrorMessage writes a JSON error with a plain message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteErrorResponse(w, status, ErrorResponse{Error: message})
}

// WriteBadRequest writes a 400
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "bad_request"})
}

// WriteUnauthorized writes a 401 with a bearer challenge
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="taskboard"`)
	WriteErrorResponse(w, http.StatusUnauthorized, ErrorResponse{Error: message, Code: "unauthorized"})
}

// WriteForbidden writes a 403
func WriteForbidden(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusForbidden, ErrorResponse{Error: message, Code: "forbidden"})
}

// WriteTooManyRequests writes a 429
func WriteTooManyRequests(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusTooManyRequests, ErrorResponse{Error: message, Code: "rate_limited"})
}

// WriteInternalError writes a 500 without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Code: "internal"})
}

// WriteCreated writes a 201 with data
func WriteCreated(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusCreated, data)
}

// WriteSuccess writes a 200 with data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}

// WriteList writes a 200 with a ListResponse
func WriteList(w http.ResponseWriter, items interface{}, total int, page Page) error {
	return WriteSuccess(w, ListResponse{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset})
}

// WriteNoContent writes a 204
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
