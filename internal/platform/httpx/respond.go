// Package httpx provides JSON response helpers and the error envelope used by
// every API handler.
package httpx

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope returned for every non-2xx response:
// a human readable detail, a stable machine code, and optional field errors.
type ErrorBody struct {
	Detail string            `json:"detail"`
	Code   string            `json:"code"`
	Errors map[string]string `json:"errors,omitempty"`
}

// Stable error codes exposed to API clients.
const (
	CodeBadRequest      = "bad_request"
	CodeUnauthorized    = "unauthorized"
	CodeForbidden       = "permission_denied"
	CodeNotFound        = "not_found"
	CodeConflict        = "conflict"
	CodeTooManyRequests = "too_many_requests"
	CodeServerError     = "server_error"
)

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Error sends the error envelope.
func Error(w http.ResponseWriter, status int, code, detail string) {
	JSON(w, status, ErrorBody{Detail: detail, Code: code})
}

// FieldErrors sends a validation failure with per-field messages.
func FieldErrors(w http.ResponseWriter, detail string, fields map[string]string) {
	JSON(w, http.StatusBadRequest, ErrorBody{Detail: detail, Code: CodeBadRequest, Errors: fields})
}

// DecodeJSON decodes the request body into target.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}
