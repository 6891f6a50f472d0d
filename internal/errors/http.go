// Package errors defines the wire shape for HTTP error responses served by
// the operational status server.
package errors

import (
	"encoding/json"
	"net/http"
)

// Stable error codes for the status server.
const (
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// HTTPError is the error payload embedded in HTTPErrorResponse.
type HTTPError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// HTTPErrorResponse is the JSON envelope for all error responses.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// WriteHTTPError writes a JSON error response with the given status code.
func WriteHTTPError(w http.ResponseWriter, status int, code, message string) {
	WriteHTTPErrorDetails(w, status, code, message, nil)
}

// WriteHTTPErrorDetails writes a JSON error response carrying structured
// details alongside the code and message.
func WriteHTTPErrorDetails(w http.ResponseWriter, status int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{
		Error: HTTPError{Code: code, Message: message, Details: details},
	})
}

// RespondWithError maps an arbitrary handler error to the standard 500
// envelope. Handlers with more specific mappings write their own envelope
// before returning.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	WriteHTTPError(w, http.StatusInternalServerError, CodeInternal, msg)
}
