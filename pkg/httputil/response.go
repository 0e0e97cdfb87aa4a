// Package httputil provides HTTP handler utilities for consistent error handling,
// JSON encoding/decoding, and request parsing.
package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// MessageResponse is the {message, error} body returned by the auth endpoints.
type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// WriteMessage writes a {"message": ...} body with the given status code
func WriteMessage(w http.ResponseWriter, status int, message string) error {
	return WriteJSON(w, status, MessageResponse{Message: message})
}

// WriteUnauthorized writes a 401 with a user-facing message and an optional diagnostic
func WriteUnauthorized(w http.ResponseWriter, message string, diagnostic error) {
	body := MessageResponse{Message: message}
	if diagnostic != nil {
		body.Error = diagnostic.Error()
	}
	WriteJSON(w, http.StatusUnauthorized, body)
}

// ValidationErrorResponse carries per-field validation messages
type ValidationErrorResponse struct {
	Errors map[string][]string `json:"errors"`
}

// WriteValidationErrors writes a 422 Unprocessable Entity with field errors
func WriteValidationErrors(w http.ResponseWriter, fields map[string][]string) {
	WriteJSON(w, http.StatusUnprocessableEntity, ValidationErrorResponse{Errors: fields})
}

// WriteBadRequest writes a bad request error (400)
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteMessage(w, http.StatusBadRequest, message)
}

// WriteInternalError writes a generic 500 without leaking the cause
func WriteInternalError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
}

// WriteSuccess writes a successful response (200 OK) with JSON data
func WriteSuccess(w http.ResponseWriter, data interface{}) error {
	return WriteJSON(w, http.StatusOK, data)
}
