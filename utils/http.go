package utils

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every error the gateway writes. Message is
// left empty on authentication failures so callers cannot tell them apart.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return nil
	}

	return json.NewEncoder(w).Encode(data)
}

// WriteNoContent writes a 204 No Content response
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 Bad Request response
func WriteBadRequest(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Bad Request", Message: message})
}

// WriteUnauthorized writes the generic 401 response. The body is identical for
// every failure kind.
func WriteUnauthorized(w http.ResponseWriter) error {
	w.Header().Set("WWW-Authenticate", "Bearer")
	return WriteJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Unauthorized"})
}

// WriteNotFound writes a 404 Not Found response
func WriteNotFound(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "Not Found"})
}

// WriteMethodNotAllowed writes a 405 Method Not Allowed response
func WriteMethodNotAllowed(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: "Method Not Allowed"})
}

// WritePayloadTooLarge writes a 413 response
func WritePayloadTooLarge(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{Error: "Payload Too Large"})
}

// WriteServiceUnavailable writes a 503 response with the given body
func WriteServiceUnavailable(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusServiceUnavailable, data)
}

// WriteInternalServerError writes the generic 500 response. Handler error
// details are logged, never returned.
func WriteInternalServerError(w http.ResponseWriter) error {
	return WriteJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Internal Server Error"})
}
