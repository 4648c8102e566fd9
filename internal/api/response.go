package api

import (
	"encoding/json"
	"net/http"
)

// errorBody is the envelope for error responses.
type errorBody struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

// respondJSON writes data as a JSON body with the given status. A nil data
// writes the status and Content-Type only.
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError writes a single-message error body with the given status.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorBody{Error: message})
}

// respondValidationErrors writes a 400 listing every per-field validation
// failure so the caller can fix the whole batch in one pass.
func respondValidationErrors(w http.ResponseWriter, details []string) {
	respondJSON(w, http.StatusBadRequest, errorBody{
		Error:   "validation_failed",
		Details: details,
	})
}
